package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultKeepAlive = 25 * time.Second

type StockSubscriber interface {
	Subscribe(ctx context.Context, businessID, itemID uuid.UUID) (*stock.Subscription, error)
}

// StockStream pushes availability changes for one catalog item as
// server-sent events. The first event is the current level. The ledger
// subscription is released when the client disconnects.
func StockStream(ledger StockSubscriber, keepAlive time.Duration, logg *logger.Logger) http.HandlerFunc {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger unavailable"))
			return
		}
		businessID, err := validators.ParseUUIDParam(r, "businessId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		sub, err := ledger.Subscribe(ctx, businessID, itemID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		defer sub.Release()

		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
			case item, ok := <-sub.Updates():
				if !ok {
					_, _ = fmt.Fprint(w, "event: end\ndata: {}\n\n")
					_ = rc.Flush()
					return
				}
				payload, err := json.Marshal(stock.LevelOf(item))
				if err != nil {
					if logg != nil {
						logg.Error(ctx, "encode stock level", err)
					}
					return
				}
				if _, err := fmt.Fprintf(w, "event: stock\ndata: %s\n\n", payload); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
