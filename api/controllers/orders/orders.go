package orders

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Status returns the canonical payment state of an order. It backs the
// "check order status" link shown when a result page could not be resolved.
func Status(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		businessID, err := validators.ParseUUIDParam(r, "businessId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.GetOrderStatus(r.Context(), businessID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type paymentEventRequest struct {
	VendorStatus string `json:"vendor_status" validate:"required,max=64"`
	PaymentID    string `json:"payment_id,omitempty" validate:"omitempty,max=128"`
}

type paymentEventResponse struct {
	From    enums.PaymentStatus       `json:"from"`
	To      enums.PaymentStatus       `json:"to"`
	Outcome internalorders.Outcome    `json:"outcome"`
	Order   internalorders.StatusView `json:"order"`
}

// AdminPaymentEvent applies a manual payment correction. It goes through the
// same state machine as the gateway events, so it cannot move payment status
// backwards; a blocked correction is reported, not forced.
func AdminPaymentEvent(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		claims, ok := middleware.AdminClaimsFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		businessID, err := validators.ParseUUIDParam(r, "businessId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload paymentEventRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transition, err := svc.AdminApplyPaymentEvent(r.Context(), internalorders.AdminPaymentEventInput{
			BusinessID:   businessID,
			OrderID:      orderID,
			VendorStatus: strings.TrimSpace(payload.VendorStatus),
			PaymentID:    strings.TrimSpace(payload.PaymentID),
			ActorSubject: claims.Subject,
			ActorRole:    string(claims.Role),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, paymentEventResponse{
			From:    transition.From,
			To:      transition.To,
			Outcome: transition.Outcome,
			Order:   internalorders.ViewOf(&transition.Order),
		})
	}
}
