package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type RedirectReconciler interface {
	Reconcile(ctx context.Context, landing reconcile.Landing) (reconcile.Outcome, error)
}

// CheckoutReturn handles the buyer landing back from the gateway on one of
// the result pages. The stored order decides what is shown; when it belongs
// on another page the buyer is redirected there.
func CheckoutReturn(page enums.ResultPage, svc RedirectReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}

		landing := landingFromQuery(page, r)
		out, err := svc.Reconcile(r.Context(), landing)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if out.Redirect && out.RedirectURL != "" {
			http.Redirect(w, r, out.RedirectURL, http.StatusFound)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// landingFromQuery accepts both our own back-URL parameters and the ones the
// gateway appends (external_reference, payment_id, collection_id, ...).
func landingFromQuery(page enums.ResultPage, r *http.Request) reconcile.Landing {
	q := r.URL.Query()
	return reconcile.Landing{
		Page:             page,
		BusinessID:       validators.ParseOptionalUUID(q.Get("business")),
		OrderID:          validators.ParseOptionalUUID(firstQuery(q.Get("orderId"), q.Get("external_reference"))),
		PaymentID:        firstQuery(q.Get("paymentId"), q.Get("payment_id"), q.Get("collection_id")),
		VendorStatus:     firstQuery(q.Get("status")),
		CollectionStatus: firstQuery(q.Get("collection_status")),
	}
}

const maxHintLength = 128

func firstQuery(values ...string) string {
	for _, v := range values {
		if v = validators.SanitizeString(v, maxHintLength); v != "" {
			return v
		}
	}
	return ""
}
