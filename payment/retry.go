package payment

import (
	"net/http"
	"time"

	"github.com/bodybiz/backend/audit"
	"github.com/bodybiz/backend/auth"
	"github.com/bodybiz/backend/notification"
	"github.com/bodybiz/backend/purchase"
	resp "github.com/bodybiz/backend/response"

	"github.com/go-chi/chi"
	"github.com/stripe/stripe-go/v74"
	"go.uber.org/zap"
)

// retryPayment re-attempts the newest open invoice of a failed recurring
// purchase. Success moves the purchase back to active immediately rather than
// waiting for the processor's webhook
func (s *Service) retryPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, respErr := s.loadOwnPurchase(ctx, chi.URLParam(r, "id"))
	if respErr != nil {
		resp.WriteError(w, r, respErr)
		return
	}
	if p.Status != purchase.StatusFailed {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("Only failed purchases can be retried"))
		return
	}
	if p.StripeSubscriptionID == nil {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("Purchase has no subscription to retry"))
		return
	}

	listParams := &stripe.InvoiceListParams{
		Subscription: stripe.String(*p.StripeSubscriptionID),
		Status:       stripe.String(string(stripe.InvoiceStatusOpen)),
	}
	listParams.Context = ctx

	invoices, err := s.API.ListInvoices(listParams)
	if err != nil {
		s.Logger.Error("Unable to list open invoices",
			zap.String("PurchaseID", p.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if len(invoices) == 0 {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("No open invoice to retry"))
		return
	}
	// the list is newest first; retry the most recent failure
	target := invoices[0]

	payParams := &stripe.InvoicePayParams{}
	payParams.Context = ctx
	if _, err := s.API.PayInvoice(target.ID, payParams); err != nil {
		if declined := declineError(err); declined != nil {
			resp.WriteError(w, r, declined)
			return
		}
		s.Logger.Error("Unable to pay invoice",
			zap.String("PurchaseID", p.ID),
			zap.String("InvoiceID", target.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("The payment processor rejected the retry"))
		return
	}

	updated, err := s.PurchaseManager.UpdateStatus(ctx, p.ID, purchase.StatusActive)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	claims := auth.ClaimsFromContext(ctx)
	s.AuditManager.RecordBestEffort(ctx, audit.Entry{
		ActorID:    &claims.ID,
		Action:     "payment.retried",
		EntityType: "purchase",
		EntityID:   p.ID,
		Details: audit.Details{
			"invoice_id": target.ID,
		},
	})
	s.publishBestEffort(ctx, notification.Event{
		Type:       notification.TypePaymentReceived,
		OccurredAt: time.Now(),
		PurchaseID: p.ID,
		ClientID:   p.ClientID,
		TrainerID:  p.TrainerID,
		Amount:     p.Amount.String(),
		Status:     string(updated.Status),
	})

	resp.WriteResponse(w, r, updated)
}
