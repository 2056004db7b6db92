package payment

import (
	"context"
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

// pausePurchase suspends recurring billing. Paused periods are voided, not
// collected later
func (s *Service) pausePurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, respErr := s.loadOwnPurchase(ctx, chi.URLParam(r, "id"))
	if respErr != nil {
		resp.WriteError(w, r, respErr)
		return
	}
	if p.Status != purchase.StatusActive {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("Only active purchases can be paused"))
		return
	}
	if p.StripeSubscriptionID == nil {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("Purchase has no recurring billing to pause"))
		return
	}

	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String("void"),
		},
	}
	params.Context = ctx
	if _, err := s.API.UpdateSubscription(*p.StripeSubscriptionID, params); err != nil {
		s.Logger.Error("Unable to pause subscription",
			zap.String("PurchaseID", p.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("The payment processor rejected the pause"))
		return
	}

	updated, err := s.PurchaseManager.UpdateStatus(ctx, p.ID, purchase.StatusPaused)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	s.recordLifecycle(ctx, updated, "payment.paused", notification.TypePurchasePaused)
	resp.WriteResponse(w, r, updated)
}

// resumePurchase clears the pause and lets billing continue on its original cycle
func (s *Service) resumePurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, respErr := s.loadOwnPurchase(ctx, chi.URLParam(r, "id"))
	if respErr != nil {
		resp.WriteError(w, r, respErr)
		return
	}
	if p.Status != purchase.StatusPaused {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("Only paused purchases can be resumed"))
		return
	}
	if p.StripeSubscriptionID == nil {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("Purchase has no recurring billing to resume"))
		return
	}

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	// an empty value clears pause_collection entirely
	params.AddExtra("pause_collection", "")
	if _, err := s.API.UpdateSubscription(*p.StripeSubscriptionID, params); err != nil {
		s.Logger.Error("Unable to resume subscription",
			zap.String("PurchaseID", p.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("The payment processor rejected the resume"))
		return
	}

	updated, err := s.PurchaseManager.UpdateStatus(ctx, p.ID, purchase.StatusActive)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	s.recordLifecycle(ctx, updated, "payment.resumed", notification.TypePurchaseResumed)
	resp.WriteResponse(w, r, updated)
}

// cancelPurchase ends the purchase for good. Recurring billing is torn down
// at the processor first so no further invoices can be raised
func (s *Service) cancelPurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, respErr := s.loadOwnPurchase(ctx, chi.URLParam(r, "id"))
	if respErr != nil {
		resp.WriteError(w, r, respErr)
		return
	}
	if p.Status.Terminal() {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("Purchase is already settled"))
		return
	}

	if p.StripeSubscriptionID != nil {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		if _, err := s.API.CancelSubscription(*p.StripeSubscriptionID, params); err != nil {
			s.Logger.Error("Unable to cancel subscription",
				zap.String("PurchaseID", p.ID),
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("The payment processor rejected the cancellation"))
			return
		}
	}

	updated, err := s.PurchaseManager.UpdateStatus(ctx, p.ID, purchase.StatusCancelled)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	s.recordLifecycle(ctx, updated, "payment.cancelled", notification.TypePurchaseCancelled)
	resp.WriteResponse(w, r, updated)
}

func (s *Service) recordLifecycle(ctx context.Context, p *purchase.Purchase, action string, eventType notification.Type) {
	claims := auth.ClaimsFromContext(ctx)
	var actor *string
	if claims != nil {
		actor = &claims.ID
	}
	s.AuditManager.RecordBestEffort(ctx, audit.Entry{
		ActorID:    actor,
		Action:     action,
		EntityType: "purchase",
		EntityID:   p.ID,
		Details: audit.Details{
			"status": string(p.Status),
		},
	})
	s.publishBestEffort(ctx, notification.Event{
		Type:       eventType,
		OccurredAt: time.Now(),
		PurchaseID: p.ID,
		ClientID:   p.ClientID,
		TrainerID:  p.TrainerID,
		Amount:     p.Amount.String(),
		Status:     string(p.Status),
	})
}
