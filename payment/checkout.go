package payment

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bodybiz/backend/audit"
	"github.com/bodybiz/backend/notification"
	"github.com/bodybiz/backend/purchase"
	resp "github.com/bodybiz/backend/response"

	"github.com/stripe/stripe-go/v74"
	"go.uber.org/zap"
)

// checkout links are honored for one day
const checkoutLinkTTL = 24 * time.Hour

// CheckoutResponse carries the link to hand to the client
type CheckoutResponse struct {
	Purchase *purchase.Purchase `json:"purchase"`
	URL      string             `json:"url"`
	Expires  time.Time          `json:"expires"`
}

func (s *Service) createCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	sale, respErr := s.resolveSale(ctx, req, false)
	if respErr != nil {
		resp.WriteError(w, r, respErr)
		return
	}

	// the ledger row exists before the client ever sees the link; it stays
	// pending until the processor confirms the session
	p, err := s.PurchaseManager.NewPurchase(ctx, purchase.NewPurchaseOptions{
		ClientID:          sale.Client.ID,
		TrainerID:         sale.Trainer.ID,
		TrainerRole:       sale.Trainer.Role,
		ProgramID:         sale.programID(),
		CustomProgramName: sale.CustomName,
		Amount:            sale.Amount,
		IsRecurring:       sale.IsRecurring,
		DurationMonths:    sale.Duration,
		Status:            purchase.StatusPending,
		Notes:             req.Notes,
	})
	if err != nil {
		s.Logger.Error("Unable to create pending purchase",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	expires := time.Now().Add(checkoutLinkTTL)
	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(s.SuccessURL),
		CancelURL:  stripe.String(s.CancelURL),
		ExpiresAt:  stripe.Int64(expires.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.Currency),
					UnitAmount: stripe.Int64(cents(sale.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(sale.ProgramName),
					},
				},
			},
		},
	}
	params.Context = ctx
	if sale.Client.StripeCustomerID != nil {
		params.Customer = stripe.String(*sale.Client.StripeCustomerID)
	} else {
		params.CustomerEmail = stripe.String(sale.Client.Email)
	}
	metadata := map[string]string{
		"purchase_id": p.ID,
		"client_id":   sale.Client.ID,
		"trainer_id":  sale.Trainer.ID,
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if sale.IsRecurring {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.LineItems[0].PriceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String("month"),
		}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		}
	} else {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
			// keep the card on file so later sales can charge it directly
			SetupFutureUsage: stripe.String("off_session"),
		}
	}

	session, err := s.API.NewCheckoutSession(params)
	if err != nil {
		s.Logger.Error("Unable to create checkout session",
			zap.String("PurchaseID", p.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("The payment processor rejected the checkout request"))
		return
	}

	link, err := s.PurchaseManager.NewPaymentLink(ctx, p.ID, session.ID, session.URL, expires)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if err := s.PurchaseManager.AttachCheckoutSession(ctx, p.ID, session.ID, link.ID); err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	s.AuditManager.RecordBestEffort(ctx, audit.Entry{
		ActorID:    &sale.Trainer.ID,
		Action:     "checkout.link_created",
		EntityType: "purchase",
		EntityID:   p.ID,
		Details: audit.Details{
			"client_id":  sale.Client.ID,
			"program":    sale.ProgramName,
			"amount":     sale.Amount.String(),
			"session_id": session.ID,
		},
	})
	s.publishBestEffort(ctx, notification.Event{
		Type:       notification.TypeCheckoutLinkCreated,
		OccurredAt: time.Now(),
		PurchaseID: p.ID,
		ClientID:   sale.Client.ID,
		TrainerID:  sale.Trainer.ID,
		Amount:     sale.Amount.String(),
		Status:     string(purchase.StatusPending),
		Detail:     session.URL,
	})

	resp.WriteResponse(w, r, CheckoutResponse{
		Purchase: p,
		URL:      session.URL,
		Expires:  expires,
	}, http.StatusCreated)
}
