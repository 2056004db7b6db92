package payment

import (
	"context"
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

func (s *Service) directCharge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	sale, respErr := s.resolveSale(ctx, req, true)
	if respErr != nil {
		resp.WriteError(w, r, respErr)
		return
	}
	if sale.Client.StripeCustomerID == nil {
		resp.WriteError(w, r, resp.ErrValidation("Client has no saved payment method; send a checkout link instead"))
		return
	}

	metadata := map[string]string{
		"client_id":  sale.Client.ID,
		"trainer_id": sale.Trainer.ID,
	}
	if sale.Program != nil {
		metadata["program_id"] = sale.Program.ID
	}

	var subscriptionID *string
	var paymentIntentID *string
	if sale.IsRecurring {
		sub, respErr := s.startSubscription(ctx, sale, sale.Duration, metadata)
		if respErr != nil {
			resp.WriteError(w, r, respErr)
			return
		}
		subscriptionID = &sub.ID
	} else {
		intent, respErr := s.chargeOnce(ctx, sale, metadata)
		if respErr != nil {
			resp.WriteError(w, r, respErr)
			return
		}
		paymentIntentID = &intent.ID
	}

	p, err := s.PurchaseManager.NewPurchase(ctx, purchase.NewPurchaseOptions{
		ClientID:          sale.Client.ID,
		TrainerID:         sale.Trainer.ID,
		TrainerRole:       sale.Trainer.Role,
		ProgramID:         sale.programID(),
		CustomProgramName: sale.CustomName,
		Amount:            sale.Amount,
		IsRecurring:       sale.IsRecurring,
		DurationMonths:    sale.Duration,
		Status:            purchase.StatusActive,
		SubscriptionID:    subscriptionID,
		PaymentIntentID:   paymentIntentID,
		Notes:             req.Notes,
	})
	if err != nil {
		s.Logger.Error("Unable to record charged purchase",
			zap.Error(err),
		)
		// the card was already billed; unwind the subscription so the
		// client is not charged for a purchase we failed to record
		if subscriptionID != nil {
			if _, cancelErr := s.API.CancelSubscription(*subscriptionID, nil); cancelErr != nil {
				s.Logger.Error("Unable to unwind subscription after failed insert",
					zap.String("SubscriptionID", *subscriptionID),
					zap.Error(cancelErr),
				)
			}
		}
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	// a settled one-time charge has nothing left to do
	if !sale.IsRecurring {
		p, err = s.PurchaseManager.UpdateStatus(ctx, p.ID, purchase.StatusCompleted)
		if err != nil {
			resp.WriteError(w, r, resp.ErrUnexpected())
			return
		}
	}

	s.AuditManager.RecordBestEffort(ctx, audit.Entry{
		ActorID:    &sale.Trainer.ID,
		Action:     "payment.charged",
		EntityType: "purchase",
		EntityID:   p.ID,
		Details: audit.Details{
			"client_id": sale.Client.ID,
			"program":   sale.ProgramName,
			"amount":    sale.Amount.String(),
			"recurring": sale.IsRecurring,
		},
	})
	s.publishBestEffort(ctx, notification.Event{
		Type:       notification.TypePaymentReceived,
		OccurredAt: time.Now(),
		PurchaseID: p.ID,
		ClientID:   sale.Client.ID,
		TrainerID:  sale.Trainer.ID,
		Amount:     sale.Amount.String(),
		Status:     string(p.Status),
	})

	resp.WriteResponse(w, r, p, http.StatusCreated)
}

// startSubscription provisions a monthly price and subscribes the client's
// saved card, failing the whole charge if the first invoice cannot settle
func (s *Service) startSubscription(ctx context.Context, sale *saleContext, duration *int, metadata map[string]string) (*stripe.Subscription, *resp.Error) {
	priceParams := &stripe.PriceParams{
		Currency:   stripe.String("usd"),
		UnitAmount: stripe.Int64(cents(sale.Amount)),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String("month"),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(sale.ProgramName),
		},
	}
	priceParams.Context = ctx

	price, err := s.API.NewPrice(priceParams)
	if err != nil {
		s.Logger.Error("Unable to create price",
			zap.String("Program", sale.ProgramName),
			zap.Error(err),
		)
		return nil, resp.ErrUnexpected().AddMessages("The payment processor rejected the price")
	}

	subParams := &stripe.SubscriptionParams{
		Customer: stripe.String(*sale.Client.StripeCustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price: stripe.String(price.ID),
			},
		},
		// fail now instead of leaving an incomplete subscription behind
		PaymentBehavior: stripe.String("error_if_incomplete"),
	}
	subParams.Context = ctx
	if sale.PaymentMethodID != "" {
		subParams.DefaultPaymentMethod = stripe.String(sale.PaymentMethodID)
	}
	if duration != nil {
		end := time.Now().AddDate(0, 0, 30*(*duration))
		subParams.CancelAt = stripe.Int64(end.Unix())
	}
	for k, v := range metadata {
		subParams.AddMetadata(k, v)
	}

	sub, err := s.API.NewSubscription(subParams)
	if err != nil {
		if declined := declineError(err); declined != nil {
			return nil, declined
		}
		s.Logger.Error("Unable to create subscription",
			zap.String("ClientID", sale.Client.ID),
			zap.Error(err),
		)
		return nil, resp.ErrUnexpected().AddMessages("The payment processor rejected the subscription")
	}
	return sub, nil
}

// chargeOnce bills the saved card for a single payment
func (s *Service) chargeOnce(ctx context.Context, sale *saleContext, metadata map[string]string) (*stripe.PaymentIntent, *resp.Error) {
	params := &stripe.PaymentIntentParams{
		Amount:     stripe.Int64(cents(sale.Amount)),
		Currency:   stripe.String("usd"),
		Customer:   stripe.String(*sale.Client.StripeCustomerID),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
	}
	params.Context = ctx
	if sale.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(sale.PaymentMethodID)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	intent, err := s.API.NewPaymentIntent(params)
	if err != nil {
		if declined := declineError(err); declined != nil {
			return nil, declined
		}
		s.Logger.Error("Unable to charge payment intent",
			zap.String("ClientID", sale.Client.ID),
			zap.Error(err),
		)
		return nil, resp.ErrUnexpected().AddMessages("The payment processor rejected the charge")
	}
	return intent, nil
}
