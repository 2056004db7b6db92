package payment

import (
	"context"
	"errors"

	"github.com/bodybiz/backend/client"
	resp "github.com/bodybiz/backend/response"

	"github.com/stripe/stripe-go/v74"
	stripeClient "github.com/stripe/stripe-go/v74/client"
)

// StripeAPI is the slice of the processor's API that payments need. Tests
// substitute a stub; production wires the real client
type StripeAPI interface {
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error)
	ListPaymentMethods(params *stripe.PaymentMethodListParams) ([]*stripe.PaymentMethod, error)
	NewPrice(params *stripe.PriceParams) (*stripe.Price, error)
	NewSubscription(params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	CancelSubscription(id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
	NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	ListInvoices(params *stripe.InvoiceListParams) ([]*stripe.Invoice, error)
	PayInvoice(id string, params *stripe.InvoicePayParams) (*stripe.Invoice, error)
}

// Gateway adapts the processor client to StripeAPI
type Gateway struct {
	api *stripeClient.API
}

// NewGateway wraps a processor client
func NewGateway(api *stripeClient.API) *Gateway {
	return &Gateway{api: api}
}

func (g *Gateway) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return g.api.CheckoutSessions.New(params)
}

func (g *Gateway) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return g.api.Customers.New(params)
}

func (g *Gateway) ListPaymentMethods(params *stripe.PaymentMethodListParams) ([]*stripe.PaymentMethod, error) {
	methods := make([]*stripe.PaymentMethod, 0, 4)
	iter := g.api.PaymentMethods.List(params)
	for iter.Next() {
		methods = append(methods, iter.PaymentMethod())
	}
	return methods, iter.Err()
}

func (g *Gateway) NewPrice(params *stripe.PriceParams) (*stripe.Price, error) {
	return g.api.Prices.New(params)
}

func (g *Gateway) NewSubscription(params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return g.api.Subscriptions.New(params)
}

func (g *Gateway) UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return g.api.Subscriptions.Update(id, params)
}

func (g *Gateway) CancelSubscription(id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	return g.api.Subscriptions.Cancel(id, params)
}

func (g *Gateway) NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return g.api.PaymentIntents.New(params)
}

func (g *Gateway) ListInvoices(params *stripe.InvoiceListParams) ([]*stripe.Invoice, error) {
	invoices := make([]*stripe.Invoice, 0, 4)
	iter := g.api.Invoices.List(params)
	for iter.Next() {
		invoices = append(invoices, iter.Invoice())
	}
	return invoices, iter.Err()
}

func (g *Gateway) PayInvoice(id string, params *stripe.InvoicePayParams) (*stripe.Invoice, error) {
	return g.api.Invoices.Pay(id, params)
}

var _ StripeAPI = (*Gateway)(nil)

// declineError translates a processor card failure into a client-facing error,
// or returns nil when the failure is not a decline
func declineError(err error) *resp.Error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return nil
	}
	switch stripeErr.Code {
	case stripe.ErrorCodeCardDeclined:
		if stripeErr.DeclineCode == stripe.DeclineCodeInsufficientFunds {
			return resp.ErrPaymentDeclined().AddMessages("The card has insufficient funds")
		}
		return resp.ErrPaymentDeclined().AddMessages("The card was declined")
	case stripe.ErrorCodeExpiredCard:
		return resp.ErrPaymentDeclined().AddMessages("The card has expired")
	}
	return nil
}

// ListCards returns the saved card summaries for a processor customer
func (s *Service) ListCards(ctx context.Context, stripeCustomerID string) ([]client.Card, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(stripeCustomerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx

	methods, err := s.API.ListPaymentMethods(params)
	if err != nil {
		return nil, err
	}
	cards := make([]client.Card, 0, len(methods))
	for _, pm := range methods {
		if pm.Card == nil {
			continue
		}
		cards = append(cards, client.Card{
			ID:       pm.ID,
			Brand:    string(pm.Card.Brand),
			Last4:    pm.Card.Last4,
			ExpMonth: pm.Card.ExpMonth,
			ExpYear:  pm.Card.ExpYear,
		})
	}
	return cards, nil
}
