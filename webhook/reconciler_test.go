package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bodybiz/backend/audit"
	"github.com/bodybiz/backend/auth"
	"github.com/bodybiz/backend/client"
	"github.com/bodybiz/backend/notification"
	"github.com/bodybiz/backend/purchase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingBroadcast struct {
	events []notification.Event
}

func (b *recordingBroadcast) Publish(_ context.Context, ev notification.Event) error {
	b.events = append(b.events, ev)
	return nil
}

type fixture struct {
	reconciler *Reconciler
	broadcast  *recordingBroadcast
	purchases  *purchase.Manager
	clients    *client.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	zl := zaptest.NewLogger(t)
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	purchases, err := purchase.NewManager(zl, db)
	require.NoError(t, err)
	clients, err := client.NewManager(zl, db)
	require.NoError(t, err)
	audits, err := audit.NewManager(zl, db)
	require.NoError(t, err)

	broadcast := &recordingBroadcast{}
	reconciler, err := NewReconciler(db, ReconcilerOptions{
		PurchaseManager: purchases,
		ClientManager:   clients,
		AuditManager:    audits,
		Broadcast:       broadcast,
		Logger:          zl,
	})
	require.NoError(t, err)

	return &fixture{
		reconciler: reconciler,
		broadcast:  broadcast,
		purchases:  purchases,
		clients:    clients,
	}
}

func (f *fixture) seedClient(t *testing.T) *client.Client {
	t.Helper()
	c, err := f.clients.NewClient(context.Background(), client.NewClientOptions{
		Name:  "Buyer",
		Email: "buyer@example.com",
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) seedPurchase(t *testing.T, opt purchase.NewPurchaseOptions) *purchase.Purchase {
	t.Helper()
	if opt.ClientID == "" {
		opt.ClientID = "client-1"
	}
	if opt.TrainerID == "" {
		opt.TrainerID = "trainer-1"
	}
	if opt.TrainerRole == "" {
		opt.TrainerRole = auth.RoleTrainer
	}
	if opt.ProgramID == nil && opt.CustomProgramName == nil {
		programID := "program-1"
		opt.ProgramID = &programID
	}
	if opt.Amount.IsZero() {
		opt.Amount = decimal.RequireFromString("500")
	}
	if opt.Status == "" {
		opt.Status = purchase.StatusPending
	}
	p, err := f.purchases.NewPurchase(context.Background(), opt)
	require.NoError(t, err)
	return p
}

func stripeEvent(t *testing.T, id, eventType string, payload interface{}) stripe.Event {
	t.Helper()
	object, err := json.Marshal(payload)
	require.NoError(t, err)
	body := fmt.Sprintf(`{"id":%q,"type":%q,"data":{"object":%s}}`, id, eventType, object)
	var ev stripe.Event
	require.NoError(t, json.Unmarshal([]byte(body), &ev))
	return ev
}

func TestCheckoutCompletedRecurring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buyer := f.seedClient(t)
	sessionID := "cs_1"
	p := f.seedPurchase(t, purchase.NewPurchaseOptions{
		ClientID:    buyer.ID,
		IsRecurring: true,
		SessionID:   &sessionID,
	})
	_, err := f.purchases.NewPaymentLink(ctx, p.ID, sessionID, "https://checkout.example/cs_1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	event := stripeEvent(t, "evt_1", "checkout.session.completed", map[string]interface{}{
		"id":           sessionID,
		"customer":     "cus_new",
		"subscription": "sub_new",
		"metadata":     map[string]string{"purchase_id": p.ID},
	})
	require.NoError(t, f.reconciler.Process(ctx, event))

	reloaded, err := f.purchases.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, purchase.StatusActive, reloaded.Status)
	require.NotNil(t, reloaded.StripeSubscriptionID)
	require.Equal(t, "sub_new", *reloaded.StripeSubscriptionID)

	link, err := f.purchases.GetLinkBySession(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, link.ConsumedAt)

	cached, err := f.clients.GetByID(ctx, buyer.ID)
	require.NoError(t, err)
	require.NotNil(t, cached.StripeCustomerID)
	require.Equal(t, "cus_new", *cached.StripeCustomerID)

	require.Len(t, f.broadcast.events, 1)
	require.Equal(t, notification.TypePaymentReceived, f.broadcast.events[0].Type)
}

func TestCheckoutCompletedOneTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sessionID := "cs_once"
	p := f.seedPurchase(t, purchase.NewPurchaseOptions{
		SessionID: &sessionID,
	})

	event := stripeEvent(t, "evt_2", "checkout.session.completed", map[string]interface{}{
		"id":             sessionID,
		"metadata":       map[string]string{"purchase_id": p.ID},
		"payment_intent": map[string]string{"id": "pi_once"},
	})
	require.NoError(t, f.reconciler.Process(ctx, event))

	reloaded, err := f.purchases.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, purchase.StatusCompleted, reloaded.Status)
	require.NotNil(t, reloaded.StripePaymentIntentID)
	require.Equal(t, "pi_once", *reloaded.StripePaymentIntentID)
}

func TestDuplicateDeliveryProcessedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sessionID := "cs_dup"
	p := f.seedPurchase(t, purchase.NewPurchaseOptions{
		IsRecurring: true,
		SessionID:   &sessionID,
	})

	event := stripeEvent(t, "evt_dup", "checkout.session.completed", map[string]interface{}{
		"id":       sessionID,
		"metadata": map[string]string{"purchase_id": p.ID},
	})
	require.NoError(t, f.reconciler.Process(ctx, event))
	require.NoError(t, f.reconciler.Process(ctx, event))

	reloaded, err := f.purchases.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, purchase.StatusActive, reloaded.Status)

	// only the first delivery produced a notification
	require.Len(t, f.broadcast.events, 1)
}

func TestInvoicePaidRecoversFailedPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subID := "sub_renew"
	p := f.seedPurchase(t, purchase.NewPurchaseOptions{
		IsRecurring:    true,
		Status:         purchase.StatusActive,
		SubscriptionID: &subID,
	})
	_, err := f.purchases.UpdateStatus(ctx, p.ID, purchase.StatusFailed)
	require.NoError(t, err)

	event := stripeEvent(t, "evt_paid", "invoice.paid", map[string]interface{}{
		"id":             "in_1",
		"subscription":   subID,
		"billing_reason": "subscription_cycle",
	})
	require.NoError(t, f.reconciler.Process(ctx, event))

	reloaded, err := f.purchases.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, purchase.StatusActive, reloaded.Status)
}

func TestInvoicePaidSkipsInitialInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subID := "sub_initial"
	p := f.seedPurchase(t, purchase.NewPurchaseOptions{
		IsRecurring:    true,
		SubscriptionID: &subID,
	})

	event := stripeEvent(t, "evt_initial", "invoice.paid", map[string]interface{}{
		"id":             "in_first",
		"subscription":   subID,
		"billing_reason": "subscription_create",
	})
	require.NoError(t, f.reconciler.Process(ctx, event))

	// still pending; checkout.session.completed owns activation
	reloaded, err := f.purchases.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, purchase.StatusPending, reloaded.Status)
}

func TestInvoiceFailedMarksPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subID := "sub_decline"
	p := f.seedPurchase(t, purchase.NewPurchaseOptions{
		IsRecurring:    true,
		Status:         purchase.StatusActive,
		SubscriptionID: &subID,
	})

	event := stripeEvent(t, "evt_fail", "invoice.payment_failed", map[string]interface{}{
		"id":           "in_bad",
		"subscription": subID,
	})
	require.NoError(t, f.reconciler.Process(ctx, event))

	reloaded, err := f.purchases.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, purchase.StatusFailed, reloaded.Status)

	require.Len(t, f.broadcast.events, 1)
	require.Equal(t, notification.TypePaymentFailed, f.broadcast.events[0].Type)
}

func TestSubscriptionDeletedCancels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subID := "sub_gone"
	p := f.seedPurchase(t, purchase.NewPurchaseOptions{
		IsRecurring:    true,
		Status:         purchase.StatusActive,
		SubscriptionID: &subID,
	})

	event := stripeEvent(t, "evt_gone", "customer.subscription.deleted", map[string]interface{}{
		"id": subID,
	})
	require.NoError(t, f.reconciler.Process(ctx, event))

	reloaded, err := f.purchases.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, purchase.StatusCancelled, reloaded.Status)
}

func TestSubscriptionDeletedAfterTermCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subID := "sub_term"
	months := 1
	p := f.seedPurchase(t, purchase.NewPurchaseOptions{
		IsRecurring:    true,
		Status:         purchase.StatusActive,
		SubscriptionID: &subID,
		DurationMonths: &months,
		StartDate:      time.Now().AddDate(0, 0, -31),
	})

	event := stripeEvent(t, "evt_term", "customer.subscription.deleted", map[string]interface{}{
		"id": subID,
	})
	require.NoError(t, f.reconciler.Process(ctx, event))

	reloaded, err := f.purchases.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, purchase.StatusCompleted, reloaded.Status)
}

func TestLateEventAgainstSettledPurchaseIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subID := "sub_settled"
	p := f.seedPurchase(t, purchase.NewPurchaseOptions{
		IsRecurring:    true,
		Status:         purchase.StatusActive,
		SubscriptionID: &subID,
	})
	_, err := f.purchases.UpdateStatus(ctx, p.ID, purchase.StatusCancelled)
	require.NoError(t, err)

	event := stripeEvent(t, "evt_late", "invoice.payment_failed", map[string]interface{}{
		"id":           "in_late",
		"subscription": subID,
	})
	require.NoError(t, f.reconciler.Process(ctx, event))

	reloaded, err := f.purchases.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, purchase.StatusCancelled, reloaded.Status)
	require.Empty(t, f.broadcast.events)
}

func TestUnknownEventIgnored(t *testing.T) {
	f := newFixture(t)

	event := stripeEvent(t, "evt_misc", "customer.created", map[string]interface{}{
		"id": "cus_misc",
	})
	require.NoError(t, f.reconciler.Process(context.Background(), event))
}

func TestUncorrelatedCheckoutFailsDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// no metadata and no matching session: money moved somewhere we cannot
	// account for, so the delivery must be retried, not acknowledged
	event := stripeEvent(t, "evt_orphan", "checkout.session.completed", map[string]interface{}{
		"id": "cs_orphan",
	})
	require.Error(t, f.reconciler.Process(ctx, event))

	// the dedupe row stays unprocessed so a redelivery is attempted again
	require.Error(t, f.reconciler.Process(ctx, event))
}

func TestDedupeSurvivesDistinctEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subID := "sub_seq"
	p := f.seedPurchase(t, purchase.NewPurchaseOptions{
		IsRecurring:    true,
		Status:         purchase.StatusActive,
		SubscriptionID: &subID,
	})

	for i, eventType := range []string{"invoice.payment_failed", "invoice.paid"} {
		event := stripeEvent(t, fmt.Sprintf("evt_seq_%d", i), eventType, map[string]interface{}{
			"id":             fmt.Sprintf("in_seq_%d", i),
			"subscription":   subID,
			"billing_reason": "subscription_cycle",
		})
		require.NoError(t, f.reconciler.Process(ctx, event))
	}

	reloaded, err := f.purchases.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, purchase.StatusActive, reloaded.Status)
}
