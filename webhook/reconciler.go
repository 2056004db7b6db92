package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bodybiz/backend/audit"
	"github.com/bodybiz/backend/client"
	"github.com/bodybiz/backend/notification"
	"github.com/bodybiz/backend/purchase"

	"github.com/go-redis/redis/v7"
	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v74"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// invoices raised by the initial checkout are already settled by the
// checkout.session.completed handler
const billingReasonSubscriptionCreate = "subscription_create"

// how long the redis fast-path remembers an event id
const dedupeTTL = 72 * time.Hour

// Broadcaster publishes business events to the notification broker
type Broadcaster interface {
	Publish(ctx context.Context, ev notification.Event) error
}

// ReconcilerOptions contains the configuration for the Reconciler
type ReconcilerOptions struct {
	PurchaseManager *purchase.Manager
	ClientManager   *client.Manager
	AuditManager    *audit.Manager
	Broadcast       Broadcaster
	// Redis is the optional dedupe fast path; nil falls back to the database alone
	Redis  *redis.Client
	Logger *zap.Logger
}

// Reconciler folds processor webhook events into the purchase ledger. It is
// the single writer for payment-driven status changes
type Reconciler struct {
	ReconcilerOptions
	db *gorm.DB
}

// NewReconciler will create a Reconciler and migrate its dedupe table
func NewReconciler(db *gorm.DB, option ReconcilerOptions) (*Reconciler, error) {
	if db == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.PurchaseManager == nil {
		return nil, fmt.Errorf("nil PurchaseManager is invalid")
	}
	if option.ClientManager == nil {
		return nil, fmt.Errorf("nil ClientManager is invalid")
	}
	if option.AuditManager == nil {
		return nil, fmt.Errorf("nil AuditManager is invalid")
	}
	if option.Broadcast == nil {
		return nil, fmt.Errorf("nil Broadcast is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize webhook.Reconciler")
	}
	return &Reconciler{
		ReconcilerOptions: option,
		db:                db,
	}, nil
}

// Process handles one delivery. A nil return acknowledges the event; an error
// tells the processor to deliver it again later
func (rc *Reconciler) Process(ctx context.Context, event stripe.Event) error {
	seen, err := rc.alreadyProcessed(ctx, event)
	if err != nil {
		return err
	}
	if seen {
		rc.Logger.Info("Skipping duplicate webhook delivery",
			zap.String("EventID", event.ID),
			zap.String("Type", string(event.Type)),
		)
		return nil
	}

	switch event.Type {
	case "checkout.session.completed":
		err = rc.handleCheckoutCompleted(ctx, event)
	case "invoice.paid":
		err = rc.handleInvoicePaid(ctx, event)
	case "invoice.payment_failed":
		err = rc.handleInvoiceFailed(ctx, event)
	case "customer.subscription.deleted":
		err = rc.handleSubscriptionDeleted(ctx, event)
	default:
		rc.Logger.Debug("Ignoring webhook event",
			zap.String("Type", string(event.Type)),
		)
	}
	if err != nil {
		return err
	}

	return rc.markProcessed(ctx, event.ID)
}

// alreadyProcessed checks redis first, then the durable dedupe table. The
// dedupe row is inserted here; ProcessedAt is only stamped after the handler
// succeeds, so a crashed delivery gets reprocessed
func (rc *Reconciler) alreadyProcessed(ctx context.Context, event stripe.Event) (bool, error) {
	if rc.Redis != nil {
		set, err := rc.Redis.SetNX("webhook:event:"+event.ID, 1, dedupeTTL).Result()
		if err != nil {
			rc.Logger.Error("Redis dedupe unavailable, falling back to database",
				zap.Error(err),
			)
		} else if !set {
			var existing Event
			result := rc.db.WithContext(ctx).First(&existing, "id = ?", event.ID)
			if result.Error == nil && existing.ProcessedAt != nil {
				return true, nil
			}
		}
	}

	var existing Event
	result := rc.db.WithContext(ctx).First(&existing, "id = ?", event.ID)
	if result.Error == nil {
		return existing.ProcessedAt != nil, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		rc.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return false, extErrors.Wrap(result.Error, "Cannot check webhook dedupe")
	}

	record := &Event{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if createResult := rc.db.WithContext(ctx).Create(record); createResult.Error != nil {
		// a concurrent delivery won the insert race; let it do the work
		rc.Logger.Info("Concurrent webhook delivery detected",
			zap.String("EventID", event.ID),
		)
		return true, nil
	}
	return false, nil
}

func (rc *Reconciler) markProcessed(ctx context.Context, eventID string) error {
	result := rc.db.WithContext(ctx).Model(&Event{}).Where("id = ?", eventID).Update("processed_at", time.Now())
	if result.Error != nil {
		rc.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot mark webhook event processed")
	}
	return nil
}

func (rc *Reconciler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		rc.Logger.Error("Malformed checkout session payload",
			zap.String("EventID", event.ID),
			zap.Error(err),
		)
		return nil
	}

	p, err := rc.findPurchaseForSession(ctx, &session)
	if err != nil {
		return err
	}
	if p == nil {
		// money moved but the event cannot be tied to a ledger row; fail the
		// delivery so the processor retries instead of losing the sale
		rc.Logger.Error("No purchase for completed checkout session",
			zap.String("SessionID", session.ID),
		)
		return fmt.Errorf("no purchase for checkout session %s", session.ID)
	}

	// critical phase: the ledger and the link move together
	if session.Subscription != nil {
		if err := rc.PurchaseManager.SetSubscriptionID(ctx, p.ID, session.Subscription.ID); err != nil {
			return err
		}
	}
	if session.PaymentIntent != nil {
		if err := rc.PurchaseManager.SetPaymentIntentID(ctx, p.ID, session.PaymentIntent.ID); err != nil {
			return err
		}
	}
	target := purchase.StatusCompleted
	if p.IsRecurring {
		target = purchase.StatusActive
	}
	updated, err := rc.transition(ctx, p, target)
	if err != nil {
		return err
	}
	if err := rc.PurchaseManager.ConsumeLink(ctx, session.ID); err != nil {
		return err
	}
	if updated == nil {
		// the purchase settled before this delivery arrived
		return nil
	}

	// best-effort phase: losing these never fails the delivery
	if session.Customer != nil {
		if err := rc.ClientManager.SetStripeCustomerID(ctx, p.ClientID, session.Customer.ID); err != nil {
			rc.Logger.Error("Unable to cache processor customer id",
				zap.String("ClientID", p.ClientID),
				zap.Error(err),
			)
		}
	}
	rc.AuditManager.RecordBestEffort(ctx, audit.Entry{
		Action:     "webhook.checkout_completed",
		EntityType: "purchase",
		EntityID:   p.ID,
		Details: audit.Details{
			"session_id": session.ID,
			"status":     string(updated.Status),
		},
	})
	rc.publishBestEffort(ctx, notification.Event{
		Type:       notification.TypePaymentReceived,
		OccurredAt: time.Now(),
		PurchaseID: p.ID,
		ClientID:   p.ClientID,
		TrainerID:  p.TrainerID,
		Amount:     p.Amount.String(),
		Status:     string(updated.Status),
	})
	return nil
}

func (rc *Reconciler) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		rc.Logger.Error("Malformed invoice payload",
			zap.String("EventID", event.ID),
			zap.Error(err),
		)
		return nil
	}
	if string(invoice.BillingReason) == billingReasonSubscriptionCreate {
		return nil
	}
	if invoice.Subscription == nil {
		return nil
	}

	p, err := rc.PurchaseManager.GetBySubscriptionID(ctx, invoice.Subscription.ID)
	if err != nil {
		return err
	}
	if p == nil {
		rc.Logger.Warn("No purchase for paid invoice",
			zap.String("SubscriptionID", invoice.Subscription.ID),
		)
		return nil
	}

	updated, err := rc.transition(ctx, p, purchase.StatusActive)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	rc.AuditManager.RecordBestEffort(ctx, audit.Entry{
		Action:     "webhook.invoice_paid",
		EntityType: "purchase",
		EntityID:   p.ID,
		Details: audit.Details{
			"invoice_id": invoice.ID,
		},
	})
	rc.publishBestEffort(ctx, notification.Event{
		Type:       notification.TypePaymentReceived,
		OccurredAt: time.Now(),
		PurchaseID: p.ID,
		ClientID:   p.ClientID,
		TrainerID:  p.TrainerID,
		Amount:     p.Amount.String(),
		Status:     string(updated.Status),
	})
	return nil
}

func (rc *Reconciler) handleInvoiceFailed(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		rc.Logger.Error("Malformed invoice payload",
			zap.String("EventID", event.ID),
			zap.Error(err),
		)
		return nil
	}
	if invoice.Subscription == nil {
		return nil
	}

	p, err := rc.PurchaseManager.GetBySubscriptionID(ctx, invoice.Subscription.ID)
	if err != nil {
		return err
	}
	if p == nil {
		rc.Logger.Warn("No purchase for failed invoice",
			zap.String("SubscriptionID", invoice.Subscription.ID),
		)
		return nil
	}

	updated, err := rc.transition(ctx, p, purchase.StatusFailed)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	rc.AuditManager.RecordBestEffort(ctx, audit.Entry{
		Action:     "webhook.invoice_failed",
		EntityType: "purchase",
		EntityID:   p.ID,
		Details: audit.Details{
			"invoice_id": invoice.ID,
		},
	})
	rc.publishBestEffort(ctx, notification.Event{
		Type:       notification.TypePaymentFailed,
		OccurredAt: time.Now(),
		PurchaseID: p.ID,
		ClientID:   p.ClientID,
		TrainerID:  p.TrainerID,
		Amount:     p.Amount.String(),
		Status:     string(updated.Status),
	})
	return nil
}

func (rc *Reconciler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		rc.Logger.Error("Malformed subscription payload",
			zap.String("EventID", event.ID),
			zap.Error(err),
		)
		return nil
	}

	p, err := rc.PurchaseManager.GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		return err
	}
	if p == nil {
		rc.Logger.Warn("No purchase for deleted subscription",
			zap.String("SubscriptionID", sub.ID),
		)
		return nil
	}

	// a fixed term running out is completion, anything else is cancellation
	target := purchase.StatusCancelled
	eventType := notification.TypePurchaseCancelled
	if p.EndDate != nil && !time.Now().Before(*p.EndDate) {
		target = purchase.StatusCompleted
		eventType = notification.TypePurchaseCompleted
	}

	updated, err := rc.transition(ctx, p, target)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	rc.AuditManager.RecordBestEffort(ctx, audit.Entry{
		Action:     "webhook.subscription_deleted",
		EntityType: "purchase",
		EntityID:   p.ID,
		Details: audit.Details{
			"subscription_id": sub.ID,
			"status":          string(updated.Status),
		},
	})
	rc.publishBestEffort(ctx, notification.Event{
		Type:       eventType,
		OccurredAt: time.Now(),
		PurchaseID: p.ID,
		ClientID:   p.ClientID,
		TrainerID:  p.TrainerID,
		Amount:     p.Amount.String(),
		Status:     string(updated.Status),
	})
	return nil
}

// transition applies a status change, acknowledging (not retrying) events
// that arrive after the purchase already settled
func (rc *Reconciler) transition(ctx context.Context, p *purchase.Purchase, to purchase.Status) (*purchase.Purchase, error) {
	updated, err := rc.PurchaseManager.UpdateStatus(ctx, p.ID, to)
	if err != nil {
		if transitionErr := purchase.Transition(p.Status, to); transitionErr != nil {
			// a late event against a settled purchase; redelivery cannot help
			rc.Logger.Warn("Dropping late webhook transition",
				zap.String("PurchaseID", p.ID),
				zap.String("From", string(p.Status)),
				zap.String("To", string(to)),
			)
			return nil, nil
		}
		return nil, err
	}
	return updated, nil
}

func (rc *Reconciler) findPurchaseForSession(ctx context.Context, session *stripe.CheckoutSession) (*purchase.Purchase, error) {
	if purchaseID, ok := session.Metadata["purchase_id"]; ok && purchaseID != "" {
		p, err := rc.PurchaseManager.GetByID(ctx, purchaseID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	return rc.PurchaseManager.GetBySessionID(ctx, session.ID)
}

func (rc *Reconciler) publishBestEffort(ctx context.Context, ev notification.Event) {
	if err := rc.Broadcast.Publish(ctx, ev); err != nil {
		rc.Logger.Error("Unable to publish notification",
			zap.String("Type", string(ev.Type)),
			zap.Error(err),
		)
	}
}
