package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bodybiz/backend/auth"
	"github.com/bodybiz/backend/commission"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to the purchase ledger
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for purchases and payment links
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Purchase{}, &PaymentLink{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize purchase.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// NewPurchaseOptions describes a ledger row to be created. TrainerRole decides
// the commission split to stamp onto the row
type NewPurchaseOptions struct {
	ClientID          string
	TrainerID         string
	TrainerRole       auth.Role
	ProgramID         *string
	CustomProgramName *string
	Amount            decimal.Decimal
	Currency          string
	IsRecurring       bool
	DurationMonths    *int
	StartDate         time.Time
	Status            Status
	SubscriptionID    *string
	SessionID         *string
	PaymentIntentID   *string
	Notes             *string
}

// NewPurchase creates a ledger row with the commission split stamped from the
// trainer's role at this moment
func (m *Manager) NewPurchase(ctx context.Context, opt NewPurchaseOptions) (*Purchase, error) {
	split, err := commission.Calculate(opt.Amount, opt.TrainerRole)
	if err != nil {
		return nil, err
	}
	if opt.Status != StatusPending && opt.Status != StatusActive {
		return nil, fmt.Errorf("purchase cannot be created in state %q", opt.Status)
	}
	if opt.DurationMonths != nil && *opt.DurationMonths <= 0 {
		return nil, fmt.Errorf("duration must be at least one month")
	}
	if (opt.ProgramID == nil) == (opt.CustomProgramName == nil) {
		return nil, fmt.Errorf("purchase needs either a program or a custom program name")
	}

	currency := opt.Currency
	if currency == "" {
		currency = "usd"
	}
	startDate := opt.StartDate
	if startDate.IsZero() {
		startDate = time.Now()
	}
	var endDate *time.Time
	if opt.DurationMonths != nil {
		// months are approximated as 30 days for term accounting
		end := startDate.AddDate(0, 0, 30*(*opt.DurationMonths))
		endDate = &end
	}

	p := &Purchase{
		ID:                    uuid.New().String(),
		ClientID:              opt.ClientID,
		TrainerID:             opt.TrainerID,
		ProgramID:             opt.ProgramID,
		CustomProgramName:     opt.CustomProgramName,
		Amount:                opt.Amount,
		Currency:              currency,
		IsRecurring:           opt.IsRecurring,
		DurationMonths:        opt.DurationMonths,
		StartDate:             startDate,
		EndDate:               endDate,
		Status:                opt.Status,
		TrainerCommissionRate: split.Rate,
		TrainerAmount:         split.TrainerAmount,
		OwnerAmount:           split.OwnerAmount,
		StripeSubscriptionID:  opt.SubscriptionID,
		StripeSessionID:       opt.SessionID,
		StripePaymentIntentID: opt.PaymentIntentID,
		Notes:                 opt.Notes,
	}
	result := m.db.WithContext(ctx).Create(p)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create purchase")
	}
	return p, nil
}

// GetByID will try to return the purchase in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Purchase, error) {
	var p Purchase
	result := m.db.WithContext(ctx).First(&p, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get purchase by id")
	}
	return &p, nil
}

// GetBySubscriptionID will try to return the purchase tied to a processor subscription
func (m *Manager) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*Purchase, error) {
	var p Purchase
	result := m.db.WithContext(ctx).First(&p, "stripe_subscription_id = ?", subscriptionID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get purchase by subscription id")
	}
	return &p, nil
}

// GetBySessionID will try to return the purchase tied to a checkout session
func (m *Manager) GetBySessionID(ctx context.Context, sessionID string) (*Purchase, error) {
	var p Purchase
	result := m.db.WithContext(ctx).First(&p, "stripe_session_id = ?", sessionID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get purchase by session id")
	}
	return &p, nil
}

// UpdateStatus validates and applies a lifecycle transition, touching only the
// status column. The commission snapshot is never part of the update
func (m *Manager) UpdateStatus(ctx context.Context, id string, to Status) (*Purchase, error) {
	p, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	if err := Transition(p.Status, to); err != nil {
		return nil, err
	}
	if p.Status == to {
		return p, nil
	}

	result := m.db.WithContext(ctx).Model(&Purchase{}).Where("id = ?", id).Update("status", to)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot update purchase status")
	}
	p.Status = to
	return p, nil
}

// SetSubscriptionID attaches the processor subscription to the purchase once
// it becomes known
func (m *Manager) SetSubscriptionID(ctx context.Context, id, subscriptionID string) error {
	result := m.db.WithContext(ctx).Model(&Purchase{}).Where("id = ?", id).Update("stripe_subscription_id", subscriptionID)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot attach subscription to purchase")
	}
	return nil
}

// SetPaymentIntentID attaches the processor payment intent to the purchase
func (m *Manager) SetPaymentIntentID(ctx context.Context, id, paymentIntentID string) error {
	result := m.db.WithContext(ctx).Model(&Purchase{}).Where("id = ?", id).Update("stripe_payment_intent_id", paymentIntentID)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot attach payment intent to purchase")
	}
	return nil
}

// AttachCheckoutSession stamps the hosted checkout session and its payment
// link onto the purchase once both exist
func (m *Manager) AttachCheckoutSession(ctx context.Context, id, sessionID, linkID string) error {
	result := m.db.WithContext(ctx).Model(&Purchase{}).Where("id = ?", id).Updates(map[string]interface{}{
		"stripe_session_id": sessionID,
		"payment_link_id":   linkID,
	})
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot attach session to purchase")
	}
	return nil
}

// ListOption filters and pages the ledger listing
type ListOption struct {
	ClientID  string
	TrainerID string
	Status    Status
	Limit     int
	Offset    int
}

// List returns ledger rows, newest first
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Purchase, error) {
	limit := opt.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := opt.Offset
	if offset < 0 {
		offset = 0
	}

	baseQuery := m.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Offset(offset)
	if len(opt.ClientID) > 0 {
		baseQuery = baseQuery.Where("client_id = ?", opt.ClientID)
	}
	if len(opt.TrainerID) > 0 {
		baseQuery = baseQuery.Where("trainer_id = ?", opt.TrainerID)
	}
	if len(opt.Status) > 0 {
		baseQuery = baseQuery.Where("status = ?", opt.Status)
	}

	results := make([]Purchase, 0, limit)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list purchases")
	}
	return results, nil
}

// LatestStatus derives a client's billing standing from their most recent
// recurring purchase, falling back to the most recent purchase of any kind.
// Returns an empty string for clients with no purchases
func (m *Manager) LatestStatus(ctx context.Context, clientID string) (string, error) {
	var p Purchase
	result := m.db.WithContext(ctx).
		Where("client_id = ? AND is_recurring = ?", clientID, true).
		Order("created_at desc").
		First(&p)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		result = m.db.WithContext(ctx).
			Where("client_id = ?", clientID).
			Order("created_at desc").
			First(&p)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return "", extErrors.Wrap(result.Error, "Cannot derive client status")
	}
	return string(p.Status), nil
}

// NewPaymentLink records the hosted checkout session created for a purchase
func (m *Manager) NewPaymentLink(ctx context.Context, purchaseID, sessionID, url string, expiresAt time.Time) (*PaymentLink, error) {
	link := &PaymentLink{
		ID:              uuid.New().String(),
		PurchaseID:      purchaseID,
		StripeSessionID: sessionID,
		URL:             url,
		ExpiresAt:       expiresAt,
	}
	result := m.db.WithContext(ctx).Create(link)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create payment link")
	}
	return link, nil
}

// GetLinkBySession will try to return the payment link for a checkout session
func (m *Manager) GetLinkBySession(ctx context.Context, sessionID string) (*PaymentLink, error) {
	var link PaymentLink
	result := m.db.WithContext(ctx).First(&link, "stripe_session_id = ?", sessionID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get payment link by session id")
	}
	return &link, nil
}

// ConsumeLink marks the payment link for a session as used. Consuming an
// already consumed link is a no-op so replayed deliveries stay harmless
func (m *Manager) ConsumeLink(ctx context.Context, sessionID string) error {
	result := m.db.WithContext(ctx).Model(&PaymentLink{}).
		Where("stripe_session_id = ? AND consumed_at IS NULL", sessionID).
		Update("consumed_at", time.Now())
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot consume payment link")
	}
	return nil
}

// OpenLinks returns unconsumed, unexpired links for a purchase
func (m *Manager) OpenLinks(ctx context.Context, purchaseID string) ([]PaymentLink, error) {
	links := make([]PaymentLink, 0, 2)
	result := m.db.WithContext(ctx).
		Where("purchase_id = ? AND consumed_at IS NULL AND expires_at > ?", purchaseID, time.Now()).
		Order("created_at desc").
		Find(&links)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list open payment links")
	}
	return links, nil
}
