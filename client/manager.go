package client

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrDuplicateEmail is returned when a client with the email already exists.
// Callers must not silently reuse the existing record
var ErrDuplicateEmail = errors.New("a client with this email already exists")

// Manager handles the database operations relating to clients
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for clients
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Client{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize client.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// NewClientOptions describes a client to be created
type NewClientOptions struct {
	Name              string
	Email             string
	Phone             *string
	AssignedTrainerID *string
	Notes             *string
}

// NewClient will create a client record, failing with ErrDuplicateEmail when
// the email is already taken
func (m *Manager) NewClient(ctx context.Context, opt NewClientOptions) (*Client, error) {
	email := strings.ToLower(strings.TrimSpace(opt.Email))

	existing, err := m.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	newClient := &Client{
		ID:                uuid.New().String(),
		Email:             email,
		Name:              opt.Name,
		Phone:             opt.Phone,
		AssignedTrainerID: opt.AssignedTrainerID,
		Notes:             opt.Notes,
		IsActive:          true,
	}
	result := m.db.WithContext(ctx).Create(newClient)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create client")
	}
	return newClient, nil
}

// GetByID will try to return the client in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Client, error) {
	var c Client
	result := m.db.WithContext(ctx).First(&c, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get client by id")
	}
	return &c, nil
}

// GetByEmail will try to return the client in the database by email address
func (m *Manager) GetByEmail(ctx context.Context, email string) (*Client, error) {
	var c Client
	result := m.db.WithContext(ctx).First(&c, "email = ?", strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get client by email")
	}
	return &c, nil
}

// ListOption filters and pages the client listing
type ListOption struct {
	TrainerID string // restrict to one trainer's roster
	Search    string // matches name or email
	Limit     int
	Offset    int
}

// List returns active clients, newest first
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Client, error) {
	limit := opt.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := opt.Offset
	if offset < 0 {
		offset = 0
	}

	baseQuery := m.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at desc").
		Limit(limit).
		Offset(offset)
	if len(opt.TrainerID) > 0 {
		baseQuery = baseQuery.Where("assigned_trainer_id = ?", opt.TrainerID)
	}
	if len(opt.Search) > 0 {
		search := "%" + strings.ToLower(opt.Search) + "%"
		baseQuery = baseQuery.Where("lower(name) LIKE ? OR lower(email) LIKE ?", search, search)
	}

	results := make([]Client, 0, limit)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list clients")
	}
	return results, nil
}

// UpdateOptions describes mutable client fields
type UpdateOptions struct {
	Name              *string
	Phone             *string
	AssignedTrainerID *string
	Notes             *string
}

// Update applies the given changes to a client
func (m *Manager) Update(ctx context.Context, id string, opt UpdateOptions) (*Client, error) {
	existing, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	updates := map[string]interface{}{}
	if opt.Name != nil {
		updates["name"] = *opt.Name
	}
	if opt.Phone != nil {
		updates["phone"] = *opt.Phone
	}
	if opt.AssignedTrainerID != nil {
		updates["assigned_trainer_id"] = *opt.AssignedTrainerID
	}
	if opt.Notes != nil {
		updates["notes"] = *opt.Notes
	}
	if len(updates) == 0 {
		return existing, nil
	}

	result := m.db.WithContext(ctx).Model(&Client{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot update client")
	}
	return m.GetByID(ctx, id)
}

// Deactivate soft-deletes a client; purchases keep referencing them
func (m *Manager) Deactivate(ctx context.Context, id string) error {
	result := m.db.WithContext(ctx).Model(&Client{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot deactivate client")
	}
	return nil
}

// SetStripeCustomerID caches the processor customer id on the client record.
// Callers treat failures as best-effort
func (m *Manager) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	result := m.db.WithContext(ctx).Model(&Client{}).Where("id = ?", id).Update("stripe_customer_id", customerID)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot store processor customer id")
	}
	return nil
}
