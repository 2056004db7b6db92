package program

import (
	"context"
	"errors"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to the program catalog
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for programs
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Program{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize program.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// NewProgramOptions describes a catalog entry to be created
type NewProgramOptions struct {
	Name                  string
	Description           *string
	DefaultPrice          decimal.Decimal
	DefaultDurationMonths *int
	IsRecurring           bool
	IsAddon               bool
}

// NewProgram will create a catalog entry
func (m *Manager) NewProgram(ctx context.Context, opt NewProgramOptions) (*Program, error) {
	p := &Program{
		ID:                    uuid.New().String(),
		Name:                  opt.Name,
		Description:           opt.Description,
		DefaultPrice:          opt.DefaultPrice,
		DefaultDurationMonths: opt.DefaultDurationMonths,
		IsRecurring:           opt.IsRecurring,
		IsAddon:               opt.IsAddon,
		IsActive:              true,
	}
	result := m.db.WithContext(ctx).Create(p)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create program")
	}
	return p, nil
}

// GetByID will try to return the program in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Program, error) {
	var p Program
	result := m.db.WithContext(ctx).First(&p, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get program by id")
	}
	return &p, nil
}

// List returns catalog entries, active first then by name. Inactive entries
// remain listed so historical purchases can still be explained
func (m *Manager) List(ctx context.Context, includeInactive bool) ([]Program, error) {
	programs := make([]Program, 0, 16)
	baseQuery := m.db.WithContext(ctx).Order("is_active desc, name asc")
	if !includeInactive {
		baseQuery = baseQuery.Where("is_active = ?", true)
	}
	result := baseQuery.Find(&programs)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list programs")
	}
	return programs, nil
}

// UpdateOptions describes mutable catalog fields
type UpdateOptions struct {
	Name                  *string
	Description           *string
	DefaultPrice          *decimal.Decimal
	DefaultDurationMonths *int
	IsRecurring           *bool
	IsAddon               *bool
	IsActive              *bool
}

// Update applies the given changes to a catalog entry
func (m *Manager) Update(ctx context.Context, id string, opt UpdateOptions) (*Program, error) {
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
	if opt.Description != nil {
		updates["description"] = *opt.Description
	}
	if opt.DefaultPrice != nil {
		updates["default_price"] = *opt.DefaultPrice
	}
	if opt.DefaultDurationMonths != nil {
		updates["default_duration_months"] = *opt.DefaultDurationMonths
	}
	if opt.IsRecurring != nil {
		updates["is_recurring"] = *opt.IsRecurring
	}
	if opt.IsAddon != nil {
		updates["is_addon"] = *opt.IsAddon
	}
	if opt.IsActive != nil {
		updates["is_active"] = *opt.IsActive
	}
	if len(updates) == 0 {
		return existing, nil
	}

	result := m.db.WithContext(ctx).Model(&Program{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot update program")
	}
	return m.GetByID(ctx, id)
}
