package team

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bodybiz/backend/auth"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrDuplicateEmail is returned when a member with the email already exists
var ErrDuplicateEmail = errors.New("a team member with this email already exists")

// Manager handles the database operations relating to team members
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for team members
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Member{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize team.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// NewMemberOptions describes a member to be created
type NewMemberOptions struct {
	Email          string
	Name           string
	Role           auth.Role
	CommissionRate decimal.Decimal
	Phone          *string
	Password       string
}

// NewMember will create a staff record with a hashed password
func (m *Manager) NewMember(ctx context.Context, opt NewMemberOptions) (*Member, error) {
	if !opt.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", opt.Role)
	}
	existing, err := m.GetByEmail(ctx, opt.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opt.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot hash password")
	}

	member := &Member{
		ID:             uuid.New().String(),
		Email:          strings.ToLower(strings.TrimSpace(opt.Email)),
		Name:           opt.Name,
		Role:           opt.Role,
		CommissionRate: opt.CommissionRate,
		Phone:          opt.Phone,
		PasswordHash:   string(hash),
		IsActive:       true,
	}
	result := m.db.WithContext(ctx).Create(member)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create team member")
	}
	return member, nil
}

// GetByID will try to return the member in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Member, error) {
	var member Member
	result := m.db.WithContext(ctx).First(&member, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get team member by id")
	}
	return &member, nil
}

// GetByEmail will try to return the member in the database by email address
func (m *Manager) GetByEmail(ctx context.Context, email string) (*Member, error) {
	var member Member
	result := m.db.WithContext(ctx).First(&member, "email = ?", strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get team member by email")
	}
	return &member, nil
}

// List returns active members, trainers first by name
func (m *Manager) List(ctx context.Context) ([]Member, error) {
	members := make([]Member, 0, 8)
	result := m.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("role asc, name asc").
		Find(&members)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list team members")
	}
	return members, nil
}

// UpdateOptions describes mutable member fields. Role and commission rate
// changes never touch existing purchase snapshots
type UpdateOptions struct {
	Name           *string
	Role           *auth.Role
	CommissionRate *decimal.Decimal
	Phone          *string
}

// Update applies the given changes to a member
func (m *Manager) Update(ctx context.Context, id string, opt UpdateOptions) (*Member, error) {
	member, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, nil
	}

	updates := map[string]interface{}{}
	if opt.Name != nil {
		updates["name"] = *opt.Name
	}
	if opt.Role != nil {
		if !opt.Role.Valid() {
			return nil, fmt.Errorf("invalid role %q", *opt.Role)
		}
		updates["role"] = *opt.Role
	}
	if opt.CommissionRate != nil {
		updates["commission_rate"] = *opt.CommissionRate
	}
	if opt.Phone != nil {
		updates["phone"] = *opt.Phone
	}
	if len(updates) == 0 {
		return member, nil
	}

	result := m.db.WithContext(ctx).Model(&Member{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot update team member")
	}
	return m.GetByID(ctx, id)
}

// Deactivate soft-deletes a member; their history remains in the ledger
func (m *Manager) Deactivate(ctx context.Context, id string) error {
	result := m.db.WithContext(ctx).Model(&Member{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot deactivate team member")
	}
	return nil
}

// Authenticate verifies the email/password pair, returning nil on mismatch
func (m *Manager) Authenticate(ctx context.Context, email, password string) (*Member, error) {
	member, err := m.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.IsActive {
		return nil, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}
	return member, nil
}
