package team

import (
	"time"

	"github.com/bodybiz/backend/auth"

	"github.com/shopspring/decimal"
)

// Member describes a staff member (admin, manager, or trainer)
type Member struct {
	ID             string          `json:"id" gorm:"primaryKey"`
	Email          string          `json:"email" gorm:"uniqueIndex"`
	Name           string          `json:"name"`
	Role           auth.Role       `json:"role" gorm:"index"`
	CommissionRate decimal.Decimal `json:"commissionRate" gorm:"type:numeric"` // display only; the split itself is stamped per purchase
	Phone          *string         `json:"phone"`
	PasswordHash   string          `json:"-"`
	IsActive       bool            `json:"isActive" gorm:"default:true"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}
