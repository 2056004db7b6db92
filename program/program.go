package program

import (
	"time"

	"github.com/shopspring/decimal"
)

// Program is a catalog entry for a training offering. Prices here are
// defaults; the amount actually billed is stamped on each purchase
type Program struct {
	ID                    string          `json:"id" gorm:"primaryKey"`
	Name                  string          `json:"name"`
	Description           *string         `json:"description"`
	DefaultPrice          decimal.Decimal `json:"defaultPrice" gorm:"type:numeric"`
	DefaultDurationMonths *int            `json:"defaultDurationMonths"` // nil means open-ended
	IsRecurring           bool            `json:"isRecurring"`
	IsAddon               bool            `json:"isAddon"`
	IsActive              bool            `json:"isActive" gorm:"default:true"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}
