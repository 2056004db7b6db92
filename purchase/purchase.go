package purchase

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is one ledger row tying a client, a trainer, and a program to an
// amount of money. The commission split is stamped at creation time and never
// recomputed, so later rate or role changes cannot rewrite history
type Purchase struct {
	ID        string `json:"id" gorm:"primaryKey"`
	ClientID  string `json:"clientId" gorm:"index"`
	TrainerID string `json:"trainerId" gorm:"index"`

	// exactly one of ProgramID and CustomProgramName is set
	ProgramID         *string `json:"programId" gorm:"index"`
	CustomProgramName *string `json:"customProgramName"`

	Amount         decimal.Decimal `json:"amount" gorm:"type:numeric"`
	Currency       string          `json:"currency"`
	IsRecurring    bool            `json:"isRecurring"`
	DurationMonths *int            `json:"durationMonths"` // nil means open-ended
	StartDate      time.Time       `json:"startDate"`
	EndDate        *time.Time      `json:"endDate"`

	Status Status `json:"status" gorm:"index"`

	// commission snapshot, immutable after creation
	TrainerCommissionRate decimal.Decimal `json:"trainerCommissionRate" gorm:"type:numeric"`
	TrainerAmount         decimal.Decimal `json:"trainerAmount" gorm:"type:numeric"`
	OwnerAmount           decimal.Decimal `json:"ownerAmount" gorm:"type:numeric"`

	StripeSubscriptionID  *string `json:"stripeSubscriptionId" gorm:"index"`
	StripeSessionID       *string `json:"stripeSessionId" gorm:"index"`
	StripePaymentIntentID *string `json:"stripePaymentIntentId" gorm:"index"`
	PaymentLinkID         *string `json:"paymentLinkId" gorm:"index"`

	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PaymentLink records a hosted checkout session handed to a client. A link is
// consumed exactly once, when the processor confirms the session completed
type PaymentLink struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	PurchaseID      string     `json:"purchaseId" gorm:"index"`
	StripeSessionID string     `json:"stripeSessionId" gorm:"uniqueIndex"`
	URL             string     `json:"url"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	ConsumedAt      *time.Time `json:"consumedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
}
