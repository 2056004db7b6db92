package client

import "time"

// Client describes a person being trained and billed
type Client struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	Email             string    `json:"email" gorm:"uniqueIndex"`
	Name              string    `json:"name"`
	Phone             *string   `json:"phone"`
	StripeCustomerID  *string   `json:"stripeCustomerId" gorm:"index"` // populated when the processor first confirms a payment
	AssignedTrainerID *string   `json:"assignedTrainerId" gorm:"index"`
	Notes             *string   `json:"notes"`
	IsActive          bool      `json:"isActive" gorm:"default:true"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Card is the safe summary of a saved payment method; full card details never
// leave the processor
type Card struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"expMonth"`
	ExpYear  int64  `json:"expYear"`
}
