package notification

import "time"

// Type names a business event worth telling people about
type Type string

const (
	TypeCheckoutLinkCreated Type = "checkout_link_created"
	TypePaymentReceived     Type = "payment_received"
	TypePaymentFailed       Type = "payment_failed"
	TypePurchasePaused      Type = "purchase_paused"
	TypePurchaseResumed     Type = "purchase_resumed"
	TypePurchaseCancelled   Type = "purchase_cancelled"
	TypePurchaseCompleted   Type = "purchase_completed"
	TypeClientEnrolled      Type = "client_enrolled"
)

// Event is the JSON payload published to the broker. Amounts travel as
// strings to keep decimal precision intact on the wire
type Event struct {
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	PurchaseID string    `json:"purchaseId,omitempty"`
	ClientID   string    `json:"clientId,omitempty"`
	TrainerID  string    `json:"trainerId,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Status     string    `json:"status,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}
