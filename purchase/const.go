package purchase

// Status is the lifecycle state of a purchase
type Status string

// Lifecycle states of a purchase. Cancelled and completed are terminal
const (
	// StatusPending is the initial state of a checkout-link purchase awaiting payment
	StatusPending Status = "pending"
	// StatusActive means payment is confirmed and, for recurring purchases, billing is ongoing
	StatusActive Status = "active"
	// StatusPaused means recurring billing is suspended but the purchase can resume
	StatusPaused Status = "paused"
	// StatusFailed means the most recent renewal charge was declined
	StatusFailed Status = "failed"
	// StatusCancelled means the purchase was abandoned or the subscription torn down
	StatusCancelled Status = "cancelled"
	// StatusCompleted means a one-time purchase settled or a fixed term ran out
	StatusCompleted Status = "completed"
)
