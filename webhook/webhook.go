package webhook

import "time"

// Event records a processor webhook delivery. The primary key is the
// processor's own event id, so replays collide instead of double-processing
type Event struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	Type        string     `json:"type"`
	ProcessedAt *time.Time `json:"processedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// TableName keeps the table name from clashing with the processor's vocabulary
func (Event) TableName() string {
	return "webhook_events"
}
