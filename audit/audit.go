package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Details is a free-form JSON bag attached to an audit entry. It is stored as
// serialized JSON so the column works on both postgres and sqlite
type Details map[string]interface{}

// Value implements driver.Valuer
func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (d *Details) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported Details column type %T", value)
	}
}

// Entry is an append-only record of a mutating operation. Entries are never
// updated or deleted
type Entry struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	ActorID    *string   `json:"actorId" gorm:"index"` // nil for processor-originated events
	Action     string    `json:"action" gorm:"index"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId" gorm:"index"`
	Details    Details   `json:"details" gorm:"type:text"`
	CreatedAt  time.Time `json:"createdAt" gorm:"index"`
}

// TableName keeps the legacy table name
func (Entry) TableName() string {
	return "audit_log"
}
