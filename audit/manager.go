package audit

import (
	"context"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the append-only audit trail
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for audit entries
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize audit.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Record appends an entry to the audit trail. The ID and CreatedAt are
// populated here so callers only describe what happened
func (m *Manager) Record(ctx context.Context, entry Entry) error {
	entry.ID = uuid.New().String()
	result := m.db.WithContext(ctx).Create(&entry)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot record audit entry")
	}
	return nil
}

// RecordBestEffort appends an entry and only logs on failure. Used where the
// primary operation must not fail because the trail write did
func (m *Manager) RecordBestEffort(ctx context.Context, entry Entry) {
	if err := m.Record(ctx, entry); err != nil {
		m.logger.Error("Unable to record audit entry",
			zap.String("Action", entry.Action),
			zap.String("EntityID", entry.EntityID),
			zap.Error(err),
		)
	}
}

// Recent returns the latest entries for the dashboard activity feed
func (m *Manager) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	entries := make([]Entry, 0, limit)
	result := m.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&entries)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list audit entries")
	}
	return entries, nil
}
