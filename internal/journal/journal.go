// Package journal persists lifecycle events to sqlite for after-the-fact
// audit. It is write-only: run state is never read back from it.
package journal

import (
	"fmt"

	"github.com/rayvtoll/scalp-assist/internal/models"
	"github.com/rayvtoll/scalp-assist/internal/scalp"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open creates the database connection and migrates the event schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&models.OrderEvent{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return db, nil
}

// Store records lifecycle events. It satisfies scalp.Recorder.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ scalp.Recorder = (*Store)(nil)

// NewStore creates a Store on an open database.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Record writes one event. A failed write is logged and swallowed.
func (s *Store) Record(ev scalp.Event) {
	row := models.OrderEvent{
		Instrument: ev.Instrument,
		State:      string(ev.State),
		Note:       ev.Note,
		OrderID:    ev.OrderID,
		StopLoss:   ev.StopLoss,
		TakeProfit: ev.TakeProfit,
		Size:       ev.Size,
		Risk:       ev.Risk,
		OccurredAt: ev.At.Unix(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		s.logger.Error("Failed to record lifecycle event", zap.Error(err))
	}
}
