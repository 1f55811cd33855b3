// Package blackout opens notification suppression windows after a signal has
// been handed to an external partner, so downstream parent notifications do
// not race ahead of the crisis response.
package blackout

import (
	"context"
	"fmt"
	"time"

	"crisis-routing/internal/common/logger"
	"crisis-routing/internal/common/metrics"
	"crisis-routing/internal/models"
	"crisis-routing/internal/routing/store"
)

// Duration is the fixed length of every suppression window.
const Duration = 48 * time.Hour

type Manager struct {
	store store.BlackoutStore
	log   logger.Logger
	now   func() time.Time
}

func NewManager(blackouts store.BlackoutStore, log logger.Logger) *Manager {
	return &Manager{store: blackouts, log: log, now: time.Now}
}

// Open records a window for the child starting now. Called only after the
// partner has confirmed receipt.
func (m *Manager) Open(ctx context.Context, childID, signalID string) (*models.SignalBlackout, error) {
	started := m.now().UTC()
	blackout := &models.SignalBlackout{
		ChildID:   childID,
		SignalID:  signalID,
		StartedAt: started,
		ExpiresAt: started.Add(Duration),
	}

	if err := m.store.Put(ctx, blackout); err != nil {
		return nil, fmt.Errorf("open blackout: %w", err)
	}

	metrics.BlackoutsOpened.Inc()
	m.log.Info("Notification blackout opened", map[string]interface{}{
		"signal_id":  signalID,
		"expires_at": blackout.ExpiresAt.Format(time.RFC3339),
	})
	return blackout, nil
}

// Active reports whether the child is currently inside any window.
func (m *Manager) Active(ctx context.Context, childID string) (bool, error) {
	return m.store.ActiveForChild(ctx, childID)
}
