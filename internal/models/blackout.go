package models

import "time"

// SignalBlackout is a fixed-duration window during which family-visible
// notifications about the reporting child are suppressed. Created only after
// confirmed delivery; never renewed or shortened by the routing engine.
type SignalBlackout struct {
	ChildID   string    `json:"childId"`
	SignalID  string    `json:"signalId"`
	StartedAt time.Time `json:"startedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Active reports whether the window covers the given instant.
func (b *SignalBlackout) Active(now time.Time) bool {
	return !now.Before(b.StartedAt) && now.Before(b.ExpiresAt)
}
