// Package store holds the isolated persistence interfaces of the routing
// engine. Routing records live apart from any family-facing data.
package store

import (
	"context"
	"errors"
	"time"

	"crisis-routing/internal/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminal          = errors.New("record is terminal")
)

// RecordStore is the ledger of routing attempts. Records move only forward
// through the status sequence; terminal records accept only annotations.
type RecordStore interface {
	Create(ctx context.Context, record *models.RoutingRecord) error
	Get(ctx context.Context, id string) (*models.RoutingRecord, error)
	// Transition moves the record to next, applying apply to the record
	// under the same write. Moves off a terminal status return ErrTerminal;
	// other illegal transitions return ErrInvalidTransition.
	Transition(ctx context.Context, id string, next models.RoutingStatus, apply func(*models.RoutingRecord)) error
	// Annotate appends a trailing note; allowed on terminal records.
	Annotate(ctx context.Context, id, note string) error
	// ListStale returns non-terminal records started before the cutoff, for
	// an external reconciliation sweep.
	ListStale(ctx context.Context, cutoff time.Time) ([]*models.RoutingRecord, error)
}

// PartnerStore exposes the externally managed partner configuration.
// Read-only to the engine.
type PartnerStore interface {
	Registry(ctx context.Context) (*models.PartnerRegistry, error)
	Partners(ctx context.Context) ([]models.CrisisPartnerConfig, error)
}

// BlackoutStore persists notification suppression windows.
type BlackoutStore interface {
	Put(ctx context.Context, blackout *models.SignalBlackout) error
	Get(ctx context.Context, childID, signalID string) (*models.SignalBlackout, error)
	// ActiveForChild reports whether any window currently covers the child.
	ActiveForChild(ctx context.Context, childID string) (bool, error)
}
