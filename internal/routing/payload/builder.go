// Package payload builds and validates the minimal outbound signal payload.
package payload

import (
	"time"

	"crisis-routing/internal/models"
)

// BuildInput carries the only facts a payload may be built from.
type BuildInput struct {
	SignalID         string
	ChildAge         int
	HasSharedCustody bool
	SignalTimestamp  time.Time
	Jurisdiction     string
	DevicePlatform   string
}

// Build constructs the de-identified ExternalSignalPayload. It is the single
// payload producer; the exclusion validator still runs on every build as a
// separate invariant check.
func Build(in BuildInput) *models.ExternalSignalPayload {
	return &models.ExternalSignalPayload{
		SignalID:         in.SignalID,
		ChildAge:         in.ChildAge,
		HasSharedCustody: in.HasSharedCustody,
		SignalTimestamp:  in.SignalTimestamp.UTC(),
		Jurisdiction:     in.Jurisdiction,
		DevicePlatform:   in.DevicePlatform,
	}
}
