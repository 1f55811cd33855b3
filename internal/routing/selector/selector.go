// Package selector resolves a jurisdiction to a crisis-response partner.
package selector

import (
	"time"

	stderrors "crisis-routing/internal/common/errors"
	"crisis-routing/internal/models"
)

// Selection is the outcome of one partner selection.
type Selection struct {
	Partner      *models.CrisisPartnerConfig
	UsedFallback bool
}

// Select resolves a jurisdiction to the preferred available partner, falling
// back to the registry's fallback list when the jurisdiction is unmapped or
// all mapped candidates are unavailable. It is a pure function of its inputs.
func Select(jurisdiction string, registry *models.PartnerRegistry, partners []models.CrisisPartnerConfig, now time.Time) (*Selection, error) {
	byID := make(map[string]*models.CrisisPartnerConfig, len(partners))
	for i := range partners {
		byID[partners[i].PartnerID] = &partners[i]
	}

	if partner := pickAvailable(registry.JurisdictionMap[jurisdiction], byID, now); partner != nil {
		return &Selection{Partner: partner, UsedFallback: false}, nil
	}

	if partner := pickAvailable(registry.FallbackPartners, byID, now); partner != nil {
		return &Selection{Partner: partner, UsedFallback: true}, nil
	}

	return nil, stderrors.NewNoAvailablePartnerError(jurisdiction)
}

// pickAvailable filters candidates to active partners with unexpired keys and
// returns the one with the lowest priority number (priority = preference
// rank). List order breaks ties.
func pickAvailable(candidateIDs []string, byID map[string]*models.CrisisPartnerConfig, now time.Time) *models.CrisisPartnerConfig {
	var best *models.CrisisPartnerConfig
	for _, id := range candidateIDs {
		partner, ok := byID[id]
		if !ok || !partner.Available(now) {
			continue
		}
		if best == nil || partner.Priority < best.Priority {
			best = partner
		}
	}
	return best
}
