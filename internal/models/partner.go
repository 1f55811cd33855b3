package models

import "time"

// Partner statuses
const (
	PartnerStatusActive   = "active"
	PartnerStatusInactive = "inactive"
)

// CrisisPartnerConfig describes one external crisis-response partner. It is
// externally managed configuration and read-only to the engine.
type CrisisPartnerConfig struct {
	PartnerID     string     `json:"partnerId"`
	Name          string     `json:"name"`
	Status        string     `json:"status"` // "active" or "inactive"
	WebhookURL    string     `json:"webhookUrl"`
	PublicKey     string     `json:"publicKey"` // PEM-encoded
	Jurisdictions []string   `json:"jurisdictions"`
	IsFallback    bool       `json:"isFallback"`
	Priority      int        `json:"priority"` // lower = preferred
	KeyExpiresAt  *time.Time `json:"keyExpiresAt,omitempty"`
}

// Available reports whether the partner may receive routed signals at the
// given instant: active status and a key that has not expired.
func (p *CrisisPartnerConfig) Available(now time.Time) bool {
	if p.Status != PartnerStatusActive {
		return false
	}
	if p.KeyExpiresAt != nil && !p.KeyExpiresAt.After(now) {
		return false
	}
	return true
}

// PartnerRegistry maps jurisdictions to ordered partner candidate lists, with
// an ordered fallback list for unmapped jurisdictions. Read-only.
type PartnerRegistry struct {
	JurisdictionMap  map[string][]string `json:"jurisdictionMap"`
	FallbackPartners []string            `json:"fallbackPartners"`
}
