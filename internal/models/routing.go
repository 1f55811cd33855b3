package models

import "time"

// RoutingStatus is the state of one routing attempt. Values are stored and
// compared as exact strings.
type RoutingStatus string

const (
	StatusPending    RoutingStatus = "pending"
	StatusEncrypting RoutingStatus = "encrypting"
	StatusSending    RoutingStatus = "sending"
	StatusSent       RoutingStatus = "sent"
	StatusFailed     RoutingStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s RoutingStatus) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal forward
// step. The sequence never regresses: pending -> encrypting -> sending ->
// {sent | failed}, with failed reachable from any non-terminal state.
func (s RoutingStatus) CanTransition(next RoutingStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case StatusEncrypting:
		return s == StatusPending
	case StatusSending:
		return s == StatusEncrypting
	case StatusSent:
		return s == StatusSending
	case StatusFailed:
		return true
	default:
		return false
	}
}

// RoutingRecord is the isolated ledger entry for one routing attempt. It is
// owned by the orchestrator for one invocation, mutated only forward through
// the status sequence, and immutable once terminal except for trailing audit
// annotations.
type RoutingRecord struct {
	ID               string        `json:"id"`
	SignalID         string        `json:"signalId"`
	PartnerID        string        `json:"partnerId,omitempty"`
	Jurisdiction     string        `json:"jurisdiction"`
	Status           RoutingStatus `json:"status"`
	UsedFallback     bool          `json:"usedFallback"`
	StartedAt        time.Time     `json:"startedAt"`
	SentAt           *time.Time    `json:"sentAt,omitempty"`
	AcknowledgedAt   *time.Time    `json:"acknowledgedAt,omitempty"`
	PartnerReference string        `json:"partnerReference,omitempty"`
	Attempts         int           `json:"attempts"`
	LastError        string        `json:"lastError,omitempty"`
	Annotations      []string      `json:"annotations,omitempty"`
}
