// Package audit records routing lifecycle events to an append-only sink.
// Writes are best effort; the routing flow never fails because an audit
// write did.
package audit

import (
	"context"
	"sync"
	"time"
)

// Entry is one lifecycle event. Fields hold identifiers and operational
// detail only, never signal content.
type Entry struct {
	RoutingID string                 `json:"routingId"`
	SignalID  string                 `json:"signalId"`
	Event     string                 `json:"event"`
	PartnerID string                 `json:"partnerId,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Lifecycle event names.
const (
	EventRoutingStarted    = "routing_started"
	EventPartnerSelected   = "partner_selected"
	EventPayloadValidated  = "payload_validated"
	EventPayloadEncrypted  = "payload_encrypted"
	EventDeliveryAttempt   = "delivery_attempt"
	EventDeliverySucceeded = "delivery_succeeded"
	EventDeliveryFailed    = "delivery_failed"
	EventRoutingFailed     = "routing_failed"
	EventBlackoutOpened    = "blackout_opened"
	EventAnnotation        = "annotation"
)

// Sink accepts entries in order. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// MemorySink buffers entries in memory for tests.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ForRouting returns the entries recorded for one routing attempt, in order.
func (s *MemorySink) ForRouting(routingID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, entry := range s.entries {
		if entry.RoutingID == routingID {
			out = append(out, entry)
		}
	}
	return out
}
