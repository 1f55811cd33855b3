package models

import "time"

// RouteInput is the inbound request for one routing invocation.
type RouteInput struct {
	SignalID        string    `json:"signalId"`
	ChildID         string    `json:"childId"`
	Jurisdiction    string    `json:"jurisdiction"`
	DevicePlatform  string    `json:"devicePlatform"`
	SignalTimestamp time.Time `json:"signalTimestamp"`
}

// RouteError is the structured error surfaced to the caller. For internal
// failures only a generic message is exposed.
type RouteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RouteResult is the structured outcome of one routing invocation. Expected
// failures (validation, precondition, delivery) arrive here with
// Success=false instead of as errors.
type RouteResult struct {
	Success          bool        `json:"success"`
	RoutingID        string      `json:"routingId,omitempty"`
	PartnerID        string      `json:"partnerId,omitempty"`
	UsedFallback     bool        `json:"usedFallback"`
	PartnerReference string      `json:"partnerReference,omitempty"`
	Attempts         int         `json:"attempts"`
	Error            *RouteError `json:"error,omitempty"`
}
