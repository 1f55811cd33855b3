// Package delivery posts encrypted signal packages to partner webhooks.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	commonhttp "crisis-routing/internal/common/http"
	"crisis-routing/internal/common/logger"
	"crisis-routing/internal/common/metrics"
	"crisis-routing/internal/models"
)

const (
	protocolVersion = "1.0"

	headerProtocolVersion = "X-Protocol-Version"
	headerInstanceID      = "X-Instance-Id"
)

// Envelope is the fixed JSON body posted to a partner webhook.
type Envelope struct {
	Version     string                         `json:"version"`
	InstanceID  string                         `json:"instanceId"`
	Package     *models.EncryptedSignalPackage `json:"package"`
	DeliveredAt string                         `json:"deliveredAt"`
	SignalRef   string                         `json:"signalRef"`
}

// PartnerResponse is the expected partner webhook response body.
type PartnerResponse struct {
	Received  bool   `json:"received"`
	Reference string `json:"reference,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result reports the outcome of one delivery, across all attempts. Rejected
// marks a partner-side refusal (4xx or received=false) that ended the loop
// before the attempt budget was spent.
type Result struct {
	Success        bool   `json:"success"`
	Rejected       bool   `json:"rejected,omitempty"`
	Reference      string `json:"reference,omitempty"`
	Error          string `json:"error,omitempty"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
	Attempts       int    `json:"attempts"`
}

// Config bounds the retry loop.
type Config struct {
	InstanceID     string
	AttemptTimeout time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration // doubles each attempt
}

// Client delivers encrypted packages with bounded timeout, retry, and
// exponential backoff. Attempts are sequential within one invocation.
type Client struct {
	config Config
	http   *commonhttp.Client
	logger logger.Logger
}

func NewClient(config Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		http:   commonhttp.NewClient(config.AttemptTimeout),
		logger: log.WithFields(map[string]interface{}{"component": "delivery"}),
	}
}

// Deliver posts the package to the partner webhook. Network failures and
// HTTP 5xx are retried up to the configured maximum with doubling backoff;
// 4xx and an explicit received=false are terminal on the first occurrence.
func (c *Client) Deliver(ctx context.Context, pkg *models.EncryptedSignalPackage, partner *models.CrisisPartnerConfig, correlationID string) *Result {
	body, err := json.Marshal(Envelope{
		Version:     protocolVersion,
		InstanceID:  c.config.InstanceID,
		Package:     pkg,
		DeliveredAt: time.Now().UTC().Format(time.RFC3339),
		SignalRef:   correlationID,
	})
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("encode envelope: %v", err)}
	}

	start := time.Now()
	result := &Result{}
	backoff := c.config.BackoffBase

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		result.Attempts = attempt
		metrics.DeliveryAttempts.WithLabelValues(partner.PartnerID).Inc()

		response, retryable, err := c.attempt(ctx, partner.WebhookURL, body)
		if err == nil {
			result.Success = true
			result.Reference = response.Reference
			result.ResponseTimeMs = time.Since(start).Milliseconds()
			return result
		}

		result.Error = err.Error()
		c.logger.Warn("delivery attempt failed", map[string]interface{}{
			"partnerId":     partner.PartnerID,
			"correlationId": correlationID,
			"attempt":       attempt,
			"retryable":     retryable,
			"error":         err.Error(),
		})

		if !retryable {
			result.Rejected = true
			break
		}
		if attempt == c.config.MaxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			result.Error = ctx.Err().Error()
			result.ResponseTimeMs = time.Since(start).Milliseconds()
			return result
		}
	}

	result.ResponseTimeMs = time.Since(start).Milliseconds()
	return result
}

// attempt performs one POST under the per-attempt timeout. The second return
// reports whether the failure class is retryable.
func (c *Client) attempt(ctx context.Context, webhookURL string, body []byte) (*PartnerResponse, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequest(http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerProtocolVersion, protocolVersion)
	req.Header.Set(headerInstanceID, c.config.InstanceID)
	otel.GetTextMapPropagator().Inject(attemptCtx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.DoWithContext(attemptCtx, req)
	if err != nil {
		// Network-class failure: retryable.
		return nil, true, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("partner returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		// Client-side rejection is non-transient.
		return nil, false, fmt.Errorf("partner rejected with %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	var partnerResp PartnerResponse
	if err := json.Unmarshal(raw, &partnerResp); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}

	if !partnerResp.Received {
		reason := partnerResp.Error
		if reason == "" {
			reason = "partner reported received=false"
		}
		return nil, false, fmt.Errorf("partner rejection: %s", reason)
	}

	return &partnerResp, false, nil
}
