// internal/routing/delivery/client_test.go
package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"crisis-routing/internal/common/logger"
	"crisis-routing/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func testConfig() Config {
	return Config{
		InstanceID:     "instance-test",
		AttemptTimeout: 2 * time.Second,
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
	}
}

func testPackage() *models.EncryptedSignalPackage {
	return &models.EncryptedSignalPackage{
		EncryptedKey:     "a2V5",
		EncryptedPayload: "cGF5bG9hZA==",
		IV:               "aXY=",
		KeyAlgorithm:     "RSA-OAEP-256",
		PayloadAlgorithm: "AES-256-GCM",
		PartnerID:        "partner-1",
		PublicKeyHash:    "abc123",
	}
}

func testPartner(url string) *models.CrisisPartnerConfig {
	return &models.CrisisPartnerConfig{
		PartnerID:  "partner-1",
		WebhookURL: url,
		Status:     models.PartnerStatusActive,
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestDeliver_Success(t *testing.T) {
	var gotEnvelope Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "1.0", r.Header.Get("X-Protocol-Version"))
		assert.Equal(t, "instance-test", r.Header.Get("X-Instance-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEnvelope))

		json.NewEncoder(w).Encode(PartnerResponse{Received: true, Reference: "ref-789"})
	}))
	defer srv.Close()

	client := NewClient(testConfig(), logger.NewNoOpLogger())
	result := client.Deliver(context.Background(), testPackage(), testPartner(srv.URL), "corr-1")

	assert.True(t, result.Success)
	assert.Equal(t, "ref-789", result.Reference)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "1.0", gotEnvelope.Version)
	assert.Equal(t, "corr-1", gotEnvelope.SignalRef)
	assert.Equal(t, "partner-1", gotEnvelope.Package.PartnerID)
}

func TestDeliver_RetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(PartnerResponse{Received: true, Reference: "ref-1"})
	}))
	defer srv.Close()

	client := NewClient(testConfig(), logger.NewNoOpLogger())
	result := client.Deliver(context.Background(), testPackage(), testPartner(srv.URL), "corr-2")

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDeliver_ExhaustsRetryBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(testConfig(), logger.NewNoOpLogger())
	result := client.Deliver(context.Background(), testPackage(), testPartner(srv.URL), "corr-3")

	assert.False(t, result.Success)
	assert.False(t, result.Rejected)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Contains(t, result.Error, "503")
}

func TestDeliver_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(testConfig(), logger.NewNoOpLogger())
	result := client.Deliver(context.Background(), testPackage(), testPartner(srv.URL), "corr-4")

	assert.False(t, result.Success)
	assert.True(t, result.Rejected)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDeliver_ReceivedFalseIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(PartnerResponse{Received: false, Error: "queue full"})
	}))
	defer srv.Close()

	client := NewClient(testConfig(), logger.NewNoOpLogger())
	result := client.Deliver(context.Background(), testPackage(), testPartner(srv.URL), "corr-5")

	assert.False(t, result.Success)
	assert.True(t, result.Rejected)
	assert.Equal(t, 1, result.Attempts)
	assert.Contains(t, result.Error, "queue full")
}

func TestDeliver_NetworkErrorRetried(t *testing.T) {
	client := NewClient(testConfig(), logger.NewNoOpLogger())
	// Nothing listens here.
	result := client.Deliver(context.Background(), testPackage(), testPartner("http://127.0.0.1:1"), "corr-6")

	assert.False(t, result.Success)
	assert.False(t, result.Rejected)
	assert.Equal(t, 3, result.Attempts)
}

func TestDeliver_PropagatesTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		json.NewEncoder(w).Encode(PartnerResponse{Received: true})
	}))
	defer srv.Close()

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	client := NewClient(testConfig(), logger.NewNoOpLogger())
	result := client.Deliver(ctx, testPackage(), testPartner(srv.URL), "corr-trace")

	assert.True(t, result.Success)
	assert.Contains(t, traceparent, "0102030405060708090a0b0c0d0e0f10")
}

func TestDeliver_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.BackoffBase = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	client := NewClient(cfg, logger.NewNoOpLogger())
	result := client.Deliver(ctx, testPackage(), testPartner(srv.URL), "corr-7")

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Contains(t, result.Error, "context canceled")
}
