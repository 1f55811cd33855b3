// internal/server/handler_test.go
package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crisis-routing/internal/common/logger"
	"crisis-routing/internal/models"
	"crisis-routing/internal/routing/audit"
	"crisis-routing/internal/routing/blackout"
	"crisis-routing/internal/routing/childctx"
	"crisis-routing/internal/routing/delivery"
	"crisis-routing/internal/routing/encryption"
	"crisis-routing/internal/routing/orchestrator"
	"crisis-routing/internal/routing/store"
)

// ==========================
// Test Helper Functions
// ==========================

type stubDeliverer struct {
	result *delivery.Result
}

func (s *stubDeliverer) Deliver(context.Context, *models.EncryptedSignalPackage, *models.CrisisPartnerConfig, string) *delivery.Result {
	return s.result
}

func testPublicKeyPEM(t *testing.T) string {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func setupHandler(t *testing.T) (*Handler, *store.MemoryRecordStore) {
	records := store.NewMemoryRecordStore()
	partners := store.NewMemoryPartnerStore(
		&models.PartnerRegistry{
			JurisdictionMap: map[string][]string{"US-CA": {"partner-1"}},
		},
		[]models.CrisisPartnerConfig{{
			PartnerID: "partner-1",
			Status:    models.PartnerStatusActive,
			PublicKey: testPublicKeyPEM(t),
		}},
	)
	children := childctx.NewMemoryProvider(map[string]childctx.Context{
		"child-1": {Age: 12},
	})
	deliverer := &stubDeliverer{result: &delivery.Result{Success: true, Reference: "ref-1", Attempts: 1}}

	orch := orchestrator.New(
		records,
		partners,
		children,
		encryption.NewService(),
		deliverer,
		blackout.NewManager(store.NewMemoryBlackoutStore(), logger.NewNoOpLogger()),
		audit.NewMemorySink(),
		logger.NewNoOpLogger(),
	)

	return NewHandler(orch, nil, logger.NewNoOpLogger()), records
}

func routeRequest(t *testing.T, principal string, input models.RouteInput) *http.Request {
	body, err := json.Marshal(input)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/signals/route", bytes.NewReader(body))
	if principal != "" {
		req.Header.Set("X-Principal-Id", principal)
	}
	return req
}

func validInput() models.RouteInput {
	return models.RouteInput{
		SignalID:        "sig-1",
		ChildID:         "child-1",
		Jurisdiction:    "US-CA",
		DevicePlatform:  "android",
		SignalTimestamp: time.Now().UTC(),
	}
}

// ==========================
// Routing Endpoint Tests
// ==========================

func TestHandleRoute_Success(t *testing.T) {
	handler, _ := setupHandler(t)
	router := handler.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, routeRequest(t, "svc-safety", validInput()))

	assert.Equal(t, http.StatusOK, rec.Code)

	var result models.RouteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "partner-1", result.PartnerID)
	assert.NotEmpty(t, result.RoutingID)
}

func TestHandleRoute_MissingPrincipal(t *testing.T) {
	handler, _ := setupHandler(t)
	router := handler.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, routeRequest(t, "", validInput()))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var result models.RouteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Equal(t, "MISSING_PRINCIPAL", result.Error.Code)
}

func TestHandleRoute_InvalidInput(t *testing.T) {
	handler, _ := setupHandler(t)
	router := handler.Router()

	input := validInput()
	input.SignalID = ""
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, routeRequest(t, "svc-safety", input))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRoute_MalformedBody(t *testing.T) {
	handler, _ := setupHandler(t)
	router := handler.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/signals/route", bytes.NewReader([]byte("{broken")))
	req.Header.Set("X-Principal-Id", "svc-safety")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRoute_PreconditionFailureMapsTo422(t *testing.T) {
	handler, _ := setupHandler(t)
	router := handler.Router()

	input := validInput()
	input.ChildID = "child-unknown"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, routeRequest(t, "svc-safety", input))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var result models.RouteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "CHILD_AGE_UNRESOLVABLE", result.Error.Code)
}

// ==========================
// Record Endpoint Tests
// ==========================

func TestHandleGetRecord(t *testing.T) {
	handler, records := setupHandler(t)
	router := handler.Router()

	require.NoError(t, records.Create(context.Background(), &models.RoutingRecord{
		ID:           "r1",
		SignalID:     "sig-1",
		Jurisdiction: "US-CA",
		Status:       models.StatusSent,
		StartedAt:    time.Now().UTC(),
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/routings/r1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var record models.RoutingRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, models.StatusSent, record.Status)
}

func TestHandleGetRecord_NotFound(t *testing.T) {
	handler, _ := setupHandler(t)
	router := handler.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/routings/absent", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAnnotate(t *testing.T) {
	handler, records := setupHandler(t)
	router := handler.Router()

	require.NoError(t, records.Create(context.Background(), &models.RoutingRecord{
		ID:        "r1",
		SignalID:  "sig-1",
		Status:    models.StatusSent,
		StartedAt: time.Now().UTC(),
	}))

	body := bytes.NewReader([]byte(`{"note": "partner acknowledged"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/routings/r1/annotations", body))

	assert.Equal(t, http.StatusNoContent, rec.Code)

	record, err := records.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Contains(t, record.Annotations, "partner acknowledged")
	assert.Equal(t, models.StatusSent, record.Status)
}

func TestHandleAnnotate_EmptyNote(t *testing.T) {
	handler, _ := setupHandler(t)
	router := handler.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/routings/r1/annotations", bytes.NewReader([]byte(`{}`))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ==========================
// Infrastructure Endpoint Tests
// ==========================

func TestHandleHealth(t *testing.T) {
	handler, _ := setupHandler(t)
	router := handler.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointMounted(t *testing.T) {
	handler, _ := setupHandler(t)
	router := handler.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
