// Package server exposes the routing engine over HTTP.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	stderrors "crisis-routing/internal/common/errors"
	"crisis-routing/internal/common/logger"
	"crisis-routing/internal/models"
	"crisis-routing/internal/notify"
	"crisis-routing/internal/routing/orchestrator"
	"crisis-routing/internal/routing/store"
)

// Callers identify themselves with this header. The engine refuses anonymous
// routing requests.
const headerPrincipal = "X-Principal-Id"

// Handler wires routing endpoints to the orchestrator.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	gate         *notify.Gate
	logger       logger.Logger
}

func NewHandler(orch *orchestrator.Orchestrator, gate *notify.Gate, log logger.Logger) *Handler {
	return &Handler{
		orchestrator: orch,
		gate:         gate,
		logger:       log.WithFields(map[string]interface{}{"component": "http"}),
	}
}

// Router builds the service router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/signals/route", h.handleRoute)
		r.Get("/routings/{routingID}", h.handleGetRecord)
		r.Post("/routings/{routingID}/annotations", h.handleAnnotate)
		if h.gate != nil {
			r.Post("/notifications", h.handleNotify)
		}
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRoute handles POST /v1/signals/route.
func (h *Handler) handleRoute(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get(headerPrincipal)

	var input models.RouteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, &models.RouteResult{
			Success: false,
			Error: &models.RouteError{
				Code:    string(stderrors.ErrCodeInvalidInput),
				Message: "request body is not valid JSON",
			},
		})
		return
	}

	result := h.orchestrator.Route(r.Context(), principal, input)
	writeJSON(w, statusFor(result), result)
}

// handleGetRecord handles GET /v1/routings/{routingID}.
func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	routingID := chi.URLParam(r, "routingID")

	record, err := h.orchestrator.Record(r.Context(), routingID)
	if err == store.ErrNotFound {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "routing record not found"})
		return
	}
	if err != nil {
		h.logger.Error("record lookup failed", map[string]interface{}{
			"routing_id": routingID,
			"error":      err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleAnnotate handles POST /v1/routings/{routingID}/annotations. Works on
// terminal records; the status never changes.
func (h *Handler) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	routingID := chi.URLParam(r, "routingID")

	var body struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Note == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "note is required"})
		return
	}

	err := h.orchestrator.Annotate(r.Context(), routingID, body.Note)
	if err == store.ErrNotFound {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "routing record not found"})
		return
	}
	if err != nil {
		h.logger.Error("annotation failed", map[string]interface{}{
			"routing_id": routingID,
			"error":      err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// handleNotify handles POST /v1/notifications.
func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	var n notify.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil || n.ChildID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "childId is required"})
		return
	}

	result, err := h.gate.Send(r.Context(), &n)
	if err != nil {
		h.logger.Error("notification failed", map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusFor maps a routing outcome to an HTTP status. Expected failures carry
// their structured error in the body.
func statusFor(result *models.RouteResult) int {
	if result.Success {
		return http.StatusOK
	}
	if result.Error.Code == string(stderrors.ErrCodeMissingPrincipal) {
		return http.StatusUnauthorized
	}
	switch stderrors.GetCategory(stderrors.ErrorCode(result.Error.Code)) {
	case stderrors.CategoryValidation:
		return http.StatusBadRequest
	case stderrors.CategoryPrecondition:
		return http.StatusUnprocessableEntity
	case stderrors.CategoryDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
