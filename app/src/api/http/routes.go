package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"electric-ping/app/src/api/contract"
	"electric-ping/app/src/domain"
	"electric-ping/app/src/infra"

	"github.com/go-chi/chi/v5"
)

const (
	queryLimit   = "limit"
	maxBodyBytes = 1 << 20

	resultFailureMessage = "Failed to record ping result"
)

// handler contains the HTTP handlers and shared dependencies for the REST API.
type handler struct {
	service domain.RecorderService
	proxy   http.Handler
	logger  *infra.Logger
}

func registerRoutes(router chi.Router, h *handler) {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		h.logger.Debugf(r.Context(), "health check OK")
		writeStatusOK(w)
	})
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatusOK(w)
	})

	router.Post(contract.PathPing, h.handlePing)
	router.Post(contract.PathPingResult, h.handlePingResult)
	router.Get(contract.PathIncompletePing, h.handleIncomplete)

	if h.proxy != nil {
		router.Get(contract.PathShapeProxy, h.proxy.ServeHTTP)
	}
}

func writeStatusOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *handler) handlePing(w http.ResponseWriter, r *http.Request) {
	var req contract.PingRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := req.Record()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	elapsed, err := h.service.RecordPing(r.Context(), record)
	if err != nil {
		h.logger.Errorf(r.Context(), "record ping %s: %v", record.PingID, err)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, contract.InsertResponse{DBInsertTime: elapsed})
}

func (h *handler) handlePingResult(w http.ResponseWriter, r *http.Request) {
	var req contract.PingResultRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := req.Result()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	elapsed, err := h.service.RecordResult(r.Context(), result)
	if err != nil {
		h.logger.Errorf(r.Context(), "record ping result %s: %v", result.PingID, err)
		if domain.IsValidation(err) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, resultFailureMessage)
		return
	}

	h.writeJSON(w, http.StatusCreated, contract.InsertResponse{DBInsertTime: elapsed})
}

func (h *handler) handleIncomplete(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get(queryLimit); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.service.IncompletePings(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, contract.NewIncompletePings(records))
}

func (h *handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsValidation(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "ping not found")
	default:
		h.logger.Errorf(r.Context(), "service error: %v", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.NewValidationError("", "invalid JSON body")
	}
	return nil
}

func (h *handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, contract.ErrorResponse{Error: message})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
