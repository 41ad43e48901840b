package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/hive-corporation/ransomwatch/internal/adapter/exporter"
	"github.com/hive-corporation/ransomwatch/internal/adapter/scraper"
	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
	"github.com/hive-corporation/ransomwatch/internal/core/service"
)

type RestHandler struct {
	index  ports.AdvisoryIndex
	lookup *service.Lookup
	logger *zap.Logger
}

func NewRestHandler(index ports.AdvisoryIndex, logger *zap.Logger) *RestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RestHandler{
		index:  index,
		lookup: service.NewLookup(index),
		logger: logger,
	}
}

// RegisterRoutes mounts the API endpoints on router
func (h *RestHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	api.HandleFunc("/iocs/check", h.CheckIOC).Methods(http.MethodGet)
	api.HandleFunc("/iocs/feed", h.GetIOCFeed).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	api.HandleFunc("/groups", h.Groups).Methods(http.MethodGet)
	api.HandleFunc("/advisories", h.ListAdvisories).Methods(http.MethodGet)
	api.HandleFunc("/advisories/{id}", h.GetAdvisory).Methods(http.MethodGet)
}

// Health check endpoint
func (h *RestHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "ransomwatch-api",
	}
	h.writeJSON(w, http.StatusOK, response)
}

// CheckIOC looks up an IP address, defanged or not
func (h *RestHandler) CheckIOC(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("value")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	result, err := h.lookup.Check(ctx, value)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyQuery) {
			h.writeError(w, http.StatusBadRequest, "missing 'value' parameter")
			return
		}
		h.logger.Error("Lookup failed", zap.String("value", value), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to query IOCs")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *RestHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.index.Stats(r.Context())
	if err != nil {
		h.logger.Error("Failed to load stats", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *RestHandler) Groups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.index.ListGroups(r.Context())
	if err != nil {
		h.logger.Error("Failed to list groups", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	if groups == nil {
		groups = []domain.Group{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(groups),
		"groups": groups,
	})
}

func (h *RestHandler) ListAdvisories(w http.ResponseWriter, r *http.Request) {
	advisories, err := h.index.ListAdvisories(r.Context())
	if err != nil {
		h.logger.Error("Failed to list advisories", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list advisories")
		return
	}
	if advisories == nil {
		advisories = []domain.Advisory{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":      len(advisories),
		"advisories": advisories,
	})
}

func (h *RestHandler) GetAdvisory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !scraper.IsAdvisoryID(id) {
		h.writeError(w, http.StatusBadRequest, "invalid advisory id")
		return
	}

	adv, err := h.index.GetAdvisory(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAdvisoryNotFound) {
			h.writeError(w, http.StatusNotFound, "advisory not found")
			return
		}
		h.logger.Error("Failed to get advisory", zap.String("advisory_id", id), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to get advisory")
		return
	}
	h.writeJSON(w, http.StatusOK, adv)
}

// GetIOCFeed exports the whole index for SIEM ingestion
func (h *RestHandler) GetIOCFeed(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	exp, contentType, err := exporter.New(format, h.index)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unsupported format (use 'cef', 'stix', or 'json')")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	data, err := exp.Export(ctx)
	if err != nil {
		h.logger.Error("Feed export failed", zap.String("format", format), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to export "+format+" feed")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(data)); err != nil {
		h.logger.Warn("Error writing feed response", zap.String("format", format), zap.Error(err))
	}
}

// Helper functions

func (h *RestHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("Error encoding JSON response", zap.Error(err))
	}
}

func (h *RestHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
