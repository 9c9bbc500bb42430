package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/gateway/middleware"
	"github.com/synaptica-ai/hospital-analytics/pkg/snapshot"
)

type SnapshotHandler struct {
	materializer *snapshot.Materializer
}

func NewSnapshotHandler(materializer *snapshot.Materializer) *SnapshotHandler {
	return &SnapshotHandler{materializer: materializer}
}

func (h *SnapshotHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/analysis/snapshots", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/api/analysis/snapshots", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/analysis/snapshots/{id}", h.handleGet).Methods(http.MethodGet)
}

func (h *SnapshotHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req snapshot.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid snapshot request")
		return
	}
	if user, ok := middleware.UserFromContext(r.Context()); ok {
		req.RequestedBy = user.Subject
	}

	snap, err := h.materializer.Enqueue(r.Context(), req)
	if err != nil {
		if errors.Is(err, snapshot.ErrUnknownReport) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.FromContext(r.Context()).WithError(err).Error("failed to enqueue snapshot")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusAccepted, snap)
}

func (h *SnapshotHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	snaps, err := h.materializer.List(r.Context(), limit)
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Error("failed to list snapshots")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"snapshots": snaps})
}

func (h *SnapshotHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid snapshot id")
		return
	}
	snap, err := h.materializer.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			respondError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		logger.FromContext(r.Context()).WithError(err).Error("failed to fetch snapshot")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}
