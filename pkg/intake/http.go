package intake

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
)

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/feedback/submit", h.handleSubmit).Methods(http.MethodPost)
}

type submitResponse struct {
	Message  string                 `json:"message"`
	Feedback *models.FeedbackRecord `json:"feedback"`
}

func (h *HTTPHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	defer r.Body.Close()

	var sub models.FeedbackSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		logger.FromContext(r.Context()).WithError(err).Warn("invalid feedback payload")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.service.Submit(r.Context(), sub)
	if err != nil {
		if IsValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.FromContext(r.Context()).WithError(err).Error("failed to submit feedback")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{Message: "Feedback submitted successfully", Feedback: record})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Warn("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
