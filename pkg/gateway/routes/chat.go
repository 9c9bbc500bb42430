package routes

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/intent"
)

type ChatHandler struct{}

func NewChatHandler() *ChatHandler {
	return &ChatHandler{}
}

func (h *ChatHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/chat/intent", h.handleIntent).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/intents", h.handleList).Methods(http.MethodGet)
}

type intentResponse struct {
	Matched bool           `json:"matched"`
	Intent  *intent.Intent `json:"intent,omitempty"`
}

func (h *ChatHandler) handleIntent(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(payload.Question) == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	in, ok := intent.Classify(payload.Question)
	if !ok {
		respondJSON(w, http.StatusOK, intentResponse{Matched: false})
		return
	}
	respondJSON(w, http.StatusOK, intentResponse{Matched: true, Intent: &in})
}

func (h *ChatHandler) handleList(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]intent.Intent{"intents": intent.All()})
}
