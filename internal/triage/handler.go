package triage

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinova/triage-engine/pkg/logging"
)

// Handler wires HTTP requests to the triage service.
type Handler struct {
	service Service
	logger  *logging.Logger
}

// NewHandler creates a triage handler.
func NewHandler(service Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type messageRequest struct {
	Message string `json:"message"`
}

// Start handles POST /triage/conversations.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.StartConversation(r.Context())
	if err != nil {
		h.logger.Error("failed to start conversation", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// Message handles POST /triage/conversations/{conversationID}/messages.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.ProcessMessage(r.Context(), conversationID, req.Message)
	if err != nil {
		h.logger.Error("failed to process message",
			"conversation_id", conversationID,
			"error", err,
		)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /triage/conversations/{conversationID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := h.service.GetConversation(r.Context(), conversationID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

// writeError maps the engine's error taxonomy onto HTTP statuses. Internal
// error text never reaches the patient.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Conversation not found", http.StatusNotFound)
	case errors.Is(err, ErrEmptyMessage):
		http.Error(w, "Message must not be empty", http.StatusBadRequest)
	case errors.Is(err, ErrExternalService):
		http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
