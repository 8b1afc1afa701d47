package api

import (
	"encoding/json"
	"net/http"

	"github.com/notifico/dispatcher/recipient"
	"github.com/notifico/dispatcher/runner"
)

// IntakeHandler accepts inbound events and hands them to a Runner.
type IntakeHandler struct {
	runner *runner.Runner
}

// NewIntakeHandler builds an IntakeHandler backed by r.
func NewIntakeHandler(r *runner.Runner) *IntakeHandler {
	return &IntakeHandler{runner: r}
}

// intakeRequest is the wire shape of an inbound event: id and project_id
// both default when omitted, and recipient is either the inline record
// `{id, contacts:[...]}` or absent. recipient_id instead resolves an
// already-registered recipient through the directory collaborator rather
// than inlining it on every request.
type intakeRequest struct {
	ID           string               `json:"id"`
	ProjectID    string               `json:"project_id"`
	EventName    string               `json:"event"`
	EventContext json.RawMessage      `json:"context"`
	Recipient    *recipient.Recipient `json:"recipient"`
	RecipientID  string               `json:"recipient_id"`
}

type intakeResponse struct {
	EventID string `json:"event_id"`
}

// ServeHTTP implements http.Handler for POST /api/v1/events.
func (h *IntakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req intakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.EventName == "" {
		WriteError(w, http.StatusBadRequest, "event is required")
		return
	}

	eventID, err := h.runner.ProcessEvent(r.Context(), runner.ProcessEventRequest{
		ID:           req.ID,
		ProjectID:    req.ProjectID,
		EventName:    req.EventName,
		EventContext: req.EventContext,
		Recipient:    req.Recipient,
		RecipientID:  req.RecipientID,
	})
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, intakeResponse{EventID: eventID.String()})
}
