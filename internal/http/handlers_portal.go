package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/swachh/portal-core/internal/domain/model"
	apperrors "github.com/swachh/portal-core/internal/errors"
	"github.com/swachh/portal-core/internal/service"
)

// PortalHandlers serves submissions, the user's own records and route verdicts.
type PortalHandlers struct {
	Logger *slog.Logger
}

func (h *PortalHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// awaitRestore holds a request until the client's restore settles so that
// ownership is read from a settled session.
func awaitRestore(w http.ResponseWriter, r *http.Request, client *service.PortalClient) bool {
	if err := client.Sessions.WaitRestored(r.Context()); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "session_restoring", Err: err})
		return false
	}
	return true
}

// SubmitComplaint handles POST /api/complaints.
func (h *PortalHandlers) SubmitComplaint(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok || !awaitRestore(w, r, client) {
		return
	}
	var fields model.ComplaintFields
	if !DecodeJSON(w, r, &fields) {
		return
	}
	out := client.Submissions.SubmitComplaint(r.Context(), fields)
	WriteJSON(w, outcomeStatus(out), out)
}

// SubmitEvent handles POST /api/events.
func (h *PortalHandlers) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok || !awaitRestore(w, r, client) {
		return
	}
	var fields model.EventFields
	if !DecodeJSON(w, r, &fields) {
		return
	}
	out := client.Submissions.SubmitEvent(r.Context(), fields)
	WriteJSON(w, outcomeStatus(out), out)
}

// RegisterForEvent handles POST /api/events/{id}/registrations.
func (h *PortalHandlers) RegisterForEvent(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok || !awaitRestore(w, r, client) {
		return
	}
	out := client.Submissions.RegisterForEvent(r.Context(), strings.TrimSpace(r.PathValue("id")))
	WriteJSON(w, outcomeStatus(out), out)
}

// Events lists every event, soonest first. Anonymous clients may read it.
// GET /api/events.
func (h *PortalHandlers) Events(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	items, err := client.Submissions.UpcomingEvents(r.Context())
	if err != nil {
		h.readFailed(w, r, client, "list events failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"events": items})
}

// readFailed logs a failed read and writes the response. Caller mistakes log
// at info; everything else at warn.
func (h *PortalHandlers) readFailed(w http.ResponseWriter, r *http.Request, client *service.PortalClient, msg string, err error) {
	level := slog.LevelWarn
	if apperrors.IsValidation(err) || apperrors.IsNotFound(err) || errors.Is(err, service.ErrNotAuthenticated) {
		level = slog.LevelInfo
	}
	h.logger().Log(r.Context(), level, msg, "client_id", client.ID, "error", err)
	writeReadError(w, err)
}

// MyComplaints handles GET /api/me/complaints.
func (h *PortalHandlers) MyComplaints(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	items, err := client.Submissions.MyComplaints(r.Context())
	if err != nil {
		h.readFailed(w, r, client, "list complaints failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"complaints": items})
}

// MyRegistrations handles GET /api/me/registrations.
func (h *PortalHandlers) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	items, err := client.Submissions.MyRegistrations(r.Context())
	if err != nil {
		h.readFailed(w, r, client, "list registrations failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"registrations": items})
}

// DashboardSummary handles GET /api/me/summary.
func (h *PortalHandlers) DashboardSummary(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	summary, err := client.Submissions.DashboardSummary(r.Context())
	if err != nil {
		h.readFailed(w, r, client, "dashboard summary failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// Notices drains the client's pending notices.
// GET /api/notices.
func (h *PortalHandlers) Notices(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"notices": client.Notices.Drain()})
}

// Guard reports the verdict for a route path. It does not wait for restore:
// a restoring client gets the "unknown" verdict and should render a placeholder.
// GET /api/guard?path=/dashboard.
func (h *PortalHandlers) Guard(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		path = service.HomePath
	}
	verdict := client.Guard.EvaluatePath(path)
	WriteJSON(w, http.StatusOK, map[string]any{
		"path":        path,
		"requirement": client.Guard.Requirement(path).String(),
		"verdict":     verdict,
	})
}
