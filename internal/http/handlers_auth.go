package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/service"
)

// DashboardPath is where a successful sign-in lands.
const DashboardPath = "/dashboard"

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Logger *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	SelectedRole string `json:"selected_role,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
}

type registerRequest struct {
	FirstName       string `json:"first_name"`
	MiddleName      string `json:"middle_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role,omitempty"`
}

type userView struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"display_name,omitempty"`
	Role        domainauth.Role `json:"role"`
}

// sessionView is the public shape of a session. Tokens never leave the server.
type sessionView struct {
	Restoring        bool            `json:"restoring"`
	Authenticated    bool            `json:"authenticated"`
	User             *userView       `json:"user,omitempty"`
	SelectedRole     domainauth.Role `json:"selected_role,omitempty"`
	RoleHintMismatch bool            `json:"role_hint_mismatch,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
}

type authResponse struct {
	Outcome    service.AuthOutcome `json:"outcome"`
	Message    string              `json:"message,omitempty"`
	Warning    string              `json:"warning,omitempty"`
	Session    sessionView         `json:"session"`
	RedirectTo string              `json:"redirect_to,omitempty"`
}

func newSessionView(client *service.PortalClient, sess domainauth.Session) sessionView {
	v := sessionView{Restoring: sess.IsRestoring, Authenticated: sess.Authenticated()}
	if !sess.Authenticated() {
		return v
	}
	v.User = &userView{
		ID:          sess.Identity.UserID,
		Email:       sess.Identity.Email,
		DisplayName: sess.Identity.DisplayName,
		Role:        client.Roles.Resolve(sess),
	}
	v.SelectedRole = sess.SelectedRole
	v.RoleHintMismatch = client.Roles.RoleHintMismatch(sess)
	if !sess.ExpiresAt.IsZero() {
		exp := sess.ExpiresAt
		v.ExpiresAt = &exp
	}
	return v
}

// authStatus maps gateway outcomes onto HTTP status codes.
func authStatus(o service.AuthOutcome) int {
	switch o {
	case service.OutcomeSignedIn, service.OutcomeSignedOut:
		return http.StatusOK
	case service.OutcomeSignedUp:
		return http.StatusCreated
	case service.OutcomeInvalidCredentials:
		return http.StatusUnauthorized
	case service.OutcomeEmailAlreadyRegistered:
		return http.StatusConflict
	case service.OutcomeWeakPassword, service.OutcomeInvalidInput:
		return http.StatusUnprocessableEntity
	case service.OutcomeTransportError:
		return http.StatusBadGateway
	case service.OutcomeSuperseded:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Login signs the client in.
// POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	// Let restore settle first so it cannot supersede this sign-in's result.
	if err := client.Sessions.WaitRestored(r.Context()); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "session_restoring", Err: err})
		return
	}

	res := client.Auth.SignIn(r.Context(), service.SignInInput{
		Email:        req.Email,
		Password:     req.Password,
		SelectedRole: req.SelectedRole,
	})
	resp := authResponse{Outcome: res.Outcome, Message: res.Message, Session: newSessionView(client, res.Session)}
	if res.OK() {
		resp.RedirectTo = DashboardPath
		if req.RedirectURI != "" {
			resp.RedirectTo = safeRedirectPath(req.RedirectURI)
		}
	}
	WriteJSON(w, authStatus(res.Outcome), resp)
}

// Register creates an account. The session is not changed; the client is
// sent to the login page afterwards.
// POST /auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	res := client.Auth.SignUp(r.Context(), service.SignUpInput{
		FirstName:       req.FirstName,
		MiddleName:      req.MiddleName,
		LastName:        req.LastName,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Role:            req.Role,
	})
	resp := authResponse{Outcome: res.Outcome, Message: res.Message, Session: newSessionView(client, client.Sessions.Current())}
	if res.OK() {
		resp.RedirectTo = service.LoginPath
	}
	WriteJSON(w, authStatus(res.Outcome), resp)
}

// Logout signs the client out. The local session is always cleared; a failed
// remote revocation is reported as a warning.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	res := client.Auth.SignOut(r.Context())
	resp := authResponse{
		Outcome:    res.Outcome,
		Session:    newSessionView(client, res.Session),
		RedirectTo: service.HomePath,
	}
	if res.Err != nil {
		h.logger().WarnContext(r.Context(), "logout left a remote session behind", "client_id", client.ID, "error", res.Err)
		resp.Warning = res.Message
	}

	// AJAX requests get a JSON payload; regular form posts redirect.
	if isBrowserRequest(r) && !strings.Contains(r.Header.Get("Accept"), "application/json") {
		http.Redirect(w, r, service.HomePath, http.StatusSeeOther)
		return
	}
	WriteJSON(w, authStatus(res.Outcome), resp)
}

// Status returns the current authentication state without waiting for restore.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("wait") == "true" {
		if err := client.Sessions.WaitRestored(r.Context()); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "session_restoring", Err: err})
			return
		}
	}
	WriteJSON(w, http.StatusOK, newSessionView(client, client.Sessions.Current()))
}

func requireClient(w http.ResponseWriter, r *http.Request) (*service.PortalClient, bool) {
	client, ok := ClientFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "client_missing",
			Err:     errors.New("portal client not resolved"),
		})
		return nil, false
	}
	return client, true
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	return candidate
}
