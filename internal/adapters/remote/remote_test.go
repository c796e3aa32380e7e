package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/domain/model"
	mockauth "github.com/swachh/portal-core/internal/mocks/auth"
	"github.com/swachh/portal-core/internal/ports"
)

const testAPIKey = "anon-key"

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestService(t *testing.T, h http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	svc, err := NewService(Config{BaseURL: srv.URL, APIKey: testAPIKey, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return svc
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Config{APIKey: "k"})
	require.Error(t, err)

	_, err = NewService(Config{BaseURL: "not-a-url", APIKey: "k"})
	require.Error(t, err)

	_, err = NewService(Config{BaseURL: "https://example.supabase.co"})
	require.Error(t, err)
}

func TestBackend_AuthenticatePersistsAndEmits(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	access := signedToken(t, exp)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, testAPIKey, r.Header.Get("apikey"))
		var body passwordGrant
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Password != "secret1" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"code": 400, "error_code": "invalid_credentials", "msg": "Invalid login credentials",
			})
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{
			AccessToken:  access,
			RefreshToken: "refresh-1",
			ExpiresIn:    3600,
			User: remoteUser{
				ID:           "user-1",
				Email:        body.Email,
				UserMetadata: userMetadata{FullName: "Asha Rao", Role: "employee"},
			},
		})
	})

	svc := newTestService(t, mux)
	tokens := mockauth.NewMemoryTokenStore()
	backend := svc.NewBackend(BackendOptions{ClientID: "c1", Tokens: tokens})

	var events []domainauth.SessionEvent
	stop := backend.OnSessionChange(func(ev domainauth.SessionEvent) { events = append(events, ev) })
	defer stop()

	_, err := backend.Authenticate(context.Background(), "asha@example.com", "wrong")
	require.ErrorIs(t, err, ports.ErrInvalidCredentials)
	assert.Empty(t, events)

	sess, err := backend.Authenticate(context.Background(), "asha@example.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, sess.Identity)
	assert.Equal(t, "user-1", sess.UserID())
	assert.Equal(t, "Asha Rao", sess.Identity.DisplayName)
	assert.Equal(t, domainauth.RoleEmployee, sess.Identity.Role)
	assert.True(t, exp.Equal(sess.ExpiresAt), "expiry should come from the token claim")
	assert.Equal(t, access, backend.AccessToken())

	stored, err := tokens.Load(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, access, stored.Token)

	require.Len(t, events, 1)
	assert.Equal(t, domainauth.EventSignedIn, events[0].Kind)
}

func TestBackend_CreateAccountClassifiesErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		var body signupRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch body.Email {
		case "taken@example.com":
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"code": 422, "error_code": "user_already_exists", "msg": "User already registered",
			})
		case "weak@example.com":
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"code": 422, "error_code": "weak_password", "msg": "Password should be at least 6 characters.",
			})
		default:
			assert.Equal(t, "citizen", body.Data.Role)
			assert.Equal(t, "New User", body.Data.FullName)
			writeJSON(w, http.StatusOK, map[string]any{"id": "user-2"})
		}
	})
	svc := newTestService(t, mux)
	backend := svc.NewBackend(BackendOptions{ClientID: "c1", Tokens: mockauth.NewMemoryTokenStore()})
	ctx := context.Background()

	err := backend.CreateAccount(ctx, ports.AccountInput{Email: "taken@example.com", Password: "secret1"})
	require.ErrorIs(t, err, ports.ErrEmailAlreadyRegistered)

	err = backend.CreateAccount(ctx, ports.AccountInput{Email: "weak@example.com", Password: "abc"})
	require.ErrorIs(t, err, ports.ErrWeakPassword)

	err = backend.CreateAccount(ctx, ports.AccountInput{
		Email: "new@example.com", Password: "secret1", DisplayName: "New User", Role: domainauth.RoleCitizen,
	})
	require.NoError(t, err)
}

func TestBackend_RestoreSession(t *testing.T) {
	valid := signedToken(t, time.Now().Add(time.Hour))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+valid {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "msg": "invalid JWT"})
			return
		}
		writeJSON(w, http.StatusOK, remoteUser{ID: "user-1", Email: "Asha@Example.com"})
	})
	svc := newTestService(t, mux)
	ctx := context.Background()

	t.Run("no stored token", func(t *testing.T) {
		backend := svc.NewBackend(BackendOptions{ClientID: "c1", Tokens: mockauth.NewMemoryTokenStore()})
		sess, err := backend.RestoreSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("valid token", func(t *testing.T) {
		tokens := mockauth.NewMemoryTokenStore()
		require.NoError(t, tokens.Save(ctx, "c1", domainauth.Session{
			Identity: &domainauth.Identity{UserID: "user-1"}, Token: valid, ExpiresAt: time.Now().Add(time.Hour),
		}))
		backend := svc.NewBackend(BackendOptions{ClientID: "c1", Tokens: tokens})
		sess, err := backend.RestoreSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, "asha@example.com", sess.Identity.Email)
		assert.Equal(t, valid, backend.AccessToken())
	})

	t.Run("revoked token is dropped", func(t *testing.T) {
		tokens := mockauth.NewMemoryTokenStore()
		require.NoError(t, tokens.Save(ctx, "c1", domainauth.Session{
			Identity: &domainauth.Identity{UserID: "user-1"}, Token: "revoked", ExpiresAt: time.Now().Add(time.Hour),
		}))
		backend := svc.NewBackend(BackendOptions{ClientID: "c1", Tokens: tokens})
		sess, err := backend.RestoreSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, sess)
		_, err = tokens.Load(ctx, "c1")
		require.ErrorIs(t, err, ports.ErrNoSession)
	})
}

func TestBackend_RestoreRefreshesExpiringToken(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		writeJSON(w, http.StatusOK, tokenResponse{
			AccessToken: fresh, RefreshToken: "refresh-2", User: remoteUser{ID: "user-1"},
		})
	})
	svc := newTestService(t, mux)
	ctx := context.Background()
	tokens := mockauth.NewMemoryTokenStore()
	require.NoError(t, tokens.Save(ctx, "c1", domainauth.Session{
		Identity:     &domainauth.Identity{UserID: "user-1"},
		Token:        "old",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(10 * time.Second),
	}))
	backend := svc.NewBackend(BackendOptions{ClientID: "c1", Tokens: tokens})

	var kinds []domainauth.SessionEventKind
	stop := backend.OnSessionChange(func(ev domainauth.SessionEvent) { kinds = append(kinds, ev.Kind) })
	defer stop()

	sess, err := backend.RestoreSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, fresh, sess.Token)
	assert.Equal(t, []domainauth.SessionEventKind{domainauth.EventTokenRefreshed}, kinds)

	stored, err := tokens.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", stored.RefreshToken)
}

func TestBackend_InvalidateSession(t *testing.T) {
	var logouts atomic.Int32
	var fail atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/logout", func(w http.ResponseWriter, _ *http.Request) {
		logouts.Add(1)
		if fail.Load() {
			writeJSON(w, http.StatusBadGateway, map[string]any{"message": "upstream down"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	svc := newTestService(t, mux)
	ctx := context.Background()
	tokens := mockauth.NewMemoryTokenStore()
	backend := svc.NewBackend(BackendOptions{ClientID: "c1", Tokens: tokens})

	save := func() {
		require.NoError(t, tokens.Save(ctx, "c1", domainauth.Session{
			Identity: &domainauth.Identity{UserID: "user-1"}, Token: "tok", ExpiresAt: time.Now().Add(time.Hour),
		}))
	}

	save()
	require.NoError(t, backend.InvalidateSession(ctx))
	assert.EqualValues(t, 1, logouts.Load())
	_, err := tokens.Load(ctx, "c1")
	require.ErrorIs(t, err, ports.ErrNoSession)

	save()
	fail.Store(true)
	err = backend.InvalidateSession(ctx)
	require.ErrorIs(t, err, ports.ErrTransport)
	_, err = tokens.Load(ctx, "c1")
	require.ErrorIs(t, err, ports.ErrNoSession, "local token is dropped even when revocation fails")

	require.NoError(t, backend.InvalidateSession(ctx), "no stored token is a no-op")
	assert.EqualValues(t, 2, logouts.Load())
}

func TestBackend_DiscardSession(t *testing.T) {
	var (
		revoked atomic.Value
		scope   atomic.Value
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		revoked.Store(r.Header.Get("Authorization"))
		scope.Store(r.URL.Query().Get("scope"))
		w.WriteHeader(http.StatusNoContent)
	})
	svc := newTestService(t, mux)
	ctx := context.Background()
	tokens := mockauth.NewMemoryTokenStore()
	backend := svc.NewBackend(BackendOptions{ClientID: "c1", Tokens: tokens})

	loser := domainauth.Session{Identity: &domainauth.Identity{UserID: "user-1"}, Token: "late"}
	require.NoError(t, tokens.Save(ctx, "c1", loser))
	backend.setBearer("late")

	require.NoError(t, backend.DiscardSession(ctx, loser, domainauth.Anonymous(time.Now())))
	assert.Equal(t, "Bearer late", revoked.Load())
	assert.Equal(t, "local", scope.Load(), "only the discarded session is revoked")
	assert.Empty(t, backend.AccessToken())
	_, err := tokens.Load(ctx, "c1")
	require.ErrorIs(t, err, ports.ErrNoSession)

	winner := domainauth.Session{Identity: &domainauth.Identity{UserID: "user-1"}, Token: "early"}
	require.NoError(t, tokens.Save(ctx, "c1", loser))
	backend.setBearer("late")
	require.NoError(t, backend.DiscardSession(ctx, loser, winner))
	assert.Equal(t, "early", backend.AccessToken())
	stored, err := tokens.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "early", stored.Token)
}

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

func TestRecords_InsertAndQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rest/v1/event_registrations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		var row map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		if row["event_id"] == "dup" {
			writeJSON(w, http.StatusConflict, map[string]any{
				"code":    "23505",
				"message": `duplicate key value violates unique constraint "event_registrations_user_id_event_id_key"`,
			})
			return
		}
		row["id"] = "reg-1"
		row["registered_at"] = "2024-05-01T10:00:00Z"
		writeJSON(w, http.StatusCreated, []map[string]any{row})
	})
	mux.HandleFunc("GET /rest/v1/complaints", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eq.user-1", q.Get("user_id"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "*", q.Get("select"))
		writeJSON(w, http.StatusOK, []model.Complaint{{ID: "c-2", UserID: "user-1"}, {ID: "c-1", UserID: "user-1"}})
	})
	svc := newTestService(t, mux)
	records := svc.NewRecords(staticToken("user-token"))
	ctx := context.Background()

	var reg model.EventRegistration
	err := records.Insert(ctx, ports.CollectionRegistrations, map[string]string{"event_id": "e-1", "user_id": "user-1"}, &reg)
	require.NoError(t, err)
	assert.Equal(t, "reg-1", reg.ID)
	assert.Equal(t, "e-1", reg.EventID)
	assert.False(t, reg.RegisteredAt.IsZero())

	err = records.Insert(ctx, ports.CollectionRegistrations, map[string]string{"event_id": "dup", "user_id": "user-1"}, &reg)
	require.ErrorIs(t, err, ports.ErrUniqueViolation)

	var complaints []model.Complaint
	err = records.Query(ctx, ports.CollectionComplaints, ports.Where("user_id", "user-1"),
		ports.Order{Column: "created_at", Descending: true}, &complaints)
	require.NoError(t, err)
	require.Len(t, complaints, 2)
	assert.Equal(t, "c-2", complaints[0].ID)
}

func TestRecords_QueryByIDSet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/v1/events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, `in.("ev-1","odd,\"id\"")`, q.Get("id"))
		assert.Equal(t, "event_date.asc", q.Get("order"))
		writeJSON(w, http.StatusOK, []model.Event{{ID: "ev-1"}})
	})
	svc := newTestService(t, mux)

	var events []model.Event
	err := svc.NewRecords(nil).Query(context.Background(), ports.CollectionEvents,
		ports.WhereIn("id", "ev-1", `odd,"id"`), ports.Order{Column: "event_date"}, &events)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestService_RetriesIdempotentReads(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/v1/events", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"message": "try later"})
			return
		}
		writeJSON(w, http.StatusOK, []model.Event{{ID: "e-1"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	svc, err := NewService(Config{BaseURL: srv.URL, APIKey: testAPIKey, RetryLimit: 1})
	require.NoError(t, err)

	var events []model.Event
	require.NoError(t, svc.NewRecords(nil).Query(context.Background(), ports.CollectionEvents, ports.Filter{}, ports.Order{}, &events))
	assert.Len(t, events, 1)
	assert.EqualValues(t, 2, calls.Load())
}

func TestAPIError_Classification(t *testing.T) {
	cases := []struct {
		name string
		err  *APIError
		want error
	}{
		{"server error", &APIError{Status: 503}, ports.ErrTransport},
		{"rate limited", &APIError{Status: 429}, ports.ErrTransport},
		{"unique", &APIError{Status: 409, Code: "23505"}, ports.ErrUniqueViolation},
		{"legacy grant", &APIError{Status: 400, Code: "invalid_grant"}, ports.ErrInvalidCredentials},
		{"unauthorized", &APIError{Status: 401}, ports.ErrNoSession},
		{"other", &APIError{Status: 400, Code: "validation_failed"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.err))
		})
	}
}
