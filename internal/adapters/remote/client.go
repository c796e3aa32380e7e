// Package remote talks to the hosted auth and data service: a GoTrue-style
// auth API under /auth/v1 and a PostgREST-style table API under /rest/v1.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"

	"github.com/swachh/portal-core/internal/ports"
)

const maxErrorBody = 64 << 10

// Config captures the remote service endpoint.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	Logger     *slog.Logger
}

// Service is the shared HTTP client for every portal client's adapters.
type Service struct {
	base       *url.URL
	apiKey     string
	retryLimit int
	client     *http.Client
	logger     *slog.Logger
}

// NewService builds a Service. Callers should pass a validated config.
func NewService(cfg Config) (*Service, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("remote base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote base url %q must be absolute", raw)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("remote api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		base:       base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		retryLimit: retries,
		client:     hc,
		logger:     logger.With("component", "remote"),
	}, nil
}

// APIError is a non-2xx response from the remote service. Kind is the port
// sentinel it maps to, or nil when the failure is unclassified.
type APIError struct {
	Status  int
	Code    string
	Message string
	Kind    error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("remote %d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("remote %d: %s", e.Status, msg)
}

func (e *APIError) Unwrap() error { return e.Kind }

// errorBody covers the error shapes of both APIs.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Code             any    `json:"code"`
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	bearer string
	header http.Header
}

// do sends req and decodes a 2xx JSON response into out (when non-nil).
// Network failures and 5xx responses wrap ports.ErrTransport; only GETs are retried.
func (s *Service) do(ctx context.Context, req request, out any) error {
	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	attempts := 1
	if req.method == http.MethodGet {
		attempts += s.retryLimit
	}
	var lastErr error
	for attempt := range attempts {
		lastErr = s.once(ctx, req, payload, out)
		if lastErr == nil || !errors.Is(lastErr, ports.ErrTransport) {
			return lastErr
		}
		if attempt < attempts-1 {
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(ports.ErrTransport, ctx.Err())
			case <-timer.C:
			}
		}
	}
	return lastErr
}

func (s *Service) once(ctx context.Context, req request, payload []byte, out any) error {
	u := *s.base
	u.Path = s.base.Path + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("apikey", s.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	bearer := req.bearer
	if bearer == "" {
		bearer = s.apiKey
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.method, req.path, errors.Join(ports.ErrTransport, err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Debug("close response body", "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return s.decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.path, err)
	}
	return nil
}

func (s *Service) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)

	apiErr := &APIError{Status: resp.StatusCode}
	apiErr.Code = firstNonEmpty(eb.ErrorCode, codeString(eb.Code), eb.Error)
	apiErr.Message = firstNonEmpty(eb.Msg, eb.Message, eb.ErrorDescription, strings.TrimSpace(string(raw)))
	apiErr.Kind = classify(apiErr)
	return apiErr
}

// classify maps a remote error onto the port sentinels.
func classify(e *APIError) error {
	msg := strings.ToLower(e.Message)
	switch {
	case e.Status >= 500 || e.Status == http.StatusTooManyRequests:
		return ports.ErrTransport
	case e.Code == pgerrcode.UniqueViolation:
		return ports.ErrUniqueViolation
	case e.Code == "invalid_credentials" || e.Code == "invalid_grant" || strings.Contains(msg, "invalid login credentials"):
		return ports.ErrInvalidCredentials
	case e.Code == "user_already_exists" || e.Code == "email_exists" || strings.Contains(msg, "already registered"):
		return ports.ErrEmailAlreadyRegistered
	case e.Code == "weak_password" || strings.Contains(msg, "password should be"):
		return ports.ErrWeakPassword
	case e.Status == http.StatusUnauthorized:
		return ports.ErrNoSession
	default:
		return nil
	}
}

func codeString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case nil:
		return ""
	default:
		// GoTrue reports the HTTP status as a numeric code; it carries no extra signal.
		return ""
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
