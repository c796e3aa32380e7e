package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/swachh/portal-core/internal/ports"
)

var _ ports.RecordStore = (*Records)(nil)

// TokenSource supplies the bearer that scopes data requests to the signed-in user.
type TokenSource interface {
	AccessToken() string
}

// Records is the PostgREST-style RecordStore for one portal client. Requests
// carry the client's access token so row-level policies apply; without one
// they run under the API key's anonymous role.
type Records struct {
	svc    *Service
	tokens TokenSource
}

// NewRecords builds a RecordStore. tokens may be nil.
func (s *Service) NewRecords(tokens TokenSource) *Records {
	return &Records{svc: s, tokens: tokens}
}

func (r *Records) bearer() string {
	if r.tokens == nil {
		return ""
	}
	return r.tokens.AccessToken()
}

func (r *Records) Insert(ctx context.Context, collection ports.Collection, record any, out any) error {
	var rows []json.RawMessage
	err := r.svc.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/" + string(collection),
		body:   record,
		bearer: r.bearer(),
		header: http.Header{"Prefer": {"return=representation"}},
	}, &rows)
	if err != nil {
		return fmt.Errorf("insert %s: %w", collection, err)
	}
	if out == nil {
		return nil
	}
	if len(rows) == 0 {
		return fmt.Errorf("insert %s: no row returned", collection)
	}
	if err := json.Unmarshal(rows[0], out); err != nil {
		return fmt.Errorf("decode inserted %s: %w", collection, err)
	}
	return nil
}

func (r *Records) Query(ctx context.Context, collection ports.Collection, filter ports.Filter, order ports.Order, out any) error {
	if out == nil {
		return errors.New("query destination is required")
	}
	q := url.Values{"select": {"*"}}
	for col, v := range filter.Eq {
		q.Add(col, "eq."+v)
	}
	for col, vs := range filter.In {
		q.Add(col, inList(vs))
	}
	if order.Column != "" {
		dir := "asc"
		if order.Descending {
			dir = "desc"
		}
		q.Set("order", order.Column+"."+dir)
	}
	err := r.svc.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/" + string(collection),
		query:  q,
		bearer: r.bearer(),
	}, out)
	if err != nil {
		return fmt.Errorf("query %s: %w", collection, err)
	}
	return nil
}

// inList renders a PostgREST in.(...) operand. Every value is double quoted
// so commas and parentheses inside ids survive.
func inList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		v = strings.ReplaceAll(v, `\`, `\\`)
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return "in.(" + strings.Join(quoted, ",") + ")"
}
