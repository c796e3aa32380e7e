package devauth

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/swachh/portal-core/internal/ports"
)

var _ ports.RecordStore = (*Records)(nil)

// uniqueKeys lists per-collection column sets that must be unique.
var uniqueKeys = map[ports.Collection][][]string{
	ports.CollectionRegistrations: {{"event_id", "user_id"}},
}

// Records is an in-memory RecordStore. Rows are kept in their JSON form so
// filters and ordering address the same column names as the remote store.
type Records struct {
	mu   sync.RWMutex
	rows map[ports.Collection][]map[string]any
}

// NewRecords constructs an empty store.
func NewRecords() *Records {
	return &Records{rows: make(map[ports.Collection][]map[string]any)}
}

func (r *Records) Insert(_ context.Context, collection ports.Collection, record any, out any) error {
	row, err := toRow(record)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cols := range uniqueKeys[collection] {
		for _, existing := range r.rows[collection] {
			if sameColumns(existing, row, cols) {
				return fmt.Errorf("insert %s: %w", collection, ports.ErrUniqueViolation)
			}
		}
	}
	r.rows[collection] = append(r.rows[collection], row)
	return fromRows(row, out)
}

func (r *Records) Query(_ context.Context, collection ports.Collection, filter ports.Filter, order ports.Order, out any) error {
	r.mu.RLock()
	matched := make([]map[string]any, 0, len(r.rows[collection]))
	for _, row := range r.rows[collection] {
		if matches(row, filter) {
			matched = append(matched, row)
		}
	}
	r.mu.RUnlock()

	if order.Column != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := fmt.Sprint(matched[i][order.Column]), fmt.Sprint(matched[j][order.Column])
			if order.Descending {
				return a > b
			}
			return a < b
		})
	}
	return fromRows(matched, out)
}

func toRow(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return row, nil
}

func fromRows(v any, out any) error {
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}

func matches(row map[string]any, filter ports.Filter) bool {
	for col, want := range filter.Eq {
		if fmt.Sprint(row[col]) != want {
			return false
		}
	}
	for col, set := range filter.In {
		if !slices.Contains(set, fmt.Sprint(row[col])) {
			return false
		}
	}
	return true
}

func sameColumns(a, b map[string]any, cols []string) bool {
	for _, c := range cols {
		if fmt.Sprint(a[c]) != fmt.Sprint(b[c]) {
			return false
		}
	}
	return true
}
