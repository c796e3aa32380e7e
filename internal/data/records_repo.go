package data

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/swachh/portal-core/internal/data/database"
	"github.com/swachh/portal-core/internal/data/pgxutil"
	apperrors "github.com/swachh/portal-core/internal/errors"
	"github.com/swachh/portal-core/internal/ports"
)

var _ ports.RecordStore = (*RecordRepo)(nil)

// ErrUnknownCollection is returned for collections without a table.
var ErrUnknownCollection = errors.New("unknown collection")

// tableColumns lists the writable and filterable columns of each portal table.
var tableColumns = map[ports.Collection][]string{
	ports.CollectionComplaints: {
		"id", "category", "description", "location", "status", "user_id", "created_at",
	},
	ports.CollectionEvents: {
		"id", "title", "description", "event_date", "event_time", "location",
		"max_participants", "status", "created_by", "created_at",
	},
	ports.CollectionRegistrations: {
		"id", "event_id", "user_id", "registered_at",
	},
}

// RecordRepo is the Postgres RecordStore. Rows travel as jsonb in both
// directions so records decode with the same json tags as the remote API.
type RecordRepo struct {
	DB *sql.DB
}

// NewRecordRepo creates a new RecordRepo.
func NewRecordRepo(db *sql.DB) *RecordRepo {
	return &RecordRepo{DB: db}
}

// Insert writes record and decodes the stored row into out. Empty fields are
// left to column defaults.
func (r *RecordRepo) Insert(ctx context.Context, collection ports.Collection, record any, out any) error {
	allowed, ok := tableColumns[collection]
	if !ok {
		return apperrors.Wrap(ErrUnknownCollection, apperrors.ErrCodeNotFound, "insert "+string(collection))
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", collection, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("encode %s record: %w", collection, err)
	}

	cols := make([]string, 0, len(allowed))
	for _, col := range allowed {
		if v, present := fields[col]; present && v != nil && v != "" {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		return apperrors.Validation("record has no storable fields")
	}

	query := database.BuildInsertQuery(string(collection), cols)
	err = pgxutil.QueryJSON(ctx, r.DB, query, []any{string(payload)}, func(raw []byte) error {
		if out == nil {
			return nil
		}
		return json.Unmarshal(raw, out)
	})
	if err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsConflict(mapped) {
			return fmt.Errorf("insert %s: %w", collection, errors.Join(ports.ErrUniqueViolation, mapped))
		}
		return fmt.Errorf("insert %s: %w", collection, mapped)
	}
	return nil
}

// Query decodes matching rows into out, which must point to a slice.
func (r *RecordRepo) Query(ctx context.Context, collection ports.Collection, filter ports.Filter, order ports.Order, out any) error {
	allowed, ok := tableColumns[collection]
	if !ok {
		return apperrors.Wrap(ErrUnknownCollection, apperrors.ErrCodeNotFound, "query "+string(collection))
	}

	for _, col := range filter.Columns() {
		if !slices.Contains(allowed, col) {
			return apperrors.ValidationField(col, "unknown filter column")
		}
	}
	conds := make([]database.Condition, 0, len(filter.Eq)+len(filter.In))
	for col, v := range filter.Eq {
		conds = append(conds, database.WhereCond(col, database.Equal, v))
	}
	for col, vs := range filter.In {
		conds = append(conds, database.WhereCond(col, database.In, append([]string{}, vs...)))
	}
	// Map iteration order is random; keep the generated SQL stable.
	slices.SortFunc(conds, func(a, b database.Condition) int {
		return cmp.Or(cmp.Compare(a.Field, b.Field), cmp.Compare(a.Type, b.Type))
	})
	opts := database.NewListQueryOptions(string(collection))
	for _, c := range conds {
		database.WithCondition(c)(opts)
	}
	if order.Column != "" {
		if !slices.Contains(allowed, order.Column) {
			return apperrors.ValidationField(order.Column, "unknown order column")
		}
		dir := "ASC"
		if order.Descending {
			dir = "DESC"
		}
		database.WithOrderBy(order.Column, dir)(opts)
	}

	query, args := database.BuildListQuery(opts)
	err := pgxutil.QueryJSON(ctx, r.DB, query, args, func(raw []byte) error {
		return json.Unmarshal(raw, out)
	})
	if err != nil {
		return fmt.Errorf("query %s: %w", collection, apperrors.MapDBError(err))
	}
	return nil
}
