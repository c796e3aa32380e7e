// Package database builds the SQL used by the Postgres record store. Rows are
// returned as jsonb so callers decode them with the same json tags the remote
// API uses.
package database

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// rowAlias is the alias every built query gives its table.
const rowAlias = "t"

type ConditionType string

const (
	Equal ConditionType = "="
	In    ConditionType = "IN"
)

type Condition struct {
	Field string
	Type  ConditionType
	Value any
}

// WhereCond builds a condition. Values are compared as text so callers can
// filter uuid and date columns with plain strings.
func WhereCond(field string, condType ConditionType, value any) Condition {
	return Condition{Field: field, Type: condType, Value: value}
}

type ListQueryOptions struct {
	Table      string
	Conditions []Condition
	OrderBy    string
	OrderDir   string
}

type ListQueryOption func(*ListQueryOptions)

func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	options := &ListQueryOptions{Table: table}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithCondition adds a single condition.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Conditions = append(o.Conditions, cond)
	}
}

// WithOrderBy sets the ordering column and direction.
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = column
		o.OrderDir = direction
	}
}

func sanitizeIdentifier(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

func column(field string) string {
	return rowAlias + "." + sanitizeIdentifier(field)
}

// BuildListQuery returns a query yielding a single jsonb array of matching rows
// (an empty array when nothing matches), and its arguments.
//
//	SELECT coalesce(jsonb_agg(to_jsonb(t) ORDER BY t."created_at" DESC), '[]'::jsonb)
//	FROM "complaints" t WHERE t."user_id"::text = $1
func BuildListQuery(options *ListQueryOptions) (string, []any) {
	if options == nil {
		return "", nil
	}

	var order string
	if options.OrderBy != "" {
		order = " ORDER BY " + column(options.OrderBy)
		if dir := strings.ToUpper(options.OrderDir); dir == "ASC" || dir == "DESC" {
			order += " " + dir
		}
	}

	var query strings.Builder
	fmt.Fprintf(&query, "SELECT coalesce(jsonb_agg(to_jsonb(%s)%s), '[]'::jsonb) FROM %s %s",
		rowAlias, order, sanitizeIdentifier(options.Table), rowAlias)

	where, args := buildWhereClause(options.Conditions)
	if where != "" {
		query.WriteString(" ")
		query.WriteString(where)
	}
	return query.String(), args
}

func buildWhereClause(conds []Condition) (string, []any) {
	parts := make([]string, 0, len(conds))
	args := make([]any, 0, len(conds))
	for _, cond := range conds {
		if cond.Field == "" {
			continue
		}
		switch cond.Type {
		case In:
			args = append(args, cond.Value)
			parts = append(parts, fmt.Sprintf("%s::text = ANY($%d)", column(cond.Field), len(args)))
		default:
			args = append(args, cond.Value)
			parts = append(parts, fmt.Sprintf("%s::text = $%d", column(cond.Field), len(args)))
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(parts, " AND "), args
}

// BuildInsertQuery returns an insert of the given columns, populated from a
// single jsonb argument, that yields the stored row as jsonb.
//
//	INSERT INTO "events" AS t ("id", "title")
//	SELECT "id", "title" FROM jsonb_populate_record(NULL::"events", $1::jsonb)
//	RETURNING to_jsonb(t)
func BuildInsertQuery(table string, columns []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = sanitizeIdentifier(c)
	}
	list := strings.Join(cols, ", ")
	tbl := sanitizeIdentifier(table)
	return fmt.Sprintf("INSERT INTO %s AS %s (%s) SELECT %s FROM jsonb_populate_record(NULL::%s, $1::jsonb) RETURNING to_jsonb(%s)",
		tbl, rowAlias, list, list, tbl, rowAlias)
}
