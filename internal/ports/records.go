package ports

import "context"

// Collection names a record collection in the remote store.
type Collection string

const (
	CollectionComplaints    Collection = "complaints"
	CollectionEvents        Collection = "events"
	CollectionRegistrations Collection = "event_registrations"
)

// Filter restricts a query. Every Eq column must equal its value and every In
// column must equal one of its values. An In column with no values matches
// nothing. The zero Filter matches every row.
type Filter struct {
	Eq map[string]string
	In map[string][]string
}

// Where returns a filter on column = value.
func Where(column, value string) Filter {
	return Filter{Eq: map[string]string{column: value}}
}

// WhereIn returns a filter on column being one of values.
func WhereIn(column string, values ...string) Filter {
	return Filter{In: map[string][]string{column: values}}
}

// Columns returns every column the filter touches.
func (f Filter) Columns() []string {
	cols := make([]string, 0, len(f.Eq)+len(f.In))
	for c := range f.Eq {
		cols = append(cols, c)
	}
	for c := range f.In {
		cols = append(cols, c)
	}
	return cols
}

// Order sorts query results by a single column.
type Order struct {
	Column     string
	Descending bool
}

// RecordStore is the narrow request/response contract to the remote persistence engine.
//
// Insert writes record into collection and decodes the stored representation
// (with server-assigned id and timestamps) into out. Uniqueness conflicts are
// reported as ErrUniqueViolation.
//
// Query decodes matching rows into out, which must point to a slice.
type RecordStore interface {
	Insert(ctx context.Context, collection Collection, record any, out any) error
	Query(ctx context.Context, collection Collection, filter Filter, order Order, out any) error
}
