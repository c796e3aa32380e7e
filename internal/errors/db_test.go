package errors

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(MapDBError(tt.err)); got != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", got, tt.wantCode)
			}
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	if err := MapDBError(pgx.ErrNoRows); !IsNotFound(err) {
		t.Errorf("MapDBError(pgx.ErrNoRows) should be NotFound, got %v", GetCode(err))
	}
}

func TestMapDBError_UniqueViolation(t *testing.T) {
	tests := []struct {
		name        string
		pgErr       *pgconn.PgError
		wantField   string
		wantMessage string
	}{
		{
			name: "registration detail",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				TableName:      "event_registrations",
				ConstraintName: "event_registrations_user_id_event_id_key",
				Detail:         `Key (user_id, event_id)=(u-1, e-1) already exists.`,
			},
			wantField:   "user_id, event_id",
			wantMessage: "already registered",
		},
		{
			name: "column metadata wins",
			pgErr: &pgconn.PgError{
				Code:       pgerrcode.UniqueViolation,
				TableName:  "complaints",
				ColumnName: "id",
			},
			wantField:   "id",
			wantMessage: "already exists",
		},
		{
			name: "inferred from constraint with table",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				TableName:      "events",
				ConstraintName: "events_id_key",
			},
			wantField: "id",
		},
		{
			name: "inferred from constraint without table",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "complaints_id_key",
			},
			wantField: "id",
		},
		{
			name: "foreign constraint name",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "some_lower_idx",
			},
			wantField: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			if !IsConflict(err) {
				t.Fatalf("MapDBError() should be Conflict, got %v", GetCode(err))
			}
			if field := GetField(err); field != tt.wantField {
				t.Errorf("field = %q, want %q", field, tt.wantField)
			}
			var appErr *AppError
			if errors.As(err, &appErr) && !strings.Contains(appErr.Message, tt.wantMessage) {
				t.Errorf("message = %q, want to contain %q", appErr.Message, tt.wantMessage)
			}
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				t.Errorf("the pg error should stay reachable")
			}
		})
	}
}

func TestMapDBError_ForeignKeyViolation(t *testing.T) {
	tests := []struct {
		name         string
		pgErr        *pgconn.PgError
		wantContains string
	}{
		{
			name: "missing event",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.ForeignKeyViolation,
				Detail: `Key (event_id)=(e-404) is not present in table "events".`,
			},
			wantContains: "referenced Event does not exist",
		},
		{
			name: "parent deletion",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.ForeignKeyViolation,
				Detail: `Key (id)=(e-1) is still referenced from table "event_registrations".`,
			},
			wantContains: "in use by Event Registration",
		},
		{
			name: "constraint name only",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.ForeignKeyViolation,
				ConstraintName: "event_registrations_event_id_fkey",
			},
			wantContains: "Event does not exist",
		},
		{
			name:         "nothing to go on",
			pgErr:        &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation},
			wantContains: "in use",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			if !IsForeignKey(err) {
				t.Fatalf("MapDBError() should be ForeignKey, got %v", GetCode(err))
			}
			var appErr *AppError
			if errors.As(err, &appErr) && !strings.Contains(appErr.Message, tt.wantContains) {
				t.Errorf("message = %q, want to contain %q", appErr.Message, tt.wantContains)
			}
		})
	}
}

func TestMapDBError_ValidationViolations(t *testing.T) {
	for _, code := range []string{pgerrcode.CheckViolation, pgerrcode.NotNullViolation} {
		err := MapDBError(&pgconn.PgError{Code: code, ColumnName: "status"})
		if !IsValidation(err) || GetField(err) != "status" {
			t.Errorf("code %s: got %v field %q", code, GetCode(err), GetField(err))
		}
		err = MapDBError(&pgconn.PgError{Code: code})
		if !IsValidation(err) || GetField(err) != "" {
			t.Errorf("code %s without column: got %v field %q", code, GetCode(err), GetField(err))
		}
	}
}

func TestMapDBError_UnknownPgError(t *testing.T) {
	err := MapDBError(&pgconn.PgError{Code: pgerrcode.DeadlockDetected})
	if GetCode(err) != ErrCodeInternal {
		t.Errorf("unknown pg error should be Internal, got %v", GetCode(err))
	}
}

func TestMapDBError_StandardError(t *testing.T) {
	orig := errors.New("plain")
	if err := MapDBError(orig); err != orig {
		t.Errorf("unrecognized errors should pass through unchanged")
	}
}

func TestMapTableToDomain(t *testing.T) {
	tests := map[string]string{
		"complaints":           "Complaint",
		"EVENTS":               "Event",
		" event_registrations": "Event Registration",
		"ward_offices":         "Ward Offices",
	}
	for in, want := range tests {
		if got := mapTableToDomain(in); got != want {
			t.Errorf("mapTableToDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
