package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type remoteErr struct{ code string }

func (e *remoteErr) Error() string { return "remote: " + e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "deadline", err: fmt.Errorf("insert: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "wrapped concrete", err: fmt.Errorf("a: %w", &remoteErr{code: "23505"}), want: "errors_remoteerr"},
		{name: "joined takes first", err: goerrors.Join(&remoteErr{}, goerrors.New("x")), want: "errors_remoteerr"},
		{name: "plain", err: goerrors.New("x"), want: "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
