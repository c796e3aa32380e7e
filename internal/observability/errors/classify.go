package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"
)

// Classify returns a normalized error class suitable for metric labels and log fields.
// Deadline and network timeouts collapse to "timeout"; otherwise the innermost
// concrete type name is used, snake_cased with the package prefix.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if goerrors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if goerrors.Is(err, context.Canceled) {
		return "canceled"
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	err = innermost(err)

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}

// innermost follows single and joined (first branch) wrap chains.
func innermost(err error) error {
	for {
		switch w := err.(type) {
		case interface{ Unwrap() []error }:
			errs := w.Unwrap()
			if len(errs) == 0 || errs[0] == nil {
				return err
			}
			err = errs[0]
		case interface{ Unwrap() error }:
			next := w.Unwrap()
			if next == nil {
				return err
			}
			err = next
		default:
			return err
		}
	}
}
