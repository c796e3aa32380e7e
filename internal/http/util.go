package httpx

import (
	"errors"
	"net/http"

	apperrors "github.com/swachh/portal-core/internal/errors"
	"github.com/swachh/portal-core/internal/ports"
	"github.com/swachh/portal-core/internal/service"
)

// outcomeStatus maps a settled submission onto an HTTP status code.
func outcomeStatus(out service.Outcome) int {
	switch out.Kind {
	case service.OutcomeCreated, service.OutcomeRegistered:
		return http.StatusCreated
	case service.OutcomeAlreadyRegistered:
		return http.StatusOK
	case service.OutcomeNotAuthenticated:
		return http.StatusUnauthorized
	default:
		if out.Invalid {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	}
}

// writeReadError renders a failed read. Store errors keep their AppError code.
func writeReadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"error":       "authentication_required",
			"message":     err.Error(),
			"redirect_to": service.LoginPath,
		})
	case errors.Is(err, ports.ErrTransport):
		WriteError(w, ErrorParams{Code: http.StatusBadGateway, ErrCode: "unavailable", Err: errors.New("the service is unavailable; please try again")})
	default:
		code := string(apperrors.GetCode(err))
		if code == "" {
			code = string(apperrors.ErrCodeInternal)
		}
		status := apperrors.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			// Internal details stay in the logs.
			err = errors.New(http.StatusText(status))
		}
		WriteError(w, ErrorParams{Code: status, ErrCode: code, Err: err, Field: apperrors.GetField(err)})
	}
}
