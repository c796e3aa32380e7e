package ports

import "errors"

// Sentinels shared by every remote-collaborator adapter. Adapters wrap them with
// context; callers classify with errors.Is.
var (
	ErrInvalidCredentials     = errors.New("invalid login credentials")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrWeakPassword           = errors.New("password is too weak")
	ErrUniqueViolation        = errors.New("unique constraint violation")
	ErrTransport              = errors.New("remote service unavailable")
	ErrNoSession              = errors.New("no session")
)
