package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")

	// Backend and copy errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrNotFound           = fmt.Errorf("remote object not found")
	ErrPermissionDenied   = fmt.Errorf("permission denied")
	ErrQuotaExceeded      = fmt.Errorf("quota exceeded")
	ErrTimeout            = fmt.Errorf("operation timed out")
	ErrCanceled           = fmt.Errorf("operation canceled")
	ErrDestination        = fmt.Errorf("destination folder unavailable")

	// Job errors
	ErrJobNotFound = fmt.Errorf("job not found")

	// Input validation errors
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrInvalidReference = fmt.Errorf("invalid reference")
	ErrMissingArgument  = fmt.Errorf("missing required argument")
	ErrInvalidArgument  = fmt.Errorf("invalid argument")
)
