package shopify

import (
	"errors"
	"fmt"
)

// ConfigError reports a store descriptor that cannot be used. It is never retried.
type ConfigError struct {
	Store  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("store %s: invalid configuration: %s", e.Store, e.Reason)
}

// TransientHTTPError is returned once retries for 429, 5xx or transport failures are exhausted.
type TransientHTTPError struct {
	Status   int
	Attempts int
	Err      error
}

func (e *TransientHTTPError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remote request failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("remote request failed after %d attempts: status %d", e.Attempts, e.Status)
}

func (e *TransientHTTPError) Unwrap() error { return e.Err }

// PermanentHTTPError is a non-retryable non-2xx response.
type PermanentHTTPError struct {
	Status int
	Body   string
}

func (e *PermanentHTTPError) Error() string {
	return fmt.Sprintf("remote request rejected: status %d: %s", e.Status, e.Body)
}

// PaginationError reports a Link header that could not be interpreted.
type PaginationError struct {
	Header string
	Reason string
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("invalid pagination header %q: %s", e.Header, e.Reason)
}

// IsConfig reports whether err carries a *ConfigError.
func IsConfig(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// IsTransient reports whether err carries a *TransientHTTPError.
func IsTransient(err error) bool {
	var target *TransientHTTPError
	return errors.As(err, &target)
}

// IsPermanent reports whether err carries a *PermanentHTTPError.
func IsPermanent(err error) bool {
	var target *PermanentHTTPError
	return errors.As(err, &target)
}
