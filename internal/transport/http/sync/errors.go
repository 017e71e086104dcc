package sync

import (
	"context"
	"errors"

	"github.com/Additional-Code/ordersync/internal/shopify"
	"github.com/Additional-Code/ordersync/pkg/errorbank"
)

// toAppError translates sync failures into transport-neutral errors.
func toAppError(err error) *errorbank.AppError {
	if err == nil {
		return nil
	}

	var (
		appErr    *errorbank.AppError
		cfgErr    *shopify.ConfigError
		transient *shopify.TransientHTTPError
		permanent *shopify.PermanentHTTPError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &cfgErr):
		return errorbank.Unprocessable(cfgErr.Reason,
			errorbank.WithDetail("store", cfgErr.Store),
			errorbank.WithCause(err),
		)
	case errors.As(err, &transient):
		return errorbank.UpstreamUnavailable("remote store unavailable",
			errorbank.WithDetail("status", transient.Status),
			errorbank.WithDetail("attempts", transient.Attempts),
			errorbank.WithCause(err),
		)
	case errors.As(err, &permanent):
		return errorbank.BadGateway("remote store rejected the request",
			errorbank.WithDetail("status", permanent.Status),
			errorbank.WithCause(err),
		)
	case errors.Is(err, context.DeadlineExceeded):
		return errorbank.UpstreamUnavailable("remote store timed out", errorbank.WithCause(err))
	default:
		return errorbank.Internal("sync failed", errorbank.WithCause(err))
	}
}
