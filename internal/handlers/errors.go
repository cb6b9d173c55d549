package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zapdeskhq/zapdesk/internal/delivery"
	"github.com/zapdeskhq/zapdesk/internal/gateway"
	"github.com/zapdeskhq/zapdesk/internal/instance"
	"github.com/zapdeskhq/zapdesk/internal/media"
	"github.com/zapdeskhq/zapdesk/internal/resilience"
)

// ErrorResponse is the uniform error body. Message is the single
// human-readable line shown to the agent; internals stay in the logs.
type ErrorResponse struct {
	Message string `json:"message"`
}

// deliveryHTTPError maps a delivery failure to an HTTP status and the
// user-facing message.
func deliveryHTTPError(err error) *echo.HTTPError {
	status := http.StatusBadGateway
	var connErr *delivery.ConnectionError
	var apiErr *gateway.APIError
	switch {
	case errors.Is(err, instance.ErrChannelNotMapped):
		status = http.StatusNotFound
	case errors.As(err, &connErr), errors.Is(err, resilience.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
	case errors.Is(err, media.ErrOversizedPayload):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, media.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, media.ErrEmptyContent),
		errors.Is(err, media.ErrMalformedDataURL),
		errors.Is(err, media.ErrInvalidBase64):
		status = http.StatusBadRequest
	case errors.As(err, &apiErr):
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			status = http.StatusBadRequest
		}
	}
	return echo.NewHTTPError(status, ErrorResponse{Message: delivery.UserMessage(err)})
}
