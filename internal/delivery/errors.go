package delivery

import (
	"errors"
	"fmt"

	"github.com/zapdeskhq/zapdesk/internal/gateway"
	"github.com/zapdeskhq/zapdesk/internal/instance"
	"github.com/zapdeskhq/zapdesk/internal/media"
	"github.com/zapdeskhq/zapdesk/internal/resilience"
)

// ConnectionError reports an instance that stayed disconnected after the
// restart recovery attempt. It is terminal for the current send.
type ConnectionError struct {
	Instance string
	State    string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("instance %s is not connected (state %q)", e.Instance, e.State)
}

// UserMessage maps a delivery failure to a single human-readable sentence
// suitable for the dashboard, with gateway internals and credentials kept
// out of the text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var connErr *ConnectionError
	switch {
	case errors.Is(err, instance.ErrChannelNotMapped):
		return "This channel has no WhatsApp instance configured."
	case errors.As(err, &connErr):
		return "The WhatsApp instance is disconnected. Reconnect it and try again."
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "The WhatsApp gateway is temporarily unavailable. Please wait a minute and try again."
	case errors.Is(err, media.ErrEmptyContent), errors.Is(err, media.ErrMalformedDataURL), errors.Is(err, media.ErrInvalidBase64):
		return "The attached file could not be read. Please attach it again."
	case errors.Is(err, media.ErrUnsupportedFormat):
		return "This file format is not supported for the selected message type."
	case errors.Is(err, media.ErrOversizedPayload):
		return "The attached file is too large to send."
	case errors.Is(err, media.ErrTranscoderUnavailable):
		return "The video is too large and compression is not available right now."
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return "The gateway rejected this message. Check the recipient number."
	}
	return "The message could not be delivered. Please try again."
}
