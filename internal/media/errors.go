package media

import "errors"

var (
	// ErrEmptyContent indicates an empty or whitespace-only payload.
	ErrEmptyContent = errors.New("media content is empty")
	// ErrMalformedDataURL indicates a data URL without a valid header or payload segment.
	ErrMalformedDataURL = errors.New("malformed data url")
	// ErrInvalidBase64 indicates the payload is not valid base64.
	ErrInvalidBase64 = errors.New("invalid base64 payload")
	// ErrUnsupportedFormat indicates the resolved MIME is outside the supported set for the media kind.
	ErrUnsupportedFormat = errors.New("unsupported media format")
	// ErrOversizedPayload indicates the payload exceeds the gateway's hard size limit.
	ErrOversizedPayload = errors.New("media payload too large")
	// ErrTranscoderUnavailable indicates no external transcoder is installed.
	ErrTranscoderUnavailable = errors.New("transcoder unavailable")
)
