package media

import "fmt"

// HardLimitBytes is the gateway's hard cap for any media payload.
const HardLimitBytes int64 = 16 * 1024 * 1024

var supportedMimes = map[Kind]map[string]bool{
	KindImage: {
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
		"image/bmp":  true,
	},
	KindAudio: {
		"audio/ogg":  true,
		"audio/mpeg": true,
		"audio/mp4":  true,
		"audio/wav":  true,
		"audio/aac":  true,
	},
	KindVideo: {
		"video/mp4":  true,
		"video/webm": true,
		"video/3gpp": true,
	},
	KindSticker: {
		"image/webp": true,
	},
	// Documents accept anything the gateway forwards as a file.
	KindDocument: nil,
}

// ValidateSize rejects payloads whose estimated decoded size exceeds the
// gateway hard limit.
func ValidateSize(sizeBytes int64) error {
	if sizeBytes > HardLimitBytes {
		return fmt.Errorf("%w: %s exceeds %s", ErrOversizedPayload, SizeLabel(sizeBytes), SizeLabel(HardLimitBytes))
	}
	return nil
}

// ValidateMime rejects MIME types outside the supported set for the kind.
// An empty kind skips the check; documents accept any type.
func ValidateMime(kind Kind, mime string) error {
	if kind == "" || kind == KindDocument {
		return nil
	}
	allowed, ok := supportedMimes[kind]
	if !ok {
		return fmt.Errorf("%w: unknown media kind %q", ErrUnsupportedFormat, kind)
	}
	if !allowed[mime] {
		return fmt.Errorf("%w: %s is not supported for %s", ErrUnsupportedFormat, mime, kind)
	}
	return nil
}
