// Package media normalizes, validates, and compresses base64-encoded media
// payloads before they are handed to the gateway. Inputs arrive as data URLs
// or raw base64; outputs are normalized assets with a resolved MIME type.
package media

// Kind classifies the kind of media payload.
type Kind string

const (
	KindImage    Kind = "image"
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
	KindSticker  Kind = "sticker"
)

// OriginalFormat records how the payload was encoded on arrival.
type OriginalFormat string

const (
	FormatDataURL OriginalFormat = "data-url"
	FormatBase64  OriginalFormat = "base64"
)

// Asset is the normalized, validated form of a media payload. It is
// transient: produced by the pipeline and consumed immediately by delivery,
// never persisted as an entity.
type Asset struct {
	Mime           string
	DataURL        string
	Base64         string
	SizeBytes      int64
	SizeLabel      string
	OriginalFormat OriginalFormat
}

// DefaultMime returns the WhatsApp-conventional MIME for the kind, used to
// repair payloads that classify as octet-stream.
func (k Kind) DefaultMime() string {
	switch k {
	case KindImage:
		return "image/jpeg"
	case KindAudio:
		return "audio/ogg"
	case KindVideo:
		return "video/mp4"
	case KindDocument:
		return "application/pdf"
	case KindSticker:
		return "image/webp"
	default:
		return ""
	}
}
