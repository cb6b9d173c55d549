package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zapdeskhq/zapdesk/internal/config"
)

const (
	defaultAudioTargetBytes int64 = 500 * 1024
	defaultVideoTargetBytes int64 = 15 * 1024 * 1024
)

// Pipeline detects, validates, and re-encodes media payloads. All failures
// are reported as categorized errors; nothing panics past this boundary.
type Pipeline struct {
	logger           *slog.Logger
	transcoder       Transcoder
	audioTargetBytes int64
	videoTargetBytes int64
	quality          float64
}

// NewPipeline creates a Pipeline from media configuration.
func NewPipeline(log *slog.Logger, cfg config.MediaConfig, transcoder Transcoder) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	audioTarget := defaultAudioTargetBytes
	if cfg.AudioTargetKB > 0 {
		audioTarget = int64(cfg.AudioTargetKB) * 1024
	}
	videoTarget := defaultVideoTargetBytes
	if cfg.VideoTargetMB > 0 {
		videoTarget = int64(cfg.VideoTargetMB) * 1024 * 1024
	}
	quality := cfg.Quality
	if quality <= 0 || quality > 1 {
		quality = 0.7
	}
	return &Pipeline{
		logger:           log.With(slog.String("component", "media")),
		transcoder:       transcoder,
		audioTargetBytes: audioTarget,
		videoTargetBytes: videoTarget,
		quality:          quality,
	}
}

// Normalize classifies and validates a payload carried as a data URL or raw
// base64 and returns the normalized asset.
func (p *Pipeline) Normalize(ctx context.Context, content string, hint Kind) (Asset, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Asset{}, ErrEmptyContent
	}

	var (
		mime    string
		payload string
		format  OriginalFormat
	)
	if strings.HasPrefix(content, "data:") {
		parsedMime, parsedPayload, err := ParseDataURL(content)
		if err != nil {
			return Asset{}, err
		}
		if !IsValidBase64(parsedPayload) {
			return Asset{}, fmt.Errorf("%w: data url payload", ErrInvalidBase64)
		}
		mime = parsedMime
		payload = parsedPayload
		format = FormatDataURL
	} else {
		if !IsValidBase64(content) {
			return Asset{}, ErrInvalidBase64
		}
		mime = ClassifyBase64(content)
		payload = content
		format = FormatBase64
	}

	// Repair: fall back to the kind's conventional MIME when the signature
	// table could not identify the payload.
	if mime == octetStream && hint != "" {
		if fallback := hint.DefaultMime(); fallback != "" {
			mime = fallback
		}
	}

	size := EstimateDecodedSize(payload)
	if err := ValidateSize(size); err != nil {
		return Asset{}, err
	}
	if err := ValidateMime(hint, mime); err != nil {
		return Asset{}, err
	}

	return Asset{
		Mime:           mime,
		DataURL:        "data:" + mime + ";base64," + payload,
		Base64:         payload,
		SizeBytes:      size,
		SizeLabel:      SizeLabel(size),
		OriginalFormat: format,
	}, nil
}

// CompressAudio reduces an audio asset toward the soft target size. Assets
// already under the target pass through untouched. WAV payloads are
// processed in-process; compressed containers go through the transcoder.
func (p *Pipeline) CompressAudio(ctx context.Context, asset Asset) (Asset, error) {
	if asset.SizeBytes <= p.audioTargetBytes {
		return asset, nil
	}
	raw, err := base64.StdEncoding.DecodeString(asset.Base64)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}

	if asset.Mime == "audio/wav" {
		clip, err := DecodeWAV(raw)
		if err != nil {
			return Asset{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		out := EncodeWAV(compressPCM(clip, p.quality))
		if len(out) >= len(raw) {
			return asset, nil
		}
		return p.rebuildAsset(out, "audio/wav", asset.OriginalFormat), nil
	}

	if p.transcoder == nil || !p.transcoder.Available() {
		p.logger.Warn("audio transcoder unavailable, sending original payload",
			slog.String("mime", asset.Mime),
			slog.String("size", asset.SizeLabel),
		)
		return asset, nil
	}
	out, err := p.transcoder.TranscodeAudio(ctx, raw, p.quality)
	if err != nil {
		return Asset{}, fmt.Errorf("compress audio: %w", err)
	}
	if int64(len(out)) >= asset.SizeBytes {
		return asset, nil
	}
	return p.rebuildAsset(out, "audio/ogg", asset.OriginalFormat), nil
}

// CompressVideo reduces a video asset under the gateway cap, reporting
// incremental progress through the callback. Assets already under the
// target pass through untouched.
func (p *Pipeline) CompressVideo(ctx context.Context, asset Asset, progress func(percent int)) (Asset, error) {
	if asset.SizeBytes <= p.videoTargetBytes {
		if progress != nil {
			progress(100)
		}
		return asset, nil
	}
	if p.transcoder == nil || !p.transcoder.Available() {
		return Asset{}, fmt.Errorf("%w: video payload of %s needs compression", ErrTranscoderUnavailable, asset.SizeLabel)
	}
	raw, err := base64.StdEncoding.DecodeString(asset.Base64)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	info, err := p.transcoder.Probe(ctx, raw)
	if err != nil {
		return Asset{}, fmt.Errorf("probe video: %w", err)
	}
	width, height := FitDimensions(info.Width, info.Height)
	opts := VideoOptions{
		Width:    width,
		Height:   height,
		Bitrate:  TargetBitrate(width, height, p.quality),
		Duration: info.Duration,
	}
	out, err := p.transcoder.TranscodeVideo(ctx, raw, opts, progress)
	if err != nil {
		return Asset{}, fmt.Errorf("compress video: %w", err)
	}
	if int64(len(out)) >= asset.SizeBytes {
		return asset, nil
	}
	return p.rebuildAsset(out, "video/mp4", asset.OriginalFormat), nil
}

func (p *Pipeline) rebuildAsset(data []byte, mime string, format OriginalFormat) Asset {
	payload := base64.StdEncoding.EncodeToString(data)
	size := int64(len(data))
	return Asset{
		Mime:           mime,
		DataURL:        "data:" + mime + ";base64," + payload,
		Base64:         payload,
		SizeBytes:      size,
		SizeLabel:      SizeLabel(size),
		OriginalFormat: format,
	}
}
