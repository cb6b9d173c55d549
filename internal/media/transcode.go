package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	maxVideoWidth  = 1280
	maxVideoHeight = 720
	// bitsPerPixel drives the target bitrate: pixelCount * 0.1 * quality.
	bitsPerPixel = 0.1
)

// VideoOptions describes one video transcode pass.
type VideoOptions struct {
	Width     int
	Height    int
	Bitrate   int
	FrameRate int
	Duration  time.Duration
}

// FitDimensions scales source dimensions to fit within 1280x720, preserving
// aspect ratio and rounding down to even numbers as the encoder requires.
func FitDimensions(width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return maxVideoWidth, maxVideoHeight
	}
	scale := 1.0
	if width > maxVideoWidth {
		scale = float64(maxVideoWidth) / float64(width)
	}
	if float64(height)*scale > maxVideoHeight {
		scale = float64(maxVideoHeight) / float64(height)
	}
	outW := int(math.Round(float64(width) * scale))
	outH := int(math.Round(float64(height) * scale))
	return outW &^ 1, outH &^ 1
}

// TargetBitrate computes the encode bitrate in bits per second from the
// output pixel count and a quality factor in (0, 1].
func TargetBitrate(width, height int, quality float64) int {
	if quality <= 0 || quality > 1 {
		quality = 1
	}
	return int(float64(width*height) * bitsPerPixel * quality)
}

// ProbeInfo carries the source stream properties needed to plan a transcode.
type ProbeInfo struct {
	Width    int
	Height   int
	Duration time.Duration
}

// Transcoder re-encodes audio and video payloads.
type Transcoder interface {
	Available() bool
	Probe(ctx context.Context, input []byte) (ProbeInfo, error)
	TranscodeAudio(ctx context.Context, input []byte, quality float64) ([]byte, error)
	TranscodeVideo(ctx context.Context, input []byte, opts VideoOptions, progress func(percent int)) ([]byte, error)
}

// FFmpegTranscoder shells out to ffmpeg/ffprobe. Transcodes run through
// temporary files so the progress stream can be read separately from the
// encoded output.
type FFmpegTranscoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

// NewFFmpegTranscoder creates a transcoder using the given ffmpeg binary
// path; ffprobe is resolved as its sibling.
func NewFFmpegTranscoder(log *slog.Logger, ffmpegPath string) *FFmpegTranscoder {
	if log == nil {
		log = slog.Default()
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	probe := "ffprobe"
	if dir := filepath.Dir(ffmpegPath); dir != "." {
		probe = filepath.Join(dir, "ffprobe")
	}
	return &FFmpegTranscoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: probe,
		logger:      log.With(slog.String("component", "transcoder")),
	}
}

// Available reports whether the ffmpeg binary can be resolved.
func (t *FFmpegTranscoder) Available() bool {
	_, err := exec.LookPath(t.ffmpegPath)
	return err == nil
}

// Probe reads stream dimensions and duration via ffprobe.
func (t *FFmpegTranscoder) Probe(ctx context.Context, input []byte) (ProbeInfo, error) {
	if _, err := exec.LookPath(t.ffprobePath); err != nil {
		return ProbeInfo{}, ErrTranscoderUnavailable
	}
	inFile, cleanup, err := writeTempFile(input)
	if err != nil {
		return ProbeInfo{}, err
	}
	defer cleanup()

	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		inFile,
	)
	out, err := cmd.Output()
	if err != nil {
		return ProbeInfo{}, fmt.Errorf("ffprobe: %w", err)
	}
	var parsed struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return ProbeInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	info := ProbeInfo{}
	if len(parsed.Streams) > 0 {
		info.Width = parsed.Streams[0].Width
		info.Height = parsed.Streams[0].Height
	}
	if seconds, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(seconds * float64(time.Second))
	}
	return info, nil
}

// TranscodeAudio re-encodes the payload as mono Ogg Vorbis at 22.05 kHz.
func (t *FFmpegTranscoder) TranscodeAudio(ctx context.Context, input []byte, quality float64) ([]byte, error) {
	if !t.Available() {
		return nil, ErrTranscoderUnavailable
	}
	if quality <= 0 || quality > 1 {
		quality = 0.7
	}
	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-ac", "1",
		"-ar", strconv.Itoa(compressedSampleRate),
		"-c:a", "libvorbis",
		"-q:a", fmt.Sprintf("%.1f", quality*10),
		"-f", "ogg",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg audio: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// TranscodeVideo re-encodes the payload at the planned dimensions and
// bitrate, reporting incremental progress (0-100) parsed from the ffmpeg
// progress stream. Cancelling ctx kills the encoder.
func (t *FFmpegTranscoder) TranscodeVideo(ctx context.Context, input []byte, opts VideoOptions, progress func(percent int)) ([]byte, error) {
	if !t.Available() {
		return nil, ErrTranscoderUnavailable
	}
	inFile, cleanupIn, err := writeTempFile(input)
	if err != nil {
		return nil, err
	}
	defer cleanupIn()
	outFile := inFile + ".out.mp4"
	defer os.Remove(outFile)

	frameRate := opts.FrameRate
	if frameRate <= 0 {
		frameRate = 24
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-i", inFile,
		"-vf", fmt.Sprintf("scale=%d:%d", opts.Width, opts.Height),
		"-b:v", strconv.Itoa(opts.Bitrate),
		"-r", strconv.Itoa(frameRate),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-progress", "pipe:1",
		outFile,
	}
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if progress == nil || opts.Duration <= 0 {
			continue
		}
		if value, ok := strings.CutPrefix(line, "out_time_ms="); ok {
			if micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
				elapsed := time.Duration(micros) * time.Microsecond
				percent := int(elapsed * 100 / opts.Duration)
				if percent > 99 {
					percent = 99
				}
				progress(percent)
			}
		}
		if line == "progress=end" {
			progress(100)
		}
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg video: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return os.ReadFile(outFile)
}

func writeTempFile(data []byte) (string, func(), error) {
	file, err := os.CreateTemp("", "zapdesk-media-*")
	if err != nil {
		return "", nil, err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", nil, err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", nil, err
	}
	return file.Name(), func() { os.Remove(file.Name()) }, nil
}
