package media

import (
	"encoding/binary"
	"fmt"
	"math"
)

// pcmClip holds decoded 16-bit PCM audio.
type pcmClip struct {
	samples    []int16
	sampleRate int
	channels   int
}

const compressedSampleRate = 22050

// DecodeWAV parses a RIFF/WAVE container carrying 16-bit PCM.
func DecodeWAV(data []byte) (pcmClip, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return pcmClip{}, fmt.Errorf("not a RIFF/WAVE container")
	}
	var clip pcmClip
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			return pcmClip{}, fmt.Errorf("truncated %s chunk", chunkID)
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return pcmClip{}, fmt.Errorf("short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return pcmClip{}, fmt.Errorf("unsupported wav format %d, want PCM", format)
			}
			clip.channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			clip.sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != 16 {
				return pcmClip{}, fmt.Errorf("unsupported bit depth %d, want 16", bits)
			}
		case "data":
			clip.samples = make([]int16, chunkSize/2)
			for i := range clip.samples {
				clip.samples[i] = int16(binary.LittleEndian.Uint16(data[body+2*i : body+2*i+2]))
			}
		}
		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}
	if clip.sampleRate == 0 || clip.channels == 0 {
		return pcmClip{}, fmt.Errorf("missing fmt chunk")
	}
	if clip.samples == nil {
		return pcmClip{}, fmt.Errorf("missing data chunk")
	}
	return clip, nil
}

// EncodeWAV writes a mono 16-bit PCM clip back into a WAVE container.
func EncodeWAV(clip pcmClip) []byte {
	dataSize := len(clip.samples) * 2
	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(clip.channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(clip.sampleRate))
	byteRate := clip.sampleRate * clip.channels * 2
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(clip.channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, sample := range clip.samples {
		binary.LittleEndian.PutUint16(buf[44+2*i:46+2*i], uint16(sample))
	}
	return buf
}

// DownmixMono averages interleaved channels into a single channel.
func DownmixMono(clip pcmClip) pcmClip {
	if clip.channels <= 1 {
		return clip
	}
	frames := len(clip.samples) / clip.channels
	mono := make([]int16, frames)
	for frame := 0; frame < frames; frame++ {
		sum := 0
		for ch := 0; ch < clip.channels; ch++ {
			sum += int(clip.samples[frame*clip.channels+ch])
		}
		mono[frame] = int16(sum / clip.channels)
	}
	return pcmClip{samples: mono, sampleRate: clip.sampleRate, channels: 1}
}

// Downsample resamples a mono clip to the target rate by linear
// interpolation. Rates at or below the target pass through unchanged.
func Downsample(clip pcmClip, targetRate int) pcmClip {
	if clip.sampleRate <= targetRate || targetRate <= 0 {
		return clip
	}
	ratio := float64(clip.sampleRate) / float64(targetRate)
	outLen := int(float64(len(clip.samples)) / ratio)
	out := make([]int16, outLen)
	for i := range out {
		pos := float64(i) * ratio
		left := int(pos)
		right := left + 1
		if right >= len(clip.samples) {
			right = len(clip.samples) - 1
		}
		frac := pos - float64(left)
		value := float64(clip.samples[left])*(1-frac) + float64(clip.samples[right])*frac
		out[i] = int16(value)
	}
	return pcmClip{samples: out, sampleRate: targetRate, channels: clip.channels}
}

// ApplyGain scales sample amplitude by the quality factor, clamped to [0, 1].
func ApplyGain(clip pcmClip, quality float64) pcmClip {
	quality = math.Max(0, math.Min(1, quality))
	out := make([]int16, len(clip.samples))
	for i, sample := range clip.samples {
		out[i] = int16(float64(sample) * quality)
	}
	return pcmClip{samples: out, sampleRate: clip.sampleRate, channels: clip.channels}
}

// compressPCM applies the full audio reduction chain: mono downmix,
// downsample to at most 22.05 kHz, and amplitude scaling.
func compressPCM(clip pcmClip, quality float64) pcmClip {
	clip = DownmixMono(clip)
	clip = Downsample(clip, compressedSampleRate)
	if quality > 0 && quality < 1 {
		clip = ApplyGain(clip, quality)
	}
	return clip
}
