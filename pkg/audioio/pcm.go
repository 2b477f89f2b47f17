package audioio

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PCMMIMEPrefix is the media type of raw little-endian PCM16.
const PCMMIMEPrefix = "audio/pcm"

// PCMMIMEType returns the media type tag for PCM16 at rate,
// e.g. "audio/pcm;rate=16000".
func PCMMIMEType(rate int) string {
	return fmt.Sprintf("%s;rate=%d", PCMMIMEPrefix, rate)
}

// ParsePCMRate extracts the rate parameter from a PCM media type.
// fallback is returned when the type carries no usable rate.
func ParsePCMRate(mimeType string, fallback int) int {
	for _, param := range strings.Split(mimeType, ";")[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			return rate
		}
	}
	return fallback
}

// IsPCM reports whether mimeType names raw PCM audio.
func IsPCM(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), PCMMIMEPrefix)
}

// EncodePCM16 converts float samples to signed 16-bit PCM. Input is
// clamped to [-1, 1] and scaled by 32767.
func EncodePCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(math.Round(float64(s) * 32767))
	}
	return out
}

// DecodePCM16 converts signed 16-bit PCM to float samples in [-1, 1].
func DecodePCM16(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		v := float32(s) / 32767
		if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}

// Level returns the root-mean-square level of samples, in [0, 1] for
// input in [-1, 1].
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ChunkFromFrame encodes a captured frame as a PCM16 chunk.
func ChunkFromFrame(f Frame) AudioChunk {
	return AudioChunk{
		Samples:    EncodePCM16(f.Samples),
		SampleRate: f.SampleRate,
		Channels:   max(f.Channels, 1),
	}
}
