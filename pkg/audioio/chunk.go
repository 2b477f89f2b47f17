package audioio

import "time"

// AudioChunk is a block of signed 16-bit PCM samples. Chunks are treated
// as immutable once produced.
type AudioChunk struct {
	// Samples contains interleaved PCM16 samples.
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of channels in this chunk.
	Channels int
}

// ChunkFromBytes decodes little-endian PCM16 bytes into a mono chunk.
// A trailing odd byte is ignored.
func ChunkFromBytes(data []byte, sampleRate int) AudioChunk {
	return AudioChunk{
		Samples:    BytesToSamples(data),
		SampleRate: sampleRate,
		Channels:   1,
	}
}

// Bytes returns the samples as little-endian PCM16 bytes.
func (c AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// Frames returns the number of sample frames (samples per channel).
func (c AudioChunk) Frames() int {
	ch := c.Channels
	if ch <= 0 {
		ch = 1
	}
	return len(c.Samples) / ch
}

// Duration returns the playback duration of the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return SamplesToDuration(int64(c.Frames()), c.SampleRate)
}

// SamplesToDuration converts a sample count at rate to a duration.
func SamplesToDuration(n int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n * int64(time.Second) / int64(rate))
}

// DurationToSamples converts a duration to the nearest sample count at rate.
func DurationToSamples(d time.Duration, rate int) int64 {
	return (int64(d)*int64(rate) + int64(time.Second)/2) / int64(time.Second)
}
