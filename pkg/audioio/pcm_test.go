package audioio

import (
	"math"
	"testing"
	"time"
)

func TestPCM16RoundTrip(t *testing.T) {
	const tolerance = 1.0 / 32768

	for i := -1000; i <= 1000; i++ {
		x := float32(i) / 1000
		got := DecodePCM16(EncodePCM16([]float32{x}))[0]
		if d := math.Abs(float64(got - x)); d > tolerance {
			t.Fatalf("round trip of %f gave %f (error %g)", x, got, d)
		}
	}
}

func TestEncodePCM16_Clamps(t *testing.T) {
	got := EncodePCM16([]float32{1.5, -1.5, 1, -1, 0})
	want := []int16{32767, -32767, 32767, -32767, 0}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestLevel(t *testing.T) {
	if Level(nil) != 0 {
		t.Error("expected 0 for empty input")
	}
	if Level([]float32{0, 0, 0}) != 0 {
		t.Error("expected 0 for silence")
	}
	if l := Level([]float32{0.5, -0.5, 0.5, -0.5}); math.Abs(l-0.5) > 1e-9 {
		t.Errorf("expected 0.5, got %f", l)
	}
}

func TestPCMMIMEType(t *testing.T) {
	if got := PCMMIMEType(16000); got != "audio/pcm;rate=16000" {
		t.Errorf("unexpected mime type %q", got)
	}

	tests := []struct {
		in   string
		want int
	}{
		{"audio/pcm;rate=24000", 24000},
		{"audio/pcm; rate=16000", 16000},
		{"audio/pcm", 24000},
		{"audio/pcm;rate=abc", 24000},
	}
	for _, tt := range tests {
		if got := ParsePCMRate(tt.in, 24000); got != tt.want {
			t.Errorf("ParsePCMRate(%q): expected %d, got %d", tt.in, tt.want, got)
		}
	}
	if !IsPCM("audio/pcm;rate=24000") || IsPCM("image/jpeg") {
		t.Error("IsPCM mismatch")
	}
}

func TestChunkDuration(t *testing.T) {
	c := ChunkFromBytes(make([]byte, 48000), 24000) // 24000 samples
	if c.Duration() != time.Second {
		t.Errorf("expected 1s, got %v", c.Duration())
	}
	if DurationToSamples(time.Second, 24000) != 24000 {
		t.Error("DurationToSamples mismatch")
	}
}
