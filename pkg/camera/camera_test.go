package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestEncodeDownscales(t *testing.T) {
	data, err := Encode(testImage(1280, 720), DefaultConfig())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if cfg.Width != 320 || cfg.Height != 240 {
		t.Errorf("expected 320x240, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestEncodeQualityAffectsSize(t *testing.T) {
	img := testImage(640, 480)

	low := DefaultConfig()
	low.Quality = 10
	high := DefaultConfig()
	high.Quality = 95

	a, err := Encode(img, low)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(img, high)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) >= len(b) {
		t.Errorf("expected quality 10 (%d bytes) smaller than quality 95 (%d bytes)", len(a), len(b))
	}
}

func TestEncodeNil(t *testing.T) {
	if _, err := Encode(nil, DefaultConfig()); err != ErrNoFrame {
		t.Errorf("expected ErrNoFrame, got %v", err)
	}
}

func TestFrameStore(t *testing.T) {
	store := NewFrameStore()
	ctx := context.Background()

	if _, err := store.Frame(ctx); err != ErrNoFrame {
		t.Fatalf("expected ErrNoFrame, got %v", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(64, 48), nil); err != nil {
		t.Fatal(err)
	}
	store.Update(buf.Bytes())

	img, err := store.Frame(ctx)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if img.Bounds().Dx() != 64 {
		t.Errorf("expected width 64, got %d", img.Bounds().Dx())
	}

	store.Close()
	store.Update(buf.Bytes())
	if _, err := store.Frame(ctx); err != ErrNoFrame {
		t.Errorf("expected ErrNoFrame after close, got %v", err)
	}
}

func TestStaticSource(t *testing.T) {
	src := &StaticSource{Image: testImage(10, 10)}
	if _, err := src.Frame(context.Background()); err != nil {
		t.Fatalf("Frame: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Frame(ctx); err == nil {
		t.Error("expected error on cancelled context")
	}
}

func TestManagerUpdateConfig(t *testing.T) {
	m := NewManager(DefaultConfig())

	var applied Config
	m.OnConfigChange = func(cfg Config) error {
		applied = cfg
		return nil
	}

	if err := m.UpdateConfig(map[string]any{"preset": "detail", "interval_ms": float64(1000)}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	cfg := m.GetConfig()
	if cfg.Width != 640 || cfg.Quality != 70 {
		t.Errorf("expected detail preset, got %+v", cfg)
	}
	if cfg.Interval != time.Second {
		t.Errorf("expected 1s interval, got %v", cfg.Interval)
	}
	if applied != cfg {
		t.Error("OnConfigChange not called with new config")
	}
}

func TestManagerRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"unknown preset", map[string]any{"preset": "cinema"}},
		{"zero quality", map[string]any{"quality": float64(0)}},
		{"tiny width", map[string]any{"width": float64(10)}},
		{"fast interval", map[string]any{"interval_ms": float64(10)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(DefaultConfig())
			if err := m.UpdateConfig(tt.params); err == nil {
				t.Error("expected error")
			}
			if m.GetConfig() != DefaultConfig() {
				t.Error("config changed after rejected update")
			}
		})
	}
}

func TestPresetsValid(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name)
		if cfg == nil {
			t.Fatalf("preset %s missing", name)
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("preset %s invalid: %v", name, errs)
		}
	}
}

func TestOpenDriver(t *testing.T) {
	RegisterDriver(nil)
	if _, err := Open(0); err != ErrNoDriver {
		t.Fatalf("Open without driver: %v", err)
	}

	img := testImage(8, 8)
	RegisterDriver(func(device int) (Source, error) {
		return &StaticSource{Image: img}, nil
	})
	defer RegisterDriver(nil)

	src, err := Open(1)
	if err != nil {
		t.Fatal(err)
	}
	got, err := src.Frame(context.Background())
	if err != nil || got != img {
		t.Errorf("Frame = %v, %v", got, err)
	}
}
