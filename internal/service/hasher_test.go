package service

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/mirella/binsight/internal/domain"
)

// gradientPNG renders a horizontal luminance gradient, which produces a
// non-trivial difference hash. reverse flips the gradient direction.
func gradientPNG(t *testing.T, w, h int, reverse bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / w)
			if reverse {
				v = 255 - v
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestHashDeterministic(t *testing.T) {
	hasher := NewPerceptualHasher()
	data := gradientPNG(t, 320, 240, false)

	first, err := hasher.Hash(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := hasher.Hash(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.Fingerprint != second.Fingerprint {
		t.Errorf("fingerprint not deterministic: %q vs %q", first.Fingerprint, second.Fingerprint)
	}
	if len(first.Fingerprint) != FingerprintBits {
		t.Errorf("fingerprint length = %d, want %d", len(first.Fingerprint), FingerprintBits)
	}
	for i, c := range first.Fingerprint {
		if c != '0' && c != '1' {
			t.Fatalf("fingerprint[%d] = %q, want 0 or 1", i, c)
		}
	}
	if first.Width != 320 || first.Height != 240 {
		t.Errorf("dimensions = %dx%d, want 320x240", first.Width, first.Height)
	}
}

func TestHashDistinguishesImages(t *testing.T) {
	hasher := NewPerceptualHasher()

	a, err := hasher.Hash(gradientPNG(t, 320, 240, false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := hasher.Hash(gradientPNG(t, 320, 240, true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.Fingerprint == b.Fingerprint {
		t.Error("opposite gradients should not share a fingerprint")
	}
	if Similarity(a.Fingerprint, b.Fingerprint) > 0.5 {
		t.Errorf("opposite gradients unexpectedly similar: %v",
			Similarity(a.Fingerprint, b.Fingerprint))
	}
}

func TestHashThumbnailBounds(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		maxW int
		maxH int
	}{
		{name: "landscape downscale", w: 800, h: 600, maxW: 200, maxH: 150},
		{name: "portrait downscale", w: 600, h: 800, maxW: 150, maxH: 200},
		{name: "small image untouched", w: 120, h: 90, maxW: 120, maxH: 90},
	}

	hasher := NewPerceptualHasher()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := hasher.Hash(gradientPNG(t, tc.w, tc.h, false))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			thumb, err := jpeg.Decode(bytes.NewReader(res.Thumbnail))
			if err != nil {
				t.Fatalf("thumbnail is not valid jpeg: %v", err)
			}
			bounds := thumb.Bounds()
			if bounds.Dx() != tc.maxW || bounds.Dy() != tc.maxH {
				t.Errorf("thumbnail = %dx%d, want %dx%d",
					bounds.Dx(), bounds.Dy(), tc.maxW, tc.maxH)
			}
		})
	}
}

func TestHashRejectsUndecodableInput(t *testing.T) {
	hasher := NewPerceptualHasher()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "text", data: []byte("definitely not an image")},
		{name: "truncated png", data: gradientPNG(t, 100, 100, false)[:20]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := hasher.Hash(tc.data)
			if !errors.Is(err, domain.ErrDecode) {
				t.Errorf("err = %v, want ErrDecode", err)
			}
		})
	}
}
