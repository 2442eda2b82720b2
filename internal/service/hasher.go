package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	"github.com/mirella/binsight/internal/domain"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// FingerprintBits is the fixed fingerprint length: a 64-bit difference hash
// from an 8x8 luminance-gradient reduction of the image.
const FingerprintBits = 64

// thumbnailMaxDim bounds both thumbnail dimensions.
const thumbnailMaxDim = 200

// HashResult carries the two derivations of a submitted image: the
// similarity fingerprint and a display thumbnail. Both are pure functions of
// the pixel data.
type HashResult struct {
	Fingerprint string // 64-character "0"/"1" string, row-major
	Thumbnail   []byte // jpeg, bounded to thumbnailMaxDim per side
	Width       int
	Height      int
}

// PerceptualHasher derives fingerprints and thumbnails from image bytes.
type PerceptualHasher struct {
	jpegQuality int
}

// NewPerceptualHasher creates a new PerceptualHasher.
func NewPerceptualHasher() *PerceptualHasher {
	return &PerceptualHasher{jpegQuality: 80}
}

// Hash decodes imageData and computes the difference-hash fingerprint plus a
// bounded thumbnail. Malformed input yields domain.ErrDecode; the caller must
// reject the request before mutating any cache or throttle state.
// Parameters:
//   - imageData: raw image bytes (jpeg, png, gif or webp).
//
// Returns:
//   - *HashResult: fingerprint and thumbnail.
//   - error: domain.ErrDecode if the bytes are not a decodable image.
func (h *PerceptualHasher) Hash(imageData []byte) (*HashResult, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return nil, fmt.Errorf("%w: difference hash: %v", domain.ErrDecode, err)
	}

	thumb, err := h.thumbnail(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	bounds := img.Bounds()
	return &HashResult{
		Fingerprint: fmt.Sprintf("%064b", hash.GetHash()),
		Thumbnail:   thumb,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}

// thumbnail scales img so its larger side is at most thumbnailMaxDim,
// preserving aspect ratio, and encodes it as jpeg.
func (h *PerceptualHasher) thumbnail(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	w, h2 := bounds.Dx(), bounds.Dy()

	tw, th := w, h2
	if w > thumbnailMaxDim || h2 > thumbnailMaxDim {
		if w >= h2 {
			tw = thumbnailMaxDim
			th = h2 * thumbnailMaxDim / w
		} else {
			th = thumbnailMaxDim
			tw = w * thumbnailMaxDim / h2
		}
		if tw < 1 {
			tw = 1
		}
		if th < 1 {
			th = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: h.jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
