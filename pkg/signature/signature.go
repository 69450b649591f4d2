// Package signature classifies byte buffers as images by their leading bytes.
//
// Classification never trusts a declared content type. A buffer is an image
// only if its prefix matches one of the known container signatures.
package signature

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Format identifies an image container format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatWEBP Format = "webp"
)

// MinLength is the shortest buffer Validate will accept.
const MinLength = 8

// Signature pairs a format with its magic prefix.
type Signature struct {
	Format Format
	Magic  []byte
}

// WEBP only checks the RIFF container header, so any RIFF file (WAV, AVI)
// classifies as WEBP.
var signatures = []Signature{
	{Format: FormatPNG, Magic: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{Format: FormatJPEG, Magic: []byte{0xFF, 0xD8, 0xFF}},
	{Format: FormatGIF, Magic: []byte{0x47, 0x49, 0x46}},
	{Format: FormatWEBP, Magic: []byte{0x52, 0x49, 0x46, 0x46}},
}

// Signatures returns a copy of the known signature table.
func Signatures() []Signature {
	out := make([]Signature, len(signatures))
	for i, s := range signatures {
		out[i] = Signature{Format: s.Format, Magic: append([]byte(nil), s.Magic...)}
	}
	return out
}

// Validate reports whether b is at least MinLength bytes long and starts with
// a known image signature.
func Validate(b []byte) bool {
	_, ok := Detect(b)
	return ok
}

// Detect returns the format whose signature prefixes b.
func Detect(b []byte) (Format, bool) {
	if len(b) < MinLength {
		return "", false
	}
	for _, s := range signatures {
		if bytes.HasPrefix(b, s.Magic) {
			return s.Format, true
		}
	}
	return "", false
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	case FormatWEBP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Dimensions decodes only the image header to report its pixel size.
func Dimensions(b []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
