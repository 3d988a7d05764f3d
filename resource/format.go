package resource

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/tiles"
)

// Format is the pixel format of a resource.
type Format = gputypes.TextureFormat

// BytesPerPixel returns the size of one pixel in format f.
// ok is false for formats resources cannot hold.
func BytesPerPixel(f Format) (n int, ok bool) {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4, true
	default:
		return 0, false
	}
}

// BytesForSize returns the storage needed for a size in format f, or 0 if
// the format is unsupported or the size is empty.
func BytesForSize(size tiles.Size, f Format) int {
	bpp, ok := BytesPerPixel(f)
	if !ok {
		return 0
	}
	return size.Area() * bpp
}

// swizzleRB swaps the red and blue channel of 4-byte pixels in place.
func swizzleRB(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
