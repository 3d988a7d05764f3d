package tiles

import (
	"fmt"
	"image"
)

// Size is a width and height in pixels.
type Size struct {
	Width  int
	Height int
}

// Sz is shorthand for Size{w, h}.
func Sz(w, h int) Size {
	return Size{Width: w, Height: h}
}

// Empty reports whether either dimension is zero or negative.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Area returns Width * Height, or 0 for an empty size.
func (s Size) Area() int {
	if s.Empty() {
		return 0
	}
	return s.Width * s.Height
}

// Rect returns the rectangle (0, 0)-(Width, Height).
func (s Size) Rect() image.Rectangle {
	return image.Rect(0, 0, s.Width, s.Height)
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}
