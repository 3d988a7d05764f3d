package tiletask

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// RasterSource records drawing that can be played back into a tile.
//
// PlaybackToImage draws the content-space rect at the given contents scale
// into dst, whose bounds start at the origin and have rect's size.
// Implementations must be safe for concurrent playback.
type RasterSource interface {
	PlaybackToImage(dst *image.RGBA, rect image.Rectangle, scale float64)
}

// RasterSourceFunc adapts a function to RasterSource.
type RasterSourceFunc func(dst *image.RGBA, rect image.Rectangle, scale float64)

// PlaybackToImage calls f.
func (f RasterSourceFunc) PlaybackToImage(dst *image.RGBA, rect image.Rectangle, scale float64) {
	f(dst, rect, scale)
}

// SolidColorSource fills every tile with one color.
type SolidColorSource struct {
	Color color.Color
}

// PlaybackToImage fills dst.
func (s SolidColorSource) PlaybackToImage(dst *image.RGBA, _ image.Rectangle, _ float64) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(s.Color), image.Point{}, draw.Src)
}

// DecodedImageSource plays back the image produced by an image decode task,
// placed at the layer origin. The decode task must be a dependency of every
// raster task using the source.
type DecodedImageSource struct {
	Decode *Task

	// Scaler resamples the image. Nil means draw.ApproxBiLinear.
	Scaler draw.Scaler
}

// PlaybackToImage draws the part of the decoded image that falls in rect.
// Nothing is drawn if the decode failed or has not run.
func (s DecodedImageSource) PlaybackToImage(dst *image.RGBA, rect image.Rectangle, scale float64) {
	img, err := s.Decode.DecodedImage()
	if err != nil || img == nil || scale <= 0 {
		return
	}
	content := scaleRect(img.Bounds(), scale)
	visible := content.Intersect(rect)
	if visible.Empty() {
		return
	}

	scaler := s.Scaler
	if scaler == nil {
		scaler = draw.ApproxBiLinear
	}
	dr := visible.Sub(rect.Min)
	if scale == 1 {
		draw.Copy(dst, dr.Min, img, visible, draw.Src, nil)
		return
	}
	sr := unscaleRect(visible, scale).Intersect(img.Bounds())
	scaler.Scale(dst, dr, img, sr, draw.Src, nil)
}

func scaleRect(r image.Rectangle, scale float64) image.Rectangle {
	return image.Rect(
		int(math.Floor(float64(r.Min.X)*scale)), int(math.Floor(float64(r.Min.Y)*scale)),
		int(math.Ceil(float64(r.Max.X)*scale)), int(math.Ceil(float64(r.Max.Y)*scale)),
	)
}

func unscaleRect(r image.Rectangle, scale float64) image.Rectangle {
	return scaleRect(r, 1/scale)
}
