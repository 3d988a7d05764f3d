// Package tiling describes the tilings of a picture layer: the same
// content rastered at several contents scales, each cut into tiles.
package tiling

import (
	"fmt"
	"image"

	"github.com/gogpu/tiles"
)

// DefaultTileSize is the tile size used unless WithTileSize is given.
var DefaultTileSize = tiles.Sz(256, 256)

// Resolution classifies a tiling relative to the ideal scale.
type Resolution uint8

const (
	// NonIdealResolution tilings are kept only until they can be dropped.
	NonIdealResolution Resolution = iota

	// HighResolution is the tiling rastered at the ideal scale.
	HighResolution

	// LowResolution is a cheap fallback shown while high-res tiles raster.
	LowResolution
)

func (r Resolution) String() string {
	switch r {
	case HighResolution:
		return "high"
	case LowResolution:
		return "low"
	default:
		return "non-ideal"
	}
}

// PictureLayerTiling is one contents scale of a layer, cut into tiles of
// a fixed size in content space.
type PictureLayerTiling struct {
	contentsScale float64
	resolution    Resolution
	tileSize      tiles.Size
}

// ContentsScale returns the scale of the tiling's content space relative
// to layer space.
func (t *PictureLayerTiling) ContentsScale() float64 { return t.contentsScale }

// Resolution returns the tiling's classification.
func (t *PictureLayerTiling) Resolution() Resolution { return t.resolution }

// TileSize returns the content-space size of each tile.
func (t *PictureLayerTiling) TileSize() tiles.Size { return t.tileSize }

// TileContentRect returns the content-space bounds of tile (i, j).
func (t *PictureLayerTiling) TileContentRect(i, j int) image.Rectangle {
	w, h := t.tileSize.Width, t.tileSize.Height
	return image.Rect(i*w, j*h, (i+1)*w, (j+1)*h)
}

func (t *PictureLayerTiling) String() string {
	return fmt.Sprintf("tiling{scale=%g %v}", t.contentsScale, t.resolution)
}
