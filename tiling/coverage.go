package tiling

import (
	"image"
	"iter"
	"math"
)

// edgeEpsilon biases tile edges toward the pixel an exact product would
// land on. It must stay well below the query-space size of one content
// pixel.
const edgeEpsilon = 1e-6

// CoverageRect is one piece of a coverage walk.
type CoverageRect struct {
	Tiling *PictureLayerTiling

	// I and J index the tile within the tiling.
	I, J int

	// GeometryRect is the covered part of the query rect, in query space.
	GeometryRect image.Rectangle

	// ContentRect is the part of the tile, in tiling content space, that
	// GeometryRect maps to.
	ContentRect image.Rectangle
}

// Coverage walks rect, given in the space of coverageScale, over the tiles
// of t in row-major order. The yielded geometry rects do not overlap and
// their union is exactly rect.
func (t *PictureLayerTiling) Coverage(rect image.Rectangle, coverageScale float64) iter.Seq[CoverageRect] {
	return func(yield func(CoverageRect) bool) {
		if rect.Empty() || !(coverageScale > 0) {
			return
		}
		// Tile edges in query space. Flooring a monotone function keeps
		// adjacent tiles sharing one edge, so the pieces partition rect.
		// edgeEpsilon absorbs rounding that would put an exact edge one
		// pixel low and hand that pixel row to the previous tile.
		toQuery := coverageScale / t.contentsScale
		toContent := t.contentsScale / coverageScale
		w, h := t.tileSize.Width, t.tileSize.Height
		edgeX := func(i int) int { return int(math.Floor(float64(i*w)*coverageScale/t.contentsScale + edgeEpsilon)) }
		edgeY := func(j int) int { return int(math.Floor(float64(j*h)*coverageScale/t.contentsScale + edgeEpsilon)) }

		i0 := firstTile(rect.Min.X, float64(w)*toQuery, edgeX)
		j0 := firstTile(rect.Min.Y, float64(h)*toQuery, edgeY)

		for j := j0; edgeY(j) < rect.Max.Y; j++ {
			y0, y1 := max(edgeY(j), rect.Min.Y), min(edgeY(j+1), rect.Max.Y)
			if y0 >= y1 {
				continue
			}
			for i := i0; edgeX(i) < rect.Max.X; i++ {
				x0, x1 := max(edgeX(i), rect.Min.X), min(edgeX(i+1), rect.Max.X)
				if x0 >= x1 {
					continue
				}
				geom := image.Rect(x0, y0, x1, y1)
				content := scaleToEnclosing(geom, toContent).Intersect(t.TileContentRect(i, j))
				if !yield(CoverageRect{Tiling: t, I: i, J: j, GeometryRect: geom, ContentRect: content}) {
					return
				}
			}
		}
	}
}

// firstTile returns the index of the tile whose span [edge(i), edge(i+1))
// holds v.
func firstTile(v int, span float64, edge func(int) int) int {
	i := int(math.Floor(float64(v) / span))
	for edge(i) > v {
		i--
	}
	for edge(i+1) <= v {
		i++
	}
	return i
}

// scaleToEnclosing scales r and rounds outwards.
func scaleToEnclosing(r image.Rectangle, scale float64) image.Rectangle {
	return image.Rect(
		int(math.Floor(float64(r.Min.X)*scale)), int(math.Floor(float64(r.Min.Y)*scale)),
		int(math.Ceil(float64(r.Max.X)*scale)), int(math.Ceil(float64(r.Max.Y)*scale)),
	)
}

// TilingForScale returns the tiling that covers best at scale: the one
// with the smallest contents scale not below scale, or the highest scale
// tiling if all are below. Returns nil for an empty set.
func (s *PictureLayerTilingSet) TilingForScale(scale float64) *PictureLayerTiling {
	if len(s.tilings) == 0 {
		return nil
	}
	best := s.tilings[0]
	for _, t := range s.tilings[1:] {
		if t.contentsScale < scale {
			break
		}
		best = t
	}
	return best
}

// Coverage walks rect, given in the space of coverageScale, over the tiling
// returned by TilingForScale. Nothing is yielded for an empty set.
func (s *PictureLayerTilingSet) Coverage(rect image.Rectangle, coverageScale float64) iter.Seq[CoverageRect] {
	t := s.TilingForScale(coverageScale)
	if t == nil {
		return func(func(CoverageRect) bool) {}
	}
	return t.Coverage(rect, coverageScale)
}
