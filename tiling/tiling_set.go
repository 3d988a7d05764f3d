package tiling

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/tiles"
)

// ErrDuplicateScale is returned when adding a tiling whose scale exists.
var ErrDuplicateScale = errors.New("tiling: duplicate contents scale")

// ErrResolutionOrder is returned when marking would put the low
// resolution tiling at or above the high resolution scale.
var ErrResolutionOrder = errors.New("tiling: low resolution scale must be below high resolution scale")

// ErrInvalidScale is returned for non-positive scales.
var ErrInvalidScale = errors.New("tiling: contents scale must be positive")

// TilingRangeType selects a group of tilings relative to the high and low
// resolution tilings.
type TilingRangeType uint8

// Ranges in descending scale order. Together they cover every tiling once.
const (
	// HigherThanHighRes is every tiling above the high resolution one.
	HigherThanHighRes TilingRangeType = iota

	// HighRes is the high resolution tiling, or empty when none is marked.
	HighRes

	// BetweenHighAndLowRes is every tiling below high res and above low res.
	// With neither marked it is every tiling.
	BetweenHighAndLowRes

	// LowRes is the low resolution tiling, or empty when none is marked.
	LowRes

	// LowerThanLowRes is every tiling below the low resolution one.
	LowerThanLowRes
)

func (t TilingRangeType) String() string {
	switch t {
	case HigherThanHighRes:
		return "HigherThanHighRes"
	case HighRes:
		return "HighRes"
	case BetweenHighAndLowRes:
		return "BetweenHighAndLowRes"
	case LowRes:
		return "LowRes"
	case LowerThanLowRes:
		return "LowerThanLowRes"
	default:
		return fmt.Sprintf("TilingRangeType(%d)", uint8(t))
	}
}

// TilingRange is the half-open index range [Start, End) of tilings.
type TilingRange struct {
	Start, End int
}

// Len returns the number of tilings in the range.
func (r TilingRange) Len() int { return r.End - r.Start }

// Option configures a PictureLayerTilingSet.
type Option func(*PictureLayerTilingSet)

// WithTileSize sets the tile size of tilings added to the set.
func WithTileSize(size tiles.Size) Option {
	return func(s *PictureLayerTilingSet) {
		if !size.Empty() {
			s.tileSize = size
		}
	}
}

// PictureLayerTilingSet holds a layer's tilings sorted by descending
// contents scale. Scales are distinct. At most one tiling is high
// resolution and at most one is low resolution.
//
// Thread safety: not safe for concurrent use.
type PictureLayerTilingSet struct {
	tilings  []*PictureLayerTiling
	tileSize tiles.Size
}

// NewPictureLayerTilingSet returns an empty set.
func NewPictureLayerTilingSet(opts ...Option) *PictureLayerTilingSet {
	s := &PictureLayerTilingSet{tileSize: DefaultTileSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTiling adds a non-ideal tiling at scale.
func (s *PictureLayerTilingSet) AddTiling(scale float64) (*PictureLayerTiling, error) {
	if !(scale > 0) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidScale, scale)
	}
	i, found := slices.BinarySearchFunc(s.tilings, scale, func(t *PictureLayerTiling, scale float64) int {
		// Descending order.
		switch {
		case t.contentsScale > scale:
			return -1
		case t.contentsScale < scale:
			return 1
		}
		return 0
	})
	if found {
		return nil, fmt.Errorf("%w: %g", ErrDuplicateScale, scale)
	}
	t := &PictureLayerTiling{contentsScale: scale, tileSize: s.tileSize}
	s.tilings = slices.Insert(s.tilings, i, t)
	return t, nil
}

// RemoveTiling removes t. It reports whether t was in the set.
func (s *PictureLayerTilingSet) RemoveTiling(t *PictureLayerTiling) bool {
	i := slices.Index(s.tilings, t)
	if i < 0 {
		return false
	}
	s.tilings = slices.Delete(s.tilings, i, i+1)
	return true
}

// RemoveNonIdealTilings drops every tiling that is neither high nor low
// resolution.
func (s *PictureLayerTilingSet) RemoveNonIdealTilings() {
	s.tilings = slices.DeleteFunc(s.tilings, func(t *PictureLayerTiling) bool {
		return t.resolution == NonIdealResolution
	})
}

// RemoveAllTilings empties the set.
func (s *PictureLayerTilingSet) RemoveAllTilings() {
	clear(s.tilings)
	s.tilings = s.tilings[:0]
}

// FindTilingWithScale returns the tiling at exactly scale, or nil.
func (s *PictureLayerTilingSet) FindTilingWithScale(scale float64) *PictureLayerTiling {
	for _, t := range s.tilings {
		if t.contentsScale == scale {
			return t
		}
	}
	return nil
}

// FindTilingWithResolution returns the tiling classified as res, or nil.
// For NonIdealResolution the highest-scale non-ideal tiling is returned.
func (s *PictureLayerTilingSet) FindTilingWithResolution(res Resolution) *PictureLayerTiling {
	for _, t := range s.tilings {
		if t.resolution == res {
			return t
		}
	}
	return nil
}

// MarkHighRes makes t the high resolution tiling. A previous high
// resolution tiling becomes non-ideal. t must be in the set.
func (s *PictureLayerTilingSet) MarkHighRes(t *PictureLayerTiling) error {
	if low := s.FindTilingWithResolution(LowResolution); low != nil && low != t &&
		low.contentsScale >= t.contentsScale {
		return fmt.Errorf("%w: high %g, low %g", ErrResolutionOrder, t.contentsScale, low.contentsScale)
	}
	s.mark(t, HighResolution)
	return nil
}

// MarkLowRes makes t the low resolution tiling. A previous low resolution
// tiling becomes non-ideal. t must be in the set.
func (s *PictureLayerTilingSet) MarkLowRes(t *PictureLayerTiling) error {
	if high := s.FindTilingWithResolution(HighResolution); high != nil && high != t &&
		high.contentsScale <= t.contentsScale {
		return fmt.Errorf("%w: high %g, low %g", ErrResolutionOrder, high.contentsScale, t.contentsScale)
	}
	s.mark(t, LowResolution)
	return nil
}

func (s *PictureLayerTilingSet) mark(t *PictureLayerTiling, res Resolution) {
	if !slices.Contains(s.tilings, t) {
		panic(fmt.Sprintf("tiling: mark %v: not in set", t))
	}
	for _, other := range s.tilings {
		if other.resolution == res {
			other.resolution = NonIdealResolution
		}
	}
	t.resolution = res
}

// NumTilings returns the number of tilings.
func (s *PictureLayerTilingSet) NumTilings() int {
	return len(s.tilings)
}

// TilingAt returns the i-th tiling in descending scale order.
func (s *PictureLayerTilingSet) TilingAt(i int) *PictureLayerTiling {
	return s.tilings[i]
}

// GetTilingRange returns the index range of tilings of the given type.
//
// The five ranges, taken in type order, are contiguous and together cover
// [0, NumTilings()). Without a high resolution tiling the high range is
// the empty range at 0; without a low resolution tiling the low range is
// the empty range at NumTilings().
func (s *PictureLayerTilingSet) GetTilingRange(typ TilingRangeType) TilingRange {
	n := len(s.tilings)
	high := TilingRange{0, 0}
	low := TilingRange{n, n}
	for i, t := range s.tilings {
		switch t.resolution {
		case HighResolution:
			high = TilingRange{i, i + 1}
		case LowResolution:
			low = TilingRange{i, i + 1}
		}
	}

	switch typ {
	case HigherThanHighRes:
		return TilingRange{0, high.Start}
	case HighRes:
		return high
	case BetweenHighAndLowRes:
		return TilingRange{high.End, low.Start}
	case LowRes:
		return low
	case LowerThanLowRes:
		return TilingRange{low.End, n}
	default:
		panic(fmt.Sprintf("tiling: unknown range type %v", typ))
	}
}
