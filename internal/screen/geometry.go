// Package screen converts between the real display resolution and the
// downscaled resolution the model sees.
package screen

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned when the display size or scale is unusable.
var ErrInvalidGeometry = errors.New("invalid screen geometry")

// Geometry describes the real display and the scaled view sent to the model.
// It is a value type; build it once with NewGeometry and pass it around.
type Geometry struct {
	RealWidth    int
	RealHeight   int
	Scale        float64
	ScaledWidth  int
	ScaledHeight int
}

// NewGeometry derives the scaled size as floor(real × scale).
// Scale must be in (0, 1].
func NewGeometry(realWidth, realHeight int, scale float64) (Geometry, error) {
	if realWidth <= 0 || realHeight <= 0 {
		return Geometry{}, fmt.Errorf("%w: display %dx%d", ErrInvalidGeometry, realWidth, realHeight)
	}
	if math.IsNaN(scale) || scale <= 0 || scale > 1 {
		return Geometry{}, fmt.Errorf("%w: scale %v not in (0, 1]", ErrInvalidGeometry, scale)
	}
	g := Geometry{
		RealWidth:    realWidth,
		RealHeight:   realHeight,
		Scale:        scale,
		ScaledWidth:  int(math.Floor(float64(realWidth) * scale)),
		ScaledHeight: int(math.Floor(float64(realHeight) * scale)),
	}
	if g.ScaledWidth < 1 || g.ScaledHeight < 1 {
		return Geometry{}, fmt.Errorf("%w: scaled size %dx%d", ErrInvalidGeometry, g.ScaledWidth, g.ScaledHeight)
	}
	return g, nil
}

// ToReal maps a point in scaled space onto the real display.
// Points outside the scaled bounds are translated as-is; the injector decides
// what to do with them.
func (g Geometry) ToReal(x, y int) (int, int) {
	return int(math.Round(float64(x) / g.Scale)), int(math.Round(float64(y) / g.Scale))
}

// ToScaled is the approximate inverse of ToReal.
func (g Geometry) ToScaled(rx, ry int) (int, int) {
	return int(math.Round(float64(rx) * g.Scale)), int(math.Round(float64(ry) * g.Scale))
}

// Center returns the middle of the scaled view.
func (g Geometry) Center() (int, int) {
	return g.ScaledWidth / 2, g.ScaledHeight / 2
}

// Contains reports whether a scaled point lies within the scaled view.
func (g Geometry) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.ScaledWidth && y < g.ScaledHeight
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d scaled %.2f to %dx%d", g.RealWidth, g.RealHeight, g.Scale, g.ScaledWidth, g.ScaledHeight)
}
