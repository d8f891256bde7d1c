package screen

import (
	"errors"
	"testing"
)

func TestNewGeometry(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		scale        float64
		wantW, wantH int
		wantErr      bool
	}{
		{name: "1080p at 0.75", w: 1920, h: 1080, scale: 0.75, wantW: 1440, wantH: 810},
		{name: "identity", w: 1366, h: 768, scale: 1, wantW: 1366, wantH: 768},
		{name: "floors", w: 1001, h: 1001, scale: 0.5, wantW: 500, wantH: 500},
		{name: "zero scale", w: 1920, h: 1080, scale: 0, wantErr: true},
		{name: "scale above one", w: 1920, h: 1080, scale: 1.5, wantErr: true},
		{name: "no display", w: 0, h: 1080, scale: 0.5, wantErr: true},
		{name: "scaled to nothing", w: 1, h: 1, scale: 0.1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGeometry(tt.w, tt.h, tt.scale)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidGeometry) {
					t.Fatalf("NewGeometry() error = %v, want ErrInvalidGeometry", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewGeometry() error = %v", err)
			}
			if g.ScaledWidth != tt.wantW || g.ScaledHeight != tt.wantH {
				t.Errorf("scaled = %dx%d, want %dx%d", g.ScaledWidth, g.ScaledHeight, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestToReal(t *testing.T) {
	g, err := NewGeometry(1920, 1080, 0.75)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		x, y   int
		rx, ry int
	}{
		{0, 0, 0, 0},
		{720, 405, 960, 540},
		{1439, 809, 1919, 1079},
		{100, 1, 133, 1},
		// outside the scaled view is translated, not clamped
		{2000, 2000, 2667, 2667},
		{-10, -10, -13, -13},
	}
	for _, tt := range tests {
		rx, ry := g.ToReal(tt.x, tt.y)
		if rx != tt.rx || ry != tt.ry {
			t.Errorf("ToReal(%d, %d) = (%d, %d), want (%d, %d)", tt.x, tt.y, rx, ry, tt.rx, tt.ry)
		}
	}
}

func TestRoundTripWithinOnePixel(t *testing.T) {
	for _, scale := range []float64{1, 0.9, 0.75, 0.5, 0.33, 0.1} {
		g, err := NewGeometry(2560, 1440, scale)
		if err != nil {
			t.Fatal(err)
		}
		for x := 0; x < g.ScaledWidth; x += 7 {
			y := x % g.ScaledHeight
			sx, sy := g.ToScaled(g.ToReal(x, y))
			if abs(sx-x) > 1 || abs(sy-y) > 1 {
				t.Fatalf("scale %v: ToScaled(ToReal(%d, %d)) = (%d, %d)", scale, x, y, sx, sy)
			}
		}
	}
}

func TestCenterAndContains(t *testing.T) {
	g, _ := NewGeometry(1920, 1080, 0.75)
	x, y := g.Center()
	if x != 720 || y != 405 {
		t.Errorf("Center() = (%d, %d), want (720, 405)", x, y)
	}
	if !g.Contains(x, y) {
		t.Error("Contains(center) = false")
	}
	if g.Contains(g.ScaledWidth, 0) {
		t.Error("Contains(width, 0) = true")
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
