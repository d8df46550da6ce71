package geomhelp

import (
	"strings"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
)

func TestShoelace(t *testing.T) {
	var tests = []struct {
		pts  [][2]float64
		area float64
	}{
		// Rectangle
		0: {pts: [][2]float64{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}, area: float64(100)},
		// Triangle
		1: {pts: [][2]float64{{0, 0}, {5, 10}, {0, 10}, {0, 0}}, area: float64(25)},
		// Missing closing point
		2: {pts: [][2]float64{{0, 0}, {0, 10}, {10, 10}, {10, 0}}, area: float64(100)},
		// Single point
		3: {pts: [][2]float64{{1234, 4321}}, area: float64(0.000000)},
		// No point
		4: {pts: nil, area: float64(0.000000)},
		// Empty point
		5: {pts: [][2]float64{}, area: float64(0.000000)},
	}

	for k, test := range tests {
		area := Shoelace(test.pts)
		if area != test.area {
			t.Errorf("test: %d, expected: %f \ngot: %f", k, test.area, area)
		}
	}
}

func TestPolygonArea(t *testing.T) {
	donut := geom.Polygon{
		{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}},
		{{2, 2}, {2, 8}, {8, 8}, {8, 2}, {2, 2}},
	}
	assert.Equal(t, 64., PolygonArea(donut))
	assert.Equal(t, 100., PolygonArea(donut[:1]))
	assert.Equal(t, 0., PolygonArea(nil))
}

func TestWktMustEncode(t *testing.T) {
	square := geom.Polygon{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}}

	assert.Equal(t, "EMPTY", WktMustEncode(nil, 0))
	assert.True(t, strings.HasPrefix(WktMustEncode(square, 0), "POLYGON"))
	assert.Contains(t, WktMustEncode(geom.Point{1, 2}, 0), "1 2")

	truncated := WktMustEncode(square, 12)
	assert.Len(t, truncated, 12)
	assert.True(t, strings.HasSuffix(truncated, "..."))
}
