// Package maptile resolves and fetches raster backdrop tiles for the map
// viewport from a URL template such as
// https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png.
package maptile

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultTemplate is the OpenStreetMap standard layer.
const DefaultTemplate = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"

// MaxZoom is the deepest zoom level tile servers commonly publish.
const MaxZoom = 19

var subdomains = []string{"a", "b", "c"}

// Tile addresses one slippy-map tile.
type Tile struct {
	Z, X, Y int
}

// Template expands tile URLs.
type Template struct {
	raw string
}

// ParseTemplate validates that raw carries the {z}, {x} and {y} placeholders.
func ParseTemplate(raw string) (Template, error) {
	raw = strings.TrimSpace(raw)
	for _, ph := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(raw, ph) {
			return Template{}, eris.Errorf("maptile: template %q is missing %s", raw, ph)
		}
	}
	return Template{raw: raw}, nil
}

// String returns the raw template.
func (t Template) String() string {
	return t.raw
}

// URL expands the template for tile. Subdomains rotate by x+y so the same
// tile always maps to the same host.
func (t Template) URL(tile Tile) string {
	r := strings.NewReplacer(
		"{s}", subdomains[(tile.X+tile.Y)%len(subdomains)],
		"{z}", strconv.Itoa(tile.Z),
		"{x}", strconv.Itoa(tile.X),
		"{y}", strconv.Itoa(tile.Y),
	)
	return r.Replace(t.raw)
}

// TileFor returns the tile containing (lat, lon) at zoom, using the Web
// Mercator tiling scheme.
func TileFor(lat, lon float64, zoom int) Tile {
	if zoom < 0 {
		zoom = 0
	}
	if zoom > MaxZoom {
		zoom = MaxZoom
	}
	// Web Mercator is undefined at the poles.
	const maxLat = 85.05112878
	lat = math.Max(-maxLat, math.Min(maxLat, lat))

	n := math.Exp2(float64(zoom))
	x := int(math.Floor((lon + 180) / 360 * n))
	latRad := lat * math.Pi / 180
	y := int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))

	last := int(n) - 1
	return Tile{Z: zoom, X: clamp(x, 0, last), Y: clamp(y, 0, last)}
}

// Valid reports whether the tile exists at its zoom level.
func (t Tile) Valid() bool {
	if t.Z < 0 || t.Z > MaxZoom {
		return false
	}
	n := 1 << t.Z
	return t.X >= 0 && t.X < n && t.Y >= 0 && t.Y < n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
