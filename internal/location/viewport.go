// Package location keeps a map viewport and the property's coordinates in
// step: clicks on the map move the property, and property moves recenter the
// map.
package location

import (
	"sync"

	"github.com/twpayne/go-geom"
)

// DefaultZoom matches the zoom the map opens at.
const DefaultZoom = 12

// ClickHandler receives the geographic point under a click or tap.
type ClickHandler func(lat, lon float64)

// Viewport is a headless map view: where it is centred, how far it is
// zoomed, where the single marker sits and who listens for clicks.
// Points are stored lon/lat (x/y) as go-geom expects.
type Viewport struct {
	mu       sync.Mutex
	center   *geom.Point
	marker   *geom.Point
	zoom     int
	handlers map[int]ClickHandler
	nextID   int
}

// NewViewport creates a viewport centred on (lat, lon).
func NewViewport(lat, lon float64, zoom int) *Viewport {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	return &Viewport{
		center:   newPoint(lat, lon),
		marker:   newPoint(lat, lon),
		zoom:     zoom,
		handlers: make(map[int]ClickHandler),
	}
}

func newPoint(lat, lon float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
}

// Center returns the focal point as (lat, lon).
func (v *Viewport) Center() (lat, lon float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.center.Y(), v.center.X()
}

// Marker returns the marker position as (lat, lon).
func (v *Viewport) Marker() (lat, lon float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.marker.Y(), v.marker.X()
}

// Zoom returns the current zoom level.
func (v *Viewport) Zoom() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.zoom
}

// SetZoom changes the zoom level, leaving the centre where it is.
func (v *Viewport) SetZoom(zoom int) {
	if zoom <= 0 {
		return
	}
	v.mu.Lock()
	v.zoom = zoom
	v.mu.Unlock()
}

// SetView moves the focal point. It never raises a click.
func (v *Viewport) SetView(lat, lon float64) {
	v.mu.Lock()
	v.center = newPoint(lat, lon)
	v.mu.Unlock()
}

// PlaceMarker moves the marker glyph.
func (v *Viewport) PlaceMarker(lat, lon float64) {
	v.mu.Lock()
	v.marker = newPoint(lat, lon)
	v.mu.Unlock()
}

// OnClick registers h for click gestures. The returned func unregisters it.
func (v *Viewport) OnClick(h ClickHandler) func() {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.handlers[id] = h
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.handlers, id)
		v.mu.Unlock()
	}
}

// Click reports a click gesture at (lat, lon) to every handler.
func (v *Viewport) Click(lat, lon float64) {
	v.mu.Lock()
	hs := make([]ClickHandler, 0, len(v.handlers))
	for id := 0; id < v.nextID; id++ {
		if h, ok := v.handlers[id]; ok {
			hs = append(hs, h)
		}
	}
	v.mu.Unlock()

	for _, h := range hs {
		h(lat, lon)
	}
}
