package location

import (
	"math"
	"sync/atomic"

	"github.com/mmcloughlin/geohash"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-console/internal/property"
)

// GeohashPrecision is the geohash length shown next to the coordinates.
const GeohashPrecision = 7

// Sync binds a property model's coordinates to a viewport.
//
// Clicks write coordinates into the model. Coordinate changes only move the
// viewport centre and the marker; nothing on that edge writes back into the
// model.
type Sync struct {
	model    *property.Model
	viewport *Viewport
	dropped  atomic.Int64

	stopClick func()
	stopModel func()
}

// Bind wires model and viewport together and centres the viewport on the
// model's current point.
func Bind(model *property.Model, viewport *Viewport) *Sync {
	s := &Sync{model: model, viewport: viewport}

	d := model.Snapshot()
	viewport.SetView(d.Lattitude, d.Longtitude)
	viewport.PlaceMarker(d.Lattitude, d.Longtitude)

	s.stopClick = viewport.OnClick(s.handleClick)
	s.stopModel = model.Subscribe(s.handleChange)
	return s
}

// Viewport returns the bound viewport.
func (s *Sync) Viewport() *Viewport {
	return s.viewport
}

// Dropped returns how many malformed clicks were discarded.
func (s *Sync) Dropped() int64 {
	return s.dropped.Load()
}

// Geohash returns the geohash cell of the marker.
func (s *Sync) Geohash() string {
	lat, lon := s.viewport.Marker()
	return geohash.EncodeWithPrecision(lat, lon, GeohashPrecision)
}

// Close detaches both edges.
func (s *Sync) Close() {
	if s.stopClick != nil {
		s.stopClick()
	}
	if s.stopModel != nil {
		s.stopModel()
	}
}

func (s *Sync) handleClick(lat, lon float64) {
	if !ValidPoint(lat, lon) {
		s.dropped.Add(1)
		zap.L().Debug("location: dropped malformed click",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
		)
		return
	}
	s.model.SetLocation(lat, lon)
}

func (s *Sync) handleChange(c property.Change) {
	if !c.LocationChanged() {
		return
	}
	lat, lon := c.Current.Lattitude, c.Current.Longtitude
	s.viewport.SetView(lat, lon)
	s.viewport.PlaceMarker(lat, lon)
}

// ValidPoint reports whether (lat, lon) is a real point on the globe.
func ValidPoint(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
