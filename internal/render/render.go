// Package render draws the console's form, map and result panels as text.
package render

import (
	"fmt"
	"io"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/valuation-console/internal/property"
	"github.com/sells-group/valuation-console/internal/session"
)

// Renderer formats output for one locale.
type Renderer struct {
	printer  *message.Printer
	currency string
}

// New returns a renderer for tag, prefixing amounts with currency.
func New(tag language.Tag, currency string) *Renderer {
	return &Renderer{printer: message.NewPrinter(tag), currency: currency}
}

// Default renders US English dollars.
func Default() *Renderer {
	return New(language.English, "$")
}

// Price formats amount as a whole currency amount with locale grouping,
// e.g. $850,000. Non-finite amounts render as "n/a".
func (r *Renderer) Price(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "n/a"
	}
	rounded := math.Round(amount)
	sign := ""
	if rounded < 0 {
		sign = "-"
		rounded = -rounded
	}
	// Beyond int64 the printer formats the float directly.
	if rounded >= math.MaxInt64 {
		return sign + r.currency + r.printer.Sprintf("%.0f", rounded)
	}
	return sign + r.currency + r.printer.Sprintf("%d", int64(rounded))
}

// Cluster formats a cluster label.
func Cluster(id int) string {
	return fmt.Sprintf("Cluster #%d", id)
}

// form rows in display order; coordinates come last and are read-only.
var formRows = []struct {
	label string
	field property.Field
}{
	{"Rooms", property.FieldRooms},
	{"Baths", property.FieldBathroom},
	{"Cars", property.FieldCar},
	{"Year", property.FieldYearBuilt},
	{"Land (sqm)", property.FieldLandsize},
	{"Build (sqm)", property.FieldBuildingArea},
	{"Distance (km)", property.FieldDistance},
}

// Form writes the property details panel.
func (r *Renderer) Form(w io.Writer, d property.Description, regions *property.RegionSet, cell string) {
	fmt.Fprintln(w, "Property Details")
	for _, row := range formRows {
		fmt.Fprintf(w, "  %-14s %s\n", row.label, d.Value(row.field))
	}
	fmt.Fprintf(w, "  %-14s %s (%s)\n", "Region", d.Regionname, regions.Label(d.Regionname))
	fmt.Fprintln(w, "  -- Location Coordinates (click map to set) --")
	fmt.Fprintf(w, "  %-14s %s\n", "Lat", d.Value(property.FieldLatitude))
	fmt.Fprintf(w, "  %-14s %s\n", "Lon", d.Value(property.FieldLongitude))
	if cell != "" {
		fmt.Fprintf(w, "  %-14s %s\n", "Geohash", cell)
	}
}

// Regions writes the region selector choices.
func Regions(w io.Writer, regions *property.RegionSet) {
	for i, rg := range regions.All() {
		fmt.Fprintf(w, "  [%d] %s (%s)\n", i, rg.Name, rg.Label)
	}
}

// Status writes the submit control and, when a valuation succeeded, the
// result panel. Idle and Failed show no panel.
func (r *Renderer) Status(w io.Writer, st session.State) {
	if st.Busy() {
		fmt.Fprintln(w, "[ ... valuing ... ] (submit disabled)")
		return
	}
	fmt.Fprintln(w, "[ Run AI Prediction ]")
	if !st.HasResult() {
		return
	}
	r.Result(w, st)
}

// Result writes the result panel for a Succeeded state.
func (r *Renderer) Result(w io.Writer, st session.State) {
	if !st.HasResult() {
		return
	}
	res := st.Result
	bar := strings.Repeat("=", 32)
	fmt.Fprintln(w, bar)
	fmt.Fprintln(w, "  Estimated Market Value")
	fmt.Fprintf(w, "  %s\n", r.Price(res.PredictedPrice))
	fmt.Fprintf(w, "  Tier: %s   %s\n", res.Tier, Cluster(res.ClusterID))
	fmt.Fprintln(w, bar)
}

// MapView describes the map viewport and its backdrop tile.
type MapView struct {
	CenterLat, CenterLon float64
	MarkerLat, MarkerLon float64
	Zoom                 int
	TileURL              string
	Attribution          string
}

// Map writes the map panel.
func Map(w io.Writer, v MapView) {
	fmt.Fprintln(w, "Map")
	fmt.Fprintf(w, "  center  %.4f, %.4f  zoom %d\n", v.CenterLat, v.CenterLon, v.Zoom)
	fmt.Fprintf(w, "  marker  %.4f, %.4f\n", v.MarkerLat, v.MarkerLon)
	if v.TileURL != "" {
		fmt.Fprintf(w, "  tile    %s\n", v.TileURL)
	}
	if v.Attribution != "" {
		fmt.Fprintf(w, "  (c) %s\n", v.Attribution)
	}
}
