package property

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Conversion errors. They are handled by the caller and never change the model.
var (
	ErrUnknownField  = eris.New("property: unknown field")
	ErrReadOnlyField = eris.New("property: field is read-only")
	ErrInvalidValue  = eris.New("property: invalid value")
)

// Field identifies one attribute of a Description.
type Field int

const (
	FieldRooms Field = iota
	FieldDistance
	FieldBathroom
	FieldCar
	FieldLandsize
	FieldBuildingArea
	FieldYearBuilt
	FieldLatitude
	FieldLongitude
	FieldRegion
)

var fieldNames = [...]string{
	FieldRooms:        "Rooms",
	FieldDistance:     "Distance",
	FieldBathroom:     "Bathroom",
	FieldCar:          "Car",
	FieldLandsize:     "Landsize",
	FieldBuildingArea: "BuildingArea",
	FieldYearBuilt:    "YearBuilt",
	FieldLatitude:     "Lattitude",
	FieldLongitude:    "Longtitude",
	FieldRegion:       "Regionname",
}

// Form labels and shorthand accepted in addition to the wire names.
var fieldAliases = map[string]Field{
	"rooms":         FieldRooms,
	"distance":      FieldDistance,
	"baths":         FieldBathroom,
	"bathrooms":     FieldBathroom,
	"cars":          FieldCar,
	"land":          FieldLandsize,
	"build":         FieldBuildingArea,
	"building_area": FieldBuildingArea,
	"year":          FieldYearBuilt,
	"year_built":    FieldYearBuilt,
	"lat":           FieldLatitude,
	"latitude":      FieldLatitude,
	"lon":           FieldLongitude,
	"longitude":     FieldLongitude,
	"region":        FieldRegion,
}

// Fields returns every field in wire order.
func Fields() []Field {
	out := make([]Field, len(fieldNames))
	for i := range fieldNames {
		out[i] = Field(i)
	}
	return out
}

// String returns the wire name.
func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return "unknown"
	}
	return fieldNames[f]
}

// ReadOnly reports whether the field can only change through the map.
func (f Field) ReadOnly() bool {
	return f == FieldLatitude || f == FieldLongitude
}

// LookupField resolves a wire name or form alias, ignoring case.
func LookupField(name string) (Field, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range fieldNames {
		if strings.ToLower(n) == key {
			return Field(i), nil
		}
	}
	if f, ok := fieldAliases[key]; ok {
		return f, nil
	}
	return 0, eris.Wrapf(ErrUnknownField, "%q", name)
}

func readOnlyError(f Field) error {
	return eris.Wrapf(ErrReadOnlyField, "%s is set from the map", f)
}

func (f Field) apply(d *Description, raw string, regions *RegionSet) error {
	raw = strings.TrimSpace(raw)
	switch f {
	case FieldRooms:
		return setInt(&d.Rooms, f, raw)
	case FieldBathroom:
		return setInt(&d.Bathroom, f, raw)
	case FieldCar:
		return setInt(&d.Car, f, raw)
	case FieldYearBuilt:
		return setInt(&d.YearBuilt, f, raw)
	case FieldDistance:
		return setFloat(&d.Distance, f, raw)
	case FieldLandsize:
		return setFloat(&d.Landsize, f, raw)
	case FieldBuildingArea:
		return setFloat(&d.BuildingArea, f, raw)
	case FieldRegion:
		r, err := regions.Resolve(raw)
		if err != nil {
			return err
		}
		d.Regionname = r.Name
		return nil
	default:
		return readOnlyError(f)
	}
}

func setInt(dst *int, f Field, raw string) error {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return eris.Wrapf(ErrInvalidValue, "%s: %q is not a whole number", f, raw)
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, f Field, raw string) error {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return eris.Wrapf(ErrInvalidValue, "%s: %q is not a number", f, raw)
	}
	*dst = v
	return nil
}

// Value returns the current value of f in d formatted for display.
func (d Description) Value(f Field) string {
	switch f {
	case FieldRooms:
		return strconv.Itoa(d.Rooms)
	case FieldDistance:
		return strconv.FormatFloat(d.Distance, 'f', -1, 64)
	case FieldBathroom:
		return strconv.Itoa(d.Bathroom)
	case FieldCar:
		return strconv.Itoa(d.Car)
	case FieldLandsize:
		return strconv.FormatFloat(d.Landsize, 'f', -1, 64)
	case FieldBuildingArea:
		return strconv.FormatFloat(d.BuildingArea, 'f', -1, 64)
	case FieldYearBuilt:
		return strconv.Itoa(d.YearBuilt)
	case FieldLatitude:
		return strconv.FormatFloat(d.Lattitude, 'f', CoordinatePrecision, 64)
	case FieldLongitude:
		return strconv.FormatFloat(d.Longtitude, 'f', CoordinatePrecision, 64)
	case FieldRegion:
		return string(d.Regionname)
	default:
		return ""
	}
}
