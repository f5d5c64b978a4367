package property

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Region is the name of a market region as the valuation service knows it.
type Region string

// RegionInfo pairs a region name with the label shown in the selector.
type RegionInfo struct {
	Name  Region `yaml:"name" mapstructure:"name" json:"name"`
	Label string `yaml:"label" mapstructure:"label" json:"label"`
}

// RegionSet is the closed list of selectable regions.
type RegionSet struct {
	items []RegionInfo
}

// DefaultRegions returns the three regions the service is trained on.
func DefaultRegions() *RegionSet {
	return &RegionSet{items: []RegionInfo{
		{Name: "Region_0", Label: "Inner City"},
		{Name: "Region_1", Label: "Northern Suburbs"},
		{Name: "Region_2", Label: "Western Suburbs"},
	}}
}

// NewRegionSet builds a set from configured entries. Entries without a name
// and duplicate names are skipped; an empty result falls back to the
// defaults.
func NewRegionSet(items []RegionInfo) *RegionSet {
	seen := make(map[Region]bool, len(items))
	out := make([]RegionInfo, 0, len(items))
	for _, it := range items {
		it.Name = Region(strings.TrimSpace(string(it.Name)))
		if it.Name == "" || seen[it.Name] {
			continue
		}
		seen[it.Name] = true
		if it.Label == "" {
			it.Label = string(it.Name)
		}
		out = append(out, it)
	}
	if len(out) == 0 {
		return DefaultRegions()
	}
	return &RegionSet{items: out}
}

// All returns the regions in selector order.
func (s *RegionSet) All() []RegionInfo {
	return append([]RegionInfo(nil), s.items...)
}

// Contains reports whether r is in the set.
func (s *RegionSet) Contains(r Region) bool {
	for _, it := range s.items {
		if it.Name == r {
			return true
		}
	}
	return false
}

// Label returns the display label for r, or its name when unknown.
func (s *RegionSet) Label(r Region) string {
	for _, it := range s.items {
		if it.Name == r {
			return it.Label
		}
	}
	return string(r)
}

// Resolve accepts a region name (case-insensitive) or its selector index.
func (s *RegionSet) Resolve(raw string) (RegionInfo, error) {
	raw = strings.TrimSpace(raw)
	for _, it := range s.items {
		if strings.EqualFold(string(it.Name), raw) {
			return it, nil
		}
	}
	if idx, err := strconv.Atoi(raw); err == nil && idx >= 0 && idx < len(s.items) {
		return s.items[idx], nil
	}
	return RegionInfo{}, eris.Wrapf(ErrInvalidValue, "Regionname: %q is not a known region", raw)
}
