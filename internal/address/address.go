// Package address holds the three-word address value types shared by the
// extractor, the validation clients and the scan orchestrator.
package address

import (
	"strings"

	"golang.org/x/text/cases"
)

// Candidate is an unvalidated string suspected of being a three-word address.
type Candidate = string

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Confirmed is an address a validation service has verified and enriched.
// Values are immutable once created; equality for deduplication is Key().
type Confirmed struct {
	Words             string       `json:"words" yaml:"words"`
	Language          string       `json:"language" yaml:"language"`
	Country           string       `json:"country" yaml:"country"`
	NearestPlace      string       `json:"nearest_place,omitempty" yaml:"nearest_place,omitempty"`
	DistanceToFocusKm *float64     `json:"distance_to_focus_km,omitempty" yaml:"distance_to_focus_km,omitempty"`
	Coordinates       *Coordinates `json:"coordinates,omitempty" yaml:"coordinates,omitempty"`
}

var folder = cases.Fold()

// Key returns the dedup key for a three-word address text.
func Key(words string) string {
	return folder.String(strings.TrimSpace(words))
}

// Key returns the dedup key of the confirmed address.
func (c Confirmed) Key() string { return Key(c.Words) }

// Matches reports whether the confirmed address is the one the candidate spells.
func (c Confirmed) Matches(candidate Candidate) bool {
	return c.Key() == Key(candidate)
}

// String returns the address in its canonical display form.
func (c Confirmed) String() string { return "///" + c.Words }
