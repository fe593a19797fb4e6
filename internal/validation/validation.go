// Package validation confirms address candidates against a geocoding
// backend. The orchestrator depends only on the Client interface; HTTPClient
// talks to a what3words-v3 style REST API, Cached adds an LRU in front of any
// client and Static answers from an in-memory address book.
package validation

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/wordscan/internal/address"
)

// Client validates a candidate and returns the confirmed addresses the backend
// suggests for it. An empty result with a nil error means no match.
type Client interface {
	Validate(ctx context.Context, candidate string, opts Options) ([]address.Confirmed, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, candidate string, opts Options) ([]address.Confirmed, error)

func (f ClientFunc) Validate(ctx context.Context, candidate string, opts Options) ([]address.Confirmed, error) {
	return f(ctx, candidate, opts)
}

// Options filters and ranks suggestions.
type Options struct {
	// Language restricts suggestions to one language (ISO 639-1).
	Language string `mapstructure:"language" yaml:"language" json:"language,omitempty"`
	// ClipToCountries restricts suggestions to ISO 3166-1 alpha-2 countries.
	ClipToCountries []string `mapstructure:"clip_to_countries" yaml:"clip_to_countries" json:"clip_to_countries,omitempty"`
	// Focus biases suggestions towards a point and enables distances.
	Focus *address.Coordinates `mapstructure:"focus" yaml:"focus" json:"focus,omitempty"`
	// NResults caps the number of suggestions; zero uses the backend default.
	NResults int `mapstructure:"n_results" yaml:"n_results" json:"n_results,omitempty"`
	// WithCoordinates resolves coordinates for every confirmed address.
	WithCoordinates bool `mapstructure:"with_coordinates" yaml:"with_coordinates" json:"with_coordinates,omitempty"`
}

// key returns a stable representation of the options for caching.
func (o Options) key() string {
	countries := make([]string, 0, len(o.ClipToCountries))
	for _, c := range o.ClipToCountries {
		countries = append(countries, strings.ToUpper(strings.TrimSpace(c)))
	}
	slices.Sort(countries)

	var b strings.Builder
	b.WriteString(strings.ToLower(o.Language))
	b.WriteByte('|')
	b.WriteString(strings.Join(countries, ","))
	b.WriteByte('|')
	if o.Focus != nil {
		b.WriteString(strconv.FormatFloat(o.Focus.Lat, 'f', 6, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(o.Focus.Lng, 'f', 6, 64))
	}
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(o.NResults))
	if o.WithCoordinates {
		b.WriteString("|c")
	}
	return b.String()
}

// APIError is a structured error answered by the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("validation API error %d %s: %s", e.Status, e.Code, e.Message)
}

// Matching keeps only the confirmed addresses that spell candidate exactly,
// ignoring case. Backends return near matches for misread words; those are
// not evidence that the candidate is real.
func Matching(candidate string, confirmed []address.Confirmed) []address.Confirmed {
	var out []address.Confirmed
	for _, c := range confirmed {
		if c.Matches(candidate) {
			out = append(out, c)
		}
	}
	return out
}
