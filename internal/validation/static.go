package validation

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/wordscan/internal/address"
	"github.com/MeKo-Tech/wordscan/internal/extract"
)

// Static validates against a fixed address book. It is used for offline
// scanning and demos.
type Static struct {
	byKey map[string]address.Confirmed
}

// AddressBook is the on-disk format read by LoadStatic.
type AddressBook struct {
	Addresses []address.Confirmed `yaml:"addresses"`
}

// NewStatic builds a Static validator from the given addresses.
func NewStatic(addrs ...address.Confirmed) *Static {
	s := &Static{byKey: make(map[string]address.Confirmed, len(addrs))}
	for _, a := range addrs {
		if a.Key() != "" {
			s.byKey[a.Key()] = a
		}
	}
	return s
}

// LoadStatic reads a YAML address book.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: address book path is user configuration
	if err != nil {
		return nil, fmt.Errorf("read address book: %w", err)
	}
	var book AddressBook
	if err := yaml.Unmarshal(data, &book); err != nil {
		return nil, fmt.Errorf("parse address book %s: %w", path, err)
	}
	for i, a := range book.Addresses {
		if !extract.IsAddress(a.Words) {
			return nil, fmt.Errorf("address book %s: entry %d: %q is not a three-word address", path, i+1, a.Words)
		}
	}
	return NewStatic(book.Addresses...), nil
}

// Validate implements Client. Language and country filters apply when set.
func (s *Static) Validate(ctx context.Context, candidate string, opts Options) ([]address.Confirmed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := s.byKey[address.Key(candidate)]
	if !ok {
		return nil, nil
	}
	if opts.Language != "" && a.Language != "" && !strings.EqualFold(opts.Language, a.Language) {
		return nil, nil
	}
	if len(opts.ClipToCountries) > 0 && !slices.ContainsFunc(opts.ClipToCountries, func(c string) bool {
		return strings.EqualFold(c, a.Country)
	}) {
		return nil, nil
	}
	return []address.Confirmed{a}, nil
}

// Len returns the number of addresses in the book.
func (s *Static) Len() int { return len(s.byKey) }
