// Package extract finds three-word address candidates in recognized text.
//
// Recognized text has misread "///" prefixes repaired and is then matched
// against the three-word grammar: three letter tokens joined by two separator
// characters, optionally padded with blanks. Blanks are only removed from a
// match that is not glued to a neighboring token, so sentence punctuation
// next to an address never joins it to the surrounding prose. The extractor never deduplicates; repeated
// addresses in the text are returned once per occurrence.
package extract

import (
	"iter"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/MeKo-Tech/wordscan/internal/address"
)

// Separators lists the characters accepted between the words of an address.
const Separators = ".｡。･・︒។։။۔።।"

const (
	letters   = `\p{L}\p{M}`
	sepClass  = `[.｡。･・︒។։။۔።।]`
	wordClass = `[` + letters + `]+`
	blanks    = `[ \t\x{00A0}]*`
	blankSet  = " \t\u00a0"
)

var (
	// addressPattern matches exactly three word tokens joined by two separators.
	addressPattern = regexp.MustCompile(wordClass + sepClass + wordClass + sepClass + wordClass)

	// spacedPattern is addressPattern with blanks allowed around the separators.
	spacedPattern = regexp.MustCompile(wordClass + blanks + sepClass + blanks + wordClass + blanks + sepClass + blanks + wordClass)

	// misreadPrefix matches a three glyph run at a word start directly followed by a letter.
	misreadPrefix = regexp.MustCompile(`(^|[\s(\[{"'])([/Il1|\\]{3})([` + letters + `])`)
)

// Options controls extraction behavior.
type Options struct {
	// Bypass returns every non-empty line verbatim instead of filtering for addresses.
	Bypass bool
}

// Extractor turns recognized text into address candidates.
type Extractor struct {
	opts Options
}

// New returns an Extractor with the given options.
func New(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// Bypass reports whether the extractor returns raw lines.
func (e *Extractor) Bypass() bool { return e != nil && e.opts.Bypass }

// Extract yields the candidates found in raw in order of appearance.
// The sequence is recomputed every time it is ranged over.
func (e *Extractor) Extract(raw string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if raw == "" {
			return
		}
		if e.Bypass() {
			for line := range strings.Lines(raw) {
				line = strings.TrimRight(line, "\r\n")
				if strings.TrimSpace(line) == "" {
					continue
				}
				if !yield(line) {
					return
				}
			}
			return
		}
		text := Prepare(raw)
		for pos := 0; pos < len(text); {
			loc := spacedPattern.FindStringIndex(text[pos:])
			if loc == nil {
				return
			}
			start, end := pos+loc[0], pos+loc[1]
			if partOfLongerChain(text, start, end) {
				// Retry from the second token: "back. daring.lion.race"
				// still holds an address after the rejected prefix.
				pos = start + firstToken(text[start:end])
				continue
			}
			if !yield(dropBlanks(text[start:end])) {
				return
			}
			pos = end
		}
	}
}

// Candidates returns all candidates found in raw.
func (e *Extractor) Candidates(raw string) []string {
	return slices.Collect(e.Extract(raw))
}

// Prepare cleans recognized text before matching: invalid UTF-8 is replaced,
// the text is NFC-normalized and misread "///" prefixes are repaired.
func Prepare(raw string) string {
	if !utf8.ValidString(raw) {
		raw = strings.ToValidUTF8(raw, " ")
	}
	text := norm.NFC.String(raw)
	return misreadPrefix.ReplaceAllStringFunc(text, repairPrefix)
}

// firstToken returns the byte length of the leading letter run of match.
func firstToken(match string) int {
	if i := strings.IndexFunc(match, func(r rune) bool { return !isLetter(r) }); i > 0 {
		return i
	}
	return len(match)
}

func dropBlanks(match string) string {
	if !strings.ContainsAny(match, blankSet) {
		return match
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(blankSet, r) {
			return -1
		}
		return r
	}, match)
}

// repairPrefix rewrites a misread "///" glyph run. Only runs that contain a
// slash-like glyph or that repeat a single glyph are considered prefixes, so
// ordinary words such as "Illinois" are left alone.
func repairPrefix(match string) string {
	sub := misreadPrefix.FindStringSubmatch(match)
	if len(sub) != 4 {
		return match
	}
	lead, run, next := sub[1], sub[2], sub[3]
	if run == "///" || !looksLikePrefix(run) {
		return match
	}
	return lead + "///" + next
}

func looksLikePrefix(run string) bool {
	if strings.ContainsAny(run, `/|\`) {
		return true
	}
	return run == "III" || run == "lll" || run == "111"
}

// partOfLongerChain reports whether the match at text[start:end] is glued to
// another token by a separator, as in "www.example.co.uk". Only a separator
// directly touching a letter counts; "raft. See" ends a sentence.
func partOfLongerChain(text string, start, end int) bool {
	if end < len(text) {
		r, size := utf8.DecodeRuneInString(text[end:])
		if isSeparator(r) {
			next, _ := utf8.DecodeRuneInString(text[end+size:])
			if isLetter(next) {
				return true
			}
		}
	}
	if start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if isSeparator(r) {
			prev, _ := utf8.DecodeLastRuneInString(text[:start-size])
			if isLetter(prev) {
				return true
			}
		}
	}
	return false
}

func isSeparator(r rune) bool { return strings.ContainsRune(Separators, r) }

func isLetter(r rune) bool { return unicode.IsLetter(r) || unicode.IsMark(r) }

// Normalize canonicalizes a candidate for lookup: leading slashes are removed
// and every separator becomes a full stop.
func Normalize(candidate string) string {
	c := strings.TrimSpace(candidate)
	c = strings.TrimLeft(c, "/")
	return strings.Map(func(r rune) rune {
		if isSeparator(r) {
			return '.'
		}
		return r
	}, c)
}

// Dedupe normalizes candidates and drops repeats, comparing case-folded.
// The first spelling of each address is kept.
func Dedupe(cands []string) []string {
	seen := make(map[string]struct{}, len(cands))
	out := make([]string, 0, len(cands))
	for _, raw := range cands {
		cand := Normalize(raw)
		key := address.Key(cand)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, cand)
	}
	return out
}

// IsAddress reports whether s is exactly one well-formed three-word address,
// optionally prefixed with "///".
func IsAddress(s string) bool {
	s = strings.TrimLeft(strings.TrimSpace(s), "/")
	loc := addressPattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}
