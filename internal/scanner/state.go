package scanner

import (
	"fmt"
	"image"
	"strings"

	"github.com/MeKo-Tech/wordscan/internal/address"
)

// Phase is the position of the orchestrator in its scan cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseScanning
	PhaseDetected
	PhaseValidating
	PhaseFound
	PhaseNotFound
)

var phaseNames = [...]string{"idle", "scanning", "detected", "validating", "found", "not_found"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("scanner: unknown phase %q", text)
}

// Mode selects between continuous scanning and one-shot stills.
type Mode int

const (
	ModeLive Mode = iota
	ModeSingleFrame
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeSingleFrame:
		return "single_frame"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode parses "live" or "single"/"single_frame".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live", "":
		return ModeLive, nil
	case "single", "single_frame", "single-frame", "still":
		return ModeSingleFrame, nil
	default:
		return ModeLive, fmt.Errorf("scanner: unknown mode %q", s)
	}
}

// State is a snapshot of the orchestrator. Snapshots are never modified after
// publication; Found is a private copy.
type State struct {
	Phase Phase               `json:"phase" yaml:"phase"`
	Found []address.Confirmed `json:"found" yaml:"found"`
	Mode  Mode                `json:"mode" yaml:"mode"`
	// CapturedImage is the still under review in single-frame mode.
	CapturedImage image.Image `json:"-" yaml:"-"`
	FromImport    bool        `json:"from_import" yaml:"from_import"`
	// Error is the last per-scan error, informational only.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
	// Cycle identifies the scan cycle that produced this snapshot.
	Cycle string `json:"cycle,omitempty" yaml:"cycle,omitempty"`
}

// HasCapturedImage reports whether a still is under review.
func (s State) HasCapturedImage() bool { return s.CapturedImage != nil }
