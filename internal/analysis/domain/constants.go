package domain

import (
	"fmt"
	"strings"
)

// Mode identifies the kind of analysis a job runs
type Mode string

const (
	// ModeFull is the aggregate mode that runs every sub-analysis
	ModeFull Mode = "full"

	ModeWachstumswerte   Mode = "wachstumswerte"
	ModeDividendenwerte  Mode = "dividendenwerte"
	ModeAverageGrower    Mode = "average-grower"
	ModeTypischeZykliker Mode = "typische-zykliker"
	ModeTurnarounds      Mode = "turnarounds"
	ModeOptionality      Mode = "optionality"
	ModeAssetPlay        Mode = "asset-play"
)

// singleModes lists the single modes in display order
var singleModes = []Mode{
	ModeWachstumswerte,
	ModeDividendenwerte,
	ModeAverageGrower,
	ModeTypischeZykliker,
	ModeTurnarounds,
	ModeOptionality,
	ModeAssetPlay,
}

// displayNames must match the analysis names the backend uses in result keys
var displayNames = map[Mode]string{
	ModeFull:             "Full Analysis",
	ModeWachstumswerte:   "Wachstumswerte",
	ModeDividendenwerte:  "Dividendenwerte",
	ModeAverageGrower:    "Average Grower",
	ModeTypischeZykliker: "Typische Zykliker",
	ModeTurnarounds:      "Zyklische Turnarounds",
	ModeOptionality:      "Optionality",
	ModeAssetPlay:        "Asset Play",
}

// Modes returns all recognized modes, aggregate first
func Modes() []Mode {
	modes := make([]Mode, 0, len(singleModes)+1)
	modes = append(modes, ModeFull)
	return append(modes, singleModes...)
}

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// Valid reports whether m is a recognized mode
func (m Mode) Valid() bool {
	_, ok := displayNames[m]
	return ok
}

// IsAggregate reports whether m multiplexes many sub-analyses
func (m Mode) IsAggregate() bool {
	return m == ModeFull
}

// DisplayName returns the analysis name used in result keys
func (m Mode) DisplayName() string {
	if name, ok := displayNames[m]; ok {
		return name
	}
	return string(m)
}

// AnalysisOrder returns the position of an analysis display name in the
// canonical ordering, or len(singleModes) for unknown names.
func AnalysisOrder(name string) int {
	for i, m := range singleModes {
		if displayNames[m] == name {
			return i
		}
	}
	return len(singleModes)
}

// Frequency is the reporting period an analysis runs on
type Frequency string

const (
	FrequencyAnnual    Frequency = "annual"
	FrequencyQuarterly Frequency = "quarterly"
)

// ParseFrequency validates a frequency string; empty means annual
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(strings.ToLower(strings.TrimSpace(s))) {
	case "", FrequencyAnnual:
		return FrequencyAnnual, nil
	case FrequencyQuarterly:
		return FrequencyQuarterly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
	}
}

// Status is the backend-reported job status
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// IsTerminal reports whether no further transitions follow s
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// State is the reconciler-side lifecycle state of the active job
type State string

const (
	StateIdle           State = "idle"
	StateRunning        State = "running"
	StateFetchingResult State = "fetching-result"
	StateDone           State = "done"
	StateError          State = "error"
)
