package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptySymbol is returned when a submission has no symbol after trimming
	ErrEmptySymbol = errors.New("symbol is required")

	// ErrUnknownMode is returned for a mode outside the fixed enumeration
	ErrUnknownMode = errors.New("unknown analysis mode")

	// ErrUnknownFrequency is returned for a frequency other than annual/quarterly
	ErrUnknownFrequency = errors.New("unknown frequency")

	// ErrJobNotFound is returned when the backend does not know the job (yet)
	ErrJobNotFound = errors.New("job not found")

	// ErrSuperseded is returned when a newer submission or a stop replaced the job
	ErrSuperseded = errors.New("job superseded")
)

// Phase names the step of the job lifecycle an error belongs to
type Phase string

const (
	PhaseSubmit Phase = "submit"
	PhasePoll   Phase = "poll"
	PhaseJob    Phase = "job"
	PhaseResult Phase = "result"
)

// PhaseError ties an error to the lifecycle phase it happened in
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Phase, e.Err.Error())
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// NewPhaseError wraps err with its lifecycle phase
func NewPhaseError(phase Phase, err error) error {
	return &PhaseError{Phase: phase, Err: err}
}

// IsPhase reports whether err is a PhaseError of the given phase
func IsPhase(err error, phase Phase) bool {
	var pe *PhaseError
	return errors.As(err, &pe) && pe.Phase == phase
}

// RemoteError is a non-2xx response from the analysis backend
type RemoteError struct {
	StatusCode int
	Detail     string
}

func (e *RemoteError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend responded with status %d: %s", e.StatusCode, e.Detail)
}

// Is lets errors.Is(err, ErrJobNotFound) match a 404 response
func (e *RemoteError) Is(target error) bool {
	return target == ErrJobNotFound && e.StatusCode == http.StatusNotFound
}
