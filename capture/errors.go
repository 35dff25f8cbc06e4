package capture

import (
	"errors"
	"fmt"
)

// Step-level failure kinds. The orchestrator maps every raw session error to
// one of these before deciding on retry, fallback, or terminal failure; raw
// errors never cross the package boundary unwrapped.
var (
	ErrInvalidURL          = errors.New("capture: invalid url")
	ErrNavigationTimeout   = errors.New("capture: navigation timed out")
	ErrMediaNotFound       = errors.New("capture: no playable media element")
	ErrPlaybackNotReady    = errors.New("capture: playback never became ready")
	ErrSeekTolerance       = errors.New("capture: seek outside tolerance")
	ErrFrameExtraction     = errors.New("capture: frame extraction failed")
	ErrFallbackUnavailable = errors.New("capture: no fallback thumbnail available")
)

// StepError records which state transition failed. Fallback eligibility is a
// property of the step's policy, not of the error.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("capture: step %s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(state State, err error) *StepError {
	return &StepError{State: state, Err: err}
}
