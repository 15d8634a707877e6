package input

import (
	"fmt"
)

// State is the phase of an Input. The phases only move forward:
// waiting_for_start -> buffering -> playing -> finished.
type State int

const (
	StateUndefined = State(iota)
	StateWaitingForStart
	StateBuffering
	StatePlaying
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateUndefined:
		return "<undefined>"
	case StateWaitingForStart:
		return "waiting_for_start"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("<unknown_%d>", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
