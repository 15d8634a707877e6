// Package event defines the notifications an input emits on its state transitions.
package event

import (
	"fmt"
	"time"

	"github.com/xaionaro-go/videoinput/types"
)

type Type int

const (
	TypeUndefined = Type(iota)
	TypeVideoInputDelivered
	TypeVideoInputPlaying
	TypeVideoInputEOS
)

func (t Type) String() string {
	switch t {
	case TypeUndefined:
		return "<undefined>"
	case TypeVideoInputDelivered:
		return "VIDEO_INPUT_DELIVERED"
	case TypeVideoInputPlaying:
		return "VIDEO_INPUT_PLAYING"
	case TypeVideoInputEOS:
		return "VIDEO_INPUT_EOS"
	default:
		return fmt.Sprintf("<unknown_%d>", int(t))
	}
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

type Event struct {
	Type      Type
	InputID   types.InputID
	Timestamp time.Time
}

func New(t Type, inputID types.InputID) Event {
	return Event{
		Type:      t,
		InputID:   inputID,
		Timestamp: time.Now(),
	}
}

func (ev Event) String() string {
	return fmt.Sprintf("%s(%s)", ev.Type, ev.InputID)
}
