package app

import (
	"fmt"

	"github.com/dkeye/botrelay/internal/core"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a subscriber whose send buffer is full.
type Policy interface {
	OnBackPressure(sid core.SessionID) BackpressureAction
}

// DropPolicy loses the frame for that subscriber only.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.SessionID) BackpressureAction { return DropFrame }

// KickPolicy closes subscribers that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.SessionID) BackpressureAction { return KickMember }

// PolicyByName maps the config value to a Policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
