package model

import (
	"errors"
	"fmt"
)

// ErrUnknownState is returned when a text is not a known ItemState
var ErrUnknownState = errors.New("unknown item state")

// ItemState is a descriptive lifecycle tag. Any state may follow any other.
type ItemState uint8

const (
	Listed ItemState = iota + 1
	Available
	Reserved
	Sold
	Removed
)

var stateNames = map[ItemState]string{
	Listed:    "LISTED",
	Available: "AVAILABLE",
	Reserved:  "RESERVED",
	Sold:      "SOLD",
	Removed:   "REMOVED",
}

var statesByName = func() map[string]ItemState {
	m := make(map[string]ItemState, len(stateNames))
	for s, name := range stateNames {
		m[name] = s
	}
	return m
}()

// ItemStates returns every state in declaration order
func ItemStates() []ItemState {
	return []ItemState{Listed, Available, Reserved, Sold, Removed}
}

func (s ItemState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ItemState(%d)", uint8(s))
}

// ParseItemState returns the state for its upper-case name
func ParseItemState(name string) (ItemState, error) {
	s, ok := statesByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
	return s, nil
}

func (s ItemState) MarshalText() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownState, uint8(s))
	}
	return []byte(name), nil
}

func (s *ItemState) UnmarshalText(text []byte) error {
	parsed, err := ParseItemState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
