// Package game defines the slot addressing vocabulary and the narrow
// capability interfaces through which ferry talks to a running game client.
package game

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidLocation is returned when a location is neither pack nor bank.
var ErrInvalidLocation = errors.New("invalid location: use pack or bank")

// Location identifies a container space.
type Location int

const (
	LocationPack Location = iota + 1
	LocationBank
)

const (
	packSlotBase = 22
	bankSlotBase = 1999
)

func (l Location) String() string {
	switch l {
	case LocationPack:
		return "pack"
	case LocationBank:
		return "bank"
	default:
		return "invalid"
	}
}

// Valid reports whether l is pack or bank.
func (l Location) Valid() bool {
	return l == LocationPack || l == LocationBank
}

// ParseLocation parses "pack" or "bank" (case-insensitive).
func ParseLocation(s string) (Location, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pack":
		return LocationPack, nil
	case "bank":
		return LocationBank, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLocation, s)
}

// Address locates one sub-slot inside a top-level container.
// Container and Slot are both 1-based.
type Address struct {
	Location  Location
	Container int
	Slot      int
}

// String renders the address the way the movement primitive consumes it,
// e.g. "pack3 2" or "bank4 1".
func (a Address) String() string {
	return fmt.Sprintf("%s%d %d", a.Location, a.Container, a.Slot)
}

// SlotID returns the client's numeric id for the top-level slot. Pack and bank
// slots are numbered from different bases.
func (a Address) SlotID() int {
	switch a.Location {
	case LocationPack:
		return packSlotBase + a.Container
	case LocationBank:
		return bankSlotBase + a.Container
	}
	return 0
}

// ParseAddress parses the String form of an Address.
func ParseAddress(s string) (Address, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Address{}, fmt.Errorf("malformed slot address %q", s)
	}

	head := strings.ToLower(fields[0])
	var loc Location
	switch {
	case strings.HasPrefix(head, "pack"):
		loc = LocationPack
	case strings.HasPrefix(head, "bank"):
		loc = LocationBank
	default:
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidLocation, s)
	}

	container, err := strconv.Atoi(head[len(loc.String()):])
	if err != nil || container < 1 {
		return Address{}, fmt.Errorf("malformed container index in %q", s)
	}
	slot, err := strconv.Atoi(fields[1])
	if err != nil || slot < 1 {
		return Address{}, fmt.Errorf("malformed sub-slot index in %q", s)
	}
	return Address{Location: loc, Container: container, Slot: slot}, nil
}
