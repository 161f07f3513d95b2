package types

import "strconv"

// RosterSize is the number of actuators on the sleeve.
const RosterSize = 8

// Actuator is one addressable pneumatic unit. Immutable once created.
type Actuator struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// NewRoster creates the fixed actuator roster, ids 0..size-1 labelled 1..size.
func NewRoster(size int) []Actuator {
	roster := make([]Actuator, size)
	for i := range roster {
		roster[i] = Actuator{ID: i, Label: strconv.Itoa(i + 1)}
	}
	return roster
}

// Cell addresses one slot of the placement grid.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}
