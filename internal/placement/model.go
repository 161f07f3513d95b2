// Package placement keeps the assignment of actuators to grid cells.
//
// The model is not safe for concurrent use; the console serializes access.
package placement

import (
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/KevinKickass/HaptiKnitConsole/internal/types"
)

var (
	ErrAlreadyConfigured = errors.New("actuators already configured, reset first")
	ErrInvalidCount      = errors.New("invalid actuator count")
	ErrOutOfBounds       = errors.New("cell outside grid")
	ErrCellOccupied      = errors.New("cell already occupied")
	ErrInvalidDrag       = errors.New("invalid drag")
)

// Policy decides what a roster drop does to an actuator already sitting in
// the target cell.
type Policy string

const (
	// PolicyOverwrite replaces the occupant without returning it to the
	// pool. The occupant stays marked placed while absent from the grid.
	PolicyOverwrite Policy = "overwrite"
	// PolicyEvict replaces the occupant and returns it to the pool.
	PolicyEvict Policy = "evict"
	// PolicyReject refuses the drop.
	PolicyReject Policy = "reject"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyOverwrite, PolicyEvict, PolicyReject:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown occupied-cell policy: %q", s)
	}
}

// Drag is the provenance of an actuator being moved. Origin is nil when the
// actuator comes from the unplaced pool.
type Drag struct {
	ActuatorID int         `json:"actuator_id"`
	Origin     *types.Cell `json:"origin,omitempty"`
}

// DropResult reports what a drop changed.
type DropResult struct {
	Placed    bool `json:"placed"`
	Swapped   bool `json:"swapped"`
	Ignored   bool `json:"ignored"`
	Displaced *int `json:"displaced,omitempty"`
}

type Model struct {
	roster []types.Actuator
	rows   int
	cols   int
	policy Policy

	selected int
	placed   map[int]bool
	grid     [][]*types.Actuator
}

func NewModel(roster []types.Actuator, rows, cols int, policy Policy) (*Model, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("grid must have positive size, got %dx%d", rows, cols)
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}

	m := &Model{
		roster: roster,
		rows:   rows,
		cols:   cols,
		policy: policy,
		placed: make(map[int]bool),
	}
	m.grid = newGrid(rows, cols)
	return m, nil
}

func newGrid(rows, cols int) [][]*types.Actuator {
	grid := make([][]*types.Actuator, rows)
	for r := range grid {
		grid[r] = make([]*types.Actuator, cols)
	}
	return grid
}

func (m *Model) Rows() int { return m.rows }
func (m *Model) Cols() int { return m.cols }
func (m *Model) Policy() Policy { return m.policy }
func (m *Model) SelectedCount() int { return m.selected }
func (m *Model) Roster() []types.Actuator { return append([]types.Actuator(nil), m.roster...) }

// SelectCount fixes how many actuators take part in the session. It can only
// be called once until Reset. The grid is left as it is.
func (m *Model) SelectCount(n int) error {
	if m.selected != 0 {
		return fmt.Errorf("%w: %d actuators selected", ErrAlreadyConfigured, m.selected)
	}
	if n < 1 || n > len(m.roster) {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidCount, n, len(m.roster))
	}

	m.selected = n
	m.placed = make(map[int]bool)
	return nil
}

// Reset clears the count, the placed set and every cell.
func (m *Model) Reset() {
	m.selected = 0
	m.placed = make(map[int]bool)
	m.grid = newGrid(m.rows, m.cols)
}

// Contains reports whether c lies on the grid.
func (m *Model) Contains(c types.Cell) bool {
	return c.Row >= 0 && c.Row < m.rows && c.Col >= 0 && c.Col < m.cols
}

// At returns the actuator in c, if any.
func (m *Model) At(c types.Cell) (types.Actuator, bool) {
	if !m.Contains(c) || m.grid[c.Row][c.Col] == nil {
		return types.Actuator{}, false
	}
	return *m.grid[c.Row][c.Col], true
}

func (m *Model) IsPlaced(id int) bool { return m.placed[id] }

// BeginDrag captures the provenance of a drag without changing anything.
func (m *Model) BeginDrag(id int, origin *types.Cell) (Drag, error) {
	if id < 0 || id >= m.selected {
		return Drag{}, fmt.Errorf("%w: actuator %d is not selected", ErrInvalidDrag, id)
	}

	if origin == nil {
		if m.placed[id] {
			return Drag{}, fmt.Errorf("%w: actuator %d is already placed", ErrInvalidDrag, id)
		}
		return Drag{ActuatorID: id}, nil
	}

	if !m.Contains(*origin) {
		return Drag{}, fmt.Errorf("%w: origin (%d,%d)", ErrOutOfBounds, origin.Row, origin.Col)
	}
	occupant := m.grid[origin.Row][origin.Col]
	if occupant == nil || occupant.ID != id {
		return Drag{}, fmt.Errorf("%w: actuator %d is not at (%d,%d)", ErrInvalidDrag, id, origin.Row, origin.Col)
	}

	cell := *origin
	return Drag{ActuatorID: id, Origin: &cell}, nil
}

// Drop completes a drag onto target. A drag with an origin swaps the two
// cells. A drag from the pool places the actuator unless it is already
// placed, in which case the drop is ignored.
func (m *Model) Drop(target types.Cell, drag Drag) (DropResult, error) {
	if !m.Contains(target) {
		return DropResult{}, fmt.Errorf("%w: target (%d,%d) on %dx%d grid",
			ErrOutOfBounds, target.Row, target.Col, m.rows, m.cols)
	}

	if drag.Origin != nil {
		origin := *drag.Origin
		if !m.Contains(origin) {
			return DropResult{}, fmt.Errorf("%w: origin (%d,%d)", ErrOutOfBounds, origin.Row, origin.Col)
		}
		// The grid may have changed since BeginDrag.
		if occupant := m.grid[origin.Row][origin.Col]; occupant == nil || occupant.ID != drag.ActuatorID {
			return DropResult{}, fmt.Errorf("%w: actuator %d is no longer at (%d,%d)",
				ErrInvalidDrag, drag.ActuatorID, origin.Row, origin.Col)
		}
		m.grid[target.Row][target.Col], m.grid[origin.Row][origin.Col] =
			m.grid[origin.Row][origin.Col], m.grid[target.Row][target.Col]
		return DropResult{Swapped: true}, nil
	}

	if m.placed[drag.ActuatorID] {
		return DropResult{Ignored: true}, nil
	}
	if drag.ActuatorID < 0 || drag.ActuatorID >= m.selected {
		return DropResult{}, fmt.Errorf("%w: actuator %d is not selected", ErrInvalidDrag, drag.ActuatorID)
	}

	result := DropResult{Placed: true}
	if occupant := m.grid[target.Row][target.Col]; occupant != nil {
		id := occupant.ID
		switch m.policy {
		case PolicyReject:
			return DropResult{}, fmt.Errorf("%w: (%d,%d) holds actuator %d", ErrCellOccupied, target.Row, target.Col, id)
		case PolicyEvict:
			delete(m.placed, id)
		}
		result.Displaced = &id
	}

	actuator := m.roster[drag.ActuatorID]
	m.placed[drag.ActuatorID] = true
	m.grid[target.Row][target.Col] = &actuator
	return result, nil
}

// Available yields the selected actuators that are not placed, in id order.
// The sequence reads the model lazily and can be ranged over again.
func (m *Model) Available() iter.Seq[types.Actuator] {
	return func(yield func(types.Actuator) bool) {
		for _, a := range m.roster[:m.selected] {
			if m.placed[a.ID] {
				continue
			}
			if !yield(a) {
				return
			}
		}
	}
}

// Snapshot is a copy of the placement state for presentation.
type Snapshot struct {
	SelectedCount int                 `json:"selected_count"`
	Placed        []int               `json:"placed"`
	Rows          int                 `json:"rows"`
	Cols          int                 `json:"cols"`
	Grid          [][]*types.Actuator `json:"grid"`
	Available     []types.Actuator    `json:"available"`
	Policy        Policy              `json:"policy"`
}

func (m *Model) Snapshot() Snapshot {
	placed := make([]int, 0, len(m.placed))
	for id := range m.placed {
		placed = append(placed, id)
	}
	sort.Ints(placed)

	grid := newGrid(m.rows, m.cols)
	for r, row := range m.grid {
		for c, a := range row {
			if a != nil {
				cp := *a
				grid[r][c] = &cp
			}
		}
	}

	available := make([]types.Actuator, 0, m.selected)
	for a := range m.Available() {
		available = append(available, a)
	}

	return Snapshot{
		SelectedCount: m.selected,
		Placed:        placed,
		Rows:          m.rows,
		Cols:          m.cols,
		Grid:          grid,
		Available:     available,
		Policy:        m.policy,
	}
}
