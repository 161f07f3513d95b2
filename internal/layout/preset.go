// Package layout stores named actuator arrangements and replays them onto
// the console.
package layout

import (
	"errors"
	"fmt"

	"github.com/KevinKickass/HaptiKnitConsole/internal/placement"
	"github.com/KevinKickass/HaptiKnitConsole/internal/types"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotFound = errors.New("layout not found")
	ErrInvalid  = errors.New("invalid layout")
)

type Preset struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Count       int         `yaml:"count" json:"count"`
	Placements  []Placement `yaml:"placements" json:"placements"`
}

type Placement struct {
	Actuator int `yaml:"actuator" json:"actuator"`
	Row      int `yaml:"row" json:"row"`
	Col      int `yaml:"col" json:"col"`
}

// Check rejects placements that reference unselected actuators or share a
// cell. Grid bounds are left to the placement model.
func (p *Preset) Check() error {
	cells := make(map[types.Cell]int, len(p.Placements))
	seen := make(map[int]bool, len(p.Placements))
	for _, pl := range p.Placements {
		if pl.Actuator >= p.Count {
			return fmt.Errorf("%w: actuator %d outside count %d", ErrInvalid, pl.Actuator, p.Count)
		}
		if seen[pl.Actuator] {
			return fmt.Errorf("%w: actuator %d placed twice", ErrInvalid, pl.Actuator)
		}
		seen[pl.Actuator] = true

		cell := types.Cell{Row: pl.Row, Col: pl.Col}
		if other, ok := cells[cell]; ok {
			return fmt.Errorf("%w: actuators %d and %d share (%d,%d)", ErrInvalid, other, pl.Actuator, pl.Row, pl.Col)
		}
		cells[cell] = pl.Actuator
	}
	return nil
}

// FromSnapshot captures the current arrangement as a preset.
func FromSnapshot(name string, snap placement.Snapshot) Preset {
	p := Preset{Name: name, Count: snap.SelectedCount, Placements: []Placement{}}
	for r, row := range snap.Grid {
		for c, a := range row {
			if a != nil {
				p.Placements = append(p.Placements, Placement{Actuator: a.ID, Row: r, Col: c})
			}
		}
	}
	return p
}

// YAML renders p in the on-disk preset format.
func (p Preset) YAML() ([]byte, error) {
	return yaml.Marshal(p)
}

// Target is what a preset is applied to.
type Target interface {
	Reset()
	SelectCount(n int) error
	Place(actuatorID int, cell types.Cell) (placement.DropResult, error)
}

// Apply resets target and replays p. On failure target is reset again so no
// half-applied layout remains.
func Apply(target Target, p *Preset) error {
	if err := p.Check(); err != nil {
		return err
	}

	target.Reset()
	if err := target.SelectCount(p.Count); err != nil {
		target.Reset()
		return fmt.Errorf("apply %s: %w", p.Name, err)
	}
	for _, pl := range p.Placements {
		if _, err := target.Place(pl.Actuator, types.Cell{Row: pl.Row, Col: pl.Col}); err != nil {
			target.Reset()
			return fmt.Errorf("apply %s: actuator %d: %w", p.Name, pl.Actuator, err)
		}
	}
	return nil
}
