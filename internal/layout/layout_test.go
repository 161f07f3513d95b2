package layout

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/KevinKickass/HaptiKnitConsole/internal/placement"
	"github.com/KevinKickass/HaptiKnitConsole/internal/types"
)

// modelTarget applies presets straight onto a placement model.
type modelTarget struct {
	m *placement.Model
}

func (t modelTarget) Reset() { t.m.Reset() }
func (t modelTarget) SelectCount(n int) error { return t.m.SelectCount(n) }

func (t modelTarget) Place(id int, cell types.Cell) (placement.DropResult, error) {
	drag, err := t.m.BeginDrag(id, nil)
	if err != nil {
		return placement.DropResult{}, err
	}
	return t.m.Drop(cell, drag)
}

func newTarget(t *testing.T) modelTarget {
	t.Helper()
	m, err := placement.NewModel(types.NewRoster(types.RosterSize), 4, 5, placement.PolicyReject)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return modelTarget{m: m}
}

func writePreset(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write preset: %v", err)
	}
}

const ring = `
name: ring
count: 3
placements:
  - { actuator: 0, row: 0, col: 0 }
  - { actuator: 2, row: 3, col: 4 }
`

func TestLoadAndApply(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "ring", ring)

	loader, err := NewLoader([]string{dir})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	p, err := loader.Load("ring")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Count != 3 || len(p.Placements) != 2 {
		t.Fatalf("preset = %+v", p)
	}

	target := newTarget(t)
	if err := Apply(target, p); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	snap := target.m.Snapshot()
	if snap.SelectedCount != 3 || !reflect.DeepEqual(snap.Placed, []int{0, 2}) {
		t.Fatalf("snapshot = %+v", snap)
	}
	if a, ok := target.m.At(types.Cell{Row: 3, Col: 4}); !ok || a.ID != 2 {
		t.Fatalf("cell (3,4) = %+v, %v", a, ok)
	}

	// Applying again replaces the previous arrangement.
	if err := Apply(target, p); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
}

func TestLoadCaches(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "ring", ring)
	loader, _ := NewLoader([]string{dir})

	first, err := loader.Load("ring")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "ring.yaml")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	second, err := loader.Load("ring")
	if err != nil || second != first {
		t.Fatalf("cached Load = %p, %v; want %p", second, err, first)
	}

	loader.ClearCache()
	if _, err := loader.Load("ring"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after ClearCache error = %v, want ErrNotFound", err)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"schema missing count": "name: broken\nplacements: []\n",
		"schema extra field":   "name: broken\ncount: 1\nplacements: []\ncolour: red\n",
		"schema negative row":  "name: broken\ncount: 1\nplacements:\n  - { actuator: 0, row: -1, col: 0 }\n",
		"actuator over count":  "name: broken\ncount: 1\nplacements:\n  - { actuator: 1, row: 0, col: 0 }\n",
		"shared cell":          "name: broken\ncount: 2\nplacements:\n  - { actuator: 0, row: 0, col: 0 }\n  - { actuator: 1, row: 0, col: 0 }\n",
		"not yaml":             "name: [unclosed\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writePreset(t, dir, "broken", body)
			loader, _ := NewLoader([]string{dir})
			if _, err := loader.Load("broken"); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Load error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadBadName(t *testing.T) {
	loader, _ := NewLoader([]string{t.TempDir()})
	for _, name := range []string{"../etc/passwd", "", "a/b"} {
		if _, err := loader.Load(name); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Load(%q) error = %v, want ErrNotFound", name, err)
		}
	}
}

func TestList(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writePreset(t, a, "ring", ring)
	writePreset(t, b, "ring", ring)
	writePreset(t, b, "band", ring)
	if err := os.WriteFile(filepath.Join(b, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	loader, _ := NewLoader([]string{a, b, filepath.Join(a, "missing")})
	names, err := loader.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"band", "ring"}) {
		t.Fatalf("names = %v", names)
	}
}

func TestApplyOutOfBoundsResets(t *testing.T) {
	target := newTarget(t)
	p := &Preset{Name: "wide", Count: 2, Placements: []Placement{
		{Actuator: 0, Row: 0, Col: 0},
		{Actuator: 1, Row: 0, Col: 9},
	}}

	err := Apply(target, p)
	if !errors.Is(err, placement.ErrOutOfBounds) {
		t.Fatalf("Apply error = %v, want ErrOutOfBounds", err)
	}
	if snap := target.m.Snapshot(); snap.SelectedCount != 0 || len(snap.Placed) != 0 {
		t.Fatalf("model not reset after failed apply: %+v", snap)
	}
}

func TestExportRoundTrip(t *testing.T) {
	target := newTarget(t)
	target.SelectCount(4)
	target.Place(3, types.Cell{Row: 1, Col: 2})
	target.Place(0, types.Cell{Row: 0, Col: 0})

	p := FromSnapshot("current", target.m.Snapshot())
	want := []Placement{{Actuator: 0, Row: 0, Col: 0}, {Actuator: 3, Row: 1, Col: 2}}
	if p.Count != 4 || !reflect.DeepEqual(p.Placements, want) {
		t.Fatalf("export = %+v", p)
	}

	data, err := p.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	v, _ := NewValidator()
	if err := v.ValidateYAML(data); err != nil {
		t.Fatalf("exported preset fails schema: %v\n%s", err, data)
	}
	if !strings.Contains(string(data), "name: current") {
		t.Fatalf("yaml = %s", data)
	}
}

func TestShippedLayouts(t *testing.T) {
	loader, err := NewLoader([]string{filepath.Join("..", "..", "layouts")})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	names, err := loader.List()
	if err != nil || len(names) == 0 {
		t.Fatalf("List = %v, %v", names, err)
	}
	for _, name := range names {
		p, err := loader.Load(name)
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		if err := Apply(newTarget(t), p); err != nil {
			t.Fatalf("Apply(%s): %v", name, err)
		}
	}
}
