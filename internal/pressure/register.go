// Package pressure stages per-actuator pressure setpoints before they are
// submitted to the sleeve.
package pressure

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxKPa is the largest setpoint the controller accepts.
const MaxKPa = 255

var (
	ErrOutOfRange = fmt.Errorf("value cannot exceed %d kPa", MaxKPa)
	ErrNegative   = errors.New("value cannot be negative")
	ErrSlotIndex  = errors.New("no such pressure slot")
)

// Slot is one staged setpoint. Set is false while the operator has not
// entered a usable value.
type Slot struct {
	Index int  `json:"index"`
	Value int  `json:"value"`
	Set   bool `json:"set"`
}

// Register holds one slot per selected actuator. Not safe for concurrent use.
type Register struct {
	slots []Slot
}

func NewRegister(size int) *Register {
	r := &Register{}
	r.Resize(size)
	return r
}

// Resize replaces every slot with size unset slots.
func (r *Register) Resize(size int) {
	if size < 0 {
		size = 0
	}
	r.slots = make([]Slot, size)
	for i := range r.slots {
		r.slots[i].Index = i
	}
}

// Clear unsets every slot and keeps the size.
func (r *Register) Clear() {
	r.Resize(len(r.slots))
}

func (r *Register) Len() int { return len(r.slots) }

// SetValue applies raw operator input to slot index. Empty input unsets the
// slot; text that is not an integer is treated as an edit in progress and
// leaves the slot unchanged without error. Values above MaxKPa are rejected
// with ErrOutOfRange and negative ones with ErrNegative; either way the slot
// keeps its previous value.
func (r *Register) SetValue(index int, raw string) error {
	if index < 0 || index >= len(r.slots) {
		return fmt.Errorf("%w: %d (have %d)", ErrSlotIndex, index, len(r.slots))
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		r.slots[index] = Slot{Index: index}
		return nil
	}

	v, err := strconv.Atoi(text)
	if err != nil {
		return nil
	}
	if v < 0 {
		return fmt.Errorf("%w: slot %d got %d", ErrNegative, index, v)
	}
	if v > MaxKPa {
		return fmt.Errorf("%w: slot %d got %d", ErrOutOfRange, index, v)
	}

	r.slots[index] = Slot{Index: index, Value: v, Set: true}
	return nil
}

// Value returns the setpoint of slot index if one is set.
func (r *Register) Value(index int) (int, bool) {
	if index < 0 || index >= len(r.slots) || !r.slots[index].Set {
		return 0, false
	}
	return r.slots[index].Value, true
}

// Values returns a copy of all slots.
func (r *Register) Values() []Slot {
	out := make([]Slot, len(r.slots))
	copy(out, r.slots)
	return out
}
