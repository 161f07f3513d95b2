// Package console translates operator intents into placement, pressure and
// wire operations. It is the single entry point the API layers call.
package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/HaptiKnitConsole/internal/config"
	"github.com/KevinKickass/HaptiKnitConsole/internal/encoder"
	"github.com/KevinKickass/HaptiKnitConsole/internal/journal"
	"github.com/KevinKickass/HaptiKnitConsole/internal/layout"
	"github.com/KevinKickass/HaptiKnitConsole/internal/placement"
	"github.com/KevinKickass/HaptiKnitConsole/internal/pressure"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
	"github.com/KevinKickass/HaptiKnitConsole/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// dragTTL bounds how long a drag may wait for its drop.
const dragTTL = 2 * time.Minute

var (
	ErrUnknownActuator = errors.New("actuator not selected")
	ErrUnknownDrag     = errors.New("unknown or expired drag")
)

// Transport is the connection the console dispatches onto.
type Transport interface {
	Connect(ctx context.Context) (transport.Info, error)
	Disconnect()
	Write(ctx context.Context, ch transport.Channel, b byte) error
	Read(ctx context.Context, ch transport.Channel) (byte, error)
	State() transport.State
	Info() (transport.Info, bool)
}

// Publisher receives presentation events. May be nil. Publish is called
// with the console state locked and must not block.
type Publisher interface {
	Publish(kind EventKind, data any)
}

type EventKind string

const (
	EventPlacement EventKind = "placement"
	EventPressures EventKind = "pressures"
	EventDispatch  EventKind = "dispatch"
	EventBattery   EventKind = "battery"
)

// Settings are the protocol choices of the dispatch call sites.
type Settings struct {
	ActuatorMode      encoder.Mode
	PressureMode      encoder.Mode
	StopAllMode       encoder.Mode
	InflateAllMode    encoder.Mode
	StopAllCommand    int
	InflateAllCommand int
	IncludeFirstSlot  bool
}

// DefaultSettings returns the PortFlow8 protocol.
func DefaultSettings() Settings {
	return Settings{
		ActuatorMode:      encoder.ModeOffset,
		PressureMode:      encoder.ModeDirect,
		StopAllMode:       encoder.ModeDirect,
		InflateAllMode:    encoder.ModeDirect,
		StopAllCommand:    encoder.DefaultStopAllCommand,
		InflateAllCommand: encoder.DefaultInflateAllCommand,
	}
}

func SettingsFromConfig(cfg config.ProtocolConfig) (Settings, error) {
	s := Settings{
		StopAllCommand:    cfg.StopAllCommand,
		InflateAllCommand: cfg.InflateAllCommand,
		IncludeFirstSlot:  cfg.IncludeFirstSlot,
	}

	modes := []struct {
		dst  *encoder.Mode
		name string
	}{
		{&s.ActuatorMode, cfg.Encoding.Actuator},
		{&s.PressureMode, cfg.Encoding.Pressure},
		{&s.StopAllMode, cfg.Encoding.StopAll},
		{&s.InflateAllMode, cfg.Encoding.InflateAll},
	}
	for _, m := range modes {
		mode, err := encoder.ParseMode(m.name)
		if err != nil {
			return Settings{}, err
		}
		*m.dst = mode
	}
	return s, nil
}

// Outcome is the result of one wire write.
type Outcome struct {
	Kind    journal.Kind `json:"kind"`
	Index   int          `json:"index"`
	Value   int          `json:"value"`
	Payload int          `json:"payload"`
	Channel string       `json:"channel"`
	Err     error        `json:"-"`
	Error   string       `json:"error,omitempty"`
}

func (o Outcome) OK() bool { return o.Err == nil }

type pendingDrag struct {
	drag    placement.Drag
	created time.Time
}

type Console struct {
	transport Transport
	settings  Settings
	journal   journal.Journal
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time

	// dispatchMu keeps the writes of one intent contiguous on the wire.
	dispatchMu sync.Mutex

	mu        sync.Mutex
	placement *placement.Model
	pressures *pressure.Register
	drags     map[uuid.UUID]pendingDrag
}

func New(
	t Transport,
	model *placement.Model,
	settings Settings,
	j journal.Journal,
	publisher Publisher,
	logger *zap.Logger,
) *Console {
	if j == nil {
		j = journal.Nop{}
	}
	return &Console{
		transport: t,
		settings:  settings,
		journal:   j,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		placement: model,
		pressures: pressure.NewRegister(model.SelectedCount()),
		drags:     make(map[uuid.UUID]pendingDrag),
	}
}

func (c *Console) Settings() Settings { return c.settings }

func (c *Console) publish(kind EventKind, data any) {
	if c.publisher != nil {
		c.publisher.Publish(kind, data)
	}
}

// Connect opens the transport. Safe to call while connected.
func (c *Console) Connect(ctx context.Context) (transport.Info, error) {
	return c.transport.Connect(ctx)
}

func (c *Console) Disconnect() {
	c.transport.Disconnect()
}

// SelectCount fixes the number of actuators and sizes the pressure register.
func (c *Console) SelectCount(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.selectCountLocked(n); err != nil {
		return err
	}
	c.logger.Info("Actuator count selected", zap.Int("count", n))
	c.publishStateLocked()
	return nil
}

func (c *Console) selectCountLocked(n int) error {
	if err := c.placement.SelectCount(n); err != nil {
		return err
	}
	c.pressures.Resize(n)
	c.drags = make(map[uuid.UUID]pendingDrag)
	return nil
}

// Reset wipes placement and pressure state.
func (c *Console) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()
	c.logger.Info("Placement reset")
	c.publishStateLocked()
}

func (c *Console) resetLocked() {
	c.placement.Reset()
	c.pressures.Resize(0)
	c.drags = make(map[uuid.UUID]pendingDrag)
}

// publishStateLocked emits the current placement and pressures. Called with
// c.mu held so events leave in the order the state changed.
func (c *Console) publishStateLocked() {
	c.publish(EventPlacement, c.placement.Snapshot())
	c.publish(EventPressures, c.pressures.Values())
}

// BeginDrag records the provenance of a drag and returns a token for the
// matching Drop.
func (c *Console) BeginDrag(actuatorID int, origin *types.Cell) (uuid.UUID, placement.Drag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	drag, err := c.placement.BeginDrag(actuatorID, origin)
	if err != nil {
		return uuid.Nil, placement.Drag{}, err
	}

	now := c.now()
	for id, p := range c.drags {
		if now.Sub(p.created) > dragTTL {
			delete(c.drags, id)
		}
	}

	id := uuid.New()
	c.drags[id] = pendingDrag{drag: drag, created: now}
	return id, drag, nil
}

// Drop completes the drag identified by dragID on target. The token is
// consumed by a successful drop or by one the grid no longer matches; an
// out-of-bounds target leaves it usable.
func (c *Console) Drop(dragID uuid.UUID, target types.Cell) (placement.DropResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.drags[dragID]
	if !ok || c.now().Sub(p.created) > dragTTL {
		delete(c.drags, dragID)
		return placement.DropResult{}, fmt.Errorf("%w: %s", ErrUnknownDrag, dragID)
	}

	res, err := c.dropLocked(p.drag, target)
	if err == nil || errors.Is(err, placement.ErrInvalidDrag) {
		delete(c.drags, dragID)
	}
	return res, err
}

// DropDrag completes a drag captured by the caller.
func (c *Console) DropDrag(drag placement.Drag, target types.Cell) (placement.DropResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked(drag, target)
}

func (c *Console) dropLocked(drag placement.Drag, target types.Cell) (placement.DropResult, error) {
	res, err := c.placement.Drop(target, drag)
	if err != nil || res.Ignored {
		return res, err
	}

	c.logger.Debug("Actuator dropped",
		zap.Int("actuator", drag.ActuatorID),
		zap.Int("row", target.Row),
		zap.Int("col", target.Col),
		zap.Bool("swapped", res.Swapped))
	c.publish(EventPlacement, c.placement.Snapshot())
	return res, nil
}

// Place drops an unplaced actuator straight from the pool onto cell.
func (c *Console) Place(actuatorID int, cell types.Cell) (placement.DropResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	drag, err := c.placement.BeginDrag(actuatorID, nil)
	if err != nil {
		return placement.DropResult{}, err
	}
	return c.dropLocked(drag, cell)
}

// ApplyLayout replaces the placement with p in one step. Other intents see
// either the old placement or the finished layout. A preset that fails
// part way leaves the console reset.
func (c *Console) ApplyLayout(p *layout.Preset) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := layout.Apply(layoutTarget{c}, p)
	if err != nil {
		c.logger.Warn("Layout apply failed", zap.String("layout", p.Name), zap.Error(err))
	} else {
		c.logger.Info("Layout applied",
			zap.String("layout", p.Name),
			zap.Int("count", p.Count),
			zap.Int("placements", len(p.Placements)))
	}
	c.publishStateLocked()
	return err
}

// layoutTarget applies a preset with c.mu already held. It publishes
// nothing; ApplyLayout publishes the outcome once.
type layoutTarget struct{ c *Console }

func (t layoutTarget) Reset() { t.c.resetLocked() }

func (t layoutTarget) SelectCount(n int) error { return t.c.selectCountLocked(n) }

func (t layoutTarget) Place(actuatorID int, cell types.Cell) (placement.DropResult, error) {
	drag, err := t.c.placement.BeginDrag(actuatorID, nil)
	if err != nil {
		return placement.DropResult{}, err
	}
	return t.c.placement.Drop(cell, drag)
}

// SetPressure applies operator input to one pressure slot.
func (c *Console) SetPressure(index int, raw string) ([]pressure.Slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.pressures.SetValue(index, raw)
	slots := c.pressures.Values()
	if err != nil {
		return slots, err
	}
	c.publish(EventPressures, slots)
	return slots, nil
}

// DispatchAction fires the actuator with the given id.
func (c *Console) DispatchAction(ctx context.Context, actuatorID int) (Outcome, error) {
	c.mu.Lock()
	selected := c.placement.SelectedCount()
	c.mu.Unlock()

	if actuatorID < 0 || actuatorID >= selected {
		return Outcome{}, fmt.Errorf("%w: %d", ErrUnknownActuator, actuatorID)
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	o := c.send(ctx, journal.KindActuator, actuatorID, actuatorID, c.settings.ActuatorMode)
	return o, o.Err
}

// DispatchAllStop deflates every actuator.
func (c *Console) DispatchAllStop(ctx context.Context) (Outcome, error) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	o := c.send(ctx, journal.KindStopAll, -1, c.settings.StopAllCommand, c.settings.StopAllMode)
	return o, o.Err
}

// DispatchAllStart inflates every actuator.
func (c *Console) DispatchAllStart(ctx context.Context) (Outcome, error) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	o := c.send(ctx, journal.KindInflateAll, -1, c.settings.InflateAllCommand, c.settings.InflateAllMode)
	return o, o.Err
}

// SubmitPressures writes every set slot, one write per slot in index order.
// Slot 0 is skipped unless IncludeFirstSlot is set. A failed write does not
// stop the remaining ones; the returned error joins all failures.
func (c *Console) SubmitPressures(ctx context.Context) ([]Outcome, error) {
	c.mu.Lock()
	selected := c.placement.SelectedCount()
	slots := c.pressures.Values()
	c.mu.Unlock()

	first := 1
	if c.settings.IncludeFirstSlot {
		first = 0
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	var outcomes []Outcome
	var errs []error
	for i := first; i < selected && i < len(slots); i++ {
		if !slots[i].Set {
			continue
		}
		o := c.send(ctx, journal.KindPressure, i, slots[i].Value, c.settings.PressureMode)
		outcomes = append(outcomes, o)
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", i, o.Err))
		}
	}

	c.logger.Info("Pressures submitted",
		zap.Int("writes", len(outcomes)),
		zap.Int("failed", len(errs)))

	return outcomes, errors.Join(errs...)
}

// ReadBattery reads the battery channel once.
func (c *Console) ReadBattery(ctx context.Context) (byte, error) {
	level, err := c.transport.Read(ctx, transport.ChannelBattery)
	if err != nil {
		c.logger.Warn("Battery read failed", zap.Error(err))
		return 0, err
	}
	c.publish(EventBattery, BatteryReading{Level: int(level), At: c.now()})
	return level, nil
}

type BatteryReading struct {
	Level int       `json:"level"`
	At    time.Time `json:"at"`
}

// send encodes value and writes it to the command channel. Failures are
// logged and returned in the outcome; the session keeps running.
func (c *Console) send(ctx context.Context, kind journal.Kind, index, value int, mode encoder.Mode) Outcome {
	o := Outcome{
		Kind:    kind,
		Index:   index,
		Value:   value,
		Payload: -1,
		Channel: transport.ChannelCommand.String(),
	}

	payload, err := encoder.Encode(mode, value)
	if err != nil {
		o.Err = err
		o.Error = err.Error()
		c.logger.Error("Command encoding failed",
			zap.String("kind", string(kind)),
			zap.Int("value", value),
			zap.Error(err))
		c.publish(EventDispatch, o)
		return o
	}
	o.Payload = int(payload)

	// Captured before the write: link loss clears it.
	info, _ := c.transport.Info()

	if err := c.transport.Write(ctx, transport.ChannelCommand, payload); err != nil {
		o.Err = err
		o.Error = err.Error()
		c.logger.Warn("Command dispatch failed",
			zap.String("kind", string(kind)),
			zap.Int("value", value),
			zap.Uint8("payload", payload),
			zap.Error(err))
	} else {
		c.logger.Info("Command dispatched",
			zap.String("kind", string(kind)),
			zap.Int("value", value),
			zap.Uint8("payload", payload))
	}

	c.record(ctx, info.SessionID, o)
	c.publish(EventDispatch, o)
	return o
}

func (c *Console) record(ctx context.Context, sessionID uuid.UUID, o Outcome) {
	entry := journal.Entry{
		ID:        uuid.New(),
		SessionID: sessionID,
		Kind:      o.Kind,
		Channel:   o.Channel,
		Value:     o.Value,
		Payload:   o.Payload,
		Success:   o.Err == nil,
		Error:     o.Error,
		CreatedAt: c.now(),
	}
	if err := c.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		c.logger.Warn("Failed to journal dispatch", zap.Error(err))
	}
}

// Journal exposes the dispatch journal for read access.
func (c *Console) Journal() journal.Journal { return c.journal }

// State is everything a client needs to render the console.
type State struct {
	Connection transport.State    `json:"connection"`
	Session    *transport.Info    `json:"session,omitempty"`
	Placement  placement.Snapshot `json:"placement"`
	Pressures  []pressure.Slot    `json:"pressures"`
}

func (c *Console) Snapshot() State {
	c.mu.Lock()
	snap := c.placement.Snapshot()
	slots := c.pressures.Values()
	c.mu.Unlock()

	st := State{
		Connection: c.transport.State(),
		Placement:  snap,
		Pressures:  slots,
	}
	if info, ok := c.transport.Info(); ok {
		st.Session = &info
	}
	return st
}

func (c *Console) Placement() placement.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.placement.Snapshot()
}

func (c *Console) Pressures() []pressure.Slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pressures.Values()
}

// Roster is the full actuator roster, selected or not.
func (c *Console) Roster() []types.Actuator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.placement.Roster()
}
