// Package monitor samples the battery channel while the sleeve is connected.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
	"go.uber.org/zap"
)

var ErrNoSample = errors.New("no battery sample yet")

// BatteryReader is satisfied by the console.
type BatteryReader interface {
	ReadBattery(ctx context.Context) (byte, error)
}

// StateSource reports the connection state; the monitor skips ticks while
// not connected.
type StateSource interface {
	State() transport.State
}

type Sample struct {
	Level int       `json:"level"`
	At    time.Time `json:"at"`
}

type BatteryMonitor struct {
	reader   BatteryReader
	state    StateSource
	interval time.Duration
	logger   *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	running bool
	last    *Sample
}

func NewBatteryMonitor(reader BatteryReader, state StateSource, interval time.Duration, logger *zap.Logger) *BatteryMonitor {
	return &BatteryMonitor{
		reader:   reader,
		state:    state,
		interval: interval,
		logger:   logger,
	}
}

// Start startet das zyklische Polling. A zero interval leaves the monitor off.
func (m *BatteryMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running || m.interval <= 0 {
		return
	}

	m.running = true
	m.stopChan = make(chan struct{})
	m.wg.Add(1)
	go m.pollLoop(m.stopChan)

	m.logger.Info("Battery monitor started", zap.Duration("interval", m.interval))
}

// Stop stoppt das Polling
func (m *BatteryMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Battery monitor stopped")
}

func (m *BatteryMonitor) pollLoop(stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Poll()
		}
	}
}

// Poll takes one sample if connected.
func (m *BatteryMonitor) Poll() {
	if m.state.State() != transport.StateConnected {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.interval/2+time.Second)
	defer cancel()

	if _, err := m.Read(ctx); err != nil {
		m.logger.Debug("Battery poll failed", zap.Error(err))
	}
}

// Read samples the battery now and keeps the result as the latest sample.
func (m *BatteryMonitor) Read(ctx context.Context) (Sample, error) {
	level, err := m.reader.ReadBattery(ctx)
	if err != nil {
		return Sample{}, err
	}

	s := Sample{Level: int(level), At: time.Now()}
	m.mu.Lock()
	m.last = &s
	m.mu.Unlock()
	return s, nil
}

// Last returns the most recent sample.
func (m *BatteryMonitor) Last() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Sample{}, false
	}
	return *m.last, true
}

func (m *BatteryMonitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
