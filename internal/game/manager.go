package game

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Manager owns one settlement engine per mode. Modes run fully
// independent round sequences, so their engines start, settle and stop
// in isolation from one another.
type Manager struct {
	engines map[Mode]*Engine
}

// NewManager builds an engine for every supported mode over a shared
// ledger, history sink and broadcaster.
func NewManager(ledger Ledger, history HistorySink, hub Broadcaster, listeners ...WagerListener) *Manager {
	m := &Manager{engines: make(map[Mode]*Engine, len(Modes))}
	for _, mode := range Modes {
		m.engines[mode] = NewEngine(mode, ledger, history, hub, listeners...)
	}
	return m
}

// Engine returns the engine for a mode.
func (m *Manager) Engine(mode Mode) (*Engine, bool) {
	e, ok := m.engines[mode]
	return e, ok
}

// StartAll launches every mode's round loop.
func (m *Manager) StartAll(ctx context.Context) error {
	for mode, engine := range m.engines {
		if err := engine.Start(ctx); err != nil {
			return err
		}
		logrus.WithField("mode", string(mode)).Info("[MANAGER] engine started")
	}
	return nil
}

// StopAll terminates every mode's round loop.
func (m *Manager) StopAll() error {
	for mode, engine := range m.engines {
		if err := engine.Stop(); err != nil {
			return err
		}
		logrus.WithField("mode", string(mode)).Info("[MANAGER] engine stopped")
	}
	return nil
}
