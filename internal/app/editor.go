package app

import (
	"context"
	"fmt"

	"github.com/bft-labs/beacons/internal/domain"
)

// Editor applies configuration changes to a beacon and decides on Commit
// whether its session must be recreated. Setters change the in-memory beacon
// right away but never restart it; Commit is the only restart path.
type Editor struct {
	m       *Machine
	b       *domain.Beacon
	restart bool
}

// Edit starts an edit of the authoritative instance of b.
func (m *Machine) Edit(b *domain.Beacon) *Editor {
	return &Editor{m: m, b: m.Resolve(b)}
}

// Beacon returns the instance being edited.
func (e *Editor) Beacon() *domain.Beacon {
	return e.b
}

// SetAdvertiseMode changes the advertise mode.
func (e *Editor) SetAdvertiseMode(v domain.AdvertiseMode) *Editor {
	e.restart = e.b.SetAdvertiseMode(v) || e.restart
	return e
}

// SetTxPower changes the transmit power level.
func (e *Editor) SetTxPower(v domain.TxPower) *Editor {
	e.restart = e.b.SetTxPower(v) || e.restart
	return e
}

// SetConnectable changes whether the beacon accepts connections.
func (e *Editor) SetConnectable(v bool) *Editor {
	e.restart = e.b.SetConnectable(v) || e.restart
	return e
}

// SetFlags replaces the advertised flags.
func (e *Editor) SetFlags(v uint32) *Editor {
	e.restart = e.b.SetFlags(v) || e.restart
	return e
}

// SetName changes the display name. Names are not transmitted, so this
// never requires a restart.
func (e *Editor) SetName(v string) *Editor {
	e.b.SetName(v)
	return e
}

// NeedsRestart reports whether a transmitted setting changed.
func (e *Editor) NeedsRestart() bool {
	return e.restart
}

// Commit persists the beacon if it is stored, then restarts it when a
// transmitted setting changed.
func (e *Editor) Commit(ctx context.Context) error {
	if e.b.Persisted() {
		e.b.Touch(e.m.now())
		if err := e.m.store.Update(ctx, e.b.Record()); err != nil {
			return fmt.Errorf("update beacon %d: %w", e.b.StorageID(), err)
		}
	}
	if !e.restart {
		return nil
	}
	e.restart = false
	e.m.logger.Debug("settings changed, restarting", fields(e.b)...)
	return e.m.Restart(ctx, e.b)
}
