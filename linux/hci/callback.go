package hci

import (
	"github.com/pkg/errors"
	"github.com/rigado/sco"
)

// ConnCb observes every synchronous connection, independent of which
// channel owns it. Callbacks it is not interested in may be nil.
// Instances stay registered until explicitly unregistered and are
// notified in registration order, after the owning channel's own
// callback.
type ConnCb struct {
	// Connected reports a completed establishment attempt. A non-zero
	// err means the attempt failed; err is the link-layer code.
	Connected func(c *Conn, err uint8)

	// Disconnected reports loss or teardown of an established link.
	// The stack still holds a reference to c while it runs.
	Disconnected func(c *Conn, reason uint8)
}

func (m *manager) RegisterConnCb(cb *ConnCb) error {
	if cb == nil {
		return errors.Wrap(sco.ErrInvalidArgument, "nil callback")
	}

	m.muCbs.Lock()
	defer m.muCbs.Unlock()

	for _, r := range m.cbs {
		if r == cb {
			return sco.ErrAlreadyRegistered
		}
	}
	m.cbs = append(m.cbs, cb)
	return nil
}

func (m *manager) UnregisterConnCb(cb *ConnCb) error {
	if cb == nil {
		return errors.Wrap(sco.ErrInvalidArgument, "nil callback")
	}

	m.muCbs.Lock()
	defer m.muCbs.Unlock()

	for i, r := range m.cbs {
		if r == cb {
			m.cbs = append(m.cbs[:i], m.cbs[i+1:]...)
			return nil
		}
	}
	return sco.ErrNotRegistered
}

// snapshot lets a listener unregister itself, or anyone else, from
// inside its own callback without breaking iteration.
func (m *manager) snapshotCbs() []*ConnCb {
	m.muCbs.Lock()
	defer m.muCbs.Unlock()
	return append([]*ConnCb(nil), m.cbs...)
}

func (m *manager) notifyConnected(c *Conn, err uint8) {
	for _, cb := range m.snapshotCbs() {
		if cb.Connected != nil {
			cb.Connected(c, err)
		}
	}
}

func (m *manager) notifyDisconnected(c *Conn, reason uint8) {
	for _, cb := range m.snapshotCbs() {
		if cb.Disconnected != nil {
			cb.Disconnected(c, reason)
		}
	}
}
