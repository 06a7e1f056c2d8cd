package hci

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/sco"
	"github.com/rigado/sco/linux/hci/cmd"
	"github.com/rigado/sco/linux/hci/evt"
)

// manager owns the synchronous link lifecycle: outgoing setup,
// incoming authorization, channel state and callback fan-out. Event
// entry points are called serially from the host's dispatch context;
// the server and registry are additionally reachable from application
// goroutines and carry their own locks.
type manager struct {
	sco.Logger

	ctrl  Controller
	conns *connTable

	voiceSetting uint16
	pktType      uint16
	maxLatency   uint16
	maxSyncConns int
	trace        sco.StateTrace
	cache        sco.PeerCache

	muServer sync.Mutex
	server   *Server

	muCbs sync.Mutex
	cbs   []*ConnCb
}

func newManager(ctrl Controller, conns *connTable, l sco.Logger) *manager {
	return &manager{
		Logger:       l,
		ctrl:         ctrl,
		conns:        conns,
		voiceSetting: defaultVoiceSetting,
		pktType:      defaultSyncPacketType,
		maxLatency:   defaultMaxLatency,
		maxSyncConns: defaultMaxSyncConns,
	}
}

// setState is the single place channel state changes.
func (m *manager) setState(ch *Chan, s ChanState) {
	ch.mu.Lock()
	old := ch.state
	ch.state = s
	var peer sco.Addr
	if ch.conn != nil {
		peer = ch.conn.peer
	}
	ch.mu.Unlock()
	if m.trace != nil {
		m.trace(peer, old.String(), s.String())
	}
	m.Debugf("sco chan %v: %v -> %v", peer, old, s)
}

// bind attaches a connection to a channel. The channel holds one
// reference until unbind.
func (m *manager) bind(ch *Chan, c *Conn) {
	ch.mu.Lock()
	ch.conn = c.ref()
	ch.mu.Unlock()
	c.chn = ch
}

// unbind clears the binding and gives up the channel's reference. It
// runs before terminal callbacks fire, so a callback may immediately
// bind the channel to a new link.
func (m *manager) unbind(c *Conn) *Chan {
	ch := c.chn
	if ch == nil {
		return nil
	}
	c.chn = nil
	ch.mu.Lock()
	ch.conn = nil
	ch.mu.Unlock()
	c.Unref()
	return ch
}

// CreateConn initiates a synchronous connection to a remote device
// over its existing ACL. The caller gets a new reference to the
// connection which it must give up with Unref once done.
func (m *manager) CreateConn(peer sco.Addr, ch *Chan) (*Conn, error) {
	switch {
	case ch == nil:
		return nil, errors.Wrap(sco.ErrInvalidArgument, "nil channel")
	case ch.State() != ChanDisconnected || ch.Conn() != nil:
		return nil, sco.ErrAlreadyBound
	case !sco.AddrValid(peer):
		return nil, errors.Wrap(sco.ErrInvalidArgument, "bad peer address")
	}

	acl := m.conns.lookupAddr(peer, sco.LinkACL)
	if acl == nil {
		return nil, errors.Wrapf(sco.ErrNoResources, "no ACL connection to %v", peer)
	}
	if e := m.conns.syncAddr(peer); e != nil {
		return nil, errors.Wrapf(sco.ErrNoResources, "synchronous link to %v already exists", peer)
	}
	if m.conns.syncCount() >= m.maxSyncConns {
		return nil, sco.ErrNoResources
	}

	c := newSyncConn(m, sco.LinkESCO, peer, acl)
	m.bind(ch, c)
	m.conns.addPending(c)

	if ch.Secure && !acl.Encrypted() {
		m.setState(ch, ChanEncryptPending)
		return c.ref(), nil
	}

	if err := m.sendSetup(acl); err != nil {
		m.conns.removePending(c)
		m.unbind(c)
		c.Unref()
		return nil, errors.Wrap(err, "setup synchronous connection")
	}
	m.setState(ch, ChanConnecting)
	return c.ref(), nil
}

// connRequest authorizes an incoming synchronous link request through
// the registered server. With no server every request is rejected;
// that is the fail-closed default, not an error.
func (m *manager) connRequest(e evt.ConnectionRequest) {
	ba := e.BDADDR()
	peer := sco.AddrFromBytes(ba)
	lt := sco.LinkType(e.LinkType())
	dc := e.ClassOfDevice()

	if m.cache != nil {
		r := sco.PeerRecord{DevClass: append([]byte(nil), dc[:]...), LinkType: lt}
		if err := m.cache.Store(peer, r, true); err != nil {
			m.Debugf("peer cache store %v: %v", peer, err)
		}
	}

	acl := m.conns.lookupAddr(peer, sco.LinkACL)
	if acl == nil {
		m.Warnf("sync request from %v without an ACL connection", peer)
		m.reject(ba, rejectReasonDefault)
		return
	}

	m.muServer.Lock()
	srv := m.server
	m.muServer.Unlock()

	if srv == nil {
		m.Debugf("no sco server registered, rejecting request from %v", peer)
		m.reject(ba, rejectReasonDefault)
		return
	}

	if srv.SecLevel >= SecurityMedium && !acl.Encrypted() {
		m.Infof("request from %v below required security level", peer)
		m.reject(ba, uint8(ErrSecurity))
		return
	}

	info := AcceptInfo{Conn: acl, DevClass: dc, LinkType: lt}
	ch, err := srv.Accept(&info)
	if err != nil || ch == nil {
		m.Infof("sco server refused %v: %v", peer, err)
		m.reject(ba, rejectReasonDefault)
		return
	}
	if ch.State() != ChanDisconnected || ch.Conn() != nil {
		m.Warnf("sco server returned a bound channel for %v", peer)
		m.reject(ba, rejectReasonDefault)
		return
	}
	if m.conns.syncCount() >= m.maxSyncConns {
		m.reject(ba, rejectReasonDefault)
		return
	}

	c := newSyncConn(m, lt, peer, acl)
	m.bind(ch, c)
	m.conns.addPending(c)

	if err := m.sendAccept(ba); err != nil {
		m.Errorf("accept synchronous connection from %v: %v", peer, err)
		m.conns.removePending(c)
		m.unbind(c)
		c.Unref()
		return
	}
	m.setState(ch, ChanConnecting)
}

// connComplete resolves a link completion event to the pending record
// for the peer and advances or tears down its channel.
func (m *manager) connComplete(peer sco.Addr, handle uint16, status uint8) {
	c := m.conns.pendingSyncAddr(peer)
	if c == nil {
		m.Warnf("synchronous completion for %v with no pending link", peer)
		return
	}

	if status != 0 {
		m.conns.removePending(c)
		m.connectFailed(c, status)
		c.Unref()
		return
	}

	if err := m.conns.promote(c, handle); err != nil {
		m.Errorf("synchronous completion for %v: %v", peer, err)
		return
	}
	m.connected(c)
}

// connected moves a connecting channel to connected and fans out, the
// channel's own callback first, then the registry in registration
// order.
func (m *manager) connected(c *Conn) {
	c.ref()
	defer c.Unref()

	ch := c.chn
	if ch == nil {
		m.Debugf("conn %04x: connected with no bound channel", c.handle)
		return
	}
	if st := ch.State(); st != ChanConnecting {
		m.Warnf("conn %04x: connected in state %v, ignored", c.handle, st)
		return
	}

	m.setState(ch, ChanConnected)

	if ch.Ops.Connected != nil {
		ch.Ops.Connected(ch)
	}
	m.notifyConnected(c, 0)
}

// connectFailed tears a never-established link down. reason reaches
// the channel's disconnected callback and, as a non-zero error, the
// registry's connected one.
func (m *manager) connectFailed(c *Conn, reason uint8) {
	c.ref()
	defer c.Unref()

	ch := m.unbind(c)
	c.markDisconnected()
	if ch == nil {
		m.Debugf("conn %v: connect failure with no bound channel", c.peer)
		return
	}

	m.setState(ch, ChanDisconnected)

	if ch.Ops.Disconnected != nil {
		ch.Ops.Disconnected(ch, reason)
	}
	m.notifyConnected(c, reason)
}

// disconnected handles loss or completion of teardown of an
// established link. The binding is cleared before any callback runs.
func (m *manager) disconnected(c *Conn, reason uint8) {
	c.ref()
	defer c.Unref()

	if removed := m.conns.remove(c.handle); removed != nil {
		defer removed.Unref()
	}

	ch := m.unbind(c)
	c.markDisconnected()

	if ch != nil {
		if ch.State() == ChanConnected {
			m.setState(ch, ChanDisconnecting)
		}
		m.setState(ch, ChanDisconnected)
		if ch.Ops.Disconnected != nil {
			ch.Ops.Disconnected(ch, reason)
		}
	} else {
		m.Debugf("conn %04x: disconnected with no bound channel", c.handle)
	}
	m.notifyDisconnected(c, reason)
}

// encryptionChange resolves channels parked in ChanEncryptPending on
// the given ACL.
func (m *manager) encryptionChange(handle uint16, status uint8, enabled bool) {
	acl := m.conns.lookup(handle)
	if acl == nil {
		m.Warnf("encryption change for unknown handle %04x", handle)
		return
	}
	acl.setEncrypted(status == 0 && enabled)

	for _, c := range m.conns.pendingOn(acl) {
		ch := c.chn
		if ch == nil || ch.State() != ChanEncryptPending {
			continue
		}

		if status != 0 || !enabled {
			reason := status
			if reason == 0 {
				reason = uint8(ErrAuthFailure)
			}
			m.conns.removePending(c)
			m.connectFailed(c, reason)
			c.Unref()
			continue
		}

		if err := m.sendSetup(acl); err != nil {
			m.Errorf("setup after encryption on %04x: %v", handle, err)
			m.conns.removePending(c)
			m.connectFailed(c, uint8(ErrUnspecified))
			c.Unref()
			continue
		}
		m.setState(ch, ChanConnecting)
	}
}

// disconnect initiates teardown of an established link.
func (m *manager) disconnect(c *Conn, reason uint8) error {
	if c == nil {
		return errors.Wrap(sco.ErrInvalidArgument, "nil connection")
	}
	if !c.typ.Synchronous() {
		return errors.New("not a synchronous link")
	}

	ch := c.chn
	if ch == nil || ch.State() != ChanConnected {
		return errors.Wrap(sco.ErrInvalidArgument, "link not connected")
	}

	m.setState(ch, ChanDisconnecting)
	if err := m.ctrl.Send(&cmd.Disconnect{ConnectionHandle: c.handle, Reason: reason}, nil); err != nil {
		m.setState(ch, ChanConnected)
		return errors.Wrap(err, "disconnect")
	}
	return nil
}

func (m *manager) sendSetup(acl *Conn) error {
	return m.ctrl.Send(&cmd.SetupSynchronousConnection{
		ConnectionHandle:     acl.handle,
		TransmitBandwidth:    defaultSyncBandwidth,
		ReceiveBandwidth:     defaultSyncBandwidth,
		MaxLatency:           m.maxLatency,
		VoiceSetting:         m.voiceSetting,
		RetransmissionEffort: defaultRetransEffort,
		PacketType:           m.pktType,
	}, nil)
}

func (m *manager) sendAccept(ba [6]byte) error {
	return m.ctrl.Send(&cmd.AcceptSynchronousConnectionRequest{
		BDADDR:               ba,
		TransmitBandwidth:    defaultSyncBandwidth,
		ReceiveBandwidth:     defaultSyncBandwidth,
		MaxLatency:           m.maxLatency,
		ContentFormat:        m.voiceSetting,
		RetransmissionEffort: defaultRetransEffort,
		PacketType:           m.pktType,
	}, nil)
}

func (m *manager) reject(ba [6]byte, reason uint8) {
	err := m.ctrl.Send(&cmd.RejectSynchronousConnectionRequest{
		BDADDR: ba,
		Reason: reason,
	}, nil)
	if err != nil {
		m.Errorf("reject synchronous connection: %v", err)
	}
}
