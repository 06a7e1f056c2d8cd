package hci

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rigado/sco"
)

// Conn is one link-layer connection record. ACL records mirror links
// owned by the external ACL engine; synchronous records are owned
// here. Records are refcounted: the table holds one reference, a
// bound channel holds one, and callers of CreateSCOConn receive one.
// The record is freed when the count reaches zero.
type Conn struct {
	mgr  *manager
	typ  sco.LinkType
	peer sco.Addr

	handle uint16
	acl    *Conn // synchronous links: the ACL they ride on, one ref held
	chn    *Chan // bound channel, synchronous links only

	refs int32

	mu        sync.Mutex
	encrypted bool
	done      bool

	chInFrame chan []byte
	chDone    chan struct{}
}

func newACLConn(m *manager, handle uint16, peer sco.Addr, encrypted bool) *Conn {
	return &Conn{
		mgr:       m,
		typ:       sco.LinkACL,
		peer:      peer,
		handle:    handle,
		encrypted: encrypted,
		refs:      1,
		chDone:    make(chan struct{}),
	}
}

func newSyncConn(m *manager, typ sco.LinkType, peer sco.Addr, acl *Conn) *Conn {
	return &Conn{
		mgr:       m,
		typ:       typ,
		peer:      peer,
		handle:    invalidHandle,
		acl:       acl.ref(),
		refs:      1,
		chInFrame: make(chan []byte, scoFrameChannelSize),
		chDone:    make(chan struct{}),
	}
}

// Handle returns the link-layer connection handle. Only valid once
// the link completed.
func (c *Conn) Handle() uint16 {
	return c.handle
}

// RemoteAddr returns remote device's address.
func (c *Conn) RemoteAddr() sco.Addr {
	return c.peer
}

func (c *Conn) Type() sco.LinkType {
	return c.typ
}

func (c *Conn) Encrypted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encrypted
}

func (c *Conn) setEncrypted(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encrypted = on
}

// Ref takes an additional reference on the connection.
func (c *Conn) Ref() sco.Conn {
	return c.ref()
}

func (c *Conn) ref() *Conn {
	atomic.AddInt32(&c.refs, 1)
	return c
}

// Unref gives up one reference; the record is freed at zero.
func (c *Conn) Unref() {
	n := atomic.AddInt32(&c.refs, -1)
	switch {
	case n < 0:
		c.mgr.Warnf("conn %v: reference count underflow", c.peer)
	case n == 0:
		c.free()
	}
}

// RefCount returns the current reference count.
func (c *Conn) RefCount() int {
	return int(atomic.LoadInt32(&c.refs))
}

func (c *Conn) free() {
	if c.acl != nil {
		c.acl.Unref()
		c.acl = nil
	}
}

// Disconnected returns a receiving channel, which is closed when the
// connection disconnects.
func (c *Conn) Disconnected() <-chan struct{} {
	return c.chDone
}

// markDisconnected unblocks readers and Disconnected() waiters. Safe
// to call more than once.
func (c *Conn) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.done = true
		close(c.chDone)
	}
}

// putFrame queues an inbound voice frame. Voice is lossy; if the
// reader is behind the frame is dropped rather than stalling event
// dispatch.
func (c *Conn) putFrame(b []byte) {
	select {
	case c.chInFrame <- b:
	default:
		c.mgr.Debugf("conn %04x: voice frame dropped, reader behind", c.handle)
	}
}

// Read returns the next inbound voice frame. The provided buffer must
// hold a whole frame.
func (c *Conn) Read(p []byte) (int, error) {
	if !c.typ.Synchronous() {
		return 0, errors.New("read: not a synchronous link")
	}

	select {
	case <-c.chDone:
		return 0, io.EOF
	case f := <-c.chInFrame:
		if len(p) < len(f) {
			return 0, fmt.Errorf("read: buffer too small, frame %v bytes", len(f))
		}
		return copy(p, f), nil
	}
}

// Write sends one voice frame on the link.
func (c *Conn) Write(p []byte) (int, error) {
	if !c.typ.Synchronous() {
		return 0, errors.New("write: not a synchronous link")
	}
	if len(p) == 0 || len(p) > 0xff {
		return 0, fmt.Errorf("write: bad frame length %v", len(p))
	}

	select {
	case <-c.chDone:
		return 0, io.ErrClosedPipe
	default:
	}

	pkt, err := buildFrame(c.handle, p)
	if err != nil {
		return 0, err
	}

	if _, err := c.mgr.ctrl.SocketWrite(pkt); err != nil {
		return 0, errors.Wrap(err, "conn.Write")
	}
	return len(p), nil
}

// buildFrame prepends the HCI SCO Data header [Vol 2, Part E, 5.4.3].
func buildFrame(handle uint16, p []byte) ([]byte, error) {
	pkt := bytes.NewBuffer(make([]byte, 0, 4+len(p)))
	if err := binary.Write(pkt, binary.LittleEndian, pktTypeSCOData); err != nil {
		return nil, errors.Wrap(err, "buildFrame")
	}
	// handle with packet status flags zero
	if err := binary.Write(pkt, binary.LittleEndian, handle&0x0fff); err != nil {
		return nil, errors.Wrap(err, "buildFrame")
	}
	if err := binary.Write(pkt, binary.LittleEndian, uint8(len(p))); err != nil {
		return nil, errors.Wrap(err, "buildFrame")
	}
	if err := binary.Write(pkt, binary.LittleEndian, p); err != nil {
		return nil, errors.Wrap(err, "buildFrame")
	}
	return pkt.Bytes(), nil
}

// Close requests disconnection of the link. Completion is reported
// through the channel and registry callbacks.
func (c *Conn) Close() error {
	return c.mgr.disconnect(c, uint8(ErrRemoteUser))
}

// connTable tracks connection records by handle, plus synchronous
// records whose handle has not been assigned yet. Entries enter with
// the constructor's reference owned by the table; whoever takes an
// entry out is responsible for giving that reference up.
type connTable struct {
	sync.Mutex
	conns   map[uint16]*Conn
	pending []*Conn
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[uint16]*Conn)}
}

func (t *connTable) add(c *Conn) error {
	t.Lock()
	defer t.Unlock()

	if _, ok := t.conns[c.handle]; ok {
		return fmt.Errorf("connection handle %04x already present", c.handle)
	}
	t.conns[c.handle] = c
	return nil
}

func (t *connTable) addPending(c *Conn) {
	t.Lock()
	defer t.Unlock()
	t.pending = append(t.pending, c)
}

// promote moves a pending record into the handle map once the
// controller assigned it a handle.
func (t *connTable) promote(c *Conn, handle uint16) error {
	t.Lock()
	defer t.Unlock()

	if !t.unlistPending(c) {
		return fmt.Errorf("connection %v not pending", c.peer)
	}
	if _, ok := t.conns[handle]; ok {
		return fmt.Errorf("connection handle %04x already present", handle)
	}
	c.handle = handle
	t.conns[handle] = c
	return nil
}

func (t *connTable) removePending(c *Conn) bool {
	t.Lock()
	defer t.Unlock()
	return t.unlistPending(c)
}

func (t *connTable) unlistPending(c *Conn) bool {
	for i, p := range t.pending {
		if p == c {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (t *connTable) remove(handle uint16) *Conn {
	t.Lock()
	defer t.Unlock()

	c, ok := t.conns[handle]
	if !ok {
		return nil
	}
	delete(t.conns, handle)
	return c
}

func (t *connTable) lookup(handle uint16) *Conn {
	t.Lock()
	defer t.Unlock()
	return t.conns[handle]
}

func (t *connTable) lookupAddr(a sco.Addr, typ sco.LinkType) *Conn {
	t.Lock()
	defer t.Unlock()

	for _, c := range t.conns {
		if c.typ == typ && c.peer.String() == a.String() {
			return c
		}
	}
	for _, c := range t.pending {
		if c.typ == typ && c.peer.String() == a.String() {
			return c
		}
	}
	return nil
}

// syncAddr returns any live synchronous record for a peer.
func (t *connTable) syncAddr(a sco.Addr) *Conn {
	t.Lock()
	defer t.Unlock()

	for _, c := range t.conns {
		if c.typ.Synchronous() && c.peer.String() == a.String() {
			return c
		}
	}
	for _, c := range t.pending {
		if c.typ.Synchronous() && c.peer.String() == a.String() {
			return c
		}
	}
	return nil
}

// pendingSyncAddr returns the pending synchronous record for a peer.
func (t *connTable) pendingSyncAddr(a sco.Addr) *Conn {
	t.Lock()
	defer t.Unlock()

	for _, c := range t.pending {
		if c.typ.Synchronous() && c.peer.String() == a.String() {
			return c
		}
	}
	return nil
}

// pendingOn returns pending synchronous records riding the given ACL.
func (t *connTable) pendingOn(acl *Conn) []*Conn {
	t.Lock()
	defer t.Unlock()

	var out []*Conn
	for _, c := range t.pending {
		if c.acl == acl {
			out = append(out, c)
		}
	}
	return out
}

func (t *connTable) syncCount() int {
	t.Lock()
	defer t.Unlock()

	n := 0
	for _, c := range t.conns {
		if c.typ.Synchronous() {
			n++
		}
	}
	for _, c := range t.pending {
		if c.typ.Synchronous() {
			n++
		}
	}
	return n
}
