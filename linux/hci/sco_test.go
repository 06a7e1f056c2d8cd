package hci

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/rigado/sco"
)

type sentCmd struct {
	op int
	b  []byte
}

type fakeController struct {
	mu   sync.Mutex
	sent []sentCmd
	fail map[int]error
	out  [][]byte
}

func (f *fakeController) Send(c Command, r CommandRP) error {
	if err := f.fail[c.OpCode()]; err != nil {
		return err
	}
	b := make([]byte, c.Len())
	if err := c.Marshal(b); err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, sentCmd{c.OpCode(), b})
	f.mu.Unlock()
	return nil
}

func (f *fakeController) SocketWrite(b []byte) (int, error) {
	f.mu.Lock()
	f.out = append(f.out, b)
	f.mu.Unlock()
	return len(b), nil
}

func (f *fakeController) DispatchError(e error) {}

func (f *fakeController) ops() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.op
	}
	return out
}

func (f *fakeController) last() sentCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentCmd{op: -1}
	}
	return f.sent[len(f.sent)-1]
}

const (
	opSetup      = 0x01<<10 | 0x0028
	opAccept     = 0x01<<10 | 0x0029
	opReject     = 0x01<<10 | 0x002A
	opDisconnect = 0x01<<10 | 0x0006
)

var testPeer = sco.NewAddr("aa:bb:cc:dd:ee:f0")

func newTestManager() (*manager, *fakeController) {
	ctrl := &fakeController{fail: map[int]error{}}
	m := newManager(ctrl, newConnTable(), sco.GetLogger())
	return m, ctrl
}

func addACL(t *testing.T, m *manager, handle uint16, peer sco.Addr, encrypted bool) *Conn {
	t.Helper()
	acl := newACLConn(m, handle, peer, encrypted)
	if err := m.conns.add(acl); err != nil {
		t.Fatalf("add acl: %s", err)
	}
	return acl
}

// onAir gives the little-endian address order events carry.
func onAir(a sco.Addr) [6]byte {
	b := a.Bytes()
	return [6]byte{b[5], b[4], b[3], b[2], b[1], b[0]}
}

func connReqEvt(a sco.Addr, devClass [3]byte, lt uint8) []byte {
	ba := onAir(a)
	e := append([]byte{}, ba[:]...)
	e = append(e, devClass[:]...)
	return append(e, lt)
}

func TestCreateConnValidation(t *testing.T) {
	m, _ := newTestManager()
	addACL(t, m, 0x0001, testPeer, false)

	if _, err := m.CreateConn(testPeer, nil); errors.Cause(err) != sco.ErrInvalidArgument {
		t.Fatalf("nil channel: got %v, want ErrInvalidArgument", err)
	}
	if _, err := m.CreateConn(sco.NewAddr("nope"), &Chan{}); errors.Cause(err) != sco.ErrInvalidArgument {
		t.Fatalf("bad address: got %v, want ErrInvalidArgument", err)
	}
	if _, err := m.CreateConn(sco.NewAddr("11:22:33:44:55:66"), &Chan{}); errors.Cause(err) != sco.ErrNoResources {
		t.Fatalf("no acl: got %v, want ErrNoResources", err)
	}

	ch := &Chan{}
	c, err := m.CreateConn(testPeer, ch)
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	defer c.Unref()

	if _, err := m.CreateConn(testPeer, ch); errors.Cause(err) != sco.ErrAlreadyBound {
		t.Fatalf("bound channel: got %v, want ErrAlreadyBound", err)
	}
}

func TestCreateConnEstablish(t *testing.T) {
	m, ctrl := newTestManager()
	addACL(t, m, 0x0001, testPeer, false)

	var order []string
	ch := &Chan{Ops: ChanOps{
		Connected: func(c *Chan) { order = append(order, "chan") },
	}}
	cb := &ConnCb{Connected: func(c *Conn, err uint8) { order = append(order, "registry") }}
	if err := m.RegisterConnCb(cb); err != nil {
		t.Fatalf("register cb: %s", err)
	}

	c, err := m.CreateConn(testPeer, ch)
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	defer c.Unref()

	if got := ch.State(); got != ChanConnecting {
		t.Fatalf("state after create: %v, want %v", got, ChanConnecting)
	}
	if got := ctrl.last().op; got != opSetup {
		t.Fatalf("sent opcode 0x%04x, want 0x%04x", got, opSetup)
	}
	// table, channel and caller each hold one
	if got := c.RefCount(); got != 3 {
		t.Fatalf("refcount %v, want 3", got)
	}

	m.connComplete(testPeer, 0x0100, 0)

	if got := ch.State(); got != ChanConnected {
		t.Fatalf("state after complete: %v, want %v", got, ChanConnected)
	}
	if len(order) != 2 || order[0] != "chan" || order[1] != "registry" {
		t.Fatalf("callback order %v, want [chan registry]", order)
	}
	if got := c.Handle(); got != 0x0100 {
		t.Fatalf("handle %04x, want 0100", got)
	}
	if m.conns.lookup(0x0100) != c {
		t.Fatal("connection not reachable by handle")
	}
}

func TestCreateConnDuplicatePeer(t *testing.T) {
	m, _ := newTestManager()
	m.maxSyncConns = 3
	addACL(t, m, 0x0001, testPeer, false)

	c, err := m.CreateConn(testPeer, &Chan{})
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	defer c.Unref()

	if _, err := m.CreateConn(testPeer, &Chan{}); errors.Cause(err) != sco.ErrNoResources {
		t.Fatalf("duplicate peer: got %v, want ErrNoResources", err)
	}
}

func TestCreateConnSlotLimit(t *testing.T) {
	m, _ := newTestManager()
	peer2 := sco.NewAddr("aa:bb:cc:dd:ee:f1")
	addACL(t, m, 0x0001, testPeer, false)
	addACL(t, m, 0x0002, peer2, false)

	c, err := m.CreateConn(testPeer, &Chan{})
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	defer c.Unref()

	if _, err := m.CreateConn(peer2, &Chan{}); errors.Cause(err) != sco.ErrNoResources {
		t.Fatalf("slot limit: got %v, want ErrNoResources", err)
	}
}

func TestCreateConnSetupFailureUnwinds(t *testing.T) {
	m, ctrl := newTestManager()
	ctrl.fail[opSetup] = errors.New("controller unhappy")
	addACL(t, m, 0x0001, testPeer, false)

	ch := &Chan{}
	if _, err := m.CreateConn(testPeer, ch); err == nil {
		t.Fatal("expected error when setup command fails")
	}
	if got := ch.State(); got != ChanDisconnected {
		t.Fatalf("state %v, want %v", got, ChanDisconnected)
	}
	if ch.Conn() != nil {
		t.Fatal("channel still bound after failed setup")
	}
	if got := m.conns.syncCount(); got != 0 {
		t.Fatalf("sync records left behind: %v", got)
	}

	// the channel must be usable for a fresh attempt
	delete(ctrl.fail, opSetup)
	c, err := m.CreateConn(testPeer, ch)
	if err != nil {
		t.Fatalf("retry: %s", err)
	}
	c.Unref()
}

func TestCreateConnFailedCompletion(t *testing.T) {
	m, _ := newTestManager()
	addACL(t, m, 0x0001, testPeer, false)

	var chanReason uint8 = 0xaa
	var cbErr uint8 = 0xaa
	ch := &Chan{Ops: ChanOps{
		Disconnected: func(c *Chan, reason uint8) { chanReason = reason },
	}}
	cb := &ConnCb{Connected: func(c *Conn, err uint8) { cbErr = err }}
	m.RegisterConnCb(cb)

	c, err := m.CreateConn(testPeer, ch)
	if err != nil {
		t.Fatalf("create: %s", err)
	}

	m.connComplete(testPeer, 0, uint8(ErrSyncConnLimit))

	if chanReason != uint8(ErrSyncConnLimit) {
		t.Fatalf("channel reason 0x%02x, want 0x%02x", chanReason, uint8(ErrSyncConnLimit))
	}
	if cbErr != uint8(ErrSyncConnLimit) {
		t.Fatalf("registry err 0x%02x, want 0x%02x", cbErr, uint8(ErrSyncConnLimit))
	}
	if got := ch.State(); got != ChanDisconnected {
		t.Fatalf("state %v, want %v", got, ChanDisconnected)
	}
	if got := m.conns.syncCount(); got != 0 {
		t.Fatalf("sync records left behind: %v", got)
	}
	// only the caller's reference survives
	if got := c.RefCount(); got != 1 {
		t.Fatalf("refcount %v, want 1", got)
	}
	c.Unref()
}

func TestConnCompleteUnknownPeer(t *testing.T) {
	m, ctrl := newTestManager()
	// must be absorbed without sending anything
	m.connComplete(testPeer, 0x0100, 0)
	if got := len(ctrl.ops()); got != 0 {
		t.Fatalf("sent %v commands, want 0", got)
	}
}

func TestSecureCreateWaitsForEncryption(t *testing.T) {
	m, ctrl := newTestManager()
	acl := addACL(t, m, 0x0001, testPeer, false)

	ch := &Chan{Secure: true}
	c, err := m.CreateConn(testPeer, ch)
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	defer c.Unref()

	if got := ch.State(); got != ChanEncryptPending {
		t.Fatalf("state %v, want %v", got, ChanEncryptPending)
	}
	if got := len(ctrl.ops()); got != 0 {
		t.Fatalf("sent %v commands before encryption, want 0", got)
	}

	m.encryptionChange(acl.handle, 0, true)

	if got := ch.State(); got != ChanConnecting {
		t.Fatalf("state %v, want %v", got, ChanConnecting)
	}
	if got := ctrl.last().op; got != opSetup {
		t.Fatalf("sent opcode 0x%04x, want 0x%04x", got, opSetup)
	}
	if !acl.Encrypted() {
		t.Fatal("acl not marked encrypted")
	}

	m.connComplete(testPeer, 0x0100, 0)
	if got := ch.State(); got != ChanConnected {
		t.Fatalf("state %v, want %v", got, ChanConnected)
	}
}

func TestSecureCreateEncryptionFails(t *testing.T) {
	m, ctrl := newTestManager()
	acl := addACL(t, m, 0x0001, testPeer, false)

	var reason uint8
	ch := &Chan{
		Secure: true,
		Ops:    ChanOps{Disconnected: func(c *Chan, r uint8) { reason = r }},
	}
	c, err := m.CreateConn(testPeer, ch)
	if err != nil {
		t.Fatalf("create: %s", err)
	}

	m.encryptionChange(acl.handle, uint8(ErrAuthFailure), false)

	if got := ch.State(); got != ChanDisconnected {
		t.Fatalf("state %v, want %v", got, ChanDisconnected)
	}
	if reason != uint8(ErrAuthFailure) {
		t.Fatalf("reason 0x%02x, want 0x%02x", reason, uint8(ErrAuthFailure))
	}
	if got := len(ctrl.ops()); got != 0 {
		t.Fatalf("sent %v commands, want 0", got)
	}
	if got := c.RefCount(); got != 1 {
		t.Fatalf("refcount %v, want 1", got)
	}
	c.Unref()
}

func TestSecureCreateEncryptionOffReported(t *testing.T) {
	m, _ := newTestManager()
	acl := addACL(t, m, 0x0001, testPeer, false)

	var reason uint8 = 0xaa
	ch := &Chan{
		Secure: true,
		Ops:    ChanOps{Disconnected: func(c *Chan, r uint8) { reason = r }},
	}
	c, err := m.CreateConn(testPeer, ch)
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	defer c.Unref()

	// success status but encryption off still fails the attempt
	m.encryptionChange(acl.handle, 0, false)

	if reason != uint8(ErrAuthFailure) {
		t.Fatalf("reason 0x%02x, want 0x%02x", reason, uint8(ErrAuthFailure))
	}
}

func TestConnRequestNoServerRejects(t *testing.T) {
	m, ctrl := newTestManager()
	addACL(t, m, 0x0001, testPeer, false)

	m.connRequest(connReqEvt(testPeer, [3]byte{}, uint8(sco.LinkESCO)))

	last := ctrl.last()
	if last.op != opReject {
		t.Fatalf("sent opcode 0x%04x, want 0x%04x", last.op, opReject)
	}
	if got := last.b[6]; got != uint8(ErrLimResources) {
		t.Fatalf("reject reason 0x%02x, want 0x%02x", got, uint8(ErrLimResources))
	}
}

func TestConnRequestNoACLRejects(t *testing.T) {
	m, ctrl := newTestManager()

	accepted := false
	m.RegisterServer(&Server{Accept: func(info *AcceptInfo) (*Chan, error) {
		accepted = true
		return &Chan{}, nil
	}})

	m.connRequest(connReqEvt(testPeer, [3]byte{}, uint8(sco.LinkSCO)))

	if accepted {
		t.Fatal("accept called without an ACL connection")
	}
	if got := ctrl.last().op; got != opReject {
		t.Fatalf("sent opcode 0x%04x, want 0x%04x", got, opReject)
	}
}

func TestConnRequestSecurityLevel(t *testing.T) {
	m, ctrl := newTestManager()
	acl := addACL(t, m, 0x0001, testPeer, false)

	m.RegisterServer(&Server{
		SecLevel: SecurityMedium,
		Accept:   func(info *AcceptInfo) (*Chan, error) { return &Chan{}, nil },
	})

	m.connRequest(connReqEvt(testPeer, [3]byte{}, uint8(sco.LinkESCO)))

	last := ctrl.last()
	if last.op != opReject {
		t.Fatalf("sent opcode 0x%04x, want 0x%04x", last.op, opReject)
	}
	if got := last.b[6]; got != uint8(ErrSecurity) {
		t.Fatalf("reject reason 0x%02x, want 0x%02x", got, uint8(ErrSecurity))
	}

	// once the acl is encrypted the same request goes through
	acl.setEncrypted(true)
	m.connRequest(connReqEvt(testPeer, [3]byte{}, uint8(sco.LinkESCO)))
	if got := ctrl.last().op; got != opAccept {
		t.Fatalf("sent opcode 0x%04x, want 0x%04x", got, opAccept)
	}
}

func TestConnRequestAccepted(t *testing.T) {
	m, ctrl := newTestManager()
	acl := addACL(t, m, 0x0001, testPeer, false)

	dc := [3]byte{0x04, 0x04, 0x20}
	ch := &Chan{}
	var info AcceptInfo
	m.RegisterServer(&Server{Accept: func(i *AcceptInfo) (*Chan, error) {
		info = *i
		return ch, nil
	}})

	m.connRequest(connReqEvt(testPeer, dc, uint8(sco.LinkESCO)))

	if info.Conn != acl {
		t.Fatal("accept did not see the underlying acl")
	}
	if info.DevClass != dc {
		t.Fatalf("device class % x, want % x", info.DevClass, dc)
	}
	if info.LinkType != sco.LinkESCO {
		t.Fatalf("link type %v, want %v", info.LinkType, sco.LinkESCO)
	}
	if got := ctrl.last().op; got != opAccept {
		t.Fatalf("sent opcode 0x%04x, want 0x%04x", got, opAccept)
	}
	if got := ch.State(); got != ChanConnecting {
		t.Fatalf("state %v, want %v", got, ChanConnecting)
	}

	m.connComplete(testPeer, 0x0101, 0)
	if got := ch.State(); got != ChanConnected {
		t.Fatalf("state %v, want %v", got, ChanConnected)
	}
	if ch.Conn() == nil || ch.Conn().Handle() != 0x0101 {
		t.Fatal("channel not bound to the completed link")
	}
}

func TestConnRequestRefused(t *testing.T) {
	m, ctrl := newTestManager()
	addACL(t, m, 0x0001, testPeer, false)

	m.RegisterServer(&Server{Accept: func(info *AcceptInfo) (*Chan, error) {
		return nil, errors.New("busy")
	}})

	m.connRequest(connReqEvt(testPeer, [3]byte{}, uint8(sco.LinkESCO)))
	if got := ctrl.last().op; got != opReject {
		t.Fatalf("sent opcode 0x%04x, want 0x%04x", got, opReject)
	}
}

func TestConnRequestBoundChannelRejected(t *testing.T) {
	m, ctrl := newTestManager()
	addACL(t, m, 0x0001, testPeer, false)

	bound := &Chan{}
	c, err := m.CreateConn(testPeer, bound)
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	defer c.Unref()

	peer2 := sco.NewAddr("aa:bb:cc:dd:ee:f1")
	addACL(t, m, 0x0002, peer2, false)
	m.maxSyncConns = 3

	m.RegisterServer(&Server{Accept: func(info *AcceptInfo) (*Chan, error) {
		return bound, nil
	}})

	m.connRequest(connReqEvt(peer2, [3]byte{}, uint8(sco.LinkESCO)))
	if got := ctrl.last().op; got != opReject {
		t.Fatalf("sent opcode 0x%04x, want 0x%04x", got, opReject)
	}
}

func TestServerRegistration(t *testing.T) {
	m, _ := newTestManager()

	if err := m.RegisterServer(nil); errors.Cause(err) != sco.ErrInvalidArgument {
		t.Fatalf("nil server: got %v, want ErrInvalidArgument", err)
	}
	if err := m.RegisterServer(&Server{}); errors.Cause(err) != sco.ErrInvalidArgument {
		t.Fatalf("no accept: got %v, want ErrInvalidArgument", err)
	}

	s := &Server{Accept: func(info *AcceptInfo) (*Chan, error) { return &Chan{}, nil }}
	if err := m.RegisterServer(s); err != nil {
		t.Fatalf("register: %s", err)
	}
	if err := m.RegisterServer(s); errors.Cause(err) != sco.ErrAlreadyRegistered {
		t.Fatalf("second register: got %v, want ErrAlreadyRegistered", err)
	}

	other := &Server{Accept: s.Accept}
	if err := m.UnregisterServer(other); errors.Cause(err) != sco.ErrNotRegistered {
		t.Fatalf("unregister other: got %v, want ErrNotRegistered", err)
	}
	if err := m.UnregisterServer(s); err != nil {
		t.Fatalf("unregister: %s", err)
	}
	if err := m.UnregisterServer(s); errors.Cause(err) != sco.ErrNotRegistered {
		t.Fatalf("second unregister: got %v, want ErrNotRegistered", err)
	}
}

func TestConnCbRegistry(t *testing.T) {
	m, _ := newTestManager()

	if err := m.RegisterConnCb(nil); errors.Cause(err) != sco.ErrInvalidArgument {
		t.Fatalf("nil cb: got %v, want ErrInvalidArgument", err)
	}

	cb := &ConnCb{}
	if err := m.RegisterConnCb(cb); err != nil {
		t.Fatalf("register: %s", err)
	}
	if err := m.RegisterConnCb(cb); errors.Cause(err) != sco.ErrAlreadyRegistered {
		t.Fatalf("duplicate: got %v, want ErrAlreadyRegistered", err)
	}
	if err := m.UnregisterConnCb(cb); err != nil {
		t.Fatalf("unregister: %s", err)
	}
	if err := m.UnregisterConnCb(cb); errors.Cause(err) != sco.ErrNotRegistered {
		t.Fatalf("absent: got %v, want ErrNotRegistered", err)
	}
}

func TestConnCbOrderAndSelfUnregister(t *testing.T) {
	m, _ := newTestManager()
	addACL(t, m, 0x0001, testPeer, false)

	var order []int
	var first, second, third *ConnCb
	first = &ConnCb{Connected: func(c *Conn, err uint8) {
		order = append(order, 1)
		m.UnregisterConnCb(first)
	}}
	second = &ConnCb{Connected: func(c *Conn, err uint8) { order = append(order, 2) }}
	third = &ConnCb{Connected: func(c *Conn, err uint8) { order = append(order, 3) }}
	m.RegisterConnCb(first)
	m.RegisterConnCb(second)
	m.RegisterConnCb(third)

	c, err := m.CreateConn(testPeer, &Chan{})
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	defer c.Unref()
	m.connComplete(testPeer, 0x0100, 0)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("order %v, want [1 2 3]", order)
	}
	if err := m.UnregisterConnCb(first); errors.Cause(err) != sco.ErrNotRegistered {
		t.Fatal("self-unregister did not take effect")
	}
}

func TestDisconnectFlow(t *testing.T) {
	m, ctrl := newTestManager()
	addACL(t, m, 0x0001, testPeer, false)

	var chanReason uint8
	var cbReason uint8
	var boundAtCb *Conn
	ch := &Chan{Ops: ChanOps{
		Disconnected: func(c *Chan, r uint8) {
			chanReason = r
			boundAtCb = c.Conn()
		},
	}}
	m.RegisterConnCb(&ConnCb{Disconnected: func(c *Conn, r uint8) { cbReason = r }})

	c, err := m.CreateConn(testPeer, ch)
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	m.connComplete(testPeer, 0x0100, 0)

	if err := c.Close(); err != nil {
		t.Fatalf("close: %s", err)
	}
	if got := ctrl.last().op; got != opDisconnect {
		t.Fatalf("sent opcode 0x%04x, want 0x%04x", got, opDisconnect)
	}
	if got := ch.State(); got != ChanDisconnecting {
		t.Fatalf("state %v, want %v", got, ChanDisconnecting)
	}

	m.disconnected(c, uint8(ErrRemoteUser))

	if got := ch.State(); got != ChanDisconnected {
		t.Fatalf("state %v, want %v", got, ChanDisconnected)
	}
	if boundAtCb != nil {
		t.Fatal("channel still bound inside disconnected callback")
	}
	if chanReason != uint8(ErrRemoteUser) || cbReason != uint8(ErrRemoteUser) {
		t.Fatalf("reasons 0x%02x/0x%02x, want 0x13", chanReason, cbReason)
	}
	if m.conns.lookup(0x0100) != nil {
		t.Fatal("connection still in the table")
	}
	select {
	case <-c.Disconnected():
	default:
		t.Fatal("Disconnected channel not closed")
	}
	if got := c.RefCount(); got != 1 {
		t.Fatalf("refcount %v, want 1", got)
	}
	c.Unref()
}

func TestDisconnectRequiresConnected(t *testing.T) {
	m, _ := newTestManager()
	addACL(t, m, 0x0001, testPeer, false)

	c, err := m.CreateConn(testPeer, &Chan{})
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	defer c.Unref()

	// still connecting
	if err := c.Close(); err == nil {
		t.Fatal("expected error closing a connecting link")
	}
}

func TestDisconnectSendFailureRestoresState(t *testing.T) {
	m, ctrl := newTestManager()
	addACL(t, m, 0x0001, testPeer, false)

	ch := &Chan{}
	c, err := m.CreateConn(testPeer, ch)
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	defer c.Unref()
	m.connComplete(testPeer, 0x0100, 0)

	ctrl.fail[opDisconnect] = errors.New("controller unhappy")
	if err := c.Close(); err == nil {
		t.Fatal("expected error when disconnect command fails")
	}
	if got := ch.State(); got != ChanConnected {
		t.Fatalf("state %v, want %v", got, ChanConnected)
	}
}

func TestChannelReuseAfterDisconnect(t *testing.T) {
	m, _ := newTestManager()
	addACL(t, m, 0x0001, testPeer, false)

	ch := &Chan{}
	c, err := m.CreateConn(testPeer, ch)
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	m.connComplete(testPeer, 0x0100, 0)
	m.disconnected(c, uint8(ErrRemoteUser))
	c.Unref()

	c2, err := m.CreateConn(testPeer, ch)
	if err != nil {
		t.Fatalf("recreate on same channel: %s", err)
	}
	defer c2.Unref()
	if got := ch.State(); got != ChanConnecting {
		t.Fatalf("state %v, want %v", got, ChanConnecting)
	}
}

func TestRebindInsideDisconnectedCallback(t *testing.T) {
	m, _ := newTestManager()
	addACL(t, m, 0x0001, testPeer, false)

	var rebound *Conn
	var ch *Chan
	ch = &Chan{Ops: ChanOps{
		Disconnected: func(c *Chan, r uint8) {
			c2, err := m.CreateConn(testPeer, ch)
			if err != nil {
				t.Errorf("rebind: %s", err)
				return
			}
			rebound = c2
		},
	}}

	c, err := m.CreateConn(testPeer, ch)
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	m.connComplete(testPeer, 0x0100, 0)
	m.disconnected(c, uint8(ErrConnTimeout))
	c.Unref()

	if rebound == nil {
		t.Fatal("rebind did not happen")
	}
	if got := ch.State(); got != ChanConnecting {
		t.Fatalf("state %v, want %v", got, ChanConnecting)
	}
	rebound.Unref()
}

func TestACLRefHeldBySyncLink(t *testing.T) {
	m, _ := newTestManager()
	acl := addACL(t, m, 0x0001, testPeer, false)

	c, err := m.CreateConn(testPeer, &Chan{})
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	if got := acl.RefCount(); got != 2 {
		t.Fatalf("acl refcount %v, want 2", got)
	}

	m.connComplete(testPeer, 0x0100, 0)
	m.disconnected(c, uint8(ErrRemoteUser))
	c.Unref()

	if got := acl.RefCount(); got != 1 {
		t.Fatalf("acl refcount %v, want 1", got)
	}
}
