package hci

import (
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/sco"
	"github.com/rigado/sco/linux/hci/cmd"
	"github.com/rigado/sco/linux/hci/evt"
)

// Command ...
type Command interface {
	OpCode() int
	Len() int
	Marshal([]byte) error
}

// CommandRP ...
type CommandRP interface {
	Unmarshal(b []byte) error
}

type handlerFn func(b []byte) error

type pkt struct {
	cmd  Command
	done chan []byte
}

// NewHCI returns a host for the voice link manager.
func NewHCI(opts ...sco.Option) (*HCI, error) {
	h := &HCI{
		chCmdBufs: make(chan []byte, chCmdBufChanSize),
		sent:      make(map[int]*pkt),
		muSent:    sync.Mutex{},

		evth: map[int]handlerFn{},

		muClose:   sync.Mutex{},
		done:      make(chan bool),
		sktRxChan: make(chan []byte, 16),
		chEvt:     make(chan []byte, 32),

		log: sco.GetLogger().ChildLogger(map[string]interface{}{"pkg": "hci"}),
	}
	h.conns = newConnTable()
	h.mgr = newManager(h, h.conns, h.log)

	if err := h.Option(opts...); err != nil {
		return nil, errors.Wrap(err, "can't set options")
	}

	return h, nil
}

// HCI drives one controller: it owns the command flow control, the
// event demux and the connection table, and hosts the synchronous
// link manager.
type HCI struct {
	log sco.Logger

	transport transport
	skt       io.ReadWriteCloser

	// Host to Controller command flow control [Vol 2, Part E, 4.4]
	chCmdBufs chan []byte
	muSent    sync.Mutex
	sent      map[int]*pkt

	// evtHub
	evth map[int]handlerFn

	// Device information or status.
	addr net.HardwareAddr

	conns *connTable
	mgr   *manager

	//error handler
	errorHandler func(error)
	err          error

	muClose sync.Mutex
	done    chan bool

	sktRxChan chan []byte

	// connection events, handled off the socket loop so their
	// handlers may issue commands and wait for the responses
	chEvt chan []byte
}

// Init brings the controller up and starts event dispatch.
func (h *HCI) Init() error {
	h.registerHandlers()

	var err error
	h.skt, err = getTransport(h.transport)
	if err != nil {
		return err
	}

	h.run()

	return h.init()
}

func (h *HCI) registerHandlers() {
	h.evth[evt.CommandCompleteCode] = h.handleCommandComplete
	h.evth[evt.CommandStatusCode] = h.handleCommandStatus
	h.evth[evt.ConnectionRequestCode] = h.handleConnectionRequest
	h.evth[evt.ConnectionCompleteCode] = h.handleConnectionComplete
	h.evth[evt.SynchronousConnectionCompleteCode] = h.handleSynchronousConnectionComplete
	h.evth[evt.DisconnectionCompleteCode] = h.handleDisconnectionComplete
	h.evth[evt.EncryptionChangeCode] = h.handleEncryptionChange
	// evt.ConnectionPacketTypeChangedCode:      not needed
	// evt.SynchronousConnectionChangedCode:     todo, renegotiation
	// evt.RoleChangeCode:                       todo
}

func (h *HCI) run() {
	h.setAllowedCommands(1)

	go h.sktReadLoop()
	go h.sktProcessLoop()
	go h.evtDispatchLoop()
}

func (h *HCI) init() error {
	h.log.Info("hci reset")
	h.Send(&cmd.Reset{}, nil)

	ReadBDADDRRP := cmd.ReadBDADDRRP{}
	h.Send(&cmd.ReadBDADDR{}, &ReadBDADDRRP)

	a := ReadBDADDRRP.BDADDR
	h.addr = net.HardwareAddr([]byte{a[5], a[4], a[3], a[2], a[1], a[0]})

	SetEventMaskRP := cmd.SetEventMaskRP{}
	h.Send(&cmd.SetEventMask{EventMask: defaultEventMask}, &SetEventMaskRP)

	WriteVoiceSettingRP := cmd.WriteVoiceSettingRP{}
	h.Send(&cmd.WriteVoiceSetting{VoiceSetting: h.mgr.voiceSetting}, &WriteVoiceSettingRP)

	return h.err
}

// Addr ...
func (h *HCI) Addr() sco.Addr {
	return sco.NewAddr(h.addr.String())
}

// Close ...
func (h *HCI) Close() error {
	h.muClose.Lock()
	defer h.muClose.Unlock()

	select {
	case <-h.done:
		//already closed, nothing to do
	default:
		close(h.done)
	}

	return nil
}

// Error ...
func (h *HCI) Error() error {
	return h.err
}

// Option sets the options specified.
func (h *HCI) Option(opts ...sco.Option) error {
	var err error
	for _, opt := range opts {
		err = opt(h)
	}
	return err
}

// CreateSCOConn initiates a synchronous connection to peer and binds
// it to ch. The returned connection carries a fresh reference the
// caller must give up with Unref when done.
func (h *HCI) CreateSCOConn(peer sco.Addr, ch *Chan) (*Conn, error) {
	return h.mgr.CreateConn(peer, ch)
}

// RegisterServer installs the accept policy for incoming synchronous
// links. Only one server may be registered at a time.
func (h *HCI) RegisterServer(s *Server) error {
	return h.mgr.RegisterServer(s)
}

// UnregisterServer removes a previously registered server.
func (h *HCI) UnregisterServer(s *Server) error {
	return h.mgr.UnregisterServer(s)
}

// Disconnect initiates teardown of an established synchronous link
// with the given reason code. Completion is reported through the
// channel and registry callbacks. Conn.Close is the same thing with
// the remote-user-terminated reason.
func (h *HCI) Disconnect(c *Conn, reason uint8) error {
	return h.mgr.disconnect(c, reason)
}

// RegisterConnCb adds a global connection state listener.
func (h *HCI) RegisterConnCb(cb *ConnCb) error {
	return h.mgr.RegisterConnCb(cb)
}

// UnregisterConnCb removes a global connection state listener.
func (h *HCI) UnregisterConnCb(cb *ConnCb) error {
	return h.mgr.UnregisterConnCb(cb)
}

func (h *HCI) isOpen() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Send ...
func (h *HCI) Send(c Command, r CommandRP) error {
	b, err := h.send(c)
	if err != nil {
		return err
	}
	if len(b) > 0 && b[0] != 0x00 {
		return ErrCommand(b[0])
	}
	if r != nil {
		return r.Unmarshal(b)
	}
	return nil
}

func (h *HCI) checkOpCodeFree(opCode int) error {
	h.muSent.Lock()
	defer h.muSent.Unlock()

	_, ok := h.sent[opCode]
	if ok {
		return fmt.Errorf("command with opcode %v pending", opCode)
	}

	return nil
}

func (h *HCI) send(c Command) ([]byte, error) {
	if h.err != nil {
		return nil, h.err
	}

	p := &pkt{c, make(chan []byte)}

	//verify opcode is free before asking for the command buffer
	//this ensures that the command buffer is only taken if
	//the command can be sent
	if h.checkOpCodeFree(c.OpCode()) != nil {
		return nil, fmt.Errorf("command with opcode %v pending", c.OpCode())
	}

	// get buffer w/timeout
	var b []byte
	select {
	case <-h.done:
		return nil, fmt.Errorf("hci closed")
	case b = <-h.chCmdBufs:
		//ok
	case <-time.After(chCmdBufTimeout):
		err := fmt.Errorf("chCmdBufs get timeout")
		h.DispatchError(err)
		return nil, err
	}

	//HCI header
	b[0] = pktTypeCommand
	b[1] = byte(c.OpCode())
	b[2] = byte(c.OpCode() >> 8)
	b[3] = byte(c.Len())
	if err := c.Marshal(b[4:]); err != nil {
		h.close(fmt.Errorf("hci: failed to marshal cmd"))
	}

	h.muSent.Lock()
	h.sent[c.OpCode()] = p
	h.muSent.Unlock()

	if !h.isOpen() {
		return nil, fmt.Errorf("hci closed")
	} else if n, err := h.skt.Write(b[:4+c.Len()]); err != nil {
		h.close(fmt.Errorf("hci: failed to send cmd"))
	} else if n != 4+c.Len() {
		h.close(fmt.Errorf("hci: failed to send whole cmd pkt to hci socket"))
	}

	var ret []byte
	var err error

	// emergency timeout to prevent calls from locking up if the HCI
	// interface doesn't respond. Responses should normally be fast
	// a timeout indicates a major problem with HCI.
	select {
	case <-time.After(3 * time.Second):
		err = fmt.Errorf("hci: no response to command, hci connection failed")
		h.log.Warnf("cmd: %x pkt: %s", c.OpCode(), hex.EncodeToString(b[:4+c.Len()]))
		h.DispatchError(err)
		ret = nil
	case <-h.done:
		err = h.err
		ret = nil
	case b := <-p.done:
		err = nil
		ret = b
	}

	// clear sent table when done, we sometimes get command complete or
	// command status messages with no matching send, which can attempt to
	// access stale packets in sent and fail or lock up.
	h.muSent.Lock()
	delete(h.sent, c.OpCode())
	h.muSent.Unlock()

	return ret, err
}

// SocketWrite sends a raw packet to the controller.
func (h *HCI) SocketWrite(b []byte) (int, error) {
	if !h.isOpen() {
		return 0, io.ErrClosedPipe
	}
	return h.skt.Write(b)
}

func (h *HCI) sktProcessLoop() {
	defer h.cleanup()
	defer h.DispatchError(h.err)

	for {
		var p []byte
		var ok bool

		select {
		case <-h.done:
			h.log.Debug("close requested")
			h.err = io.EOF
			return

		case p, ok = <-h.sktRxChan:
			if !ok {
				h.log.Debug("socket rx closed")
				h.err = io.EOF
				return
			}
			// will process the bytes below
		}

		if err := h.handlePkt(p); err != nil {
			// Some controllers append vendor specific packets at the
			// last, in this case, simply ignore them.
			if errors.Cause(err) == errVendorPacket {
				h.log.Error("skt: ", err)
			} else {
				h.err = fmt.Errorf("skt handle error: %v", err)
				return
			}
		}
	}
}

func (h *HCI) sktReadLoop() {
	defer func() {
		h.log.Debug("sktRxLoop done")
		close(h.sktRxChan)
	}()

	b := make([]byte, 4096)

	for {
		n, err := h.skt.Read(b)

		switch {
		case n == 0 && err == nil:
			// read timeout
			select {
			case <-h.done:
				//exit!
				return
			default:
				continue
			}

		//callers depend on detecting io.EOF, don't wrap it.
		case err == io.EOF:
			h.err = err
			return

		case err != nil:
			h.err = fmt.Errorf("skt read error: %v", err)
			return

		default:
			// ok
			p := make([]byte, n)
			copy(p, b)
			h.sktRxChan <- p
		}
	}
}

func (h *HCI) cleanup() {
	//close the socket
	h.close(nil)

	// get the list under lock, drop the table's references afterwards
	h.conns.Lock()
	cc := make([]*Conn, 0, len(h.conns.conns)+len(h.conns.pending))
	for ch, c := range h.conns.conns {
		cc = append(cc, c)
		delete(h.conns.conns, ch)
	}
	cc = append(cc, h.conns.pending...)
	h.conns.pending = nil
	h.conns.Unlock()

	h.log.Debugf("cleanup(): %v connection records", len(cc))
	for _, c := range cc {
		// bound channels get a terminal callback with a local-host
		// reason; their owners wait for it before reusing the channel
		if c.typ.Synchronous() && c.chn != nil {
			if c.handle != invalidHandle {
				h.mgr.disconnected(c, uint8(ErrLocalHost))
			} else {
				h.mgr.connectFailed(c, uint8(ErrLocalHost))
			}
		} else {
			c.markDisconnected()
		}
		c.Unref()
	}

	// clean out all sent commands (prob unneeded)
	h.muSent.Lock()
	for k := range h.sent {
		delete(h.sent, k)
	}
	h.muSent.Unlock()
}

func (h *HCI) close(err error) error {
	h.err = err
	if h.skt != nil {
		return h.skt.Close()
	}
	return nil
}

var errVendorPacket = errors.New("unsupported vendor packet")

func (h *HCI) handlePkt(b []byte) error {
	// Strip the 1-byte HCI header and pass down the rest of the packet.
	t, b := b[0], b[1:]
	switch t {
	case pktTypeSCOData:
		return h.handleSCO(b)
	case pktTypeEvent:
		return h.handleEvt(b)

		//unhandled stuff
	case pktTypeACLData:
		// the ACL data path belongs to the ACL engine, not to us
		h.log.Debugf("ignoring acl packet: % X", b)
		return nil
	case pktTypeCommand:
		return fmt.Errorf("unmanaged cmd: % X", b)
	case pktTypeVendor:
		return errors.Wrapf(errVendorPacket, "% X", b)
	default:
		return fmt.Errorf("invalid packet: 0x%02X % X", t, b)
	}
}

// handleSCO routes an inbound voice frame to its connection.
func (h *HCI) handleSCO(b []byte) error {
	if len(b) < 3 {
		return fmt.Errorf("invalid sco packet: % X", b)
	}
	handle := uint16(b[0]) | uint16(b[1]&0x0f)<<8

	c := h.conns.lookup(handle)
	if c == nil {
		h.log.Warn("invalid connection handle on SCO packet", "handle:", handle)
		return nil
	}
	c.putFrame(b[3:])
	return nil
}

func (h *HCI) handleEvt(b []byte) error {
	code, plen := int(b[0]), int(b[1])
	if plen != len(b[2:]) {
		return fmt.Errorf("invalid event packet: % X", b)
	}

	// Command responses are matched right here, on the socket loop.
	// Connection event handlers run on the dispatch loop and may block
	// in Send waiting for one of these; routing them through the same
	// loop would deadlock.
	switch code {
	case evt.CommandCompleteCode, evt.CommandStatusCode:
		return h.evth[code](b[2:])
	}

	if code == 0xff { // Ignore vendor events
		return nil
	}
	if h.evth[code] == nil {
		h.log.Debugf("unhandled event packet: % X", b)
		return nil
	}

	select {
	case <-h.done:
		return fmt.Errorf("hci closed")
	case h.chEvt <- b:
		return nil
	}
}

// evtDispatchLoop runs connection event handlers. Handlers here are
// allowed to issue commands and wait for their responses; a handler
// error is reported, not fatal to the host.
func (h *HCI) evtDispatchLoop() {
	for {
		select {
		case <-h.done:
			return
		case b := <-h.chEvt:
			code := int(b[0])
			if err := h.evth[code](b[2:]); err != nil {
				h.DispatchError(errors.Wrapf(err, "event 0x%02x", code))
			}
		}
	}
}

func (h *HCI) handleCommandComplete(b []byte) error {
	e := evt.CommandComplete(b)
	h.setAllowedCommands(int(e.NumHCICommandPackets()))

	// NOP command, used for flow control purpose [Vol 2, Part E, 4.4]
	// no handling other than setAllowedCommands needed
	if e.CommandOpcode() == 0x0000 {
		return nil
	}
	h.muSent.Lock()
	p, found := h.sent[int(e.CommandOpcode())]
	h.muSent.Unlock()

	if !found {
		return fmt.Errorf("can't find the cmd for CommandCompleteEP: % X", e)
	}

	select {
	case <-h.done:
		return fmt.Errorf("hci closed")
	case p.done <- e.ReturnParameters():
		return nil
	}
}

func (h *HCI) handleCommandStatus(b []byte) error {
	e := evt.CommandStatus(b)

	if !e.Valid() {
		err := fmt.Errorf("invalid command status: %v", e)
		h.DispatchError(err)
		return err
	}

	h.setAllowedCommands(int(e.NumHCICommandPackets()))

	h.muSent.Lock()
	p, found := h.sent[int(e.CommandOpcode())]
	h.muSent.Unlock()
	if !found {
		return fmt.Errorf("can't find the cmd for CommandStatusEP: % X", e)
	}

	select {
	case <-h.done:
		return fmt.Errorf("hci closed")
	case p.done <- []byte{e.Status()}:
		return nil
	}
}

// handleConnectionRequest forwards incoming synchronous requests to
// the manager. ACL requests belong to the ACL engine and are left to
// time out rather than refused on its behalf.
func (h *HCI) handleConnectionRequest(b []byte) error {
	e := evt.ConnectionRequest(b)
	lt := sco.LinkType(e.LinkType())

	if !lt.Synchronous() {
		h.log.Debugf("ignoring %v connection request: % X", lt, b)
		return nil
	}
	h.mgr.connRequest(e)
	return nil
}

// handleConnectionComplete mirrors ACL establishment into the table
// and routes legacy SCO completions to the manager.
func (h *HCI) handleConnectionComplete(b []byte) error {
	e := evt.ConnectionComplete(b)
	peer := sco.AddrFromBytes(e.BDADDR())
	lt := sco.LinkType(e.LinkType())

	if lt.Synchronous() {
		h.mgr.connComplete(peer, e.ConnectionHandle(), e.Status())
		return nil
	}

	if e.Status() != 0 {
		h.log.Debugf("acl connection to %v failed: %v", peer, ErrCommand(e.Status()))
		return nil
	}

	h.log.Debugf("acl connection complete %04x: addr: %s", e.ConnectionHandle(), peer)
	c := newACLConn(h.mgr, e.ConnectionHandle(), peer, e.EncryptionEnabled() != 0)
	if err := h.conns.add(c); err != nil {
		c.Unref()
		return errors.Wrap(err, "connection complete")
	}
	return nil
}

func (h *HCI) handleSynchronousConnectionComplete(b []byte) error {
	e := evt.SynchronousConnectionComplete(b)
	h.log.Debugf("sync connection complete: % X", b)
	h.mgr.connComplete(sco.AddrFromBytes(e.BDADDR()), e.ConnectionHandle(), e.Status())
	return nil
}

func (h *HCI) handleDisconnectionComplete(b []byte) error {
	e := evt.DisconnectionComplete(b)
	ch := e.ConnectionHandle()
	h.log.Debugf("disconnect complete for handle %04x, reason %v", ch, ErrCommand(e.Reason()))

	c := h.conns.lookup(ch)
	if c == nil {
		h.log.Debugf("disconnect complete for unknown handle %04x", ch)
		return nil
	}

	if c.typ.Synchronous() {
		h.mgr.disconnected(c, e.Reason())
		return nil
	}

	// The ACL engine owns the link; we only drop our mirror. Any
	// voice links riding it get their own disconnection events.
	if removed := h.conns.remove(ch); removed != nil {
		removed.markDisconnected()
		removed.Unref()
	}
	return nil
}

func (h *HCI) handleEncryptionChange(b []byte) error {
	e := evt.EncryptionChange(b)
	h.mgr.encryptionChange(e.ConnectionHandle(), e.Status(), e.EncryptionEnabled() != 0)
	return nil
}

func (h *HCI) setAllowedCommands(n int) {
	if n > chCmdBufChanSize {
		h.log.Warnf("setAllowedCommands: defaulting %d -> %d", n, chCmdBufChanSize)
		n = chCmdBufChanSize
	}

	//put with timeout
	for len(h.chCmdBufs) < n {
		select {
		case <-h.done:
			//closed
			return
		case h.chCmdBufs <- make([]byte, chCmdBufElementSize):
			//ok
		case <-time.After(chCmdBufTimeout):
			h.DispatchError(fmt.Errorf("chCmdBufs put timeout"))
			//timeout
			return
		}
	}
}

// DispatchError hands an asynchronous error to the configured handler.
func (h *HCI) DispatchError(e error) {
	switch {
	case e == nil:
		//nothing to report
	case h.errorHandler == nil:
		h.log.Error(e)
	case !h.isOpen():
		//don't dispatch
		h.log.Debug("hci closing:", e)
	default:
		h.errorHandler(e)
	}
}
