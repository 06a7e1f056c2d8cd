package hci

import "sync"

// ChanState is the life-span state of a synchronous channel. The
// manager mutates it; transport events are the only thing that moves a
// bound channel forward.
type ChanState int

const (
	// ChanDisconnected is the initial and terminal state, no
	// connection bound.
	ChanDisconnected ChanState = iota
	// ChanEncryptPending waits for the underlying ACL's encryption to
	// complete before the link layer may proceed.
	ChanEncryptPending
	// ChanConnecting has the link-layer request in flight.
	ChanConnecting
	// ChanConnected is usable for voice traffic.
	ChanConnected
	// ChanDisconnecting has teardown initiated, awaiting confirmation.
	ChanDisconnecting
)

func (s ChanState) String() string {
	switch s {
	case ChanDisconnected:
		return "disconnected"
	case ChanEncryptPending:
		return "encrypt-pending"
	case ChanConnecting:
		return "connecting"
	case ChanConnected:
		return "connected"
	case ChanDisconnecting:
		return "disconnecting"
	default:
		return "invalid"
	}
}

// ChanOps are the per-channel callbacks. Either may be nil; absence of
// a handler is a valid configuration, not an error.
type ChanOps struct {
	// Connected is called whenever the channel's link completes.
	Connected func(c *Chan)

	// Disconnected is called whenever the channel is disconnected,
	// including when a connection gets rejected, fails to establish,
	// or encryption setup fails. reason is the link-layer code,
	// passed through unchanged.
	Disconnected func(c *Chan, reason uint8)
}

// Chan is one voice link's application binding. The zero value with
// Ops filled in is ready for use. The owner must keep it alive at
// least until a terminal Disconnected callback fires; after that it
// may be reused for a new link.
type Chan struct {
	Ops ChanOps

	// Secure requires the underlying ACL to be encrypted before an
	// outgoing link is set up.
	Secure bool

	// mu guards conn and state, which are written from application
	// calls and from the event dispatch goroutine.
	mu    sync.Mutex
	conn  *Conn
	state ChanState
}

// Conn returns the bound connection, nil while disconnected.
func (c *Chan) Conn() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Chan) State() ChanState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
