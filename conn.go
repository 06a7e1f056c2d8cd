package sco

import "io"

// LinkType is the link-layer transport of a connection, using the HCI
// encoding from the Connection Request event.
type LinkType uint8

const (
	LinkSCO  LinkType = 0x00
	LinkACL  LinkType = 0x01
	LinkESCO LinkType = 0x02
)

func (l LinkType) String() string {
	switch l {
	case LinkSCO:
		return "SCO"
	case LinkACL:
		return "ACL"
	case LinkESCO:
		return "eSCO"
	default:
		return "unknown"
	}
}

// Synchronous reports whether the link carries voice traffic.
func (l LinkType) Synchronous() bool {
	return l == LinkSCO || l == LinkESCO
}

// Conn is a live link-layer connection. Connections are refcounted;
// every holder that obtained one through Ref (or from CreateSCOConn,
// which returns a fresh reference) must call Unref exactly once when
// done with it. The record is freed when the last reference drops.
//
// Read and Write move voice frames on synchronous links and return an
// error on ACL connections. Close requests disconnection of the link;
// completion is reported through the registered callbacks.
type Conn interface {
	io.ReadWriteCloser

	// Handle returns the link-layer connection handle. It is only
	// valid once the link completed.
	Handle() uint16

	// RemoteAddr returns remote device's address.
	RemoteAddr() Addr

	Type() LinkType

	// Encrypted reports whether the link is currently encrypted.
	Encrypted() bool

	// Ref takes an additional reference on the connection.
	Ref() Conn

	// Unref gives up one reference.
	Unref()

	// Disconnected returns a receiving channel, which is closed when
	// the connection disconnects.
	Disconnected() <-chan struct{}
}
