package hci

import (
	"github.com/pkg/errors"
	"github.com/rigado/sco"
)

// SecurityLevel is the minimum protection a server demands of the
// underlying ACL before an incoming link is let through.
type SecurityLevel uint8

const (
	SecurityNone SecurityLevel = iota
	SecurityLow
	// SecurityMedium and above require the ACL to be encrypted.
	SecurityMedium
	SecurityHigh
)

// AcceptInfo describes an incoming synchronous link request. The view
// is only valid for the duration of the Accept call; take a reference
// on Conn to keep it past that.
type AcceptInfo struct {
	// Conn is the ACL connection that is requesting authorization.
	Conn *Conn

	// DevClass is the class of device of the peer.
	DevClass [3]byte

	// LinkType is the requested link type, SCO or eSCO.
	LinkType sco.LinkType
}

// Server authorizes incoming synchronous connections. Accept shall
// return an unbound channel for the new link, or an error to refuse
// it. At most one server may be registered at a time.
type Server struct {
	SecLevel SecurityLevel
	Accept   func(info *AcceptInfo) (*Chan, error)
}

func (m *manager) RegisterServer(s *Server) error {
	if s == nil || s.Accept == nil {
		return errors.Wrap(sco.ErrInvalidArgument, "server needs an accept callback")
	}

	m.muServer.Lock()
	defer m.muServer.Unlock()

	if m.server != nil {
		return sco.ErrAlreadyRegistered
	}
	m.server = s
	return nil
}

func (m *manager) UnregisterServer(s *Server) error {
	if s == nil {
		return errors.Wrap(sco.ErrInvalidArgument, "nil server")
	}

	m.muServer.Lock()
	defer m.muServer.Unlock()

	if m.server != s {
		return sco.ErrNotRegistered
	}
	m.server = nil
	return nil
}
