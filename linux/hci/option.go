package hci

import (
	"github.com/pkg/errors"
	"github.com/rigado/sco"
)

// SetTransportHCISocket sets the HCI user channel socket of the given
// device id as the transport.
func (h *HCI) SetTransportHCISocket(id int) error {
	h.transport.hci = &transportHci{id: id}
	return nil
}

// SetTransportH4Uart talks H4 framing over the serial port at path.
func (h *HCI) SetTransportH4Uart(path string) error {
	h.transport.h4uart = &transportH4Uart{path: path}
	return nil
}

// SetErrorHandler ...
func (h *HCI) SetErrorHandler(handler func(error)) error {
	h.errorHandler = handler
	return nil
}

// SetMaxSyncConns caps concurrent synchronous links. Controllers
// rarely support more than three.
func (h *HCI) SetMaxSyncConns(n int) error {
	if n < 1 || n > 3 {
		return errors.Wrapf(sco.ErrInvalidArgument, "max sync conns %v", n)
	}
	h.mgr.maxSyncConns = n
	return nil
}

// SetVoiceSetting ...
func (h *HCI) SetVoiceSetting(vs uint16) error {
	h.mgr.voiceSetting = vs
	return nil
}

// SetSyncPacketType ...
func (h *HCI) SetSyncPacketType(pt uint16) error {
	if pt == 0 {
		return errors.Wrap(sco.ErrInvalidArgument, "empty packet type mask")
	}
	h.mgr.pktType = pt
	return nil
}

// SetStateTrace installs a hook observing every channel state
// transition.
func (h *HCI) SetStateTrace(t sco.StateTrace) error {
	h.mgr.trace = t
	return nil
}

// SetPeerCache records peers that request synchronous links into c.
func (h *HCI) SetPeerCache(c sco.PeerCache) error {
	h.mgr.cache = c
	return nil
}
