package hci

import "fmt"

// ErrCommand is a link-layer status or reason code [Vol 2, Part D].
// The host passes these through unchanged; it never reinterprets them.
type ErrCommand byte

func (e ErrCommand) Error() string {
	if s, ok := errCmd[e]; ok {
		return s
	}
	return fmt.Sprintf("unknown hci error code 0x%02x", byte(e))
}

const (
	ErrUnknownCommand ErrCommand = 0x01
	ErrConnID         ErrCommand = 0x02
	ErrHardware       ErrCommand = 0x03
	ErrPageTimeout    ErrCommand = 0x04
	ErrAuthFailure    ErrCommand = 0x05
	ErrConnTimeout    ErrCommand = 0x08
	ErrConnLimit      ErrCommand = 0x09
	ErrSyncConnLimit  ErrCommand = 0x0A
	ErrConnExists     ErrCommand = 0x0B
	ErrDisallowed     ErrCommand = 0x0C
	ErrLimResources   ErrCommand = 0x0D
	ErrSecurity       ErrCommand = 0x0E
	ErrBadAddr        ErrCommand = 0x0F
	ErrAcceptTimeout  ErrCommand = 0x10
	ErrRemoteUser     ErrCommand = 0x13
	ErrLocalHost      ErrCommand = 0x16
	ErrUnsupRemote    ErrCommand = 0x1A
	ErrUnspecified    ErrCommand = 0x1F
)

var errCmd = map[ErrCommand]string{
	ErrUnknownCommand: "unknown hci command",
	ErrConnID:         "unknown connection identifier",
	ErrHardware:       "hardware failure",
	ErrPageTimeout:    "page timeout",
	ErrAuthFailure:    "authentication failure",
	ErrConnTimeout:    "connection timeout",
	ErrConnLimit:      "connection limit exceeded",
	ErrSyncConnLimit:  "synchronous connection limit to a device exceeded",
	ErrConnExists:     "connection already exists",
	ErrDisallowed:     "command disallowed",
	ErrLimResources:   "connection rejected due to limited resources",
	ErrSecurity:       "connection rejected due to security reasons",
	ErrBadAddr:        "connection rejected due to unacceptable BD_ADDR",
	ErrAcceptTimeout:  "connection accept timeout exceeded",
	ErrRemoteUser:     "remote user terminated connection",
	ErrLocalHost:      "connection terminated by local host",
	ErrUnsupRemote:    "unsupported remote feature",
	ErrUnspecified:    "unspecified error",
}
