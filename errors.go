package sco

import "github.com/pkg/errors"

// Registration and argument errors returned synchronously to callers.
// Link failures are never surfaced this way; they arrive as a state
// transition plus a disconnected callback carrying the HCI reason.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrAlreadyBound      = errors.New("channel already bound")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrNotRegistered     = errors.New("not registered")
	ErrNoResources       = errors.New("no free synchronous link slot")
)
