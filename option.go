package sco

// StateTrace is invoked on every channel state transition when
// installed with OptStateTrace.
type StateTrace func(peer Addr, from, to string)

// DeviceOption is an interface which the host should implement to allow using configuration options
type DeviceOption interface {
	SetTransportHCISocket(id int) error
	SetTransportH4Uart(path string) error

	SetErrorHandler(handler func(error)) error
	SetMaxSyncConns(n int) error
	SetVoiceSetting(vs uint16) error
	SetSyncPacketType(pt uint16) error
	SetStateTrace(t StateTrace) error
	SetPeerCache(c PeerCache) error
}

// An Option is a configuration function, which configures the host.
type Option func(DeviceOption) error

// OptTransportHCISocket selects the raw HCI user channel socket of the
// given device id.
func OptTransportHCISocket(id int) Option {
	return func(opt DeviceOption) error {
		return opt.SetTransportHCISocket(id)
	}
}

// OptTransportH4Uart talks H4 framing over a serial port.
func OptTransportH4Uart(path string) Option {
	return func(opt DeviceOption) error {
		return opt.SetTransportH4Uart(path)
	}
}

// OptErrorHandler sets the callback for asynchronous host errors.
func OptErrorHandler(handler func(error)) Option {
	return func(opt DeviceOption) error {
		return opt.SetErrorHandler(handler)
	}
}

// OptMaxSyncConns caps the number of concurrent synchronous links.
func OptMaxSyncConns(n int) Option {
	return func(opt DeviceOption) error {
		return opt.SetMaxSyncConns(n)
	}
}

// OptVoiceSetting sets the voice setting used for outgoing and
// accepted synchronous links [Vol 2, Part E, 6.12].
func OptVoiceSetting(vs uint16) Option {
	return func(opt DeviceOption) error {
		return opt.SetVoiceSetting(vs)
	}
}

// OptSyncPacketType sets the allowed synchronous packet types
// (HV1/HV2/HV3/EV3/...) offered on setup and accept.
func OptSyncPacketType(pt uint16) Option {
	return func(opt DeviceOption) error {
		return opt.SetSyncPacketType(pt)
	}
}

// OptStateTrace installs a hook observing channel state transitions.
func OptStateTrace(t StateTrace) Option {
	return func(opt DeviceOption) error {
		return opt.SetStateTrace(t)
	}
}

// OptPeerCache records requesting peers into c.
func OptPeerCache(c PeerCache) Option {
	return func(opt DeviceOption) error {
		return opt.SetPeerCache(c)
	}
}
