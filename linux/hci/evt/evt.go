package evt

// Event codes of the events the host consumes [Vol 2, Part E, 7.7].
const (
	ConnectionCompleteCode            = 0x03
	ConnectionRequestCode             = 0x04
	DisconnectionCompleteCode         = 0x05
	EncryptionChangeCode              = 0x08
	CommandCompleteCode               = 0x0E
	CommandStatusCode                 = 0x0F
	SynchronousConnectionCompleteCode = 0x2C
)

// Events are views over the raw parameter bytes; accessors without the
// WErr suffix swallow range errors and return a harmless default.

type CommandComplete []byte

func (e CommandComplete) NumHCICommandPackets() uint8 {
	v, _ := e.NumHCICommandPacketsWErr()
	return v
}

func (e CommandComplete) CommandOpcode() uint16 {
	v, _ := e.CommandOpcodeWErr()
	return v
}

func (e CommandComplete) ReturnParameters() []byte {
	v, _ := e.ReturnParametersWErr()
	return v
}

type CommandStatus []byte

func (e CommandStatus) Valid() bool {
	return len(e) == 4
}

func (e CommandStatus) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e CommandStatus) NumHCICommandPackets() uint8 {
	v, _ := e.NumHCICommandPacketsWErr()
	return v
}

func (e CommandStatus) CommandOpcode() uint16 {
	v, _ := e.CommandOpcodeWErr()
	return v
}

// ConnectionRequest carries an incoming ACL, SCO or eSCO request
// [Vol 2, Part E, 7.7.4].
type ConnectionRequest []byte

func (e ConnectionRequest) BDADDR() [6]byte {
	v, _ := e.BDADDRWErr()
	return v
}

func (e ConnectionRequest) ClassOfDevice() [3]byte {
	v, _ := e.ClassOfDeviceWErr()
	return v
}

func (e ConnectionRequest) LinkType() uint8 {
	v, _ := e.LinkTypeWErr()
	return v
}

// ConnectionComplete is the legacy completion event; SCO links set up
// against pre-1.2 controllers still arrive through it.
type ConnectionComplete []byte

func (e ConnectionComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e ConnectionComplete) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e ConnectionComplete) BDADDR() [6]byte {
	v, _ := e.BDADDRWErr()
	return v
}

func (e ConnectionComplete) LinkType() uint8 {
	v, _ := e.LinkTypeWErr()
	return v
}

func (e ConnectionComplete) EncryptionEnabled() uint8 {
	v, _ := e.EncryptionEnabledWErr()
	return v
}

type SynchronousConnectionComplete []byte

func (e SynchronousConnectionComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e SynchronousConnectionComplete) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e SynchronousConnectionComplete) BDADDR() [6]byte {
	v, _ := e.BDADDRWErr()
	return v
}

func (e SynchronousConnectionComplete) LinkType() uint8 {
	v, _ := e.LinkTypeWErr()
	return v
}

func (e SynchronousConnectionComplete) TransmissionInterval() uint8 {
	v, _ := e.TransmissionIntervalWErr()
	return v
}

func (e SynchronousConnectionComplete) RetransmissionWindow() uint8 {
	v, _ := e.RetransmissionWindowWErr()
	return v
}

func (e SynchronousConnectionComplete) RxPacketLength() uint16 {
	v, _ := e.RxPacketLengthWErr()
	return v
}

func (e SynchronousConnectionComplete) TxPacketLength() uint16 {
	v, _ := e.TxPacketLengthWErr()
	return v
}

func (e SynchronousConnectionComplete) AirMode() uint8 {
	v, _ := e.AirModeWErr()
	return v
}

type DisconnectionComplete []byte

func (e DisconnectionComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e DisconnectionComplete) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e DisconnectionComplete) Reason() uint8 {
	v, _ := e.ReasonWErr()
	return v
}

type EncryptionChange []byte

func (e EncryptionChange) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e EncryptionChange) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e EncryptionChange) EncryptionEnabled() uint8 {
	v, _ := e.EncryptionEnabledWErr()
	return v
}
