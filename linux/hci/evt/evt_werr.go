package evt

func (e CommandComplete) NumHCICommandPacketsWErr() (uint8, error) {
	return getByte(e, 0, 0)
}

func (e CommandComplete) CommandOpcodeWErr() (uint16, error) {
	return getUint16LE(e, 1, 0xffff)
}

func (e CommandComplete) ReturnParametersWErr() ([]byte, error) {
	return getBytes(e, 3, -1)
}

func (e CommandStatus) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e CommandStatus) NumHCICommandPacketsWErr() (uint8, error) {
	return getByte(e, 1, 0)
}

func (e CommandStatus) CommandOpcodeWErr() (uint16, error) {
	return getUint16LE(e, 2, 0xffff)
}

func (e ConnectionRequest) BDADDRWErr() ([6]byte, error) {
	return getAddr(e, 0)
}

func (e ConnectionRequest) ClassOfDeviceWErr() ([3]byte, error) {
	bb, err := getBytes(e, 6, 3)
	if err != nil {
		return [3]byte{}, err
	}

	out := [3]byte{}
	copy(out[:], bb)
	return out, nil
}

func (e ConnectionRequest) LinkTypeWErr() (uint8, error) {
	return getByte(e, 9, 0xff)
}

func (e ConnectionComplete) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e ConnectionComplete) ConnectionHandleWErr() (uint16, error) {
	return getUint16LE(e, 1, 0xffff)
}

func (e ConnectionComplete) BDADDRWErr() ([6]byte, error) {
	return getAddr(e, 3)
}

func (e ConnectionComplete) LinkTypeWErr() (uint8, error) {
	return getByte(e, 9, 0xff)
}

func (e ConnectionComplete) EncryptionEnabledWErr() (uint8, error) {
	return getByte(e, 10, 0)
}

func (e SynchronousConnectionComplete) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e SynchronousConnectionComplete) ConnectionHandleWErr() (uint16, error) {
	return getUint16LE(e, 1, 0xffff)
}

func (e SynchronousConnectionComplete) BDADDRWErr() ([6]byte, error) {
	return getAddr(e, 3)
}

func (e SynchronousConnectionComplete) LinkTypeWErr() (uint8, error) {
	return getByte(e, 9, 0xff)
}

func (e SynchronousConnectionComplete) TransmissionIntervalWErr() (uint8, error) {
	return getByte(e, 10, 0)
}

func (e SynchronousConnectionComplete) RetransmissionWindowWErr() (uint8, error) {
	return getByte(e, 11, 0)
}

func (e SynchronousConnectionComplete) RxPacketLengthWErr() (uint16, error) {
	return getUint16LE(e, 12, 0)
}

func (e SynchronousConnectionComplete) TxPacketLengthWErr() (uint16, error) {
	return getUint16LE(e, 14, 0)
}

func (e SynchronousConnectionComplete) AirModeWErr() (uint8, error) {
	return getByte(e, 16, 0xff)
}

func (e DisconnectionComplete) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e DisconnectionComplete) ConnectionHandleWErr() (uint16, error) {
	return getUint16LE(e, 1, 0xffff)
}

func (e DisconnectionComplete) ReasonWErr() (uint8, error) {
	return getByte(e, 3, 0xff)
}

func (e EncryptionChange) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e EncryptionChange) ConnectionHandleWErr() (uint16, error) {
	return getUint16LE(e, 1, 0xffff)
}

func (e EncryptionChange) EncryptionEnabledWErr() (uint8, error) {
	return getByte(e, 3, 0)
}
