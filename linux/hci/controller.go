package hci

// Controller is the command/transport surface the link manager drives.
// *HCI implements it; tests substitute a fake.
type Controller interface {
	Send(Command, CommandRP) error
	SocketWrite([]byte) (int, error)
	DispatchError(error)
}
