package cmd

import (
	"encoding/binary"
	"fmt"
)

// Reset implements Reset (0x03|0x0003) [Vol 2, Part E, 7.3.2].
type Reset struct{}

func (c *Reset) OpCode() int { return 0x03<<10 | 0x0003 }

func (c *Reset) Len() int { return 0 }

func (c *Reset) Marshal(b []byte) error { return nil }

// ResetRP returns the status of the Reset command.
type ResetRP struct {
	Status uint8
}

func (c *ResetRP) Unmarshal(b []byte) error {
	if len(b) < 1 {
		return fmt.Errorf("unmarshal: buffer too short %v", len(b))
	}
	c.Status = b[0]
	return nil
}

// SetEventMask implements Set Event Mask (0x03|0x0001) [Vol 2, Part E, 7.3.1].
type SetEventMask struct {
	EventMask uint64
}

func (c *SetEventMask) OpCode() int { return 0x03<<10 | 0x0001 }

func (c *SetEventMask) Len() int { return 8 }

func (c *SetEventMask) Marshal(b []byte) error {
	if len(b) < c.Len() {
		return errShort(c.Len(), len(b))
	}
	binary.LittleEndian.PutUint64(b, c.EventMask)
	return nil
}

// SetEventMaskRP returns the status of the SetEventMask command.
type SetEventMaskRP struct {
	Status uint8
}

func (c *SetEventMaskRP) Unmarshal(b []byte) error {
	if len(b) < 1 {
		return fmt.Errorf("unmarshal: buffer too short %v", len(b))
	}
	c.Status = b[0]
	return nil
}

// WriteVoiceSetting implements Write Voice Setting (0x03|0x0026)
// [Vol 2, Part E, 7.3.28].
type WriteVoiceSetting struct {
	VoiceSetting uint16
}

func (c *WriteVoiceSetting) OpCode() int { return 0x03<<10 | 0x0026 }

func (c *WriteVoiceSetting) Len() int { return 2 }

func (c *WriteVoiceSetting) Marshal(b []byte) error {
	if len(b) < c.Len() {
		return errShort(c.Len(), len(b))
	}
	binary.LittleEndian.PutUint16(b, c.VoiceSetting)
	return nil
}

// WriteVoiceSettingRP returns the status of the WriteVoiceSetting
// command.
type WriteVoiceSettingRP struct {
	Status uint8
}

func (c *WriteVoiceSettingRP) Unmarshal(b []byte) error {
	if len(b) < 1 {
		return fmt.Errorf("unmarshal: buffer too short %v", len(b))
	}
	c.Status = b[0]
	return nil
}

// ReadBDADDR implements Read BD_ADDR (0x04|0x0009) [Vol 2, Part E, 7.4.6].
type ReadBDADDR struct{}

func (c *ReadBDADDR) OpCode() int { return 0x04<<10 | 0x0009 }

func (c *ReadBDADDR) Len() int { return 0 }

func (c *ReadBDADDR) Marshal(b []byte) error { return nil }

// ReadBDADDRRP returns the status and address of the ReadBDADDR command.
type ReadBDADDRRP struct {
	Status uint8
	BDADDR [6]byte
}

func (c *ReadBDADDRRP) Unmarshal(b []byte) error {
	if len(b) < 7 {
		return fmt.Errorf("unmarshal: buffer too short %v", len(b))
	}
	c.Status = b[0]
	copy(c.BDADDR[:], b[1:7])
	return nil
}

// Disconnect implements Disconnect (0x01|0x0006) [Vol 2, Part E, 7.1.6].
type Disconnect struct {
	ConnectionHandle uint16
	Reason           uint8
}

func (c *Disconnect) OpCode() int { return 0x01<<10 | 0x0006 }

func (c *Disconnect) Len() int { return 3 }

func (c *Disconnect) Marshal(b []byte) error {
	if len(b) < c.Len() {
		return errShort(c.Len(), len(b))
	}
	binary.LittleEndian.PutUint16(b, c.ConnectionHandle)
	b[2] = c.Reason
	return nil
}

// SetupSynchronousConnection implements Setup Synchronous Connection
// (0x01|0x0028) [Vol 2, Part E, 7.1.26]. ConnectionHandle names the
// ACL the voice link rides on.
type SetupSynchronousConnection struct {
	ConnectionHandle     uint16
	TransmitBandwidth    uint32
	ReceiveBandwidth     uint32
	MaxLatency           uint16
	VoiceSetting         uint16
	RetransmissionEffort uint8
	PacketType           uint16
}

func (c *SetupSynchronousConnection) OpCode() int { return 0x01<<10 | 0x0028 }

func (c *SetupSynchronousConnection) Len() int { return 17 }

func (c *SetupSynchronousConnection) Marshal(b []byte) error {
	if len(b) < c.Len() {
		return errShort(c.Len(), len(b))
	}
	binary.LittleEndian.PutUint16(b, c.ConnectionHandle)
	binary.LittleEndian.PutUint32(b[2:], c.TransmitBandwidth)
	binary.LittleEndian.PutUint32(b[6:], c.ReceiveBandwidth)
	binary.LittleEndian.PutUint16(b[10:], c.MaxLatency)
	binary.LittleEndian.PutUint16(b[12:], c.VoiceSetting)
	b[14] = c.RetransmissionEffort
	binary.LittleEndian.PutUint16(b[15:], c.PacketType)
	return nil
}

// AcceptSynchronousConnectionRequest implements Accept Synchronous
// Connection Request (0x01|0x0029) [Vol 2, Part E, 7.1.27].
type AcceptSynchronousConnectionRequest struct {
	BDADDR               [6]byte
	TransmitBandwidth    uint32
	ReceiveBandwidth     uint32
	MaxLatency           uint16
	ContentFormat        uint16
	RetransmissionEffort uint8
	PacketType           uint16
}

func (c *AcceptSynchronousConnectionRequest) OpCode() int { return 0x01<<10 | 0x0029 }

func (c *AcceptSynchronousConnectionRequest) Len() int { return 21 }

func (c *AcceptSynchronousConnectionRequest) Marshal(b []byte) error {
	if len(b) < c.Len() {
		return errShort(c.Len(), len(b))
	}
	copy(b, c.BDADDR[:])
	binary.LittleEndian.PutUint32(b[6:], c.TransmitBandwidth)
	binary.LittleEndian.PutUint32(b[10:], c.ReceiveBandwidth)
	binary.LittleEndian.PutUint16(b[14:], c.MaxLatency)
	binary.LittleEndian.PutUint16(b[16:], c.ContentFormat)
	b[18] = c.RetransmissionEffort
	binary.LittleEndian.PutUint16(b[19:], c.PacketType)
	return nil
}

// RejectSynchronousConnectionRequest implements Reject Synchronous
// Connection Request (0x01|0x002A) [Vol 2, Part E, 7.1.28].
type RejectSynchronousConnectionRequest struct {
	BDADDR [6]byte
	Reason uint8
}

func (c *RejectSynchronousConnectionRequest) OpCode() int { return 0x01<<10 | 0x002A }

func (c *RejectSynchronousConnectionRequest) Len() int { return 7 }

func (c *RejectSynchronousConnectionRequest) Marshal(b []byte) error {
	if len(b) < c.Len() {
		return errShort(c.Len(), len(b))
	}
	copy(b, c.BDADDR[:])
	b[6] = c.Reason
	return nil
}

func errShort(want, got int) error {
	return fmt.Errorf("marshal: buffer too short, want %v got %v", want, got)
}
