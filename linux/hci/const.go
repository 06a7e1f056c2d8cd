package hci

import "time"

// HCI Packet types
const (
	pktTypeCommand uint8 = 0x01
	pktTypeACLData uint8 = 0x02
	pktTypeSCOData uint8 = 0x03
	pktTypeEvent   uint8 = 0x04
	pktTypeVendor  uint8 = 0xFF
)

const (
	chCmdBufChanSize    = 16
	chCmdBufElementSize = 64
	chCmdBufTimeout     = time.Second * 5
)

const invalidHandle uint16 = 0xffff

const (
	// Event mask enabling, among the defaults, Connection Complete,
	// Connection Request, Disconnection Complete, Encryption Change
	// and Synchronous Connection Complete/Changed.
	defaultEventMask = 0x3dbff807fffbffff

	// CVSD air coding, linear input, 16 bit samples.
	defaultVoiceSetting uint16 = 0x0060

	// HV1..HV3 and EV3..EV5 allowed, no eSCO EDR exclusions.
	defaultSyncPacketType uint16 = 0x003F

	// 64 kbit/s in each direction, in octets per second.
	defaultSyncBandwidth uint32 = 8000

	// Don't care, per the setup/accept command definitions.
	defaultMaxLatency     uint16 = 0xFFFF
	defaultRetransEffort  uint8  = 0xFF
	defaultMaxSyncConns          = 1
	scoFrameChannelSize          = 16
)

// Reason used when rejecting an incoming synchronous link, including
// the fail-closed case of no registered server.
const rejectReasonDefault = uint8(ErrLimResources)
