package transport

import (
	"encoding/binary"
	"errors"
)

// SCTP Payload Protocol Identifiers recognized by the transport layer (§4.3).
const (
	PPIDControl      = 50 // DCEP control (OPEN/ACK)
	PPIDString       = 51
	PPIDBinary       = 53
	PPIDEmptyBinary  = 56
	PPIDEmptyString  = 57
)

// DCEP message types.
const (
	dcepTypeOpen = 0x03
	dcepTypeAck  = 0x02
)

// channelTypeUnorderedBit marks a DCEP channel type as unordered (§4.3:
// "A channel is unordered iff channelType & 0x80 != 0").
const channelTypeUnorderedBit = 0x80

var (
	ErrDCEPTooShort    = errors.New("transport: DCEP message too short")
	ErrDCEPNotOpen     = errors.New("transport: not a DCEP OPEN message")
	ErrDCEPLabelLength = errors.New("transport: DCEP OPEN label/protocol length exceeds buffer")
)

// DataChannel is one DCEP-negotiated data channel on a peer's SCTP
// association (§3 "Peer session").
type DataChannel struct {
	StreamID             uint16
	ChannelType           uint8
	Priority              uint16
	ReliabilityParameter  uint32
	Label                 string
	Protocol              string
	Open                  bool
}

// IsUnordered reports whether the channel was negotiated unordered.
func (d *DataChannel) IsUnordered() bool {
	return d.ChannelType&channelTypeUnorderedBit != 0
}

// dcepOpen is the parsed body of a DCEP DATA_CHANNEL_OPEN message.
type dcepOpen struct {
	ChannelType          uint8
	Priority             uint16
	ReliabilityParameter uint32
	Label                string
	Protocol             string
}

// parseDCEPOpen parses a DCEP OPEN control message per §4.3's big-endian
// layout: [type=0x03, channelType, priority:u16, reliabilityParameter:u32,
// labelLength:u16, protocolLength:u16, label, protocol].
func parseDCEPOpen(buf []byte) (dcepOpen, error) {
	const headerLen = 1 + 1 + 2 + 4 + 2 + 2
	if len(buf) < headerLen {
		return dcepOpen{}, ErrDCEPTooShort
	}
	if buf[0] != dcepTypeOpen {
		return dcepOpen{}, ErrDCEPNotOpen
	}

	channelType := buf[1]
	priority := binary.BigEndian.Uint16(buf[2:4])
	reliability := binary.BigEndian.Uint32(buf[4:8])
	labelLen := int(binary.BigEndian.Uint16(buf[8:10]))
	protoLen := int(binary.BigEndian.Uint16(buf[10:12]))

	off := headerLen
	if len(buf) < off+labelLen+protoLen {
		return dcepOpen{}, ErrDCEPLabelLength
	}
	label := string(buf[off : off+labelLen])
	off += labelLen
	protocol := string(buf[off : off+protoLen])

	return dcepOpen{
		ChannelType:          channelType,
		Priority:             priority,
		ReliabilityParameter: reliability,
		Label:                label,
		Protocol:             protocol,
	}, nil
}

// buildDCEPAck builds the single-byte DCEP ACK control message.
func buildDCEPAck() []byte {
	return []byte{dcepTypeAck}
}
