package ssdv

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"
)

// SSDV packet layout
const (
	PKT_SIZE                = 256
	PKT_SIZE_HEADER         = 15
	PKT_SIZE_CRC            = 4
	PKT_SIZE_RSCODES        = RS_NROOTS
	PKT_SIZE_PAYLOAD_NORMAL = PKT_SIZE - PKT_SIZE_HEADER - PKT_SIZE_CRC - PKT_SIZE_RSCODES // 205
	PKT_SIZE_PAYLOAD_NOFEC  = PKT_SIZE - PKT_SIZE_HEADER - PKT_SIZE_CRC                    // 237
	HEADER_FIELDS_LENGTH    = PKT_SIZE_HEADER - 1                                          // header without sync byte
	SYNC_BYTE               = 0x55

	NO_MCU_OFFSET = 0xFF
	NO_MCU_ID     = 0xFFFF

	MAX_CALLSIGN_LENGTH = 6
)

// PacketType selects the packet payload size and whether Reed-Solomon
// parity is appended
type PacketType uint8

const (
	TypeNormal PacketType = 0x66 // 205 byte payload, CRC-32, 32 bytes of RS parity
	TypeNoFEC  PacketType = 0x67 // 237 byte payload, CRC-32
)

// PayloadSize returns the number of image bytes each packet carries
func (t PacketType) PayloadSize() int {
	if t == TypeNormal {
		return PKT_SIZE_PAYLOAD_NORMAL
	}
	return PKT_SIZE_PAYLOAD_NOFEC
}

func (t PacketType) String() string {
	switch t {
	case TypeNormal:
		return "normal"
	case TypeNoFEC:
		return "nofec"
	}
	return fmt.Sprintf("0x%02X", uint8(t))
}

// ParsePacketType accepts the configuration names of the packet types
func ParsePacketType(s string) (PacketType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "fec":
		return TypeNormal, nil
	case "nofec", "no-fec", "":
		return TypeNoFEC, nil
	}
	return 0, fmt.Errorf("unknown SSDV packet type %q", s)
}

// Packet is one fixed-size SSDV packet
type Packet struct {
	Type      PacketType
	Callsign  uint32 // base-40 encoded
	ImageID   uint8
	PacketID  uint16
	Width     uint16 // pixels
	Height    uint16 // pixels
	Quality   uint8
	EOI       bool
	MCUMode   uint8
	MCUOffset uint8  // offset of the first MCU starting in Data, NO_MCU_OFFSET if none
	MCUID     uint16 // index of that MCU, NO_MCU_ID if none

	Data []byte // payload region, always Type.PayloadSize() bytes
}

// Header returns the header fields that follow the sync byte
func (p *Packet) Header() []byte {
	h := make([]byte, HEADER_FIELDS_LENGTH)
	h[0] = byte(p.Type)
	binary.BigEndian.PutUint32(h[1:5], p.Callsign)
	h[5] = p.ImageID
	binary.BigEndian.PutUint16(h[6:8], p.PacketID)
	h[8] = byte(p.Width >> 4)
	h[9] = byte(p.Height >> 4)
	h[10] = ((p.Quality^4)&7)<<3 | (p.MCUMode & 3)
	if p.EOI {
		h[10] |= 1 << 2
	}
	h[11] = p.MCUOffset
	binary.BigEndian.PutUint16(h[12:14], p.MCUID)
	return h
}

// Payload returns the image data region
func (p *Packet) Payload() []byte {
	return p.Data
}

// Bytes assembles the complete 256 byte packet, appending the CRC-32 and,
// for Normal packets, the Reed-Solomon parity
func (p *Packet) Bytes() []byte {
	pkt := make([]byte, PKT_SIZE)
	pkt[0] = SYNC_BYTE
	copy(pkt[1:PKT_SIZE_HEADER], p.Header())

	n := p.Type.PayloadSize()
	copy(pkt[PKT_SIZE_HEADER:PKT_SIZE_HEADER+n], p.Data)

	crcEnd := PKT_SIZE_HEADER + n
	binary.BigEndian.PutUint32(pkt[crcEnd:crcEnd+PKT_SIZE_CRC], crc32.ChecksumIEEE(pkt[1:crcEnd]))

	if p.Type == TypeNormal {
		rs8.encode(pkt[1:PKT_SIZE-PKT_SIZE_RSCODES], pkt[PKT_SIZE-PKT_SIZE_RSCODES:])
	}
	return pkt
}

// ParseHeader decodes the header fields that follow the sync byte. Data is
// left empty.
func ParseHeader(h []byte) (*Packet, error) {
	if len(h) < HEADER_FIELDS_LENGTH {
		return nil, fmt.Errorf("SSDV header too short: got %d bytes, need %d", len(h), HEADER_FIELDS_LENGTH)
	}
	t := PacketType(h[0])
	if t != TypeNormal && t != TypeNoFEC {
		return nil, fmt.Errorf("unknown SSDV packet type 0x%02X", h[0])
	}
	return &Packet{
		Type:      t,
		Callsign:  binary.BigEndian.Uint32(h[1:5]),
		ImageID:   h[5],
		PacketID:  binary.BigEndian.Uint16(h[6:8]),
		Width:     uint16(h[8]) << 4,
		Height:    uint16(h[9]) << 4,
		Quality:   ((h[10] >> 3) & 7) ^ 4,
		EOI:       h[10]&(1<<2) != 0,
		MCUMode:   h[10] & 3,
		MCUOffset: h[11],
		MCUID:     binary.BigEndian.Uint16(h[12:14]),
	}, nil
}

// ParsePacket decodes a complete packet and verifies its CRC-32. Parity
// bytes are not checked.
func ParsePacket(raw []byte) (*Packet, error) {
	if len(raw) != PKT_SIZE {
		return nil, fmt.Errorf("SSDV packet must be %d bytes, got %d", PKT_SIZE, len(raw))
	}
	if raw[0] != SYNC_BYTE {
		return nil, fmt.Errorf("SSDV sync byte 0x%02X, want 0x%02X", raw[0], SYNC_BYTE)
	}

	p, err := ParseHeader(raw[1:PKT_SIZE_HEADER])
	if err != nil {
		return nil, err
	}

	n := p.Type.PayloadSize()
	crcEnd := PKT_SIZE_HEADER + n
	want := binary.BigEndian.Uint32(raw[crcEnd : crcEnd+PKT_SIZE_CRC])
	if got := crc32.ChecksumIEEE(raw[1:crcEnd]); got != want {
		return nil, fmt.Errorf("SSDV packet %d CRC mismatch: got 0x%08X, packet carries 0x%08X", p.PacketID, got, want)
	}

	p.Data = make([]byte, n)
	copy(p.Data, raw[PKT_SIZE_HEADER:crcEnd])
	return p, nil
}

// EncodeCallsign packs up to six characters into base 40, last character
// most significant. Letters map to 14..39, digits to 1..10, anything else 0.
func EncodeCallsign(callsign string) uint32 {
	if len(callsign) > MAX_CALLSIGN_LENGTH {
		callsign = callsign[:MAX_CALLSIGN_LENGTH]
	}

	var x uint32
	for i := len(callsign) - 1; i >= 0; i-- {
		c := callsign[i]
		x *= 40
		switch {
		case c >= 'A' && c <= 'Z':
			x += uint32(c-'A') + 14
		case c >= 'a' && c <= 'z':
			x += uint32(c-'a') + 14
		case c >= '0' && c <= '9':
			x += uint32(c-'0') + 1
		}
	}
	return x
}

// DecodeCallsign reverses EncodeCallsign; letters come back upper case and
// unmapped characters as '-'
func DecodeCallsign(code uint32) string {
	var sb strings.Builder
	for code > 0 {
		s := code % 40
		switch {
		case s == 0:
			sb.WriteByte('-')
		case s < 11:
			sb.WriteByte('0' + byte(s-1))
		case s < 14:
			sb.WriteByte('-')
		default:
			sb.WriteByte('A' + byte(s-14))
		}
		code /= 40
	}
	return sb.String()
}
