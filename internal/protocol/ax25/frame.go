package ax25

import (
	"errors"
	"fmt"

	"github.com/sigurn/crc16"

	"github.com/dbehnke/balloontx/internal/correction"
)

// AX.25 UI frame constants
const (
	FLAG               = 0x7E
	CONTROL_UI         = 0x03
	PID_NO_LAYER3      = 0xF0
	HEADER_LENGTH      = 2*ADDRESS_LENGTH + 2 // dest + source + control + PID
	FCS_LENGTH         = 2
	DEFAULT_FLAG_COUNT = 16 // Flag octets on each side of a frame
)

var (
	ErrNoFlags     = errors.New("ax25: frame has no flag delimiters")
	ErrShortFrame  = errors.New("ax25: frame too short")
	ErrBadFCS      = errors.New("ax25: frame check sequence mismatch")
	ErrNotUIFrame  = errors.New("ax25: not a UI frame")
	ErrAddressBits = errors.New("ax25: address field termination bit misplaced")
)

var fcsTable = crc16.MakeTable(crc16.CRC16_X_25)

// Frame is a UI frame with a single destination and source, no digipeaters
type Frame struct {
	Destination Address
	Source      Address
	Payload     []byte
}

// Header returns the destination, source, control and PID octets
func (f *Frame) Header() []byte {
	header := make([]byte, 0, HEADER_LENGTH)
	dest := f.Destination.Encode(false)
	src := f.Source.Encode(true)
	header = append(header, dest[:]...)
	header = append(header, src[:]...)
	header = append(header, CONTROL_UI, PID_NO_LAYER3)
	return header
}

// Build returns the over-the-air byte sequence with flagCount flags on each
// side. The FCS covers everything between the leading flags and the FCS.
func (f *Frame) Build(flagCount int) []byte {
	if flagCount < 1 {
		flagCount = 1
	}

	frame := make([]byte, 0, 2*flagCount+HEADER_LENGTH+len(f.Payload)+FCS_LENGTH)
	for i := 0; i < flagCount; i++ {
		frame = append(frame, FLAG)
	}

	body := len(frame)
	frame = append(frame, f.Header()...)
	frame = append(frame, f.Payload...)
	frame = correction.AppendCRC16(frame, frame[body:])

	for i := 0; i < flagCount; i++ {
		frame = append(frame, FLAG)
	}
	return frame
}

// Decode strips flag delimiters, verifies the FCS and parses a frame built by
// Build. Octets are not escaped here; bit stuffing happens in the modulator.
func Decode(raw []byte) (*Frame, error) {
	body, ok := trimFlags(raw)
	if !ok {
		return nil, ErrNoFlags
	}
	if len(body) < HEADER_LENGTH+FCS_LENGTH {
		return nil, fmt.Errorf("%w: %d bytes between flags", ErrShortFrame, len(body))
	}

	data := body[:len(body)-FCS_LENGTH]
	fcs := uint16(body[len(body)-2]) | uint16(body[len(body)-1])<<8
	if got := crc16.Checksum(data, fcsTable); got != fcs {
		return nil, fmt.Errorf("%w: got 0x%04X, frame carries 0x%04X", ErrBadFCS, got, fcs)
	}

	dest, last, err := DecodeAddress(data[0:ADDRESS_LENGTH])
	if err != nil {
		return nil, err
	}
	if last {
		return nil, ErrAddressBits
	}
	src, last, err := DecodeAddress(data[ADDRESS_LENGTH : 2*ADDRESS_LENGTH])
	if err != nil {
		return nil, err
	}
	if !last {
		return nil, ErrAddressBits
	}

	if data[2*ADDRESS_LENGTH] != CONTROL_UI || data[2*ADDRESS_LENGTH+1] != PID_NO_LAYER3 {
		return nil, fmt.Errorf("%w (control: 0x%02X, PID: 0x%02X)", ErrNotUIFrame,
			data[2*ADDRESS_LENGTH], data[2*ADDRESS_LENGTH+1])
	}

	payload := make([]byte, len(data)-HEADER_LENGTH)
	copy(payload, data[HEADER_LENGTH:])

	return &Frame{Destination: dest, Source: src, Payload: payload}, nil
}

// StripFrame returns the payload region of a built frame without verifying it
func StripFrame(raw []byte) []byte {
	body, ok := trimFlags(raw)
	if !ok || len(body) < HEADER_LENGTH+FCS_LENGTH {
		return nil
	}
	return body[HEADER_LENGTH : len(body)-FCS_LENGTH]
}

// trimFlags removes the leading flag run and the same number of trailing
// flags. Counting from the front matters because the FCS or payload may end
// in a 0x7E octet; the first address octet never equals FLAG.
func trimFlags(raw []byte) ([]byte, bool) {
	n := 0
	for n < len(raw) && raw[n] == FLAG {
		n++
	}
	if n == 0 || 2*n > len(raw) {
		return nil, false
	}
	for i := len(raw) - n; i < len(raw); i++ {
		if raw[i] != FLAG {
			return nil, false
		}
	}
	return raw[n : len(raw)-n], true
}
