package ax25

import (
	"fmt"
	"strings"
)

// AX.25 address constants
const (
	CALLSIGN_LENGTH = 6 // Callsign octets per address
	ADDRESS_LENGTH  = 7 // Callsign octets + SSID octet
	MAX_SSID        = 15
)

// Address is a station callsign and SSID. The callsign must already be
// uppercase ASCII, space padded to six bytes; no validation is performed.
type Address struct {
	Callsign [CALLSIGN_LENGTH]byte
	SSID     uint8
}

// NewAddress pads callsign with spaces (truncating past six characters) and
// upper-cases it
func NewAddress(callsign string, ssid uint8) Address {
	var a Address
	cs := strings.ToUpper(callsign)
	for i := 0; i < CALLSIGN_LENGTH; i++ {
		if i < len(cs) {
			a.Callsign[i] = cs[i]
		} else {
			a.Callsign[i] = ' '
		}
	}
	a.SSID = ssid & 0x0F
	return a
}

// EncodeAddress produces the seven shifted-ASCII address octets. The low bit
// of the SSID octet is set only on the last address of the address field.
func EncodeAddress(callsign [CALLSIGN_LENGTH]byte, ssid uint8, isLast bool) [ADDRESS_LENGTH]byte {
	var out [ADDRESS_LENGTH]byte
	for i, c := range callsign {
		out[i] = c << 1
	}
	out[6] = ((ssid & 0x0F) + '0') << 1
	if isLast {
		out[6] |= 0x01
	}
	return out
}

// Encode encodes the address; see EncodeAddress
func (a Address) Encode(isLast bool) [ADDRESS_LENGTH]byte {
	return EncodeAddress(a.Callsign, a.SSID, isLast)
}

// DecodeAddress reverses EncodeAddress and reports the end-of-field bit
func DecodeAddress(data []byte) (Address, bool, error) {
	var a Address
	if len(data) < ADDRESS_LENGTH {
		return a, false, fmt.Errorf("address too short: got %d bytes, need %d", len(data), ADDRESS_LENGTH)
	}

	for i := 0; i < CALLSIGN_LENGTH; i++ {
		a.Callsign[i] = data[i] >> 1
	}
	a.SSID = ((data[6] >> 1) - '0') & 0x0F
	return a, data[6]&0x01 != 0, nil
}

// Call returns the callsign without padding
func (a Address) Call() string {
	return strings.TrimRight(string(a.Callsign[:]), " ")
}

// String returns the TNC2 style CALL-SSID form
func (a Address) String() string {
	if a.SSID == 0 {
		return a.Call()
	}
	return fmt.Sprintf("%s-%d", a.Call(), a.SSID)
}
