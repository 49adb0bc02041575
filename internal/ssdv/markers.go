package ssdv

import "fmt"

// Marker is a 16-bit JPEG marker code (0xFFxx)
type Marker uint16

// JPEG marker codes
const (
	M_TEM   Marker = 0xFF01
	M_SOF0  Marker = 0xFFC0
	M_SOF1  Marker = 0xFFC1
	M_SOF2  Marker = 0xFFC2
	M_SOF3  Marker = 0xFFC3
	M_DHT   Marker = 0xFFC4
	M_SOF5  Marker = 0xFFC5
	M_SOF6  Marker = 0xFFC6
	M_SOF7  Marker = 0xFFC7
	M_JPG   Marker = 0xFFC8
	M_SOF9  Marker = 0xFFC9
	M_SOF10 Marker = 0xFFCA
	M_SOF11 Marker = 0xFFCB
	M_DAC   Marker = 0xFFCC
	M_SOF13 Marker = 0xFFCD
	M_SOF14 Marker = 0xFFCE
	M_SOF15 Marker = 0xFFCF
	M_RST0  Marker = 0xFFD0
	M_RST7  Marker = 0xFFD7
	M_SOI   Marker = 0xFFD8
	M_EOI   Marker = 0xFFD9
	M_SOS   Marker = 0xFFDA
	M_DQT   Marker = 0xFFDB
	M_DNL   Marker = 0xFFDC
	M_DRI   Marker = 0xFFDD
	M_DHP   Marker = 0xFFDE
	M_EXP   Marker = 0xFFDF
	M_APP0  Marker = 0xFFE0
	M_APP15 Marker = 0xFFEF
	M_JPG0  Marker = 0xFFF0
	M_JPG13 Marker = 0xFFFD
	M_COM   Marker = 0xFFFE

	// M_INVALID is returned by lookupMarker for codes outside the table
	M_INVALID Marker = 0x0000
)

// lookupMarker maps a raw code onto a known marker. Codes outside TEM and
// SOF0..COM are reported as M_INVALID.
func lookupMarker(code uint16) (Marker, bool) {
	m := Marker(code)
	switch {
	case m == M_TEM:
		return m, true
	case m >= M_SOF0 && m <= M_COM:
		return m, true
	default:
		return M_INVALID, false
	}
}

// HasLength reports whether the marker is followed by a length field
func (m Marker) HasLength() bool {
	switch {
	case m == M_TEM, m == M_SOI, m == M_EOI:
		return false
	case m >= M_RST0 && m <= M_RST7:
		return false
	}
	return true
}

// IsRestart reports whether m is one of RST0..RST7
func (m Marker) IsRestart() bool {
	return m >= M_RST0 && m <= M_RST7
}

// IsUnsupportedFrame reports start-of-frame markers for every coding process
// other than baseline sequential DCT
func (m Marker) IsUnsupportedFrame() bool {
	if m < M_SOF1 || m > M_SOF15 {
		return false
	}
	return m != M_DHT && m != M_JPG && m != M_DAC
}

func (m Marker) String() string {
	switch m {
	case M_TEM:
		return "TEM"
	case M_SOF0:
		return "SOF0"
	case M_DHT:
		return "DHT"
	case M_SOI:
		return "SOI"
	case M_EOI:
		return "EOI"
	case M_SOS:
		return "SOS"
	case M_DQT:
		return "DQT"
	case M_DRI:
		return "DRI"
	case M_COM:
		return "COM"
	}
	switch {
	case m.IsRestart():
		return fmt.Sprintf("RST%d", m-M_RST0)
	case m >= M_APP0 && m <= M_APP15:
		return fmt.Sprintf("APP%d", m-M_APP0)
	case m.IsUnsupportedFrame():
		return fmt.Sprintf("SOF%d", m-M_SOF0)
	}
	return fmt.Sprintf("0x%04X", uint16(m))
}
