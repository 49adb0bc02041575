package aprs

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/dbehnke/balloontx/internal/codec"
	"github.com/dbehnke/balloontx/internal/protocol"
	"github.com/dbehnke/balloontx/internal/protocol/ax25"
	"github.com/dbehnke/balloontx/internal/sensor"
	"github.com/dbehnke/balloontx/internal/ssdv"
)

// PACKET_NUM_MODULUS keeps the packet number field at six digits
const PACKET_NUM_MODULUS = 1000000

// ErrMissingFix is returned when a location report has no position to carry
var ErrMissingFix = errors.New("aprs: location has no latitude/longitude fix")

// Half selects which half of an SSDV packet payload an image frame carries
type Half int

const (
	FirstHalf Half = iota
	SecondHalf
)

// HalfFor returns the half carried by the given image packet counter
func HalfFor(imagePacketNum uint32) Half {
	return Half(imagePacketNum & 1)
}

func (h Half) tag() byte {
	if h == SecondHalf {
		return protocol.IMAGE_HALF_SECOND
	}
	return protocol.IMAGE_HALF_FIRST
}

func (h Half) String() string {
	return string(h.tag())
}

// Framer builds complete over-the-air frames. It holds no state between
// calls; every method is a pure function of its arguments.
type Framer struct {
	Destination ax25.Address
	Source      ax25.Address
	FlagCount   int
	SymbolTable byte
	Symbol      byte
}

// NewFramer creates a framer using the balloon symbol
func NewFramer(destination, source ax25.Address, flagCount int) *Framer {
	if flagCount < 1 {
		flagCount = ax25.DEFAULT_FLAG_COUNT
	}
	return &Framer{
		Destination: destination,
		Source:      source,
		FlagCount:   flagCount,
		SymbolTable: protocol.SYMBOL_TABLE_PRIMARY,
		Symbol:      protocol.SYMBOL_BALLOON,
	}
}

func (f *Framer) frame(payload []byte) []byte {
	fr := ax25.Frame{
		Destination: f.Destination,
		Source:      f.Source,
		Payload:     payload,
	}
	return fr.Build(f.FlagCount)
}

// FrameLocation builds a position report frame
func (f *Framer) FrameLocation(packetNum uint32, fix sensor.FixReport, alt sensor.AltimeterReading) ([]byte, error) {
	payload, err := f.LocationPayload(packetNum, fix, alt)
	if err != nil {
		return nil, err
	}
	return f.frame(payload), nil
}

// LocationPayload formats the position report:
//
//	/HHMMSSh DDMM.mmN / DDDMM.mmW O [CCC/SSS] /A=aaaaaa /Pa=pppppp /T=+tt.t /N=nnnnnn
//
// without the spaces.
func (f *Framer) LocationPayload(packetNum uint32, fix sensor.FixReport, alt sensor.AltimeterReading) ([]byte, error) {
	if !fix.HasPosition() {
		return nil, ErrMissingFix
	}

	p := make([]byte, 0, 96)
	p = append(p, protocol.DTI_POSITION_TIMESTAMP)

	if fix.Timestamp != nil {
		p = fix.Timestamp.UTC().AppendFormat(p, "150405")
	} else {
		p = append(p, "000000"...)
	}
	p = append(p, 'h')

	p = appendCoordinate(p, *fix.Latitude, 2, 'N', 'S')
	p = append(p, f.SymbolTable)
	p = appendCoordinate(p, *fix.Longitude, 3, 'E', 'W')
	p = append(p, f.Symbol)

	if fix.CourseDeg != nil && fix.SpeedKnots != nil {
		p = fmt.Appendf(p, "%03d/%03d", courseValue(*fix.CourseDeg), speedValue(*fix.SpeedKnots))
	}

	feet := int(math.Round(alt.AltitudeM * protocol.METERS_TO_FEET))
	p = fmt.Appendf(p, "/A=%06d", feet)
	p = fmt.Appendf(p, "/Pa=%06d", int(math.Round(alt.PressurePa)))
	p = fmt.Appendf(p, "/T=%+05.1f", alt.TemperatureC)
	p = fmt.Appendf(p, "/N=%06d", packetNum%PACKET_NUM_MODULUS)

	return p, nil
}

// appendCoordinate writes degrees and decimal minutes. Minutes are rounded to
// hundredths before splitting so 59.999' carries into the degrees.
func appendCoordinate(p []byte, deg float64, degDigits int, pos, neg byte) []byte {
	hemi := pos
	if deg < 0 {
		hemi = neg
		deg = -deg
	}
	total := int(math.Round(deg * 60 * 100))
	d := total / 6000
	rem := total % 6000
	p = fmt.Appendf(p, "%0*d%02d.%02d", degDigits, d, rem/100, rem%100)
	return append(p, hemi)
}

func courseValue(c float64) int {
	v := int(math.Round(math.Mod(c, 360)))
	if v <= 0 {
		v += 360
	}
	if v > 360 {
		v = 360
	}
	return v
}

func speedValue(s float64) int {
	v := int(math.Round(s))
	if v < 0 {
		return 0
	}
	if v > 999 {
		return 999
	}
	return v
}

// FrameImageChunk builds a frame carrying one half of an SSDV packet
func (f *Framer) FrameImageChunk(packetNum uint32, pkt *ssdv.Packet, half Half) []byte {
	return f.frame(ImagePayload(packetNum, pkt, half))
}

// ImagePayload formats an image chunk: the "{{I" tag, the six digit packet
// number (modulo PACKET_NUM_MODULUS), the half selector, the raw SSDV header fields and the base-91
// encoded half of the SSDV payload
func ImagePayload(packetNum uint32, pkt *ssdv.Packet, half Half) []byte {
	data := halfOf(pkt.Payload(), half)
	enc := codec.Base91Encode(data)

	p := make([]byte, 0, len(protocol.IMAGE_TAG)+7+ssdv.HEADER_FIELDS_LENGTH+len(enc))
	p = append(p, protocol.IMAGE_TAG...)
	p = fmt.Appendf(p, "%06d", packetNum%PACKET_NUM_MODULUS)
	p = append(p, half.tag())
	p = append(p, pkt.Header()...)
	p = append(p, enc...)
	return p
}

func halfOf(payload []byte, half Half) []byte {
	mid := len(payload) / 2
	if half == SecondHalf {
		return payload[mid:]
	}
	return payload[:mid]
}

// ImageChunk is a decoded image payload
type ImageChunk struct {
	PacketNum uint32
	Half      Half
	Header    *ssdv.Packet // header fields only
	Data      []byte       // the decoded half of the SSDV payload
}

// ParseImagePayload reverses ImagePayload
func ParseImagePayload(p []byte) (*ImageChunk, error) {
	const prefix = len(protocol.IMAGE_TAG) + 7
	if len(p) < prefix+ssdv.HEADER_FIELDS_LENGTH+1 {
		return nil, fmt.Errorf("image payload too short: %d bytes", len(p))
	}
	if string(p[:len(protocol.IMAGE_TAG)]) != protocol.IMAGE_TAG {
		return nil, fmt.Errorf("image payload tag %q, want %q", p[:len(protocol.IMAGE_TAG)], protocol.IMAGE_TAG)
	}

	num, err := strconv.ParseUint(string(p[3:9]), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid image packet number: %v", err)
	}

	chunk := &ImageChunk{PacketNum: uint32(num)}
	switch p[9] {
	case protocol.IMAGE_HALF_FIRST:
		chunk.Half = FirstHalf
	case protocol.IMAGE_HALF_SECOND:
		chunk.Half = SecondHalf
	default:
		return nil, fmt.Errorf("invalid image half selector %q", p[9])
	}

	chunk.Header, err = ssdv.ParseHeader(p[prefix : prefix+ssdv.HEADER_FIELDS_LENGTH])
	if err != nil {
		return nil, err
	}

	n := chunk.Header.Type.PayloadSize()
	size := n / 2
	if chunk.Half == SecondHalf {
		size = n - n/2
	}

	data, ok := codec.Base91Decode(p[prefix+ssdv.HEADER_FIELDS_LENGTH:], size)
	if !ok {
		return nil, fmt.Errorf("invalid base-91 image data")
	}
	chunk.Data = data
	return chunk, nil
}
