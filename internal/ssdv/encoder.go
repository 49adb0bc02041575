package ssdv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Buffer sizes for captured marker data. TABLE_LEN holds two DQT tables and
// the four DHT tables of a baseline image; HBUF_LEN is scratch space for the
// SOF0, SOS and DRI headers.
const (
	TABLE_LEN   = 2*65 + 2*29 + 2*179
	HBUF_LEN    = 16
	MAX_DIM     = 4080
	MAX_QUALITY = 7

	DEFAULT_QUALITY = 4
)

var (
	ErrMemory        = errors.New("ssdv: marker data exceeds table buffer")
	ErrProgressive   = errors.New("ssdv: only baseline sequential JPEG is supported")
	ErrUnsupported   = errors.New("ssdv: unsupported JPEG")
	ErrInvalidMarker = errors.New("ssdv: invalid JPEG marker")
	ErrHuffman       = errors.New("ssdv: invalid huffman data")
)

// State is the position of the encoder in the JPEG stream
type State int

const (
	StateMarker     State = iota // scanning for the next marker
	StateMarkerLen               // reading the two length octets
	StateMarkerData              // capturing or skipping marker data
	StateHuff                    // entropy coded scan data
	StateInt                     // consuming a restart marker inside scan data
	StateEoi                     // all MCUs emitted, terminal
)

func (s State) String() string {
	switch s {
	case StateMarker:
		return "marker"
	case StateMarkerLen:
		return "marker-len"
	case StateMarkerData:
		return "marker-data"
	case StateHuff:
		return "huff"
	case StateInt:
		return "int"
	case StateEoi:
		return "eoi"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type component struct {
	id      byte
	hv      byte // sampling factors, H<<4 | V
	quant   int  // source DQT selector
	dcTable int
	acTable int
	blocks  int // blocks per MCU
}

// Encoder turns a baseline JPEG byte stream into SSDV packets. Input is
// consumed one byte at a time as packets are pulled, so the source is never
// read past the data the next packet needs.
type Encoder struct {
	src     io.ByteReader
	state   State
	done    bool
	pktType PacketType

	callsign uint32
	imageID  uint8
	quality  uint8

	// marker parsing
	sawFF     bool
	marker    Marker
	markerLen int
	markerPos int
	lenBytes  [2]byte
	lenPos    int
	capture   []byte

	// captured table data; huffman symbol slices point into tbl
	tbl       [TABLE_LEN + HBUF_LEN]byte
	tablesLen int

	// image geometry
	width      int
	height     int
	mcuMode    uint8
	ycparts    int
	mcuCount   int
	components []component
	greyscale  bool
	dri        int

	// source tables
	srcQuant [4]*[64]int
	srcDC    [4]*huffDecoder
	srcAC    [4]*huffDecoder

	// output tables
	outQuant [2][64]int
	outDC    [2]*huffEncoder
	outAC    [2]*huffEncoder

	// entropy decoder
	inBits      byte
	inLen       int
	dcPred      [3]int
	mcuID       int
	restartDone bool

	// entropy encoder
	outBits  uint32
	outLen   int
	outPred  [3]int
	packetID uint16
	cur      []byte
	curMCU   bool
	curOff   uint8
	curMCUID uint16
	ready    []*Packet
}

// NewEncoder creates an encoder over src. Quality above 7 is clamped.
func NewEncoder(pktType PacketType, callsign string, imageID uint8, quality uint8, src io.ByteReader) *Encoder {
	if quality > MAX_QUALITY {
		quality = MAX_QUALITY
	}
	if pktType != TypeNormal {
		pktType = TypeNoFEC
	}

	e := &Encoder{
		src:      src,
		state:    StateMarker,
		pktType:  pktType,
		callsign: EncodeCallsign(callsign),
		imageID:  imageID,
		quality:  quality,
	}
	e.outQuant[0] = scaleQuant(&stdQuantLuminance, quality)
	e.outQuant[1] = scaleQuant(&stdQuantChrominance, quality)
	e.outDC[0] = newHuffEncoder(&stdDCLuminance)
	e.outDC[1] = newHuffEncoder(&stdDCChrominance)
	e.outAC[0] = newHuffEncoder(&stdACLuminance)
	e.outAC[1] = newHuffEncoder(&stdACChrominance)
	e.cur = make([]byte, 0, pktType.PayloadSize())
	return e
}

// State returns the current parser state
func (e *Encoder) State() State {
	return e.state
}

// Width returns the image width once the frame header has been read
func (e *Encoder) Width() int { return e.width }

// Height returns the image height once the frame header has been read
func (e *Encoder) Height() int { return e.height }

// MCUCount returns the number of MCUs in the image once known
func (e *Encoder) MCUCount() int { return e.mcuCount }

// Next returns the next packet. io.EOF is returned once the last packet has
// been delivered. Any other error ends the sequence; later calls return
// io.EOF and the source must not be reused.
func (e *Encoder) Next() (*Packet, error) {
	for len(e.ready) == 0 {
		if e.done || e.state == StateEoi {
			return nil, io.EOF
		}
		if err := e.step(); err != nil {
			e.done = true
			e.ready = nil
			e.src = nil
			return nil, err
		}
	}

	p := e.ready[0]
	e.ready = e.ready[1:]
	if len(e.ready) == 0 && e.state == StateEoi {
		e.src = nil
	}
	return p, nil
}

func (e *Encoder) readByte() (byte, error) {
	b, err := e.src.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("ssdv: source ended in %s state: %w", e.state, io.ErrUnexpectedEOF)
		}
		return 0, err
	}
	return b, nil
}

func (e *Encoder) step() error {
	switch e.state {
	case StateMarker:
		return e.stepMarker()
	case StateMarkerLen:
		return e.stepMarkerLen()
	case StateMarkerData:
		return e.stepMarkerData()
	case StateHuff:
		return e.stepHuff()
	case StateInt:
		return e.stepRestart()
	}
	return nil
}

func (e *Encoder) stepMarker() error {
	b, err := e.readByte()
	if err != nil {
		return err
	}

	if !e.sawFF {
		e.sawFF = b == 0xFF
		return nil
	}
	if b == 0xFF {
		// fill byte
		return nil
	}
	e.sawFF = false

	m, ok := lookupMarker(0xFF00 | uint16(b))
	if !ok {
		return fmt.Errorf("%w: 0xFF%02X", ErrInvalidMarker, b)
	}
	e.marker = m

	if !m.HasLength() {
		if m == M_EOI {
			return fmt.Errorf("%w: end of image before scan data", ErrUnsupported)
		}
		return nil
	}

	e.lenPos = 0
	e.state = StateMarkerLen
	return nil
}

func (e *Encoder) stepMarkerLen() error {
	b, err := e.readByte()
	if err != nil {
		return err
	}
	e.lenBytes[e.lenPos] = b
	e.lenPos++
	if e.lenPos < 2 {
		return nil
	}

	length := int(binary.BigEndian.Uint16(e.lenBytes[:]))
	if length < 2 {
		return fmt.Errorf("%w: %s length %d", ErrInvalidMarker, e.marker, length)
	}
	e.markerLen = length - 2
	e.markerPos = 0
	e.capture = nil

	switch {
	case e.marker.IsUnsupportedFrame():
		return fmt.Errorf("%w: found %s", ErrProgressive, e.marker)
	case e.marker == M_SOF0, e.marker == M_SOS, e.marker == M_DRI, e.marker == M_DHT, e.marker == M_DQT:
		if e.markerLen > TABLE_LEN+HBUF_LEN-e.tablesLen {
			return fmt.Errorf("%w: %s needs %d bytes, %d free", ErrMemory, e.marker,
				e.markerLen, TABLE_LEN+HBUF_LEN-e.tablesLen)
		}
		e.capture = e.tbl[e.tablesLen : e.tablesLen+e.markerLen]
	}

	e.state = StateMarkerData
	if e.markerLen == 0 {
		return e.endMarker()
	}
	return nil
}

func (e *Encoder) stepMarkerData() error {
	b, err := e.readByte()
	if err != nil {
		return err
	}
	if e.capture != nil {
		e.capture[e.markerPos] = b
	}
	e.markerPos++
	if e.markerPos < e.markerLen {
		return nil
	}
	return e.endMarker()
}

func (e *Encoder) endMarker() error {
	e.state = StateMarker
	if e.capture == nil {
		return nil
	}

	data := e.capture
	e.capture = nil

	switch e.marker {
	case M_SOF0:
		return e.parseSOF0(data)
	case M_SOS:
		return e.parseSOS(data)
	case M_DRI:
		if len(data) < 2 {
			return fmt.Errorf("%w: short DRI", ErrInvalidMarker)
		}
		e.dri = int(binary.BigEndian.Uint16(data))
	case M_DHT:
		if err := e.parseDHT(data); err != nil {
			return err
		}
		e.tablesLen += len(data)
	case M_DQT:
		if err := e.parseDQT(data); err != nil {
			return err
		}
		e.tablesLen += len(data)
	}
	return nil
}

func (e *Encoder) parseSOF0(data []byte) error {
	if len(data) < 6 {
		return fmt.Errorf("%w: short SOF0", ErrInvalidMarker)
	}
	if data[0] != 8 {
		return fmt.Errorf("%w: %d bit precision", ErrUnsupported, data[0])
	}

	e.height = int(binary.BigEndian.Uint16(data[1:3]))
	e.width = int(binary.BigEndian.Uint16(data[3:5]))
	n := int(data[5])

	if n != 1 && n != 3 {
		return fmt.Errorf("%w: %d components", ErrUnsupported, n)
	}
	if len(data) < 6+3*n {
		return fmt.Errorf("%w: short SOF0", ErrInvalidMarker)
	}
	if e.width == 0 || e.height == 0 || e.width > MAX_DIM || e.height > MAX_DIM {
		return fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrUnsupported, e.width, e.height, MAX_DIM, MAX_DIM)
	}
	if e.width%16 != 0 || e.height%16 != 0 {
		return fmt.Errorf("%w: %dx%d is not a multiple of 16", ErrUnsupported, e.width, e.height)
	}

	e.components = make([]component, n)
	for i := range e.components {
		c := data[6+3*i : 9+3*i]
		e.components[i] = component{id: c[0], hv: c[1], quant: int(c[2]), blocks: 1}
		if c[2] > 3 {
			return fmt.Errorf("%w: quantisation table %d", ErrUnsupported, c[2])
		}
	}

	e.greyscale = n == 1
	hv := e.components[0].hv
	if e.greyscale {
		// a single component scan is never interleaved
		hv = 0x11
	}

	switch hv {
	case 0x22:
		e.mcuMode, e.ycparts = 0, 4
	case 0x12:
		e.mcuMode, e.ycparts = 1, 2
	case 0x21:
		e.mcuMode, e.ycparts = 2, 2
	case 0x11:
		e.mcuMode, e.ycparts = 3, 1
	default:
		return fmt.Errorf("%w: luma sampling 0x%02X", ErrUnsupported, hv)
	}
	e.components[0].blocks = e.ycparts

	for _, c := range e.components[1:] {
		if c.hv != 0x11 {
			return fmt.Errorf("%w: chroma sampling 0x%02X", ErrUnsupported, c.hv)
		}
	}

	mcuW := 8 * int(hv>>4)
	mcuH := 8 * int(hv&0x0F)
	e.mcuCount = (e.width / mcuW) * (e.height / mcuH)
	if e.mcuCount > 0xFFFF {
		return fmt.Errorf("%w: %d MCUs", ErrUnsupported, e.mcuCount)
	}
	return nil
}

func (e *Encoder) parseDQT(data []byte) error {
	for len(data) > 0 {
		pq, tq := data[0]>>4, data[0]&0x0F
		if pq != 0 {
			return fmt.Errorf("%w: 16 bit quantisation table", ErrUnsupported)
		}
		if tq > 3 {
			return fmt.Errorf("%w: quantisation table %d", ErrUnsupported, tq)
		}
		if len(data) < 65 {
			return fmt.Errorf("%w: short DQT", ErrInvalidMarker)
		}
		q := new([64]int)
		for i := 0; i < 64; i++ {
			q[i] = int(data[1+i])
		}
		e.srcQuant[tq] = q
		data = data[65:]
	}
	return nil
}

func (e *Encoder) parseDHT(data []byte) error {
	for len(data) > 0 {
		if len(data) < 17 {
			return fmt.Errorf("%w: short DHT", ErrInvalidMarker)
		}
		id := data[0]
		var bits [16]byte
		copy(bits[:], data[1:17])
		total := 0
		for _, n := range bits {
			total += int(n)
		}
		if len(data) < 17+total {
			return fmt.Errorf("%w: short DHT", ErrInvalidMarker)
		}

		d, err := newHuffDecoder(&bits, data[17:17+total])
		if err != nil {
			return err
		}

		switch id {
		case 0x00:
			e.srcDC[0] = d
		case 0x01:
			e.srcDC[1] = d
		case 0x10:
			e.srcAC[0] = d
		case 0x11:
			e.srcAC[1] = d
		default:
			return fmt.Errorf("%w: huffman table id 0x%02X", ErrUnsupported, id)
		}
		data = data[17+total:]
	}
	return nil
}

func (e *Encoder) parseSOS(data []byte) error {
	if e.components == nil {
		return fmt.Errorf("%w: scan before frame header", ErrUnsupported)
	}
	if len(data) < 1 {
		return fmt.Errorf("%w: short SOS", ErrInvalidMarker)
	}
	n := int(data[0])
	if n != len(e.components) || len(data) < 1+2*n+3 {
		return fmt.Errorf("%w: scan has %d of %d components", ErrUnsupported, n, len(e.components))
	}

	for i := 0; i < n; i++ {
		id, sel := data[1+2*i], data[2+2*i]
		c := e.findComponent(id)
		if c == nil {
			return fmt.Errorf("%w: scan references component %d", ErrUnsupported, id)
		}
		c.dcTable = int(sel >> 4)
		c.acTable = int(sel & 0x0F)
		if c.dcTable > 1 || c.acTable > 1 || e.srcDC[c.dcTable] == nil || e.srcAC[c.acTable] == nil {
			return fmt.Errorf("%w: component %d has no huffman table", ErrUnsupported, id)
		}
		if e.srcQuant[c.quant] == nil {
			return fmt.Errorf("%w: component %d has no quantisation table", ErrUnsupported, id)
		}
	}

	e.inLen = 0
	e.mcuID = 0
	e.dcPred = [3]int{}
	e.state = StateHuff
	return nil
}

func (e *Encoder) findComponent(id byte) *component {
	for i := range e.components {
		if e.components[i].id == id {
			return &e.components[i]
		}
	}
	return nil
}

func (e *Encoder) stepHuff() error {
	if e.mcuID == e.mcuCount {
		e.finish()
		return nil
	}

	if e.dri > 0 && e.mcuID > 0 && e.mcuID%e.dri == 0 && !e.restartDone {
		e.inLen = 0
		e.sawFF = false
		e.state = StateInt
		return nil
	}
	e.restartDone = false

	return e.encodeMCU()
}

func (e *Encoder) stepRestart() error {
	b, err := e.readByte()
	if err != nil {
		return err
	}
	if b == 0xFF {
		e.sawFF = true
		return nil
	}
	if e.sawFF && Marker(0xFF00|uint16(b)).IsRestart() {
		e.sawFF = false
		e.dcPred = [3]int{}
		e.restartDone = true
		e.state = StateHuff
		return nil
	}
	return fmt.Errorf("%w: expected restart marker at MCU %d, got 0x%02X", ErrInvalidMarker, e.mcuID, b)
}

func (e *Encoder) encodeMCU() error {
	e.startMCU()

	var coef [64]int
	for ci := range e.components {
		c := &e.components[ci]
		for b := 0; b < c.blocks; b++ {
			if err := e.decodeBlock(ci, &coef); err != nil {
				return fmt.Errorf("MCU %d: %w", e.mcuID, err)
			}
			e.requantize(ci, &coef)
			e.encodeBlock(ci, &coef)
		}
	}

	if e.greyscale {
		clear(coef[:])
		e.encodeBlock(1, &coef)
		e.encodeBlock(2, &coef)
	}

	e.mcuID++
	return nil
}

// scanByte returns the next entropy coded byte with 0xFF00 stuffing removed
func (e *Encoder) scanByte() (byte, error) {
	b, err := e.readByte()
	if err != nil || b != 0xFF {
		return b, err
	}
	n, err := e.readByte()
	if err != nil {
		return 0, err
	}
	if n != 0x00 {
		return 0, fmt.Errorf("%w: 0xFF%02X inside scan data at MCU %d", ErrInvalidMarker, n, e.mcuID)
	}
	return 0xFF, nil
}

func (e *Encoder) readBit() (int32, error) {
	if e.inLen == 0 {
		b, err := e.scanByte()
		if err != nil {
			return 0, err
		}
		e.inBits = b
		e.inLen = 8
	}
	e.inLen--
	return int32(e.inBits>>e.inLen) & 1, nil
}

func (e *Encoder) readBits(n int) (int32, error) {
	var v int32
	for i := 0; i < n; i++ {
		bit, err := e.readBit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | bit
	}
	return v, nil
}

func (e *Encoder) decodeBlock(ci int, coef *[64]int) error {
	c := &e.components[ci]
	clear(coef[:])

	s, err := e.srcDC[c.dcTable].decode(e.readBit)
	if err != nil {
		return err
	}
	if s > 11 {
		return fmt.Errorf("%w: DC category %d", ErrHuffman, s)
	}
	bits, err := e.readBits(int(s))
	if err != nil {
		return err
	}
	e.dcPred[ci] += extend(bits, int(s))
	coef[0] = e.dcPred[ci]

	for k := 1; k < 64; {
		rs, err := e.srcAC[c.acTable].decode(e.readBit)
		if err != nil {
			return err
		}
		r, s := int(rs>>4), int(rs&0x0F)
		if s == 0 {
			if r != 15 {
				break // EOB
			}
			k += 16
			continue
		}
		k += r
		if k > 63 {
			return fmt.Errorf("%w: coefficient index %d", ErrHuffman, k)
		}
		bits, err := e.readBits(s)
		if err != nil {
			return err
		}
		coef[k] = extend(bits, s)
		k++
	}
	return nil
}

// requantize converts coefficients from the source table to the output
// table, rounding half away from zero
func (e *Encoder) requantize(ci int, coef *[64]int) {
	sq := e.srcQuant[e.components[ci].quant]
	dq := &e.outQuant[outTable(ci)]
	for k, v := range coef {
		if v == 0 {
			continue
		}
		coef[k] = clampCoef(divRound(v*sq[k], dq[k]))
	}
}

func outTable(ci int) int {
	if ci == 0 {
		return 0
	}
	return 1
}

func divRound(a, b int) int {
	if a >= 0 {
		return (a + b/2) / b
	}
	return -((-a + b/2) / b)
}

// clampCoef keeps values within the categories of the standard tables. The
// difference of two clamped DC values still fits DC category 11.
func clampCoef(v int) int {
	const limit = 1023
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

func (e *Encoder) encodeBlock(ci int, coef *[64]int) {
	t := outTable(ci)
	dc, ac := e.outDC[t], e.outAC[t]

	diff := coef[0] - e.outPred[ci]
	e.outPred[ci] = coef[0]
	s := bitLength(diff)
	e.putBits(uint32(dc.code[s]), int(dc.size[s]))
	e.putBits(magnitudeBits(diff, s), s)

	run := 0
	for k := 1; k < 64; k++ {
		v := coef[k]
		if v == 0 {
			run++
			continue
		}
		for run > 15 {
			e.putBits(uint32(ac.code[0xF0]), int(ac.size[0xF0]))
			run -= 16
		}
		s := bitLength(v)
		sym := byte(run<<4 | s)
		e.putBits(uint32(ac.code[sym]), int(ac.size[sym]))
		e.putBits(magnitudeBits(v, s), s)
		run = 0
	}
	if run > 0 {
		e.putBits(uint32(ac.code[0x00]), int(ac.size[0x00]))
	}
}

// startMCU byte-aligns the first MCU beginning in each packet and codes its
// DC values absolutely, so a receiver can resume decoding there
func (e *Encoder) startMCU() {
	if e.curMCU && len(e.cur) < cap(e.cur) {
		return
	}

	e.syncBits()
	if len(e.cur) == cap(e.cur) {
		e.flushPacket(false)
	}

	e.curMCU = true
	e.curOff = uint8(len(e.cur))
	e.curMCUID = uint16(e.mcuID)
	e.outPred = [3]int{}
}

func (e *Encoder) putBits(bits uint32, n int) {
	if n == 0 {
		return
	}
	e.outBits = e.outBits<<n | bits&(1<<n-1)
	e.outLen += n
	for e.outLen >= 8 {
		e.outLen -= 8
		e.putByte(byte(e.outBits >> e.outLen))
	}
}

// syncBits pads the output with 1 bits to the next byte boundary
func (e *Encoder) syncBits() {
	if e.outLen > 0 {
		pad := 8 - e.outLen
		e.putBits(1<<pad-1, pad)
	}
}

// putByte appends to the current packet. A full packet is only flushed once
// another byte needs room, so the final packet is never empty.
func (e *Encoder) putByte(b byte) {
	if len(e.cur) == cap(e.cur) {
		e.flushPacket(false)
	}
	e.cur = append(e.cur, b)
}

func (e *Encoder) flushPacket(eoi bool) {
	n := cap(e.cur)
	data := make([]byte, n)
	copy(data, e.cur)
	for i := len(e.cur); i < n; i++ {
		data[i] = 0xFF
	}

	p := &Packet{
		Type:      e.pktType,
		Callsign:  e.callsign,
		ImageID:   e.imageID,
		PacketID:  e.packetID,
		Width:     uint16(e.width),
		Height:    uint16(e.height),
		Quality:   e.quality,
		EOI:       eoi,
		MCUMode:   e.mcuMode,
		MCUOffset: NO_MCU_OFFSET,
		MCUID:     NO_MCU_ID,
		Data:      data,
	}
	if e.curMCU {
		p.MCUOffset = e.curOff
		p.MCUID = e.curMCUID
	}

	e.ready = append(e.ready, p)
	e.packetID++
	e.cur = e.cur[:0]
	e.curMCU = false
}

func (e *Encoder) finish() {
	e.syncBits()
	e.flushPacket(true)
	e.state = StateEoi
}
