package ssdv

import (
	"bytes"
	"testing"
)

func TestEncodeCallsign(t *testing.T) {
	tests := []struct {
		name     string
		callsign string
		expected uint32
	}{
		{name: "empty", callsign: "", expected: 0},
		{name: "single letter", callsign: "A", expected: 14},
		{name: "single digit", callsign: "1", expected: 2},
		{name: "last character most significant", callsign: "A1", expected: 2*40 + 14},
		{name: "lower case", callsign: "a1", expected: 2*40 + 14},
		{name: "unmapped character", callsign: "-A", expected: 14 * 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := EncodeCallsign(tt.callsign); result != tt.expected {
				t.Errorf("EncodeCallsign(%q) = %d, want %d", tt.callsign, result, tt.expected)
			}
		})
	}
}

func TestCallsignRoundTrip(t *testing.T) {
	for _, cs := range []string{"N0CALL", "M0XYZ", "G4ABC", "AB1"} {
		if got := DecodeCallsign(EncodeCallsign(cs)); got != cs {
			t.Errorf("DecodeCallsign(EncodeCallsign(%q)) = %q", cs, got)
		}
	}
	if got := DecodeCallsign(EncodeCallsign("N0CALL-11")); got != "N0CALL" {
		t.Errorf("callsign longer than six characters = %q, want N0CALL", got)
	}
}

func testPacket(t PacketType) *Packet {
	data := make([]byte, t.PayloadSize())
	for i := range data {
		data[i] = byte(i * 7)
	}
	return &Packet{
		Type:      t,
		Callsign:  EncodeCallsign("N0CALL"),
		ImageID:   3,
		PacketID:  0x0102,
		Width:     320,
		Height:    240,
		Quality:   4,
		MCUMode:   0,
		MCUOffset: 12,
		MCUID:     77,
		Data:      data,
	}
}

func TestPacketHeader(t *testing.T) {
	p := testPacket(TypeNoFEC)
	p.EOI = true

	expected := []byte{
		0x67,
		0, 0, 0, 0, // callsign, patched below
		0x03,
		0x01, 0x02,
		20, 15,
		0x04, // quality 4 -> 0, eoi set, mode 0
		12,
		0x00, 77,
	}
	c := EncodeCallsign("N0CALL")
	expected[1], expected[2], expected[3], expected[4] = byte(c>>24), byte(c>>16), byte(c>>8), byte(c)

	if got := p.Header(); !bytes.Equal(got, expected) {
		t.Errorf("Header() = % X, want % X", got, expected)
	}
}

func TestPacketBytes(t *testing.T) {
	for _, pt := range []PacketType{TypeNormal, TypeNoFEC} {
		t.Run(pt.String(), func(t *testing.T) {
			p := testPacket(pt)
			raw := p.Bytes()

			if len(raw) != PKT_SIZE {
				t.Fatalf("Bytes() length = %d, want %d", len(raw), PKT_SIZE)
			}
			if raw[0] != SYNC_BYTE {
				t.Errorf("sync byte = 0x%02X", raw[0])
			}

			parsed, err := ParsePacket(raw)
			if err != nil {
				t.Fatalf("ParsePacket() error: %v", err)
			}
			if parsed.PacketID != p.PacketID || parsed.Width != p.Width || parsed.Height != p.Height ||
				parsed.Quality != p.Quality || parsed.MCUID != p.MCUID || parsed.MCUOffset != p.MCUOffset {
				t.Errorf("ParsePacket() = %+v, want %+v", parsed, p)
			}

			raw[PKT_SIZE_HEADER] ^= 0x01
			if _, err := ParsePacket(raw); err == nil {
				t.Errorf("ParsePacket() accepted a corrupted payload")
			}
		})
	}
}

// gfMul multiplies in GF(2^8) with the RS field polynomial
func gfMul(a, b byte) byte {
	var p uint16
	x, y := uint16(a), uint16(b)
	for y > 0 {
		if y&1 != 0 {
			p ^= x
		}
		x <<= 1
		if x&0x100 != 0 {
			x ^= RS_GFPOLY
		}
		y >>= 1
	}
	return byte(p)
}

func gfPow(a byte, n int) byte {
	r := byte(1)
	for i := 0; i < n; i++ {
		r = gfMul(r, a)
	}
	return r
}

func TestReedSolomonSyndromes(t *testing.T) {
	raw := testPacket(TypeNormal).Bytes()
	codeword := raw[1:]

	for i := 0; i < RS_NROOTS; i++ {
		root := gfPow(2, ((RS_FCR+i)*RS_PRIM)%RS_NN)
		var s byte
		for _, b := range codeword {
			s = gfMul(s, root) ^ b
		}
		if s != 0 {
			t.Errorf("syndrome %d = 0x%02X, want 0", i, s)
		}
	}
}

func TestParsePacketType(t *testing.T) {
	tests := []struct {
		input    string
		expected PacketType
		wantErr  bool
	}{
		{input: "normal", expected: TypeNormal},
		{input: "NoFEC", expected: TypeNoFEC},
		{input: "", expected: TypeNoFEC},
		{input: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		result, err := ParsePacketType(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePacketType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && result != tt.expected {
			t.Errorf("ParsePacketType(%q) = %v, want %v", tt.input, result, tt.expected)
		}
	}
}

func TestLookupMarker(t *testing.T) {
	tests := []struct {
		code      uint16
		valid     bool
		hasLength bool
	}{
		{code: 0xFF01, valid: true, hasLength: false},
		{code: 0xFFC0, valid: true, hasLength: true},
		{code: 0xFFD3, valid: true, hasLength: false},
		{code: 0xFFD8, valid: true, hasLength: false},
		{code: 0xFFE1, valid: true, hasLength: true},
		{code: 0xFFFE, valid: true, hasLength: true},
		{code: 0xFF02, valid: false},
		{code: 0xFFBF, valid: false},
		{code: 0xFFFF, valid: false},
	}

	for _, tt := range tests {
		m, ok := lookupMarker(tt.code)
		if ok != tt.valid {
			t.Errorf("lookupMarker(0x%04X) ok = %v, want %v", tt.code, ok, tt.valid)
			continue
		}
		if !ok {
			if m != M_INVALID {
				t.Errorf("lookupMarker(0x%04X) = %v, want M_INVALID", tt.code, m)
			}
			continue
		}
		if m.HasLength() != tt.hasLength {
			t.Errorf("%v.HasLength() = %v, want %v", m, m.HasLength(), tt.hasLength)
		}
	}

	for _, m := range []Marker{M_SOF1, M_SOF2, M_SOF3, M_SOF9, M_SOF15} {
		if !m.IsUnsupportedFrame() {
			t.Errorf("%v.IsUnsupportedFrame() = false", m)
		}
	}
	for _, m := range []Marker{M_SOF0, M_DHT, M_DAC, M_JPG} {
		if m.IsUnsupportedFrame() {
			t.Errorf("%v.IsUnsupportedFrame() = true", m)
		}
	}
}

func TestHuffmanRoundTrip(t *testing.T) {
	for _, spec := range []*huffSpec{&stdDCLuminance, &stdDCChrominance, &stdACLuminance, &stdACChrominance} {
		enc := newHuffEncoder(spec)
		dec, err := newHuffDecoder(&spec.bits, spec.vals)
		if err != nil {
			t.Fatalf("newHuffDecoder() error: %v", err)
		}

		for _, sym := range spec.vals {
			code, size := enc.code[sym], int(enc.size[sym])
			pos := size
			next := func() (int32, error) {
				pos--
				return int32(code>>pos) & 1, nil
			}
			got, err := dec.decode(next)
			if err != nil {
				t.Fatalf("decode(0x%02X) error: %v", sym, err)
			}
			if got != sym || pos != 0 {
				t.Errorf("decode() = 0x%02X after %d bits, want 0x%02X after %d", got, size-pos, sym, size)
			}
		}
	}
}

func TestExtendMagnitude(t *testing.T) {
	for v := -1023; v <= 1023; v++ {
		s := bitLength(v)
		if got := extend(int32(magnitudeBits(v, s)), s); got != v {
			t.Fatalf("extend(magnitudeBits(%d)) = %d", v, got)
		}
	}
}

func TestScaleQuant(t *testing.T) {
	tests := []struct {
		name    string
		quality uint8
		index   int
		want    int
	}{
		{name: "quality 4 is the standard table", quality: 4, index: 0, want: 16},
		{name: "quality 7 is all ones", quality: 7, index: 63, want: 1},
		{name: "quality 0 clamps to 255", quality: 0, index: 0, want: 255},
		{name: "quality 5 scales down", quality: 5, index: 0, want: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := scaleQuant(&stdQuantLuminance, tt.quality)
			if q[tt.index] != tt.want {
				t.Errorf("scaleQuant(%d)[%d] = %d, want %d", tt.quality, tt.index, q[tt.index], tt.want)
			}
		})
	}
}

func TestDivRound(t *testing.T) {
	tests := []struct{ a, b, want int }{
		{a: 5, b: 2, want: 3},
		{a: -5, b: 2, want: -3},
		{a: 4, b: 3, want: 1},
		{a: -4, b: 3, want: -1},
		{a: 0, b: 7, want: 0},
	}
	for _, tt := range tests {
		if got := divRound(tt.a, tt.b); got != tt.want {
			t.Errorf("divRound(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
