package ssdv

import "fmt"

// huffDecoder decodes canonical Huffman codes one bit at a time
type huffDecoder struct {
	minCode [17]int32
	maxCode [17]int32 // -1 when no codes of that length
	valPtr  [17]int
	vals    []byte
}

func newHuffDecoder(bits *[16]byte, vals []byte) (*huffDecoder, error) {
	d := &huffDecoder{vals: vals}
	code, k := int32(0), 0
	for l := 1; l <= 16; l++ {
		n := int(bits[l-1])
		if n == 0 {
			d.maxCode[l] = -1
		} else {
			d.valPtr[l] = k
			d.minCode[l] = code
			code += int32(n)
			k += n
			d.maxCode[l] = code - 1
		}
		if code > 1<<l {
			return nil, fmt.Errorf("%w: over-subscribed code length %d", ErrHuffman, l)
		}
		code <<= 1
	}
	if k != len(vals) {
		return nil, fmt.Errorf("%w: %d symbols declared, %d present", ErrHuffman, k, len(vals))
	}
	return d, nil
}

// decode pulls bits from next until a complete code is matched
func (d *huffDecoder) decode(next func() (int32, error)) (byte, error) {
	code := int32(0)
	for l := 1; l <= 16; l++ {
		bit, err := next()
		if err != nil {
			return 0, err
		}
		code = code<<1 | bit
		if d.maxCode[l] >= 0 && code <= d.maxCode[l] && code >= d.minCode[l] {
			return d.vals[d.valPtr[l]+int(code-d.minCode[l])], nil
		}
	}
	return 0, ErrHuffman
}

// huffEncoder maps a symbol to its code and code length
type huffEncoder struct {
	code [256]uint16
	size [256]uint8
}

func newHuffEncoder(spec *huffSpec) *huffEncoder {
	e := &huffEncoder{}
	code, k := uint16(0), 0
	for l := 1; l <= 16; l++ {
		for i := 0; i < int(spec.bits[l-1]); i++ {
			e.code[spec.vals[k]] = code
			e.size[spec.vals[k]] = uint8(l)
			code++
			k++
		}
		code <<= 1
	}
	return e
}

// bitLength returns the JPEG magnitude category of v
func bitLength(v int) int {
	if v < 0 {
		v = -v
	}
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}

// extend converts s raw bits into a signed coefficient (T.81 F.2.2.1)
func extend(v int32, s int) int {
	if s == 0 {
		return 0
	}
	if v < 1<<(s-1) {
		return int(v) - (1 << s) + 1
	}
	return int(v)
}

// magnitudeBits is the inverse of extend
func magnitudeBits(v, s int) uint32 {
	if v < 0 {
		v += (1 << s) - 1
	}
	return uint32(v) & (1<<s - 1)
}
