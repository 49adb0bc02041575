package codec

import "math/big"

// Base-91 digit range
const (
	BASE91_RADIX  = 91
	BASE91_OFFSET = 33 // '!'
)

var base91Radix = big.NewInt(BASE91_RADIX)

// Base91Encode treats data as a little-endian unsigned integer and writes it in
// radix 91, most significant digit first, each digit offset by 33.
// An empty buffer encodes as a single '!' digit.
func Base91Encode(data []byte) []byte {
	// big.Int.SetBytes expects big-endian
	be := make([]byte, len(data))
	for i, b := range data {
		be[len(data)-1-i] = b
	}

	value := new(big.Int).SetBytes(be)
	rem := new(big.Int)

	digits := make([]byte, 0, len(data)*5/4+1)
	for value.Cmp(base91Radix) >= 0 {
		value.QuoRem(value, base91Radix, rem)
		digits = append(digits, byte(rem.Int64())+BASE91_OFFSET)
	}
	digits = append(digits, byte(value.Int64())+BASE91_OFFSET)

	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}

	return digits
}

// Base91Decode reverses Base91Encode. Leading zero bytes of the original
// buffer are not recoverable, so size gives the expected output length.
func Base91Decode(digits []byte, size int) ([]byte, bool) {
	value := new(big.Int)
	d := new(big.Int)
	for _, c := range digits {
		if c < BASE91_OFFSET || c >= BASE91_OFFSET+BASE91_RADIX {
			return nil, false
		}
		value.Mul(value, base91Radix)
		value.Add(value, d.SetInt64(int64(c-BASE91_OFFSET)))
	}

	be := value.Bytes()
	if len(be) > size {
		return nil, false
	}

	out := make([]byte, size)
	for i, b := range be {
		out[len(be)-1-i] = b
	}
	return out, true
}
