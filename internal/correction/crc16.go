package correction

// AX.25 frame check sequence constants (CRC-16/CCITT, reflected)
const (
	CRC16_POLY = 0x8408 // Reversed CCITT polynomial
	CRC16_SEED = 0xFFFF // Initial register value
)

// CRC16Update folds one byte into the CRC register, least significant bit first
func CRC16Update(state uint16, b byte) uint16 {
	for i := 0; i < 8; i++ {
		state ^= uint16(b & 0x01)
		if state&0x01 != 0 {
			state = (state >> 1) ^ CRC16_POLY
		} else {
			state >>= 1
		}
		b >>= 1
	}
	return state
}

// CRC16Finalize returns the two FCS octets in transmission order (low, high)
func CRC16Finalize(state uint16) (byte, byte) {
	return byte(state&0xFF) ^ 0xFF, byte((state>>8)&0xFF) ^ 0xFF
}

// CRC16 runs the register over data starting from CRC16_SEED
func CRC16(data []byte) uint16 {
	state := uint16(CRC16_SEED)
	for _, b := range data {
		state = CRC16Update(state, b)
	}
	return state
}

// AppendCRC16 appends the FCS of data to dst and returns the extended slice
func AppendCRC16(dst []byte, data []byte) []byte {
	lo, hi := CRC16Finalize(CRC16(data))
	return append(dst, lo, hi)
}
