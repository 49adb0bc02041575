package codec

import (
	"bytes"
	"testing"
)

func TestBase91Encode(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []byte
	}{
		{
			name:     "empty buffer",
			input:    []byte{},
			expected: []byte{33},
		},
		{
			name:     "zero byte",
			input:    []byte{0x00},
			expected: []byte{33},
		},
		{
			name:     "single byte below radix",
			input:    []byte{90},
			expected: []byte{123},
		},
		{
			name:     "single byte at radix",
			input:    []byte{91},
			expected: []byte{34, 33},
		},
		{
			name:     "little endian two bytes",
			input:    []byte{0x00, 0x01}, // 256 = 2*91 + 74
			expected: []byte{35, 107},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Base91Encode(tt.input)
			if !bytes.Equal(result, tt.expected) {
				t.Errorf("Base91Encode(% X) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestBase91SingleByteDigits(t *testing.T) {
	for b := 0; b < BASE91_RADIX; b++ {
		result := Base91Encode([]byte{byte(b)})
		if len(result) != 1 || result[0] != byte(b)+33 {
			t.Errorf("Base91Encode([%d]) = %v, want [%d]", b, result, b+33)
		}
	}
}

func TestBase91DigitBound(t *testing.T) {
	data := make([]byte, 118)
	for i := range data {
		data[i] = byte(i*37 + 11)
	}

	for n := 0; n <= len(data); n++ {
		for _, c := range Base91Encode(data[:n]) {
			if c < 33 || c > 123 {
				t.Fatalf("Base91Encode(%d bytes) produced digit %d outside [33, 123]", n, c)
			}
		}
	}
}

func TestBase91RoundTrip(t *testing.T) {
	data := []byte{0xFF, 0x00, 0x10, 0x7E, 0xAA, 0x55, 0x00, 0xFF, 0x01}

	encoded := Base91Encode(data)
	decoded, ok := Base91Decode(encoded, len(data))
	if !ok {
		t.Fatalf("Base91Decode() rejected %q", encoded)
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("Base91Decode() = % X, want % X", decoded, data)
	}
}

func TestBase91DecodeRejectsBadDigits(t *testing.T) {
	if _, ok := Base91Decode([]byte{' '}, 1); ok {
		t.Errorf("Base91Decode() accepted digit below range")
	}
	if _, ok := Base91Decode([]byte{124}, 1); ok {
		t.Errorf("Base91Decode() accepted digit above range")
	}
}
