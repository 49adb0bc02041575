package radio

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3"
)

const (
	SIGNAL_GENERATOR_ADDRESS = 0x08
	DEFAULT_CHUNK_SIZE       = 32 // Linux i2c-dev and the ATTiny TWI buffer
)

// SignalGenerator streams frame bytes to the microcontroller that keys the
// transmitter and produces the AFSK audio. Frames are delimited by their own
// flag bytes, so chunks carry raw frame data only.
type SignalGenerator struct {
	dev        conn.Conn
	ChunkSize  int
	ChunkDelay time.Duration
	Sleep      func(time.Duration)
}

// NewSignalGenerator wraps the generator's I2C device
func NewSignalGenerator(dev conn.Conn, chunkSize int) *SignalGenerator {
	if chunkSize <= 0 {
		chunkSize = DEFAULT_CHUNK_SIZE
	}
	return &SignalGenerator{
		dev:       dev,
		ChunkSize: chunkSize,
		Sleep:     time.Sleep,
	}
}

// Transmit writes one complete frame
func (s *SignalGenerator) Transmit(frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("empty frame")
	}
	for off := 0; off < len(frame); off += s.ChunkSize {
		end := min(off+s.ChunkSize, len(frame))
		if err := s.dev.Tx(frame[off:end], nil); err != nil {
			return fmt.Errorf("i2c write at offset %d of %d: %w", off, len(frame), err)
		}
		if s.ChunkDelay > 0 && end < len(frame) {
			s.Sleep(s.ChunkDelay)
		}
	}
	return nil
}
