package uart

import (
	"bytes"
	"errors"
	"io"
	"time"
)

// ErrTimeout is returned when no complete line arrives within the poll budget
var ErrTimeout = errors.New("uart: timed out waiting for a line")

const (
	DEFAULT_POLL_INTERVAL = 10 * time.Millisecond
	DEFAULT_MAX_POLLS     = 200
	MAX_LINE_LENGTH       = 512
	MAX_DRAIN_READS       = 1024
)

// LineReader splits a polled byte stream into CR/LF terminated lines
type LineReader struct {
	r       io.Reader
	pending []byte
	lines   []string
	buf     [256]byte

	PollInterval time.Duration
	MaxPolls     int
	Sleep        func(time.Duration)
}

// NewLineReader wraps r; a read of zero bytes (or io.EOF) means "nothing yet"
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		r:            r,
		PollInterval: DEFAULT_POLL_INTERVAL,
		MaxPolls:     DEFAULT_MAX_POLLS,
		Sleep:        time.Sleep,
	}
}

// Fill moves any bytes the device has into the line queue and returns the
// number of bytes read
func (l *LineReader) Fill() (int, error) {
	n, err := l.r.Read(l.buf[:])
	if n > 0 {
		l.pending = append(l.pending, l.buf[:n]...)
		l.split()
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	return n, nil
}

func (l *LineReader) split() {
	for {
		i := bytes.IndexByte(l.pending, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(l.pending[:i], "\r"))
		l.pending = l.pending[i+1:]
		if line != "" {
			l.lines = append(l.lines, line)
		}
	}
	// a device spewing garbage without newlines must not grow the buffer
	if len(l.pending) > MAX_LINE_LENGTH {
		l.pending = l.pending[:0]
	}
}

// Available returns the number of complete lines queued
func (l *LineReader) Available() int {
	return len(l.lines)
}

// ReadLine returns the next complete line without its terminator, polling
// the device until one arrives or the poll budget is spent
func (l *LineReader) ReadLine() (string, error) {
	for polls := 0; len(l.lines) == 0; polls++ {
		if polls >= l.MaxPolls {
			return "", ErrTimeout
		}
		n, err := l.Fill()
		if err != nil {
			return "", err
		}
		if n == 0 && len(l.lines) == 0 {
			l.Sleep(l.PollInterval)
		}
	}

	line := l.lines[0]
	l.lines = l.lines[1:]
	return line, nil
}

// Drain reads until the device has nothing buffered and returns every
// complete line queued, oldest first. A partial trailing line stays pending.
func (l *LineReader) Drain() ([]string, error) {
	for reads := 0; reads < MAX_DRAIN_READS; reads++ {
		n, err := l.Fill()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	lines := l.lines
	l.lines = nil
	return lines, nil
}

// Reset discards queued and partial lines
func (l *LineReader) Reset() {
	l.pending = l.pending[:0]
	l.lines = nil
}
