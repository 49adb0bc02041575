package radio

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dbehnke/balloontx/internal/uart"
)

// ErrNoConnect is returned when the module answers with anything but success
var ErrNoConnect = errors.New("dra818v: module did not acknowledge")

const (
	CMD_CONNECT     = "AT+DMOCONNECT"
	CMD_SET_GROUP   = "AT+DMOSETGROUP"
	CMD_SET_VOLUME  = "AT+DMOSETVOLUME"
	RESP_CONNECT    = "+DMOCONNECT:0"
	RESP_SET_GROUP  = "+DMOSETGROUP:0"
	RESP_SET_VOLUME = "+DMOSETVOLUME:0"

	BANDWIDTH_NARROW = 0 // 12.5 kHz
	BANDWIDTH_WIDE   = 1 // 25 kHz
	DEFAULT_SQUELCH  = 0
)

// DRA818V is a VHF transceiver module driven by AT commands over a UART
type DRA818V struct {
	rw        io.ReadWriter
	lines     *uart.LineReader
	Bandwidth int
	Squelch   int
	log       *log.Logger
}

// NewDRA818V talks to the module over rw, typically a *uart.Port
func NewDRA818V(rw io.ReadWriter) *DRA818V {
	return &DRA818V{
		rw:        rw,
		lines:     uart.NewLineReader(rw),
		Bandwidth: BANDWIDTH_NARROW,
		Squelch:   DEFAULT_SQUELCH,
		log:       log.New(os.Stdout, "[DRA818V] ", log.LstdFlags),
	}
}

// Init performs the handshake and tunes transmit and receive to freqMHz
func (d *DRA818V) Init(freqMHz float64) error {
	if err := d.Connect(); err != nil {
		return err
	}
	if err := d.SetGroup(freqMHz, freqMHz); err != nil {
		return err
	}
	d.log.Printf("Tuned to %.4f MHz", freqMHz)
	return nil
}

// Connect sends the handshake command
func (d *DRA818V) Connect() error {
	return d.command(CMD_CONNECT, RESP_CONNECT)
}

// SetGroup programs the transmit and receive frequencies
func (d *DRA818V) SetGroup(txMHz, rxMHz float64) error {
	cmd := fmt.Sprintf("%s=%d,%.4f,%.4f,0000,%d,0000", CMD_SET_GROUP, d.Bandwidth, txMHz, rxMHz, d.Squelch)
	return d.command(cmd, RESP_SET_GROUP)
}

// SetVolume sets the audio output level, 1 to 8
func (d *DRA818V) SetVolume(level int) error {
	if level < 1 || level > 8 {
		return fmt.Errorf("volume %d out of range 1-8", level)
	}
	return d.command(fmt.Sprintf("%s=%d", CMD_SET_VOLUME, level), RESP_SET_VOLUME)
}

func (d *DRA818V) command(cmd, want string) error {
	d.lines.Reset()
	if _, err := io.WriteString(d.rw, cmd+"\r\n"); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd, err)
	}

	line, err := d.lines.ReadLine()
	if err != nil {
		return fmt.Errorf("no response to %s: %w", cmd, err)
	}
	if line != want {
		return fmt.Errorf("%w: %s answered %q", ErrNoConnect, cmd, line)
	}
	return nil
}
