package uart

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/goburrow/serial"
)

// Serial line defaults
const (
	DEFAULT_BAUD_RATE = 9600
	DEFAULT_DATA_BITS = 8
	DEFAULT_STOP_BITS = 1
	DEFAULT_PARITY    = "N"
	DEFAULT_TIMEOUT   = 100 * time.Millisecond
)

// Config describes a serial device
type Config struct {
	Device   string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string // "N", "E" or "O"
	Timeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DEFAULT_BAUD_RATE
	}
	if c.DataBits == 0 {
		c.DataBits = DEFAULT_DATA_BITS
	}
	if c.StopBits == 0 {
		c.StopBits = DEFAULT_STOP_BITS
	}
	if c.Parity == "" {
		c.Parity = DEFAULT_PARITY
	}
	if c.Timeout == 0 {
		c.Timeout = DEFAULT_TIMEOUT
	}
	return c
}

// Port is a serial device with polling reads: a read that times out reports
// zero bytes instead of an error
type Port struct {
	cfg  Config
	port serial.Port
	log  *log.Logger
}

// NewPort creates an unopened port
func NewPort(cfg Config) *Port {
	cfg = cfg.withDefaults()
	return &Port{
		cfg: cfg,
		log: log.New(os.Stdout, fmt.Sprintf("[UART %s] ", cfg.Device), log.LstdFlags),
	}
}

// Open opens the device with the configured line settings
func (p *Port) Open() error {
	port, err := serial.Open(&serial.Config{
		Address:  p.cfg.Device,
		BaudRate: p.cfg.BaudRate,
		DataBits: p.cfg.DataBits,
		StopBits: p.cfg.StopBits,
		Parity:   p.cfg.Parity,
		Timeout:  p.cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", p.cfg.Device, err)
	}
	p.port = port

	p.log.Printf("Opened at %d baud, %d%s%d", p.cfg.BaudRate, p.cfg.DataBits, p.cfg.Parity, p.cfg.StopBits)
	return nil
}

// Read returns whatever the device has buffered; 0 with a nil error means
// no data arrived within the timeout
func (p *Port) Read(buf []byte) (int, error) {
	if p.port == nil {
		return 0, fmt.Errorf("port %s not open", p.cfg.Device)
	}
	n, err := p.port.Read(buf)
	if err != nil {
		if errors.Is(err, serial.ErrTimeout) {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

// Write sends buf to the device
func (p *Port) Write(buf []byte) (int, error) {
	if p.port == nil {
		return 0, fmt.Errorf("port %s not open", p.cfg.Device)
	}
	return p.port.Write(buf)
}

// Close closes the device
func (p *Port) Close() error {
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}

func (p *Port) String() string {
	return p.cfg.Device
}
