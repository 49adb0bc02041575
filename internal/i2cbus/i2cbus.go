package i2cbus

import (
	"fmt"
	"log"
	"os"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var (
	hostOnce sync.Once
	hostErr  error
	logger   = log.New(os.Stdout, "[I2C] ", log.LstdFlags)
)

// Device is an open peripheral on an I2C bus. Close releases the bus.
type Device struct {
	*i2c.Dev
	bus i2c.BusCloser
}

// Open loads the host drivers once, opens the named bus ("" selects the
// first available) and binds addr on it
func Open(busName string, addr uint16) (*Device, error) {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	if hostErr != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", hostErr)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %q: %w", busName, err)
	}

	logger.Printf("Opened %s for device 0x%02X", bus, addr)
	return &Device{Dev: &i2c.Dev{Bus: bus, Addr: addr}, bus: bus}, nil
}

// Close closes the underlying bus
func (d *Device) Close() error {
	return d.bus.Close()
}
