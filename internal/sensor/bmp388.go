package sensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"periph.io/x/conn/v3"
)

// BMP388 registers and commands
const (
	BMP388_ADDRESS      = 0x77
	BMP388_CHIP_ID      = 0x50
	REG_CHIP_ID         = 0x00
	REG_ERROR           = 0x02
	REG_STATUS          = 0x03
	REG_DATA            = 0x04 // pressure 0x04-0x06, temperature 0x07-0x09
	REG_PWR_CTRL        = 0x1B
	REG_OSR             = 0x1C
	REG_ODR             = 0x1D
	REG_CALIB           = 0x31
	REG_CMD             = 0x7E
	CALIB_LENGTH        = 21
	CMD_SOFT_RESET      = 0xB6
	STATUS_CMD_READY    = 0x10
	ERROR_CMD           = 0x02
	PWR_NORMAL_PT       = 0x33 // pressure and temperature enabled, normal mode
	RAW_RESET_VALUE     = 0x800000
	DEFAULT_SEA_LEVEL   = 101325.0
	BAROMETRIC_EXPONENT = 0.190223
	LAPSE_RATE          = 0.0065
)

var ErrCommandFailed = errors.New("bmp388: command failed")

// calibration holds the NVM trimming coefficients converted to floating
// point per the datasheet
type calibration struct {
	t1, t2, t3 float64

	p1, p2, p3, p4, p5, p6, p7, p8, p9, p10, p11 float64
}

func parseCalibration(b []byte) calibration {
	u16 := func(i int) float64 { return float64(binary.LittleEndian.Uint16(b[i:])) }
	i16 := func(i int) float64 { return float64(int16(binary.LittleEndian.Uint16(b[i:]))) }
	i8 := func(i int) float64 { return float64(int8(b[i])) }

	return calibration{
		t1:  u16(0) * math.Pow(2, 8),
		t2:  u16(2) / math.Pow(2, 30),
		t3:  i8(4) / math.Pow(2, 48),
		p1:  (i16(5) - math.Pow(2, 14)) / math.Pow(2, 20),
		p2:  (i16(7) - math.Pow(2, 14)) / math.Pow(2, 29),
		p3:  i8(9) / math.Pow(2, 32),
		p4:  i8(10) / math.Pow(2, 37),
		p5:  u16(11) * math.Pow(2, 3),
		p6:  u16(13) / math.Pow(2, 6),
		p7:  i8(15) / math.Pow(2, 8),
		p8:  i8(16) / math.Pow(2, 15),
		p9:  i16(17) / math.Pow(2, 48),
		p10: i8(19) / math.Pow(2, 48),
		p11: i8(20) / math.Pow(2, 65),
	}
}

func (c *calibration) temperature(raw float64) float64 {
	d1 := raw - c.t1
	d2 := d1 * c.t2
	return d2 + d1*d1*c.t3
}

func (c *calibration) pressure(raw, t float64) float64 {
	out1 := c.p5 + c.p6*t + c.p7*t*t + c.p8*t*t*t
	out2 := raw * (c.p1 + c.p2*t + c.p3*t*t + c.p4*t*t*t)
	out3 := raw*raw*(c.p9+c.p10*t) + raw*raw*raw*c.p11
	return out1 + out2 + out3
}

// Altitude converts pressure and temperature into metres above the level
// where the pressure equals seaLevelPa
func Altitude(pressurePa, temperatureC, seaLevelPa float64) float64 {
	return (math.Pow(seaLevelPa/pressurePa, BAROMETRIC_EXPONENT) - 1) * (temperatureC + 273.15) / LAPSE_RATE
}

// BMP388 is a Bosch barometric pressure sensor on I2C
type BMP388 struct {
	dev        conn.Conn
	cal        calibration
	SeaLevelPa float64
	Sleep      func(time.Duration)
	log        *log.Logger
}

// NewBMP388 wraps an I2C device; call Init before Read
func NewBMP388(dev conn.Conn, seaLevelPa float64) *BMP388 {
	if seaLevelPa <= 0 {
		seaLevelPa = DEFAULT_SEA_LEVEL
	}
	return &BMP388{
		dev:        dev,
		SeaLevelPa: seaLevelPa,
		Sleep:      time.Sleep,
		log:        log.New(os.Stdout, "[BMP388] ", log.LstdFlags),
	}
}

func (b *BMP388) readReg(reg byte, buf []byte) error {
	return b.dev.Tx([]byte{reg}, buf)
}

func (b *BMP388) writeReg(reg, value byte) error {
	return b.dev.Tx([]byte{reg, value}, nil)
}

// Init soft-resets the sensor, checks the chip id, loads the calibration and
// starts continuous measurement
func (b *BMP388) Init() error {
	if err := b.Reset(); err != nil {
		return err
	}

	var id [1]byte
	if err := b.readReg(REG_CHIP_ID, id[:]); err != nil {
		return fmt.Errorf("failed to read chip id: %w", err)
	}
	if id[0] != BMP388_CHIP_ID {
		return fmt.Errorf("unexpected chip id 0x%02X, want 0x%02X", id[0], BMP388_CHIP_ID)
	}

	var cal [CALIB_LENGTH]byte
	if err := b.readReg(REG_CALIB, cal[:]); err != nil {
		return fmt.Errorf("failed to read calibration: %w", err)
	}
	b.cal = parseCalibration(cal[:])

	for _, w := range [][2]byte{{REG_PWR_CTRL, PWR_NORMAL_PT}, {REG_OSR, 0}, {REG_ODR, 0}} {
		if err := b.writeReg(w[0], w[1]); err != nil {
			return fmt.Errorf("failed to write register 0x%02X: %w", w[0], err)
		}
	}

	b.log.Printf("Initialized, sea level pressure %.2f Pa", b.SeaLevelPa)
	return nil
}

// Reset issues a soft reset once the command decoder is ready
func (b *BMP388) Reset() error {
	var status [1]byte
	if err := b.readReg(REG_STATUS, status[:]); err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	if status[0]&STATUS_CMD_READY == 0 {
		return fmt.Errorf("%w: command decoder not ready (status 0x%02X)", ErrCommandFailed, status[0])
	}

	if err := b.writeReg(REG_CMD, CMD_SOFT_RESET); err != nil {
		return fmt.Errorf("failed to send soft reset: %w", err)
	}
	b.Sleep(2 * time.Millisecond)

	var e [1]byte
	if err := b.readReg(REG_ERROR, e[:]); err != nil {
		return fmt.Errorf("failed to read error register: %w", err)
	}
	if e[0]&ERROR_CMD != 0 {
		return fmt.Errorf("%w: soft reset rejected (error 0x%02X)", ErrCommandFailed, e[0])
	}
	return nil
}

// Read returns one compensated sample
func (b *BMP388) Read() (AltimeterReading, error) {
	var data [6]byte
	if err := b.readReg(REG_DATA, data[:]); err != nil {
		return AltimeterReading{}, fmt.Errorf("failed to read data registers: %w", err)
	}

	rawP := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
	rawT := uint32(data[3]) | uint32(data[4])<<8 | uint32(data[5])<<16
	if rawP == RAW_RESET_VALUE || rawT == RAW_RESET_VALUE || rawP == 0 {
		return AltimeterReading{}, ErrNoData
	}

	t := b.cal.temperature(float64(rawT))
	p := b.cal.pressure(float64(rawP), t)
	return AltimeterReading{
		PressurePa:   p,
		TemperatureC: t,
		AltitudeM:    Altitude(p, t, b.SeaLevelPa),
	}, nil
}
