package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the balloontx configuration. It is read from an INI
// file, or from YAML when the file name ends in .yaml or .yml.
type Config struct {
	filename string

	Station         StationConfig         `yaml:"station"`
	Transmission    TransmissionConfig    `yaml:"transmission"`
	Image           ImageConfig           `yaml:"image"`
	Altimeter       AltimeterConfig       `yaml:"altimeter"`
	GPS             SerialConfig          `yaml:"gps"`
	Radio           RadioConfig           `yaml:"radio"`
	SignalGenerator SignalGeneratorConfig `yaml:"signal_generator"`
	Database        DatabaseConfig        `yaml:"database"`
	Metrics         MetricsConfig         `yaml:"metrics"`
	Log             LogConfig             `yaml:"log"`
}

// StationConfig holds the AX.25 addressing
type StationConfig struct {
	Callsign        string `yaml:"callsign"`
	SSID            uint8  `yaml:"ssid"`
	Destination     string `yaml:"destination"`
	DestinationSSID uint8  `yaml:"destination_ssid"`
}

// TransmissionConfig holds the scheduler timing and framing knobs
type TransmissionConfig struct {
	FlagCount        int           `yaml:"flag_count"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	LocationInterval int           `yaml:"location_interval"`
	ImageAltitude    float64       `yaml:"image_altitude"`
	InitBackoff      time.Duration `yaml:"init_backoff"`
	PayloadFile      string        `yaml:"payload_file"`
}

type ImageConfig struct {
	Enabled     bool     `yaml:"enabled"`
	PacketType  string   `yaml:"packet_type"`
	Quality     uint8    `yaml:"quality"`
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
	PathPattern string   `yaml:"path_pattern"`
}

type AltimeterConfig struct {
	Bus        string  `yaml:"bus"`
	Address    uint16  `yaml:"address"`
	SeaLevelPa float64 `yaml:"sea_level_pa"`
}

// SerialConfig describes a UART peripheral
type SerialConfig struct {
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
	Parity   string `yaml:"parity"`
}

type RadioConfig struct {
	Enabled      bool         `yaml:"enabled"`
	Serial       SerialConfig `yaml:",inline"`
	FrequencyMHz float64      `yaml:"frequency_mhz"`
	Volume       int          `yaml:"volume"` // 0 leaves the module default
}

type SignalGeneratorConfig struct {
	Bus        string        `yaml:"bus"`
	Address    uint16        `yaml:"address"`
	ChunkSize  int           `yaml:"chunk_size"`
	ChunkDelay time.Duration `yaml:"chunk_delay"`
}

type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Debug   bool   `yaml:"debug"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type LogConfig struct {
	FilePath  string `yaml:"file_path"` // empty logs to stdout
	ShortFile bool   `yaml:"short_file"`
}

// NewConfig creates a new configuration instance
func NewConfig(filename string) *Config {
	return &Config{
		filename: filename,
		Station: StationConfig{
			Callsign:    "N0CALL",
			SSID:        11,
			Destination: "APRS",
		},
		Transmission: TransmissionConfig{
			FlagCount:        16,
			MaxRetries:       20,
			RetryDelay:       time.Second,
			TickInterval:     60 * time.Second,
			LocationInterval: 0,
			ImageAltitude:    20000,
			InitBackoff:      5 * time.Second,
			PayloadFile:      "data/last_payload.txt",
		},
		Image: ImageConfig{
			Enabled:     true,
			PacketType:  "nofec",
			Quality:     4,
			Command:     "rpicam-still",
			Args:        []string{"--width", "640", "--height", "480", "--nopreview"},
			PathPattern: "data/images/%Y%m%d-%H%M%S.jpg",
		},
		Altimeter: AltimeterConfig{
			Address:    0x77,
			SeaLevelPa: 101325,
		},
		GPS: SerialConfig{
			Device:   "/dev/ttyAMA0",
			BaudRate: 9600,
			Parity:   "N",
		},
		Radio: RadioConfig{
			Enabled: true,
			Serial: SerialConfig{
				Device:   "/dev/ttyS0",
				BaudRate: 9600,
				Parity:   "N",
			},
			FrequencyMHz: 144.390,
		},
		SignalGenerator: SignalGeneratorConfig{
			Address:   0x08,
			ChunkSize: 32,
		},
		Database: DatabaseConfig{
			Path: "data/flight.db",
		},
		Metrics: MetricsConfig{
			Address: ":9100",
		},
	}
}

// Load loads configuration from the specified file
func (c *Config) Load() error {
	switch strings.ToLower(filepath.Ext(c.filename)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(c.filename)
		if err != nil {
			return fmt.Errorf("failed to open config file %s: %w", c.filename, err)
		}
		return c.LoadFromYAML(data)
	}

	file, err := os.Open(c.filename)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", c.filename, err)
	}
	defer file.Close()

	return c.parseINIScanner(bufio.NewScanner(file))
}

// LoadFromString loads INI configuration from a string (useful for testing)
func (c *Config) LoadFromString(data string) error {
	return c.parseINIScanner(bufio.NewScanner(strings.NewReader(data)))
}

// LoadFromYAML decodes YAML over the current values; keys that are absent
// keep their defaults
func (c *Config) LoadFromYAML(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

func (c *Config) parseINIScanner(scanner *bufio.Scanner) error {
	var currentSection string
	var errs []error

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())

		if len(line) == 0 || line[0] == '#' || line[0] == ';' {
			continue
		}

		if line[0] == '[' && line[len(line)-1] == ']' {
			currentSection = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		var err error
		switch currentSection {
		case "Station":
			err = c.parseStationSection(key, value)
		case "Transmission":
			err = c.parseTransmissionSection(key, value)
		case "Image":
			err = c.parseImageSection(key, value)
		case "Altimeter":
			err = c.parseAltimeterSection(key, value)
		case "GPS":
			err = parseSerialKey(&c.GPS, key, value)
		case "Radio":
			err = c.parseRadioSection(key, value)
		case "Signal Generator":
			err = c.parseSignalGeneratorSection(key, value)
		case "Database":
			err = c.parseDatabaseSection(key, value)
		case "Metrics":
			err = c.parseMetricsSection(key, value)
		case "Log":
			err = c.parseLogSection(key, value)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d [%s] %s: %w", lineNo, currentSection, key, err))
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (c *Config) parseStationSection(key, value string) error {
	var err error
	switch key {
	case "Callsign":
		c.Station.Callsign = strings.ToUpper(value)
	case "SSID":
		c.Station.SSID, err = parseUint8(value)
	case "Destination":
		c.Station.Destination = strings.ToUpper(value)
	case "DestinationSSID":
		c.Station.DestinationSSID, err = parseUint8(value)
	}
	return err
}

func (c *Config) parseTransmissionSection(key, value string) error {
	t := &c.Transmission
	var err error
	switch key {
	case "FlagCount":
		t.FlagCount, err = strconv.Atoi(value)
	case "MaxRetries":
		t.MaxRetries, err = strconv.Atoi(value)
	case "RetryDelay":
		t.RetryDelay, err = time.ParseDuration(value)
	case "TickInterval":
		t.TickInterval, err = time.ParseDuration(value)
	case "LocationInterval":
		t.LocationInterval, err = strconv.Atoi(value)
	case "ImageAltitude":
		t.ImageAltitude, err = strconv.ParseFloat(value, 64)
	case "InitBackoff":
		t.InitBackoff, err = time.ParseDuration(value)
	case "PayloadFile":
		t.PayloadFile = value
	}
	return err
}

func (c *Config) parseImageSection(key, value string) error {
	var err error
	switch key {
	case "Enable":
		c.Image.Enabled = parseBool(value)
	case "PacketType":
		c.Image.PacketType = strings.ToLower(value)
	case "Quality":
		c.Image.Quality, err = parseUint8(value)
	case "Command":
		c.Image.Command = value
	case "Args":
		c.Image.Args = strings.Fields(value)
	case "PathPattern":
		c.Image.PathPattern = value
	}
	return err
}

func (c *Config) parseAltimeterSection(key, value string) error {
	var err error
	switch key {
	case "Bus":
		c.Altimeter.Bus = value
	case "Address":
		c.Altimeter.Address, err = parseAddress(value)
	case "SeaLevelPa":
		c.Altimeter.SeaLevelPa, err = strconv.ParseFloat(value, 64)
	}
	return err
}

func parseSerialKey(s *SerialConfig, key, value string) error {
	var err error
	switch key {
	case "Device":
		s.Device = value
	case "BaudRate":
		s.BaudRate, err = strconv.Atoi(value)
	case "Parity":
		s.Parity = strings.ToUpper(value)
	}
	return err
}

func (c *Config) parseRadioSection(key, value string) error {
	var err error
	switch key {
	case "Enable":
		c.Radio.Enabled = parseBool(value)
	case "Frequency":
		c.Radio.FrequencyMHz, err = strconv.ParseFloat(value, 64)
	case "Volume":
		c.Radio.Volume, err = strconv.Atoi(value)
	default:
		err = parseSerialKey(&c.Radio.Serial, key, value)
	}
	return err
}

func (c *Config) parseSignalGeneratorSection(key, value string) error {
	var err error
	switch key {
	case "Bus":
		c.SignalGenerator.Bus = value
	case "Address":
		c.SignalGenerator.Address, err = parseAddress(value)
	case "ChunkSize":
		c.SignalGenerator.ChunkSize, err = strconv.Atoi(value)
	case "ChunkDelay":
		c.SignalGenerator.ChunkDelay, err = time.ParseDuration(value)
	}
	return err
}

func (c *Config) parseDatabaseSection(key, value string) error {
	switch key {
	case "Enable":
		c.Database.Enabled = parseBool(value)
	case "Path":
		c.Database.Path = value
	case "Debug":
		c.Database.Debug = parseBool(value)
	}
	return nil
}

func (c *Config) parseMetricsSection(key, value string) error {
	switch key {
	case "Enable":
		c.Metrics.Enabled = parseBool(value)
	case "Address":
		c.Metrics.Address = value
	}
	return nil
}

func (c *Config) parseLogSection(key, value string) error {
	switch key {
	case "FilePath":
		c.Log.FilePath = value
	case "ShortFile":
		c.Log.ShortFile = parseBool(value)
	}
	return nil
}

func parseBool(value string) bool {
	return value == "1" || strings.EqualFold(value, "true") || strings.EqualFold(value, "yes")
}

func parseUint8(value string) (uint8, error) {
	v, err := strconv.ParseUint(value, 10, 8)
	return uint8(v), err
}

// parseAddress accepts decimal or 0x-prefixed I2C addresses
func parseAddress(value string) (uint16, error) {
	v, err := strconv.ParseUint(value, 0, 16)
	return uint16(v), err
}

// Validate reports every out-of-range setting at once
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	s := c.Station
	check(len(s.Callsign) >= 1 && len(s.Callsign) <= 6, "station callsign %q must be 1-6 characters", s.Callsign)
	check(len(s.Destination) >= 1 && len(s.Destination) <= 6, "station destination %q must be 1-6 characters", s.Destination)
	check(s.SSID <= 15, "station SSID %d must be 0-15", s.SSID)
	check(s.DestinationSSID <= 15, "destination SSID %d must be 0-15", s.DestinationSSID)

	t := c.Transmission
	check(t.FlagCount >= 1, "flag count %d must be at least 1", t.FlagCount)
	check(t.MaxRetries >= 1, "max retries %d must be at least 1", t.MaxRetries)
	check(t.RetryDelay >= 0, "retry delay %v must not be negative", t.RetryDelay)
	check(t.TickInterval > 0, "tick interval %v must be positive", t.TickInterval)
	check(t.InitBackoff > 0, "init backoff %v must be positive", t.InitBackoff)
	check(t.LocationInterval >= 0, "location interval %d must not be negative", t.LocationInterval)

	if c.Image.Enabled {
		check(c.Image.Quality <= 7, "image quality %d must be 0-7", c.Image.Quality)
		switch c.Image.PacketType {
		case "normal", "fec", "nofec", "no-fec", "":
		default:
			errs = append(errs, fmt.Errorf("unknown image packet type %q", c.Image.PacketType))
		}
		check(c.Image.PathPattern != "", "image path pattern must be set")
	}

	check(c.GPS.Device != "", "GPS device must be set")
	check(c.SignalGenerator.ChunkSize >= 1, "signal generator chunk size %d must be at least 1", c.SignalGenerator.ChunkSize)
	if c.Radio.Enabled {
		check(c.Radio.Serial.Device != "", "radio device must be set")
		check(c.Radio.FrequencyMHz > 0, "radio frequency %.4f must be positive", c.Radio.FrequencyMHz)
	}
	if c.Database.Enabled {
		check(c.Database.Path != "", "database path must be set")
	}

	return errors.Join(errs...)
}

// Filename returns the file the configuration was loaded from
func (c *Config) Filename() string { return c.filename }
