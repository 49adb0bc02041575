package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testINI = `# balloontx test configuration
[Station]
Callsign=n0call
SSID=11
Destination=APRS
DestinationSSID=0

[Transmission]
FlagCount=24
MaxRetries=10
RetryDelay=500ms
TickInterval=30s
LocationInterval=4
ImageAltitude=18000
InitBackoff=2s
PayloadFile=/tmp/payload.txt

[Image]
Enable=1
PacketType=Normal
Quality=6
Command=libcamera-still
Args=--width 320 --height 240
PathPattern=/tmp/img-%H%M%S.jpg

[Altimeter]
Bus=1
Address=0x76
SeaLevelPa=102201.21

[GPS]
Device=/dev/ttyUSB0
BaudRate=38400
Parity=e

[Radio]
Enable=yes
Device=/dev/ttyUSB1
BaudRate=9600
Frequency=144.800
Volume=6

[Signal Generator]
Bus=1
Address=8
ChunkSize=16
ChunkDelay=2ms

[Database]
Enable=true
Path=/tmp/flight.db

[Metrics]
Enable=1
Address=127.0.0.1:9200

[Log]
FilePath=/tmp/balloontx.log
ShortFile=1
`

func TestConfig_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balloontx.ini")
	if err := os.WriteFile(path, []byte(testINI), 0o644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}

	config := NewConfig(path)
	if err := config.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if config.Station.Callsign != "N0CALL" {
		t.Errorf("Station.Callsign = %q, want %q", config.Station.Callsign, "N0CALL")
	}
	if config.Station.SSID != 11 {
		t.Errorf("Station.SSID = %d, want 11", config.Station.SSID)
	}

	tr := config.Transmission
	if tr.FlagCount != 24 || tr.MaxRetries != 10 || tr.LocationInterval != 4 {
		t.Errorf("Transmission counts = %d/%d/%d, want 24/10/4", tr.FlagCount, tr.MaxRetries, tr.LocationInterval)
	}
	if tr.RetryDelay != 500*time.Millisecond || tr.TickInterval != 30*time.Second || tr.InitBackoff != 2*time.Second {
		t.Errorf("Transmission durations = %v/%v/%v", tr.RetryDelay, tr.TickInterval, tr.InitBackoff)
	}
	if tr.ImageAltitude != 18000 {
		t.Errorf("ImageAltitude = %f, want 18000", tr.ImageAltitude)
	}

	if config.Image.PacketType != "normal" || config.Image.Quality != 6 {
		t.Errorf("Image = %+v", config.Image)
	}
	if strings.Join(config.Image.Args, " ") != "--width 320 --height 240" {
		t.Errorf("Image.Args = %q", config.Image.Args)
	}

	if config.Altimeter.Address != 0x76 || config.Altimeter.SeaLevelPa != 102201.21 {
		t.Errorf("Altimeter = %+v", config.Altimeter)
	}
	if config.GPS.Device != "/dev/ttyUSB0" || config.GPS.BaudRate != 38400 || config.GPS.Parity != "E" {
		t.Errorf("GPS = %+v", config.GPS)
	}
	if !config.Radio.Enabled || config.Radio.Serial.Device != "/dev/ttyUSB1" || config.Radio.FrequencyMHz != 144.8 || config.Radio.Volume != 6 {
		t.Errorf("Radio = %+v", config.Radio)
	}
	if config.SignalGenerator.Address != 8 || config.SignalGenerator.ChunkSize != 16 || config.SignalGenerator.ChunkDelay != 2*time.Millisecond {
		t.Errorf("SignalGenerator = %+v", config.SignalGenerator)
	}
	if !config.Database.Enabled || config.Database.Path != "/tmp/flight.db" {
		t.Errorf("Database = %+v", config.Database)
	}
	if !config.Metrics.Enabled || config.Metrics.Address != "127.0.0.1:9200" {
		t.Errorf("Metrics = %+v", config.Metrics)
	}
	if !config.Log.ShortFile || config.Log.FilePath != "/tmp/balloontx.log" {
		t.Errorf("Log = %+v", config.Log)
	}
}

func TestConfig_LoadYAML(t *testing.T) {
	data := `station:
  callsign: KD0ABC
  ssid: 9
transmission:
  retry_delay: 250ms
  location_interval: 2
image:
  packet_type: normal
  args: ["--immediate"]
radio:
  enabled: false
  device: /dev/ttyUSB3
signal_generator:
  address: 0x09
`
	path := filepath.Join(t.TempDir(), "balloontx.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}

	config := NewConfig(path)
	if err := config.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if config.Station.Callsign != "KD0ABC" || config.Station.SSID != 9 {
		t.Errorf("Station = %+v", config.Station)
	}
	if config.Station.Destination != "APRS" {
		t.Errorf("Station.Destination default lost: %q", config.Station.Destination)
	}
	if config.Transmission.RetryDelay != 250*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 250ms", config.Transmission.RetryDelay)
	}
	if config.Transmission.LocationInterval != 2 {
		t.Errorf("LocationInterval = %d, want 2", config.Transmission.LocationInterval)
	}
	if config.Transmission.MaxRetries != 20 {
		t.Errorf("MaxRetries default lost: %d", config.Transmission.MaxRetries)
	}
	if config.Image.PacketType != "normal" || len(config.Image.Args) != 1 {
		t.Errorf("Image = %+v", config.Image)
	}
	if config.Radio.Enabled || config.Radio.Serial.Device != "/dev/ttyUSB3" || config.Radio.Serial.BaudRate != 9600 {
		t.Errorf("Radio = %+v", config.Radio)
	}
	if config.SignalGenerator.Address != 9 {
		t.Errorf("SignalGenerator.Address = %d, want 9", config.SignalGenerator.Address)
	}
}

func TestConfig_DefaultValues(t *testing.T) {
	config := NewConfig("")

	if err := config.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{name: "flag count", got: config.Transmission.FlagCount, want: 16},
		{name: "max retries", got: config.Transmission.MaxRetries, want: 20},
		{name: "tick interval", got: config.Transmission.TickInterval, want: 60 * time.Second},
		{name: "image altitude", got: config.Transmission.ImageAltitude, want: 20000.0},
		{name: "packet type", got: config.Image.PacketType, want: "nofec"},
		{name: "quality", got: config.Image.Quality, want: uint8(4)},
		{name: "capture args", got: strings.Join(config.Image.Args, " "), want: "--width 640 --height 480 --nopreview"},
		{name: "location interval", got: config.Transmission.LocationInterval, want: 0},
		{name: "sea level", got: config.Altimeter.SeaLevelPa, want: 101325.0},
		{name: "gps baud", got: config.GPS.BaudRate, want: 9600},
		{name: "frequency", got: config.Radio.FrequencyMHz, want: 144.390},
		{name: "chunk size", got: config.SignalGenerator.ChunkSize, want: 32},
		{name: "database", got: config.Database.Enabled, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("default %s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestConfig_InvalidFile(t *testing.T) {
	for _, name := range []string{"/nonexistent/file.ini", "/nonexistent/file.yaml"} {
		if err := NewConfig(name).Load(); err == nil {
			t.Errorf("Load(%q) should return error", name)
		}
	}
}

func TestConfig_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "bad ssid", data: "[Station]\nSSID=abc", want: "line 2 [Station] SSID"},
		{name: "bad duration", data: "[Transmission]\n\nRetryDelay=5", want: "line 3 [Transmission] RetryDelay"},
		{name: "bad address", data: "[Altimeter]\nAddress=0xZZ", want: "[Altimeter] Address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfig("").LoadFromString(tt.data)
			if err == nil {
				t.Fatalf("LoadFromString() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadFromString() error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{name: "long callsign", modify: func(c *Config) { c.Station.Callsign = "N0CALLX" }, want: "callsign"},
		{name: "empty callsign", modify: func(c *Config) { c.Station.Callsign = "" }, want: "callsign"},
		{name: "ssid", modify: func(c *Config) { c.Station.SSID = 16 }, want: "SSID"},
		{name: "quality", modify: func(c *Config) { c.Image.Quality = 8 }, want: "quality"},
		{name: "packet type", modify: func(c *Config) { c.Image.PacketType = "turbo" }, want: "packet type"},
		{name: "flag count", modify: func(c *Config) { c.Transmission.FlagCount = 0 }, want: "flag count"},
		{name: "retries", modify: func(c *Config) { c.Transmission.MaxRetries = 0 }, want: "max retries"},
		{name: "tick", modify: func(c *Config) { c.Transmission.TickInterval = 0 }, want: "tick interval"},
		{name: "chunk", modify: func(c *Config) { c.SignalGenerator.ChunkSize = 0 }, want: "chunk size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConfig("")
			tt.modify(c)
			err := c.Validate()
			if err == nil {
				t.Fatalf("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}
