package sensor

import (
	"errors"
	"time"
)

// ErrNoData is returned when a sensor has nothing to report yet
var ErrNoData = errors.New("sensor: no data available")

// AltimeterReading is one compensated barometer sample
type AltimeterReading struct {
	PressurePa   float64
	TemperatureC float64
	AltitudeM    float64
}

// FixReport is the latest GPS state. Fields are nil until the receiver has
// reported them.
type FixReport struct {
	Latitude   *float64   // degrees, north positive
	Longitude  *float64   // degrees, east positive
	Timestamp  *time.Time // UTC time of fix
	SpeedKnots *float64   // speed over ground
	CourseDeg  *float64   // true course
	Satellites int
	AltitudeM  *float64 // GPS altitude above mean sea level
}

// HasPosition reports whether both coordinates are present
func (f FixReport) HasPosition() bool {
	return f.Latitude != nil && f.Longitude != nil
}
