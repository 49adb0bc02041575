package sensor

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/dbehnke/balloontx/internal/uart"
)

// DEFAULT_MAX_SENTENCES bounds how many NMEA lines one Read waits through
// for a GGA when nothing was buffered
const DEFAULT_MAX_SENTENCES = 20

// NEO6M is a u-blox GPS receiver streaming NMEA over a serial line
type NEO6M struct {
	lines        *uart.LineReader
	fix          FixReport
	date         nmea.Date
	hasFix       bool
	MaxSentences int
	log          *log.Logger
}

// NewNEO6M reads sentences from r, typically a *uart.Port
func NewNEO6M(r io.Reader) *NEO6M {
	return &NEO6M{
		lines:        uart.NewLineReader(r),
		MaxSentences: DEFAULT_MAX_SENTENCES,
		log:          log.New(os.Stdout, "[GPS] ", log.LstdFlags),
	}
}

// IsAvailable reports whether at least one complete sentence is waiting
func (g *NEO6M) IsAvailable() (bool, error) {
	if _, err := g.lines.Fill(); err != nil {
		return false, err
	}
	return g.lines.Available() > 0, nil
}

// Read drains the sentences buffered since the last call and returns the fix
// from the newest GGA among them, merged with the latest RMC. With nothing
// buffered it waits for the next GGA.
func (g *NEO6M) Read() (FixReport, error) {
	backlog, err := g.lines.Drain()
	if err != nil {
		return FixReport{}, err
	}
	if g.apply(backlog) {
		return g.fix, nil
	}

	for i := 0; i < g.MaxSentences; i++ {
		line, err := g.lines.ReadLine()
		if err != nil {
			if errors.Is(err, uart.ErrTimeout) {
				return FixReport{}, ErrNoData
			}
			return FixReport{}, err
		}
		if g.apply([]string{line}) {
			return g.fix, nil
		}
	}
	return FixReport{}, fmt.Errorf("%w: no GGA in %d sentences", ErrNoData, g.MaxSentences)
}

// apply folds sentences into the fix in order and reports whether any of
// them was a GGA
func (g *NEO6M) apply(lines []string) bool {
	gga := false
	for _, line := range lines {
		s, err := nmea.Parse(line)
		if err != nil {
			// checksum errors and unsupported talkers are routine on a noisy line
			continue
		}

		switch m := s.(type) {
		case nmea.RMC:
			g.applyRMC(m)
		case nmea.GGA:
			g.applyGGA(m)
			gga = true
		}
	}
	return gga
}

func (g *NEO6M) applyGGA(m nmea.GGA) {
	g.fix.Satellites = int(m.NumSatellites)
	fixed := m.FixQuality != "" && m.FixQuality != "0"
	if fixed != g.hasFix {
		if fixed {
			g.log.Printf("Fix acquired, %d satellites", g.fix.Satellites)
		} else {
			g.log.Printf("Fix lost")
		}
		g.hasFix = fixed
	}
	if !fixed {
		// no fix: forget the position rather than report a stale one
		g.fix.Latitude = nil
		g.fix.Longitude = nil
		g.fix.AltitudeM = nil
	} else {
		lat, lon, alt := m.Latitude, m.Longitude, m.Altitude
		g.fix.Latitude = &lat
		g.fix.Longitude = &lon
		g.fix.AltitudeM = &alt
	}
	if ts, ok := g.timestamp(m.Time); ok {
		g.fix.Timestamp = &ts
	}
}

func (g *NEO6M) applyRMC(m nmea.RMC) {
	if m.Date.Valid {
		g.date = m.Date
	}
	if m.Validity != "A" {
		g.fix.SpeedKnots = nil
		g.fix.CourseDeg = nil
		return
	}
	speed, course := m.Speed, m.Course
	g.fix.SpeedKnots = &speed
	g.fix.CourseDeg = &course
}

func (g *NEO6M) timestamp(t nmea.Time) (time.Time, bool) {
	if !t.Valid {
		return time.Time{}, false
	}
	year, month, day := 1, time.January, 1
	if g.date.Valid {
		year, month, day = 2000+g.date.YY, time.Month(g.date.MM), g.date.DD
	}
	return time.Date(year, month, day, t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC), true
}
