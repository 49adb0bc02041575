package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dbehnke/balloontx/internal/database"
	"github.com/dbehnke/balloontx/internal/protocol/aprs"
	"github.com/dbehnke/balloontx/internal/protocol/ax25"
	"github.com/dbehnke/balloontx/internal/sensor"
	"github.com/dbehnke/balloontx/internal/ssdv"
)

const (
	MAX_RETRIES               = 20
	DEFAULT_RETRY_DELAY       = time.Second
	DEFAULT_TICK_INTERVAL     = 60 * time.Second
	DEFAULT_IMAGE_ALTITUDE    = 20000.0
	DEFAULT_LOCATION_INTERVAL = 0
)

var (
	ErrMissingFix       = errors.New("scheduler: location fix incomplete")
	ErrRetriesExhausted = errors.New("scheduler: retry budget exhausted")
)

// Altimeter reports barometric pressure, temperature and altitude
type Altimeter interface {
	Read() (sensor.AltimeterReading, error)
}

// GPS reports position fixes
type GPS interface {
	IsAvailable() (bool, error)
	Read() (sensor.FixReport, error)
}

// SignalGenerator transmits one complete frame
type SignalGenerator interface {
	Transmit(frame []byte) error
}

// Camera takes a photograph and returns where it was stored and its bytes
type Camera interface {
	Capture(ctx context.Context) (path string, data []byte, err error)
}

// FlightLog persists what was transmitted
type FlightLog interface {
	RecordFrame(f *database.FrameRecord) error
	StartImage(imageID uint8, path string, size int) error
	FinishImage(imageID uint8, packets int, status string, cause error) error
}

// Metrics receives counters and gauges
type Metrics interface {
	FrameTransmitted(kind string)
	TransmitFailed(kind string)
	ImageFinished(outcome string)
	Tick()
	Altitude(m float64)
	PacketNumber(n uint32)
}

type noMetrics struct{}

func (noMetrics) FrameTransmitted(string) {}
func (noMetrics) TransmitFailed(string)   {}
func (noMetrics) ImageFinished(string)    {}
func (noMetrics) Tick()                   {}
func (noMetrics) Altitude(float64)        {}
func (noMetrics) PacketNumber(uint32)     {}

// Config holds the scheduler policy
type Config struct {
	MaxRetries       int
	RetryDelay       time.Duration
	TickInterval     time.Duration
	LocationInterval int // every n-th tick of an image sends a location instead; 0 disables
	ImageAltitude    float64
	ImagesEnabled    bool
	PayloadFile      string // last location payload, empty disables

	Callsign   string // SSDV header callsign
	PacketType ssdv.PacketType
	Quality    uint8
}

// DefaultConfig returns the flight defaults
func DefaultConfig() Config {
	return Config{
		MaxRetries:       MAX_RETRIES,
		RetryDelay:       DEFAULT_RETRY_DELAY,
		TickInterval:     DEFAULT_TICK_INTERVAL,
		LocationInterval: DEFAULT_LOCATION_INTERVAL,
		ImageAltitude:    DEFAULT_IMAGE_ALTITUDE,
		ImagesEnabled:    true,
		PacketType:       ssdv.TypeNoFEC,
		Quality:          ssdv.DEFAULT_QUALITY,
	}
}

// Peripherals are the hardware collaborators the scheduler owns. Camera may
// be nil when imaging is disabled.
type Peripherals struct {
	Altimeter       Altimeter
	GPS             GPS
	SignalGenerator SignalGenerator
	Camera          Camera
}

// TickResult describes what one tick did
type TickResult struct {
	PacketNum uint32
	Kind      string // database.KindLocation or database.KindImage, empty when nothing was framed
	Sent      bool
	Attempts  int
	Err       error
}

// Scheduler is the single-threaded transmit loop. All state lives here and
// is only touched from Tick.
type Scheduler struct {
	cfg    Config
	framer *aprs.Framer
	hw     Peripherals

	FlightLog FlightLog
	Metrics   Metrics
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error

	packetNum         uint32
	imagePacketNum    uint32
	transmittingImage bool
	imageTicks        int
	encoder           *ssdv.Encoder
	current           *ssdv.Packet
	currentBytes      []byte
	imageID           uint8
	nextImageID       uint8
	ssdvPackets       int
	imagesDisabled    bool

	log *log.Logger
}

// New creates a scheduler in the idle state
func New(cfg Config, framer *aprs.Framer, hw Peripherals) *Scheduler {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = MAX_RETRIES
	}
	return &Scheduler{
		cfg:     cfg,
		framer:  framer,
		hw:      hw,
		Metrics: noMetrics{},
		Now:     time.Now,
		Sleep:   sleepContext,
		log:     log.New(os.Stdout, "[SCHED] ", log.LstdFlags),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PacketNum returns the counter the next tick will use
func (s *Scheduler) PacketNum() uint32 { return s.packetNum }

// TransmittingImage reports whether an image is being sent
func (s *Scheduler) TransmittingImage() bool { return s.transmittingImage }

// Run ticks every TickInterval until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Printf("Starting, tick interval %v, %d retries per operation", s.cfg.TickInterval, s.cfg.MaxRetries)
	for {
		s.Tick(ctx)
		if err := s.Sleep(ctx, s.cfg.TickInterval); err != nil {
			s.log.Printf("Stopping at packet %d", s.packetNum)
			return err
		}
	}
}

// Tick runs one scheduling cycle. Errors are logged and reported in the
// result; the packet counter advances whatever happens.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	res := TickResult{PacketNum: s.packetNum}
	s.Metrics.Tick()

	if s.transmittingImage && !s.locationTurn() {
		s.imageTick(ctx, &res)
	}
	if res.Kind == "" {
		s.locationTick(ctx, &res)
	}

	s.packetNum++
	s.Metrics.PacketNumber(s.packetNum)
	return res
}

// locationTurn decides whether this tick of an active image is given to a
// location report
func (s *Scheduler) locationTurn() bool {
	n := s.imageTicks
	s.imageTicks++
	return s.cfg.LocationInterval > 0 && n > 0 && n%s.cfg.LocationInterval == 0
}

func (s *Scheduler) locationTick(ctx context.Context, res *TickResult) {
	alt, fix, err := s.readSensors(ctx)
	if err != nil {
		s.log.Printf("Packet %d: sensor read abandoned: %v", s.packetNum, err)
		res.Err = err
		return
	}
	s.Metrics.Altitude(alt.AltitudeM)

	if fix.Timestamp == nil {
		now := s.Now().UTC()
		fix.Timestamp = &now
	}

	frame, err := s.framer.FrameLocation(s.packetNum, fix, alt)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrMissingFix, err)
		s.log.Printf("Packet %d: skipping location report: %v", s.packetNum, err)
	} else {
		res.Kind = database.KindLocation
		res.Attempts, res.Err = s.transmit(ctx, database.KindLocation, frame)
		res.Sent = res.Err == nil
		payload := ax25.StripFrame(frame)
		s.record(&database.FrameRecord{
			PacketNum: s.packetNum,
			Kind:      database.KindLocation,
			Attempts:  res.Attempts,
			Sent:      res.Sent,
			Payload:   payload,
		})
		if res.Sent {
			s.writePayloadFile(payload)
		}
	}

	if !s.transmittingImage && !s.imagesDisabled && s.cfg.ImagesEnabled && s.hw.Camera != nil && alt.AltitudeM >= s.cfg.ImageAltitude {
		s.startImage(ctx, alt.AltitudeM)
	}
}

// readSensors reads the altimeter and GPS, retrying the pair until both
// succeed or the budget is spent
func (s *Scheduler) readSensors(ctx context.Context) (sensor.AltimeterReading, sensor.FixReport, error) {
	var alt sensor.AltimeterReading
	var fix sensor.FixReport

	_, err := s.retry(ctx, "read sensors", func() error {
		var err error
		if alt, err = s.hw.Altimeter.Read(); err != nil {
			return fmt.Errorf("altimeter: %w", err)
		}
		ok, err := s.hw.GPS.IsAvailable()
		if err != nil {
			return fmt.Errorf("gps: %w", err)
		}
		if !ok {
			return fmt.Errorf("gps: %w", sensor.ErrNoData)
		}
		if fix, err = s.hw.GPS.Read(); err != nil {
			return fmt.Errorf("gps: %w", err)
		}
		return nil
	})
	return alt, fix, err
}

func (s *Scheduler) transmit(ctx context.Context, kind string, frame []byte) (int, error) {
	attempts, err := s.retry(ctx, "transmit "+kind+" frame", func() error {
		return s.hw.SignalGenerator.Transmit(frame)
	})
	if err != nil {
		s.Metrics.TransmitFailed(kind)
		return attempts, err
	}
	s.Metrics.FrameTransmitted(kind)
	return attempts, nil
}

// retry calls fn up to MaxRetries times with RetryDelay between attempts and
// returns the number of attempts made
func (s *Scheduler) retry(ctx context.Context, op string, fn func() error) (int, error) {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if err = fn(); err == nil {
			return attempt, nil
		}
		s.log.Printf("Packet %d: %s attempt %d/%d failed: %v", s.packetNum, op, attempt, s.cfg.MaxRetries, err)

		if attempt < s.cfg.MaxRetries {
			if serr := s.Sleep(ctx, s.cfg.RetryDelay); serr != nil {
				return attempt, fmt.Errorf("%s interrupted after %d attempts: %w", op, attempt, serr)
			}
		}
	}
	return s.cfg.MaxRetries, fmt.Errorf("%w: %s failed %d times: %w", ErrRetriesExhausted, op, s.cfg.MaxRetries, err)
}

func (s *Scheduler) startImage(ctx context.Context, altitude float64) {
	s.log.Printf("Altitude %.0f m reached threshold %.0f m, capturing image %d", altitude, s.cfg.ImageAltitude, s.nextImageID)

	path, data, err := s.hw.Camera.Capture(ctx)
	if err != nil {
		s.log.Printf("Image capture failed: %v", err)
		s.Metrics.ImageFinished("capture_failed")
		return
	}

	s.imageID = s.nextImageID
	s.nextImageID++
	s.encoder = ssdv.NewEncoder(s.cfg.PacketType, s.cfg.Callsign, s.imageID, s.cfg.Quality, bytes.NewReader(data))
	s.current = nil
	s.currentBytes = nil
	s.imagePacketNum = 0
	s.imageTicks = 0
	s.ssdvPackets = 0
	s.transmittingImage = true

	if s.FlightLog != nil {
		if err := s.FlightLog.StartImage(s.imageID, path, len(data)); err != nil {
			s.log.Printf("Flight log: failed to record image %d: %v", s.imageID, err)
		}
	}
}

func (s *Scheduler) imageTick(ctx context.Context, res *TickResult) {
	half := aprs.HalfFor(s.imagePacketNum)

	if half == aprs.FirstHalf {
		pkt, err := s.encoder.Next()
		if errors.Is(err, io.EOF) {
			s.finishImage(database.ImageComplete, nil)
			return
		}
		if err != nil {
			s.log.Printf("Image %d: encoder failed after %d packets, abandoning image: %v", s.imageID, s.ssdvPackets, err)
			if errors.Is(err, ssdv.ErrUnsupported) || errors.Is(err, ssdv.ErrProgressive) {
				// the next capture would come out the same
				s.log.Printf("Camera output cannot be sent as SSDV, image capture disabled")
				s.imagesDisabled = true
			}
			s.finishImage(database.ImageAborted, err)
			return
		}
		s.current = pkt
		s.currentBytes = pkt.Bytes()
		s.ssdvPackets++
	}

	frame := s.framer.FrameImageChunk(s.packetNum, s.current, half)
	res.Kind = database.KindImage
	res.Attempts, res.Err = s.transmit(ctx, database.KindImage, frame)
	res.Sent = res.Err == nil

	imageID, ssdvID := s.imageID, s.current.PacketID
	s.record(&database.FrameRecord{
		PacketNum: s.packetNum,
		Kind:      database.KindImage,
		ImageID:   &imageID,
		SSDVID:    &ssdvID,
		Half:      half.String(),
		Attempts:  res.Attempts,
		Sent:      res.Sent,
		Payload:   s.currentBytes,
	})
	if res.Err != nil {
		s.log.Printf("Image %d packet %d%v dropped: %v", s.imageID, ssdvID, half, res.Err)
	}

	s.imagePacketNum++
	if half == aprs.SecondHalf && s.current.EOI {
		s.finishImage(database.ImageComplete, nil)
	}
}

func (s *Scheduler) finishImage(status string, cause error) {
	s.log.Printf("Image %d %s: %d SSDV packets in %d half frames", s.imageID, status, s.ssdvPackets, s.imagePacketNum)
	s.Metrics.ImageFinished(status)

	if s.FlightLog != nil {
		if err := s.FlightLog.FinishImage(s.imageID, s.ssdvPackets, status, cause); err != nil {
			s.log.Printf("Flight log: failed to close image %d: %v", s.imageID, err)
		}
	}

	s.transmittingImage = false
	s.encoder = nil
	s.current = nil
	s.currentBytes = nil
}

func (s *Scheduler) record(f *database.FrameRecord) {
	if s.FlightLog == nil {
		return
	}
	if err := s.FlightLog.RecordFrame(f); err != nil {
		s.log.Printf("Flight log: failed to record packet %d: %v", f.PacketNum, err)
	}
}

func (s *Scheduler) writePayloadFile(payload []byte) {
	if s.cfg.PayloadFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.PayloadFile), 0o755); err != nil {
		s.log.Printf("Failed to create payload file directory: %v", err)
		return
	}
	if err := os.WriteFile(s.cfg.PayloadFile, payload, 0o644); err != nil {
		s.log.Printf("Failed to write payload file: %v", err)
	}
}
