package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dbehnke/balloontx/internal/camera"
	"github.com/dbehnke/balloontx/internal/config"
	"github.com/dbehnke/balloontx/internal/database"
	"github.com/dbehnke/balloontx/internal/i2cbus"
	"github.com/dbehnke/balloontx/internal/metrics"
	"github.com/dbehnke/balloontx/internal/protocol/aprs"
	"github.com/dbehnke/balloontx/internal/protocol/ax25"
	"github.com/dbehnke/balloontx/internal/radio"
	"github.com/dbehnke/balloontx/internal/scheduler"
	"github.com/dbehnke/balloontx/internal/sensor"
	"github.com/dbehnke/balloontx/internal/ssdv"
	"github.com/dbehnke/balloontx/internal/uart"
)

const VERSION = "1.0.0"

var (
	HEADER1 = "Telemetry transmitter for amateur radio high-altitude balloons."
	HEADER2 = "A valid amateur radio licence is required to transmit."
)

// Flight owns every peripheral for the life of the process
type Flight struct {
	cfg     *config.Config
	sched   *scheduler.Scheduler
	closers []io.Closer
	db      *database.DB
	server  *http.Server
}

// NewFlight brings up all peripherals, blocking until each one initializes
// or ctx is cancelled
func NewFlight(ctx context.Context, cfg *config.Config) (*Flight, error) {
	f := &Flight{cfg: cfg}

	pktType, err := ssdv.ParsePacketType(cfg.Image.PacketType)
	if err != nil {
		return nil, err
	}

	framer := aprs.NewFramer(
		ax25.NewAddress(cfg.Station.Destination, cfg.Station.DestinationSSID),
		ax25.NewAddress(cfg.Station.Callsign, cfg.Station.SSID),
		cfg.Transmission.FlagCount,
	)

	backoff := cfg.Transmission.InitBackoff
	var hw scheduler.Peripherals

	if cfg.Radio.Enabled {
		err := scheduler.InitForever(ctx, "DRA818V transceiver", backoff, func() error {
			port, err := openPort(cfg.Radio.Serial)
			if err != nil {
				return err
			}
			d := radio.NewDRA818V(port)
			if err := d.Init(cfg.Radio.FrequencyMHz); err != nil {
				port.Close()
				return err
			}
			if cfg.Radio.Volume > 0 {
				if err := d.SetVolume(cfg.Radio.Volume); err != nil {
					port.Close()
					return err
				}
			}
			f.closers = append(f.closers, port)
			return nil
		})
		if err != nil {
			return nil, f.abort(err)
		}
	}

	err = scheduler.InitForever(ctx, "signal generator", backoff, func() error {
		dev, err := i2cbus.Open(cfg.SignalGenerator.Bus, cfg.SignalGenerator.Address)
		if err != nil {
			return err
		}
		sg := radio.NewSignalGenerator(dev, cfg.SignalGenerator.ChunkSize)
		sg.ChunkDelay = cfg.SignalGenerator.ChunkDelay
		hw.SignalGenerator = sg
		f.closers = append(f.closers, dev)
		return nil
	})
	if err != nil {
		return nil, f.abort(err)
	}

	err = scheduler.InitForever(ctx, "BMP388 altimeter", backoff, func() error {
		dev, err := i2cbus.Open(cfg.Altimeter.Bus, cfg.Altimeter.Address)
		if err != nil {
			return err
		}
		bmp := sensor.NewBMP388(dev, cfg.Altimeter.SeaLevelPa)
		if err := bmp.Init(); err != nil {
			dev.Close()
			return err
		}
		hw.Altimeter = bmp
		f.closers = append(f.closers, dev)
		return nil
	})
	if err != nil {
		return nil, f.abort(err)
	}

	err = scheduler.InitForever(ctx, "NEO-6M GPS", backoff, func() error {
		port, err := openPort(cfg.GPS)
		if err != nil {
			return err
		}
		hw.GPS = sensor.NewNEO6M(port)
		f.closers = append(f.closers, port)
		return nil
	})
	if err != nil {
		return nil, f.abort(err)
	}

	if cfg.Image.Enabled {
		cam, err := camera.NewStill(cfg.Image.Command, cfg.Image.Args, cfg.Image.PathPattern)
		if err != nil {
			return nil, f.abort(err)
		}
		hw.Camera = cam
	}

	schedCfg := scheduler.Config{
		MaxRetries:       cfg.Transmission.MaxRetries,
		RetryDelay:       cfg.Transmission.RetryDelay,
		TickInterval:     cfg.Transmission.TickInterval,
		LocationInterval: cfg.Transmission.LocationInterval,
		ImageAltitude:    cfg.Transmission.ImageAltitude,
		ImagesEnabled:    cfg.Image.Enabled,
		PayloadFile:      cfg.Transmission.PayloadFile,
		Callsign:         cfg.Station.Callsign,
		PacketType:       pktType,
		Quality:          cfg.Image.Quality,
	}
	f.sched = scheduler.New(schedCfg, framer, hw)

	if cfg.Database.Enabled {
		var dbLog *log.Logger
		if cfg.Database.Debug {
			dbLog = log.New(os.Stdout, "[DB] ", log.LstdFlags)
		}
		db, err := database.NewDB(database.Config{Path: cfg.Database.Path}, dbLog)
		if err != nil {
			// the flight goes on without a log
			log.Printf("Failed to open flight log %s: %v", cfg.Database.Path, err)
		} else {
			f.db = db
			fl := database.NewFlightLog(db.GetDB())
			f.sched.FlightLog = fl
			log.Printf("Flight log %s, flight id %s", cfg.Database.Path, fl.FlightID())
		}
	}

	if cfg.Metrics.Enabled {
		f.sched.Metrics = metrics.Recorder{}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		f.server = &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := f.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics listener failed: %v", err)
			}
		}()
		log.Printf("Metrics on %s/metrics", cfg.Metrics.Address)
	}

	return f, nil
}

func openPort(sc config.SerialConfig) (*uart.Port, error) {
	p := uart.NewPort(uart.Config{
		Device:   sc.Device,
		BaudRate: sc.BaudRate,
		Parity:   sc.Parity,
	})
	if err := p.Open(); err != nil {
		return nil, err
	}
	return p, nil
}

func (f *Flight) abort(err error) error {
	f.Close()
	return err
}

// Run transmits until ctx is cancelled; once runs a single tick
func (f *Flight) Run(ctx context.Context, once bool) error {
	if once {
		res := f.sched.Tick(ctx)
		log.Printf("Tick %d: kind=%q sent=%v attempts=%d err=%v", res.PacketNum, res.Kind, res.Sent, res.Attempts, res.Err)
		return res.Err
	}
	err := f.sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases every peripheral
func (f *Flight) Close() {
	if f.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := f.server.Shutdown(ctx); err != nil {
			log.Printf("Failed to stop metrics listener: %v", err)
		}
		cancel()
	}
	if f.db != nil {
		if err := f.db.Close(); err != nil {
			log.Printf("Failed to close flight log: %v", err)
		}
	}
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i].Close(); err != nil {
			log.Printf("Failed to close %v: %v", f.closers[i], err)
		}
	}
	f.closers = nil
}

func main() {
	var (
		configFile = flag.String("config", getDefaultConfig(), "Configuration file path (.ini, .yaml or .yml)")
		version    = flag.Bool("version", false, "Show version information")
		once       = flag.Bool("once", false, "Run a single tick and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("balloontx v%s\n", VERSION)
		fmt.Println(HEADER1)
		fmt.Println(HEADER2)
		return
	}

	if flag.NArg() > 0 {
		*configFile = flag.Arg(0)
	}

	cfg := config.NewConfig(*configFile)
	if err := cfg.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	flags := log.LstdFlags
	if cfg.Log.ShortFile {
		flags |= log.Lshortfile
	}
	log.SetFlags(flags)
	if cfg.Log.FilePath != "" {
		lf, err := os.OpenFile(cfg.Log.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer lf.Close()
		log.SetOutput(io.MultiWriter(os.Stdout, lf))
	}

	log.Printf("balloontx v%s starting with config: %s", VERSION, *configFile)
	log.Printf("Station %s-%d -> %s, %.4f MHz", cfg.Station.Callsign, cfg.Station.SSID, cfg.Station.Destination, cfg.Radio.FrequencyMHz)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flight, err := NewFlight(ctx, cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("Interrupted during start-up")
			return
		}
		log.Fatalf("Failed to start: %v", err)
	}
	defer flight.Close()

	if err := flight.Run(ctx, *once); err != nil {
		log.Printf("Stopped with error: %v", err)
		return
	}
	log.Printf("balloontx stopped")
}

// getDefaultConfig prefers a local file, then the system location
func getDefaultConfig() string {
	for _, name := range []string{"balloontx.ini", "balloontx.yaml", "/etc/balloontx.ini", "/etc/balloontx.yaml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return "balloontx.ini"
}
