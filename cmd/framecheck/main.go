package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dbehnke/balloontx/internal/database"
	"github.com/dbehnke/balloontx/internal/protocol"
	"github.com/dbehnke/balloontx/internal/protocol/aprs"
	"github.com/dbehnke/balloontx/internal/protocol/ax25"
	"github.com/dbehnke/balloontx/internal/ssdv"
)

func main() {
	var (
		hexInput = flag.Bool("hex", false, "Input is hex text rather than raw bytes")
		payload  = flag.Bool("payload", false, "Input is a bare payload (e.g. the diagnostic payload file), not a full frame")
		dbPath   = flag.String("db", "", "Export an image's SSDV packets from this flight log instead")
		flightID = flag.String("flight", "", "Flight id for -db (default: the latest flight)")
		imageID  = flag.Uint("image", 0, "Image id for -db")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: framecheck [-hex] [-payload] <file|->\n")
		fmt.Fprintf(os.Stderr, "       framecheck -db <flight.db> [-flight id] -image <n> <out.bin|->\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if *dbPath != "" {
		if err := exportImage(*dbPath, *flightID, uint8(*imageID), flag.Arg(0)); err != nil {
			fmt.Fprintf(os.Stderr, "framecheck: %v\n", err)
			os.Exit(1)
		}
		return
	}

	data, err := readInput(flag.Arg(0), *hexInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "framecheck: %v\n", err)
		os.Exit(1)
	}

	if *payload {
		describePayload(os.Stdout, data)
		return
	}

	if err := describeFrame(os.Stdout, data); err != nil {
		fmt.Fprintf(os.Stderr, "framecheck: %v\n", err)
		os.Exit(1)
	}
}

// exportImage writes the recorded SSDV packets of one image, ready for an
// SSDV decoder
func exportImage(dbPath, flightID string, imageID uint8, out string) error {
	db, err := database.NewDB(database.Config{Path: dbPath}, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	if flightID == "" {
		if flightID, err = database.LastFlightID(db.GetDB()); err != nil {
			return err
		}
	}
	packets, err := database.OpenFlightLog(db.GetDB(), flightID).ImagePackets(imageID)
	if err != nil {
		return err
	}

	if out == "-" {
		_, err = os.Stdout.Write(packets)
		return err
	}
	if err := os.WriteFile(out, packets, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %d SSDV packets of image %d (flight %s) to %s\n", len(packets)/ssdv.PKT_SIZE, imageID, flightID, out)
	return nil
}

func readInput(name string, isHex bool) ([]byte, error) {
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, err
	}
	if !isHex {
		return data, nil
	}

	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t', ':':
			return -1
		}
		return r
	}, string(data))
	return hex.DecodeString(clean)
}

func describeFrame(w io.Writer, raw []byte) error {
	flags := 0
	for flags < len(raw) && raw[flags] == ax25.FLAG {
		flags++
	}
	fmt.Fprintf(w, "Frame:       %d bytes, %d leading flags\n", len(raw), flags)

	f, err := ax25.Decode(raw)
	if errors.Is(err, ax25.ErrBadFCS) {
		fmt.Fprintf(w, "FCS:         BAD\n")
		if body := ax25.StripFrame(raw); body != nil {
			describePayload(w, body)
		}
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "FCS:         OK\n")
	fmt.Fprintf(w, "Destination: %s\n", f.Destination)
	fmt.Fprintf(w, "Source:      %s\n", f.Source)
	describePayload(w, f.Payload)
	return nil
}

func describePayload(w io.Writer, p []byte) {
	p = bytes.TrimRight(p, "\r\n")
	if bytes.HasPrefix(p, []byte(protocol.IMAGE_TAG)) {
		chunk, err := aprs.ParseImagePayload(p)
		if err != nil {
			fmt.Fprintf(w, "Image:       invalid (%v)\n", err)
			return
		}
		h := chunk.Header
		fmt.Fprintf(w, "Image:       packet #%06d half %v\n", chunk.PacketNum, chunk.Half)
		fmt.Fprintf(w, "SSDV:        %s %s image %d packet %d, %dx%d, quality %d, mode %d, eoi %v\n",
			h.Type, ssdv.DecodeCallsign(h.Callsign), h.ImageID, h.PacketID, h.Width, h.Height, h.Quality, h.MCUMode, h.EOI)
		fmt.Fprintf(w, "MCU:         offset %d, id %d\n", h.MCUOffset, h.MCUID)
		fmt.Fprintf(w, "Data:        %d bytes\n", len(chunk.Data))
		return
	}

	fmt.Fprintf(w, "Payload:     %q\n", p)
	if len(p) > 0 && p[0] == protocol.DTI_POSITION_TIMESTAMP {
		for _, field := range strings.Split(string(p[1:]), "/") {
			if k, v, ok := strings.Cut(field, "="); ok {
				fmt.Fprintf(w, "  %-3s        %s\n", k, v)
			}
		}
	}
}
