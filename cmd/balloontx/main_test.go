package main

import (
	"bytes"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
)

type testCloser struct {
	name   string
	err    error
	closed *[]string
}

func (c testCloser) Close() error {
	*c.closed = append(*c.closed, c.name)
	return c.err
}

func (c testCloser) String() string { return c.name }

func TestFlightCloseLogsErrors(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(io.Discard) })

	var closed []string
	f := &Flight{closers: []io.Closer{
		testCloser{name: "/dev/ttyS0", closed: &closed},
		testCloser{name: "I2C1(119)", err: errors.New("bus busy"), closed: &closed},
	}}
	f.Close()

	if strings.Join(closed, ",") != "I2C1(119),/dev/ttyS0" {
		t.Errorf("closed %v, want reverse open order", closed)
	}
	if !strings.Contains(buf.String(), "Failed to close I2C1(119): bus busy") {
		t.Errorf("log = %q, want the close failure", buf.String())
	}
	if strings.Contains(buf.String(), "/dev/ttyS0") {
		t.Errorf("log = %q, a clean close was reported", buf.String())
	}
	if f.closers != nil {
		t.Errorf("closers kept after Close()")
	}
}
