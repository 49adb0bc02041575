package database

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func openTestLog(t *testing.T) (*DB, *FlightLog) {
	t.Helper()
	db, err := NewDB(Config{Path: filepath.Join(t.TempDir(), "flight.db")}, nil)
	if err != nil {
		t.Fatalf("NewDB() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, NewFlightLog(db.GetDB())
}

func u8(v uint8) *uint8    { return &v }
func u16(v uint16) *uint16 { return &v }

func TestRecordFrame(t *testing.T) {
	db, fl := openTestLog(t)

	if err := db.Health(); err != nil {
		t.Fatalf("Health() error: %v", err)
	}

	frames := []FrameRecord{
		{PacketNum: 0, Kind: KindLocation, Attempts: 1, Sent: true, Payload: []byte("/000000h")},
		{PacketNum: 1, Kind: KindImage, ImageID: u8(0), SSDVID: u16(0), Half: "A", Attempts: 3, Sent: true},
		{PacketNum: 2, Kind: KindImage, ImageID: u8(0), SSDVID: u16(0), Half: "B", Attempts: 20, Sent: false},
	}
	for i := range frames {
		if err := fl.RecordFrame(&frames[i]); err != nil {
			t.Fatalf("RecordFrame(%d) error: %v", i, err)
		}
	}

	tests := []struct {
		kind string
		want int64
	}{
		{kind: "", want: 3},
		{kind: KindLocation, want: 1},
		{kind: KindImage, want: 2},
	}
	for _, tt := range tests {
		got, err := fl.CountFrames(tt.kind)
		if err != nil {
			t.Fatalf("CountFrames(%q) error: %v", tt.kind, err)
		}
		if got != tt.want {
			t.Errorf("CountFrames(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}

	recent, err := fl.RecentFrames(2)
	if err != nil {
		t.Fatalf("RecentFrames() error: %v", err)
	}
	if len(recent) != 2 || recent[0].PacketNum != 2 || recent[1].PacketNum != 1 {
		t.Fatalf("RecentFrames(2) = %v", recent)
	}
	if recent[0].FlightID != fl.FlightID() || recent[0].Sent {
		t.Errorf("RecentFrames()[0] = %+v", recent[0])
	}
	if recent[1].ImageID == nil || *recent[1].ImageID != 0 || recent[1].Half != "A" {
		t.Errorf("RecentFrames()[1] = %+v", recent[1])
	}
}

func TestRecordFrameRejectsUnknownKind(t *testing.T) {
	_, fl := openTestLog(t)

	if err := fl.RecordFrame(&FrameRecord{Kind: "telemetry"}); err == nil {
		t.Errorf("RecordFrame() expected error for unknown kind")
	}
	if err := fl.RecordFrame(nil); err == nil {
		t.Errorf("RecordFrame(nil) expected error")
	}
}

func TestImageLifecycle(t *testing.T) {
	_, fl := openTestLog(t)

	if err := fl.StartImage(3, "/tmp/img3.jpg", 4096); err != nil {
		t.Fatalf("StartImage() error: %v", err)
	}
	if err := fl.FinishImage(3, 17, ImageAborted, errors.New("progressive jpeg")); err != nil {
		t.Fatalf("FinishImage() error: %v", err)
	}
	if err := fl.FinishImage(3, 0, ImageComplete, nil); err == nil {
		t.Errorf("FinishImage() on a finished image expected error")
	}

	images, err := fl.Images()
	if err != nil {
		t.Fatalf("Images() error: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("Images() returned %d records, want 1", len(images))
	}
	img := images[0]
	if !img.IsFinished() || img.Status != ImageAborted || img.Packets != 17 || img.Error != "progressive jpeg" {
		t.Errorf("image record = %+v", img)
	}
	if img.FinishedAt == nil || img.FinishedAt.Before(img.StartedAt) {
		t.Errorf("FinishedAt = %v, StartedAt = %v", img.FinishedAt, img.StartedAt)
	}
}

func TestFlightsAreSeparate(t *testing.T) {
	db, first := openTestLog(t)
	second := NewFlightLog(db.GetDB())

	if first.FlightID() == second.FlightID() {
		t.Fatalf("two flights share id %s", first.FlightID())
	}
	if err := first.RecordFrame(&FrameRecord{Kind: KindLocation, Sent: true}); err != nil {
		t.Fatalf("RecordFrame() error: %v", err)
	}
	if n, _ := second.CountFrames(""); n != 0 {
		t.Errorf("second flight CountFrames() = %d, want 0", n)
	}
}

func TestImagePackets(t *testing.T) {
	db, fl := openTestLog(t)

	packet := func(fill byte) []byte {
		return bytes.Repeat([]byte{fill}, 256)
	}
	frames := []FrameRecord{
		// an earlier image that used the same id
		{Kind: KindImage, ImageID: u8(7), SSDVID: u16(0), Half: "A", Payload: packet(0xEE)},
		{Kind: KindImage, ImageID: u8(7), SSDVID: u16(0), Half: "B", Payload: packet(0xEE)},
		{Kind: KindImage, ImageID: u8(7), SSDVID: u16(0), Half: "A", Payload: packet(0x01)},
		{Kind: KindImage, ImageID: u8(7), SSDVID: u16(0), Half: "B", Payload: packet(0x01)},
		{Kind: KindLocation, Payload: []byte("/120000h")},
		{Kind: KindImage, ImageID: u8(7), SSDVID: u16(1), Half: "A", Payload: packet(0x02)},
		{Kind: KindImage, ImageID: u8(7), SSDVID: u16(1), Half: "B", Payload: packet(0x02)},
		{Kind: KindImage, ImageID: u8(8), SSDVID: u16(0), Half: "A", Payload: packet(0x03)},
	}
	for i := range frames {
		if err := fl.RecordFrame(&frames[i]); err != nil {
			t.Fatalf("RecordFrame(%d) error: %v", i, err)
		}
	}

	got, err := fl.ImagePackets(7)
	if err != nil {
		t.Fatalf("ImagePackets() error: %v", err)
	}
	want := append(packet(0x01), packet(0x02)...)
	if !bytes.Equal(got, want) {
		t.Errorf("ImagePackets(7) returned %d bytes starting % X, want packets 0x01, 0x02", len(got), got[:1])
	}

	if _, err := fl.ImagePackets(9); err == nil {
		t.Errorf("ImagePackets(9) expected error for an unknown image")
	}

	id, err := LastFlightID(db.GetDB())
	if err != nil || id != fl.FlightID() {
		t.Errorf("LastFlightID() = %q, %v; want %q", id, err, fl.FlightID())
	}
	if n, _ := OpenFlightLog(db.GetDB(), id).CountFrames(KindImage); n != 7 {
		t.Errorf("reopened flight CountFrames(image) = %d, want 7", n)
	}
}
