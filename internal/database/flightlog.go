package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FlightLog records what the transmitter did during one power-on. Every row
// carries the flight id so logs from several boots can share a file.
type FlightLog struct {
	db       *gorm.DB
	flightID string
	now      func() time.Time
}

// NewFlightLog starts a new flight with a random id
func NewFlightLog(db *gorm.DB) *FlightLog {
	return &FlightLog{
		db:       db,
		flightID: uuid.NewString(),
		now:      time.Now,
	}
}

// OpenFlightLog reopens a recorded flight for reading
func OpenFlightLog(db *gorm.DB, flightID string) *FlightLog {
	return &FlightLog{db: db, flightID: flightID, now: time.Now}
}

// LastFlightID returns the flight that recorded the newest frame
func LastFlightID(db *gorm.DB) (string, error) {
	var rec FrameRecord
	err := db.Order("id DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("no frames recorded")
	}
	if err != nil {
		return "", err
	}
	return rec.FlightID, nil
}

// FlightID returns the id stamped on this flight's rows
func (l *FlightLog) FlightID() string {
	return l.flightID
}

// RecordFrame stores the outcome of one frame
func (l *FlightLog) RecordFrame(f *FrameRecord) error {
	if f == nil {
		return fmt.Errorf("frame record cannot be nil")
	}
	if f.Kind != KindLocation && f.Kind != KindImage {
		return fmt.Errorf("unknown frame kind %q", f.Kind)
	}
	f.ID = 0
	f.FlightID = l.flightID
	f.CreatedAt = l.now()
	return l.db.Create(f).Error
}

// StartImage opens an image record in the active state
func (l *FlightLog) StartImage(imageID uint8, path string, size int) error {
	rec := ImageRecord{
		FlightID:  l.flightID,
		ImageID:   imageID,
		Path:      path,
		Bytes:     size,
		Status:    ImageActive,
		StartedAt: l.now(),
	}
	return l.db.Create(&rec).Error
}

// FinishImage closes the most recent active record for imageID
func (l *FlightLog) FinishImage(imageID uint8, packets int, status string, cause error) error {
	var rec ImageRecord
	err := l.db.Where("flight_id = ? AND image_id = ? AND status = ?", l.flightID, imageID, ImageActive).
		Order("id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("no active image %d in flight %s", imageID, l.flightID)
	}
	if err != nil {
		return err
	}

	finished := l.now()
	rec.Packets = packets
	rec.Status = status
	rec.FinishedAt = &finished
	if cause != nil {
		msg := cause.Error()
		if len(msg) > 255 {
			msg = msg[:255]
		}
		rec.Error = msg
	}
	return l.db.Save(&rec).Error
}

// CountFrames counts this flight's frames of the given kind; an empty kind
// counts all of them
func (l *FlightLog) CountFrames(kind string) (int64, error) {
	var count int64
	q := l.db.Model(&FrameRecord{}).Where("flight_id = ?", l.flightID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	err := q.Count(&count).Error
	return count, err
}

// RecentFrames returns this flight's newest frames first
func (l *FlightLog) RecentFrames(limit int) ([]FrameRecord, error) {
	var frames []FrameRecord
	err := l.db.Where("flight_id = ?", l.flightID).
		Order("id DESC").
		Limit(limit).
		Find(&frames).Error
	return frames, err
}

// Images returns this flight's image records in capture order
func (l *FlightLog) Images() ([]ImageRecord, error) {
	var images []ImageRecord
	err := l.db.Where("flight_id = ?", l.flightID).Order("id ASC").Find(&images).Error
	return images, err
}

// ImagePackets returns the SSDV packets of the most recent image with
// imageID in this flight, concatenated in packet order. Image ids wrap, so a
// run restarts whenever packet 0 is seen again.
func (l *FlightLog) ImagePackets(imageID uint8) ([]byte, error) {
	var frames []FrameRecord
	err := l.db.Where("flight_id = ? AND kind = ? AND image_id = ? AND half = ?", l.flightID, KindImage, imageID, "A").
		Order("id ASC").
		Find(&frames).Error
	if err != nil {
		return nil, err
	}

	var out []byte
	for _, f := range frames {
		if f.SSDVID != nil && *f.SSDVID == 0 {
			out = out[:0]
		}
		out = append(out, f.Payload...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no packets for image %d in flight %s", imageID, l.flightID)
	}
	return out, nil
}
