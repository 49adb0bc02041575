package database

import (
	"fmt"
	"time"
)

// Frame kinds
const (
	KindLocation = "location"
	KindImage    = "image"
)

// Image statuses
const (
	ImageActive    = "active"
	ImageComplete  = "complete"
	ImageAborted   = "aborted"
	ImageAbandoned = "abandoned"
)

// FrameRecord is one transmission attempt sequence for one frame
type FrameRecord struct {
	ID        uint      `gorm:"primarykey"`
	FlightID  string    `gorm:"index;size:36;not null"`
	PacketNum uint32    `gorm:"index"`
	Kind      string    `gorm:"size:16;not null"`
	ImageID   *uint8    // image frames only
	SSDVID    *uint16   // SSDV packet id, image frames only
	Half      string    `gorm:"size:1"`
	Attempts  int
	Sent      bool
	Payload   []byte
	CreatedAt time.Time
}

// TableName specifies the table name for GORM
func (FrameRecord) TableName() string {
	return "frames"
}

func (f FrameRecord) String() string {
	status := "sent"
	if !f.Sent {
		status = "failed"
	}
	s := fmt.Sprintf("#%06d %s %s after %d attempt(s)", f.PacketNum, f.Kind, status, f.Attempts)
	if f.ImageID != nil && f.SSDVID != nil {
		s += fmt.Sprintf(" [image %d packet %d%s]", *f.ImageID, *f.SSDVID, f.Half)
	}
	return s
}

// ImageRecord tracks one captured image from capture to its last packet
type ImageRecord struct {
	ID         uint   `gorm:"primarykey"`
	FlightID   string `gorm:"index;size:36;not null"`
	ImageID    uint8
	Path       string `gorm:"size:255"`
	Bytes      int
	Packets    int
	Status     string `gorm:"size:16;not null"`
	Error      string `gorm:"size:255"`
	StartedAt  time.Time
	FinishedAt *time.Time
}

// TableName specifies the table name for GORM
func (ImageRecord) TableName() string {
	return "images"
}

// IsFinished reports whether the image reached a terminal status
func (i ImageRecord) IsFinished() bool {
	return i.Status != ImageActive
}
