package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/tauraamui/edgeview/pkg/edgeview/stats"
	"gorm.io/gorm"
)

func init() {
	registerForAutomigration(&FPSWindow{})
}

// FPSWindow is one closed stats window of a device.
type FPSWindow struct {
	gorm.Model
	UUID      string
	Device    string `gorm:"index"`
	Window    int64
	FPS       float64
	Frames    uint64
	ElapsedMS int64
	Completed uint64
	Drops     uint64
	Failures  uint64
	ClosedAt  time.Time `gorm:"index"`
}

func (w *FPSWindow) BeforeCreate(tx *gorm.DB) error {
	if len(w.UUID) == 0 {
		w.UUID = uuid.NewString()
	}
	return nil
}

func NewFPSWindow(device string, s stats.Snapshot, closedAt time.Time) FPSWindow {
	return FPSWindow{
		Device:    device,
		Window:    s.Window,
		FPS:       s.FPS,
		Frames:    s.WindowFrames,
		ElapsedMS: s.WindowElapsed.Milliseconds(),
		Completed: s.Completed,
		Drops:     s.TotalDrops(),
		Failures:  s.TransformFailures,
		ClosedAt:  closedAt,
	}
}
