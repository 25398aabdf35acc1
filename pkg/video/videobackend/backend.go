package videobackend

import (
	"context"
	"strings"

	"github.com/tauraamui/edgeview/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

// RawFrame is an image as handed over by a device. Data stays valid until
// Done is called, after which the device may reuse it.
type RawFrame struct {
	Data       []byte
	Dimensions videoframe.Dimensions
	Format     videoframe.PixelFormat
	release    func()
}

func NewRawFrame(data []byte, dims videoframe.Dimensions, format videoframe.PixelFormat, release func()) RawFrame {
	return RawFrame{Data: data, Dimensions: dims, Format: format, release: release}
}

// Done hands the image back to the device. Calling it more than once is
// the caller's bug, devices guard against it anyway.
func (r RawFrame) Done() {
	if r.release != nil {
		r.release()
	}
}

type DeliverFunc func(RawFrame)

type Settings struct {
	Dimensions videoframe.Dimensions
	Format     videoframe.PixelFormat
	// MaxImages bounds how many delivered images may be outstanding.
	MaxImages int
	FPS       int
}

// Device is a camera the session drives. Open and Configure may block
// and honour ctx. Delivery happens on the device's own goroutine.
type Device interface {
	UUID() string
	Title() string
	Open(context.Context) error
	Configure(context.Context, Settings) error
	StartRepeating(DeliverFunc) error
	StopRepeating()
	Disconnected() <-chan error
	Close() error
}

type Backend interface {
	NewDevice(title, addr string) Device
}

var (
	ErrNotOpen       = xerror.New("device is not open")
	ErrNotConfigured = xerror.New("device is not configured")
	ErrRepeating     = xerror.New("device is already repeating")
)

func Default() Backend {
	return OpenCV()
}

func OpenCV() Backend {
	return &openCVBackend{}
}

func Mock() Backend {
	return &mockBackend{}
}

func Resolve(t string) Backend {
	switch strings.ToLower(t) {
	case "mock":
		return Mock()
	default:
		return Default()
	}
}
