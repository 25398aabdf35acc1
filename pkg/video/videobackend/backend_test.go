package videobackend_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/tauraamui/edgeview/pkg/video/videobackend"
	"github.com/tauraamui/edgeview/pkg/video/videoframe"
)

func TestVideoBackendDefaultBackend(t *testing.T) {
	is := is.New(t)
	is.True(videobackend.Default() != nil)
}

func TestVideoBackendResolveMock(t *testing.T) {
	is := is.New(t)
	dev := videobackend.Resolve("Mock").NewDevice("front", "")
	_, ok := dev.(*videobackend.MockDevice)
	is.True(ok)
	is.Equal(dev.Title(), "front")
	is.True(len(dev.UUID()) > 0)
}

func configuredMock(t *testing.T, s videobackend.Settings) *videobackend.MockDevice {
	t.Helper()
	is := is.New(t)
	dev := videobackend.NewMockDevice("test", videobackend.MockOptions{})
	is.NoErr(dev.Open(context.Background()))
	is.NoErr(dev.Configure(context.Background(), s))
	return dev
}

func TestMockDeviceConfigureBeforeOpenFails(t *testing.T) {
	is := is.New(t)
	dev := videobackend.NewMockDevice("test", videobackend.MockOptions{})
	err := dev.Configure(context.Background(), videobackend.Settings{Dimensions: videoframe.Dimensions{W: 8, H: 8}})
	is.True(errors.Is(err, videobackend.ErrNotOpen))
}

func TestMockDeviceStartBeforeConfigureFails(t *testing.T) {
	is := is.New(t)
	dev := videobackend.NewMockDevice("test", videobackend.MockOptions{})
	is.NoErr(dev.Open(context.Background()))
	err := dev.StartRepeating(func(videobackend.RawFrame) {})
	is.True(errors.Is(err, videobackend.ErrNotConfigured))
}

func TestMockDeviceOpenHonoursCancel(t *testing.T) {
	is := is.New(t)
	dev := videobackend.NewMockDevice("test", videobackend.MockOptions{OpenDelay: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	is.True(dev.Open(ctx) != nil)
}

func TestMockDeviceEmitDeliversFormattedFrames(t *testing.T) {
	is := is.New(t)
	dims := videoframe.Dimensions{W: 32, H: 24}
	for _, format := range []videoframe.PixelFormat{videoframe.YUV420, videoframe.Gray8, videoframe.RGB24} {
		dev := configuredMock(t, videobackend.Settings{Dimensions: dims, Format: format, MaxImages: 2})

		var got []videobackend.RawFrame
		is.NoErr(dev.StartRepeating(func(raw videobackend.RawFrame) { got = append(got, raw) }))
		is.True(dev.Emit())

		is.Equal(len(got), 1)
		is.Equal(got[0].Dimensions, dims)
		is.Equal(got[0].Format, format)
		is.Equal(len(got[0].Data), format.BufferSize(dims))
		got[0].Done()
		is.NoErr(dev.Close())
	}
}

func TestMockDeviceStopsDeliveringWhileAllImagesHeld(t *testing.T) {
	is := is.New(t)
	dev := configuredMock(t, videobackend.Settings{
		Dimensions: videoframe.Dimensions{W: 16, H: 16}, Format: videoframe.Gray8, MaxImages: 2,
	})
	defer dev.Close()

	var held []videobackend.RawFrame
	is.NoErr(dev.StartRepeating(func(raw videobackend.RawFrame) { held = append(held, raw) }))

	is.True(dev.Emit())
	is.True(dev.Emit())
	is.True(!dev.Emit())
	is.Equal(dev.Outstanding(), 2)

	held[0].Done()
	held[0].Done()
	is.Equal(dev.Outstanding(), 1)
	is.True(dev.Emit())
}

func TestMockDeviceRepeatsAtConfiguredRate(t *testing.T) {
	is := is.New(t)
	dev := configuredMock(t, videobackend.Settings{
		Dimensions: videoframe.Dimensions{W: 16, H: 16}, Format: videoframe.Gray8, MaxImages: 1, FPS: 200,
	})

	delivered := make(chan struct{}, 64)
	is.NoErr(dev.StartRepeating(func(raw videobackend.RawFrame) {
		raw.Done()
		select {
		case delivered <- struct{}{}:
		default:
		}
	}))
	is.True(errors.Is(dev.StartRepeating(func(videobackend.RawFrame) {}), videobackend.ErrRepeating))

	select {
	case <-delivered:
	case <-time.After(3 * time.Second):
		t.Fatal("mock device never delivered a frame")
	}
	dev.StopRepeating()
	is.True(!dev.Emit())
	is.NoErr(dev.Close())
}

func TestMockDeviceReportsDisconnect(t *testing.T) {
	is := is.New(t)
	dev := videobackend.NewMockDevice("test", videobackend.MockOptions{})
	dev.Disconnect(errors.New("cable pulled"))
	err := <-dev.Disconnected()
	is.Equal(err.Error(), "cable pulled")
}
