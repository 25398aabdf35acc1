package videobackend

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"github.com/tauraamui/edgeview/pkg/log"
	"github.com/tauraamui/xerror"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

type mockBackend struct{}

func (b *mockBackend) NewDevice(title, addr string) Device {
	return NewMockDevice(title, MockOptions{})
}

// MockOptions lets tests script a mock device's failures.
type MockOptions struct {
	OpenErr      error
	ConfigureErr error
	// OpenDelay holds Open back, honouring ctx while it waits.
	OpenDelay time.Duration
}

// MockDevice renders a synthetic test card with the device title and a
// running frame counter drawn on top. With a zero FPS nothing is delivered
// until Emit is called.
type MockDevice struct {
	uuid  string
	title string
	opts  MockOptions

	mu           sync.Mutex
	open         bool
	configured   bool
	settings     Settings
	deliver      DeliverFunc
	outstanding  int
	emitted      uint64
	base         *image.RGBA
	stop         chan struct{}
	done         chan struct{}
	disconnected chan error
}

func NewMockDevice(title string, opts MockOptions) *MockDevice {
	return &MockDevice{
		uuid:         uuid.NewString(),
		title:        title,
		opts:         opts,
		disconnected: make(chan error, 1),
	}
}

func (d *MockDevice) UUID() string  { return d.uuid }
func (d *MockDevice) Title() string { return d.title }

func (d *MockDevice) Open(ctx context.Context) error {
	if d.opts.OpenDelay > 0 {
		select {
		case <-time.After(d.opts.OpenDelay):
		case <-ctx.Done():
			return xerror.New("open cancelled")
		}
	}
	if d.opts.OpenErr != nil {
		return d.opts.OpenErr
	}
	d.mu.Lock()
	d.open = true
	d.mu.Unlock()
	return nil
}

func (d *MockDevice) Configure(ctx context.Context, s Settings) error {
	if d.opts.ConfigureErr != nil {
		return d.opts.ConfigureErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrNotOpen
	}
	if s.Dimensions.W <= 0 || s.Dimensions.H <= 0 {
		return xerror.Errorf("invalid capture dimensions: %s", s.Dimensions)
	}
	if s.MaxImages <= 0 {
		s.MaxImages = 1
	}
	d.settings = s
	d.base = renderBaseFrameCanvas(s.Dimensions.W, s.Dimensions.H)
	d.configured = true
	return nil
}

func (d *MockDevice) StartRepeating(deliver DeliverFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return ErrNotConfigured
	}
	if d.deliver != nil {
		return ErrRepeating
	}
	d.deliver = deliver

	if d.settings.FPS <= 0 {
		return nil
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.repeat(time.Second/time.Duration(d.settings.FPS), d.stop, d.done)
	return nil
}

func (d *MockDevice) repeat(interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.Emit()
		}
	}
}

// Emit renders and delivers one frame on the calling goroutine. It reports
// false when the device is not repeating or every image is still held.
func (d *MockDevice) Emit() bool {
	d.mu.Lock()
	if d.deliver == nil || d.outstanding >= d.settings.MaxImages {
		d.mu.Unlock()
		return false
	}
	d.outstanding++
	d.emitted++
	seq, deliver, settings, base := d.emitted, d.deliver, d.settings, d.base
	d.mu.Unlock()

	img, err := drawTextLayerOntoBaseFrameClone(base, d.title, seq)
	if err != nil {
		log.Error("Unable to render mock frame for [%s]: %v", d.title, err)
		d.returnImage()
		return false
	}

	var once sync.Once
	deliver(NewRawFrame(
		encodeImage(img, settings.Format), settings.Dimensions, settings.Format,
		func() { once.Do(d.returnImage) },
	))
	return true
}

func (d *MockDevice) returnImage() {
	d.mu.Lock()
	if d.outstanding > 0 {
		d.outstanding--
	}
	d.mu.Unlock()
}

// Outstanding is the number of delivered images not yet handed back.
func (d *MockDevice) Outstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outstanding
}

func (d *MockDevice) StopRepeating() {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done, d.deliver = nil, nil, nil
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Disconnect simulates the camera going away.
func (d *MockDevice) Disconnect(err error) {
	select {
	case d.disconnected <- err:
	default:
	}
}

func (d *MockDevice) Disconnected() <-chan error { return d.disconnected }

func (d *MockDevice) Close() error {
	d.StopRepeating()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	d.configured = false
	d.base = nil
	return nil
}

func drawTextLayerOntoBaseFrameClone(base image.Image, title string, seq uint64) (*image.RGBA, error) {
	baseClone := cloneImage(base)
	h := baseClone.Bounds().Dy()
	size := math.Max(float64(h)/8, 6)

	if err := drawText(baseClone, 5, h/4, size, "EV_MOCK_STREAM"); err != nil {
		return nil, xerror.Errorf("unable to draw text onto in-mem image for mock stream: %w", err)
	}
	if err := drawText(baseClone, 5, h/2, size, title); err != nil {
		return nil, xerror.Errorf("unable to draw text onto in-mem image for mock stream: %w", err) //nolint
	}
	if err := drawText(baseClone, 5, h*3/4, size, fmt.Sprintf("#%d", seq)); err != nil {
		return nil, xerror.Errorf("unable to draw text onto in-mem image for mock stream: %w", err) //nolint
	}
	return baseClone, nil
}

func renderBaseFrameCanvas(w, h int) *image.RGBA {
	var hw, hh float64 = float64(w / 2), float64(h / 2)
	r := math.Min(hw, hh) * 2 / 3
	θ := 2 * math.Pi / 3
	cr := &circle{hw - r*math.Sin(0), hh - r*math.Cos(0), r * 1.5}
	cg := &circle{hw - r*math.Sin(θ), hh - r*math.Cos(θ), r * 1.5}
	cb := &circle{hw - r*math.Sin(-θ), hh - r*math.Cos(-θ), r * 1.5}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			c := color.RGBA{
				cr.Brightness(float64(x), float64(y)),
				cg.Brightness(float64(x), float64(y)),
				cb.Brightness(float64(x), float64(y)),
				255,
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func cloneImage(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

var parsedFont struct {
	once sync.Once
	f    *truetype.Font
	err  error
}

func regularFont() (*truetype.Font, error) {
	parsedFont.once.Do(func() {
		parsedFont.f, parsedFont.err = freetype.ParseFont(goregular.TTF)
	})
	return parsedFont.f, parsedFont.err
}

func drawText(canvas *image.RGBA, x, y int, size float64, text string) error {
	fontFace, err := regularFont()
	if err != nil {
		return err
	}
	fontDrawer := &font.Drawer{
		Dst: canvas,
		Src: image.White,
		Face: truetype.NewFace(fontFace, &truetype.Options{
			Size:    size,
			Hinting: font.HintingFull,
		}),
	}
	fontDrawer.Dot = fixed.Point26_6{
		X: fixed.I(x),
		Y: fixed.I(y),
	}
	fontDrawer.DrawString(text)
	return nil
}

type circle struct {
	X, Y, R float64
}

func (c *circle) Brightness(x, y float64) uint8 {
	var dx, dy float64 = c.X - x, c.Y - y
	d := math.Sqrt(dx*dx+dy*dy) / c.R
	if d > 1 {
		return 0
	}
	return 255
}
