package videobackend

import (
	"context"
	"image"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/tauraamui/edgeview/pkg/log"
	"github.com/tauraamui/edgeview/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"gocv.io/x/gocv"
)

type openCVBackend struct{}

func (b *openCVBackend) NewDevice(title, addr string) Device {
	return &openCVDevice{uuid: uuid.NewString(), title: title, addr: addr, disconnected: make(chan error, 1)}
}

type openCVDevice struct {
	uuid  string
	title string
	addr  string

	mu           sync.Mutex
	vc           *gocv.VideoCapture
	settings     Settings
	configured   bool
	images       chan struct{}
	stop         chan struct{}
	done         chan struct{}
	disconnected chan error
}

func (d *openCVDevice) UUID() string  { return d.uuid }
func (d *openCVDevice) Title() string { return d.title }

func (d *openCVDevice) Open(ctx context.Context) error {
	connAndError := make(chan openVideoStreamResult, 1)
	go openVideoStream(d.addr, connAndError)
	select {
	case r := <-connAndError:
		if r.err != nil {
			return r.err
		}
		d.mu.Lock()
		d.vc = r.vc
		d.mu.Unlock()
		return nil
	case <-ctx.Done():
		go func() {
			if r := <-connAndError; r.vc != nil {
				r.vc.Close()
			}
		}()
		return xerror.New("connection cancelled")
	}
}

type openVideoStreamResult struct {
	vc  *gocv.VideoCapture
	err error
}

func openVideoStream(addr string, d chan openVideoStreamResult) {
	vc, err := openVideoCapture(addr)
	d <- openVideoStreamResult{vc: vc, err: err}
}

// openVideoCapture treats a bare number as a local device index and
// anything else as a stream address.
var openVideoCapture = func(addr string) (*gocv.VideoCapture, error) {
	if id, err := strconv.Atoi(addr); err == nil {
		return gocv.OpenVideoCapture(id)
	}
	return gocv.OpenVideoCapture(addr)
}

var readFromVideoConnection = func(vc *gocv.VideoCapture, mat *gocv.Mat) bool {
	if vc.IsOpened() {
		return vc.Read(mat)
	}
	return false
}

func (d *openCVDevice) Configure(ctx context.Context, s Settings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.vc == nil {
		return ErrNotOpen
	}
	if s.Format == videoframe.YUV420 && (s.Dimensions.W%2 != 0 || s.Dimensions.H%2 != 0) {
		return xerror.Errorf("yuv420 capture needs even dimensions, got %s", s.Dimensions)
	}
	if s.MaxImages <= 0 {
		s.MaxImages = 1
	}
	d.vc.Set(gocv.VideoCaptureFrameWidth, float64(s.Dimensions.W))
	d.vc.Set(gocv.VideoCaptureFrameHeight, float64(s.Dimensions.H))
	if s.FPS > 0 {
		d.vc.Set(gocv.VideoCaptureFPS, float64(s.FPS))
	}
	d.settings = s
	d.images = make(chan struct{}, s.MaxImages)
	d.configured = true
	return nil
}

func (d *openCVDevice) StartRepeating(deliver DeliverFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return ErrNotConfigured
	}
	if d.stop != nil {
		return ErrRepeating
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.repeat(deliver, d.vc, d.settings, d.images, d.stop, d.done)
	return nil
}

func (d *openCVDevice) repeat(
	deliver DeliverFunc, vc *gocv.VideoCapture, s Settings, images chan struct{}, stop, done chan struct{},
) {
	defer close(done)
	mat := gocv.NewMat()
	defer mat.Close()
	for {
		select {
		case <-stop:
			return
		default:
		}

		if !readFromVideoConnection(vc, &mat) || mat.Empty() {
			select {
			case d.disconnected <- xerror.Errorf("unable to read from video connection [%s]", d.title):
			default:
			}
			return
		}

		// mirrors an image reader with every image still held
		select {
		case images <- struct{}{}:
		default:
			log.Debug("Skipping frame from [%s], all images are held", d.title)
			continue
		}

		data, err := convertMat(mat, s)
		if err != nil {
			<-images
			log.Error("Unable to convert frame from [%s]: %v", d.title, err)
			continue
		}
		var once sync.Once
		deliver(NewRawFrame(data, s.Dimensions, s.Format, func() { once.Do(func() { <-images }) }))
	}
}

func convertMat(src gocv.Mat, s Settings) ([]byte, error) {
	sized := src
	if src.Cols() != s.Dimensions.W || src.Rows() != s.Dimensions.H {
		sized = gocv.NewMat()
		defer sized.Close()
		gocv.Resize(src, &sized, image.Pt(s.Dimensions.W, s.Dimensions.H), 0, 0, gocv.InterpolationLinear)
	}

	var code gocv.ColorConversionCode
	switch s.Format {
	case videoframe.RGB24:
		code = gocv.ColorBGRToRGB
	case videoframe.Gray8:
		code = gocv.ColorBGRToGray
	case videoframe.YUV420:
		code = gocv.ColorBGRToYUVI420
	default:
		return nil, xerror.Errorf("unsupported pixel format: %s", s.Format)
	}

	out := gocv.NewMat()
	defer out.Close()
	gocv.CvtColor(sized, &out, code)

	data := out.ToBytes()
	if len(data) != s.Format.BufferSize(s.Dimensions) {
		return nil, xerror.Errorf("converted frame is %d bytes, expected %d", len(data), s.Format.BufferSize(s.Dimensions))
	}
	return data, nil
}

func (d *openCVDevice) StopRepeating() {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (d *openCVDevice) Disconnected() <-chan error { return d.disconnected }

func (d *openCVDevice) Close() error {
	d.StopRepeating()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configured = false
	if d.vc == nil {
		return nil
	}
	err := d.vc.Close()
	d.vc = nil
	return err
}
