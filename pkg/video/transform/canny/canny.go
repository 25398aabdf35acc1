package canny

import (
	"github.com/tauraamui/edgeview/pkg/video/transform"
	"github.com/tauraamui/edgeview/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"gocv.io/x/gocv"
)

const (
	DefaultLow  float32 = 50
	DefaultHigh float32 = 150
)

func init() {
	transform.Register("canny", func(o transform.Options) transform.Func {
		return EdgeDetect(o.Low, o.High)
	})
}

// EdgeDetect returns an OpenCV Canny edge detector over the frame's luma.
func EdgeDetect(low, high float32) transform.Func {
	if low <= 0 {
		low = DefaultLow
	}
	if high <= low {
		high = DefaultHigh
	}

	var expanded []byte
	return func(src []byte, dims videoframe.Dimensions, format videoframe.PixelFormat) ([]byte, error) {
		gray, err := grayMat(src, dims, format)
		if err != nil {
			return nil, err
		}
		defer gray.Close()

		edges := gocv.NewMat()
		defer edges.Close()
		gocv.Canny(gray, &edges, low, high)

		out, err := transform.ExpandGray(expanded, edges.ToBytes(), dims, format)
		if err != nil {
			return nil, err
		}
		if format != videoframe.Gray8 {
			expanded = out
		}
		return out, nil
	}
}

func grayMat(src []byte, dims videoframe.Dimensions, format videoframe.PixelFormat) (gocv.Mat, error) {
	if len(src) < format.BufferSize(dims) {
		return gocv.Mat{}, xerror.Errorf("short %s frame: %d bytes for %s", format, len(src), dims)
	}

	switch format {
	case videoframe.YUV420, videoframe.Gray8:
		// luma plane leads both layouts
		return gocv.NewMatFromBytes(dims.H, dims.W, gocv.MatTypeCV8U, src[:dims.W*dims.H])
	case videoframe.RGB24:
		rgb, err := gocv.NewMatFromBytes(dims.H, dims.W, gocv.MatTypeCV8UC3, src)
		if err != nil {
			return gocv.Mat{}, err
		}
		defer rgb.Close()
		gray := gocv.NewMat()
		gocv.CvtColor(rgb, &gray, gocv.ColorRGBToGray)
		return gray, nil
	}
	return gocv.Mat{}, xerror.Errorf("unsupported pixel format %s", format)
}
