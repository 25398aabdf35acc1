package videobackend

import (
	"image"
	"image/color"
	"testing"

	"github.com/matryer/is"
	"github.com/tauraamui/edgeview/pkg/video/videoframe"
)

func TestEncodeImageWhiteAndBlack(t *testing.T) {
	is := is.New(t)
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{255, 255, 255, 255})
	img.Set(1, 0, color.RGBA{0, 0, 0, 255})
	img.Set(0, 1, color.RGBA{255, 255, 255, 255})
	img.Set(1, 1, color.RGBA{0, 0, 0, 255})

	gray := encodeImage(img, videoframe.Gray8)
	is.Equal(gray, []byte{255, 0, 255, 0})

	rgb := encodeImage(img, videoframe.RGB24)
	is.Equal(rgb[:6], []byte{255, 255, 255, 0, 0, 0})

	yuv := encodeImage(img, videoframe.YUV420)
	is.Equal(len(yuv), 6)
	is.Equal(yuv[0], byte(235))
	is.Equal(yuv[1], byte(16))
	is.Equal(yuv[4], byte(128))
	is.Equal(yuv[5], byte(128))
}
