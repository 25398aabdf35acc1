package videobackend

import (
	"image"

	"github.com/tauraamui/edgeview/pkg/video/videoframe"
)

// encodeImage lays img out in the given pixel format. YUV uses BT.601
// studio swing with chroma taken from the top left pixel of each block.
func encodeImage(img *image.RGBA, format videoframe.PixelFormat) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, format.BufferSize(videoframe.Dimensions{W: w, H: h}))

	at := func(x, y int) (int, int, int) {
		i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
		return int(img.Pix[i]), int(img.Pix[i+1]), int(img.Pix[i+2])
	}

	switch format {
	case videoframe.RGB24:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, bl := at(x, y)
				o := (y*w + x) * 3
				out[o], out[o+1], out[o+2] = byte(r), byte(g), byte(bl)
			}
		}
	case videoframe.Gray8:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, bl := at(x, y)
				out[y*w+x] = byte((299*r + 587*g + 114*bl) / 1000)
			}
		}
	case videoframe.YUV420:
		cw, ch := (w+1)/2, (h+1)/2
		uPlane := out[w*h : w*h+cw*ch]
		vPlane := out[w*h+cw*ch:]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, bl := at(x, y)
				out[y*w+x] = clamp(((66*r + 129*g + 25*bl + 128) >> 8) + 16)
				if x%2 == 0 && y%2 == 0 {
					c := (y/2)*cw + x/2
					uPlane[c] = clamp(((-38*r - 74*g + 112*bl + 128) >> 8) + 128)
					vPlane[c] = clamp(((112*r - 94*g - 18*bl + 128) >> 8) + 128)
				}
			}
		}
	}
	return out
}

func clamp(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
