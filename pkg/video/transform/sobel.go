package transform

import (
	"github.com/tauraamui/edgeview/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const DefaultThreshold = 128

type sobel struct {
	threshold int
	luma      []byte
	edges     []byte
	out       []byte
}

// Sobel returns an edge detector which marks every pixel whose luma
// gradient magnitude reaches threshold as white and everything else as
// black. Output keeps the input's format, chroma is neutralised. Working
// buffers are kept by the detector and reused from frame to frame.
func Sobel(threshold int) Func {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	s := &sobel{threshold: threshold}
	return s.apply
}

func (s *sobel) apply(src []byte, dims videoframe.Dimensions, format videoframe.PixelFormat) ([]byte, error) {
	if dims.W < 1 || dims.H < 1 {
		return nil, xerror.Errorf("invalid frame dimensions %s", dims)
	}
	if len(src) < format.BufferSize(dims) {
		return nil, xerror.Errorf("short %s frame: %d bytes for %s", format, len(src), dims)
	}

	y := s.lumaOf(src, dims, format)
	s.edges = sobelEdges(grow(s.edges, dims.W*dims.H), y, dims, s.threshold)
	if format == videoframe.Gray8 {
		return s.edges, nil
	}

	out, err := ExpandGray(s.out, s.edges, dims, format)
	if err != nil {
		return nil, err
	}
	s.out = out
	return out, nil
}

func (s *sobel) lumaOf(src []byte, dims videoframe.Dimensions, format videoframe.PixelFormat) []byte {
	n := dims.W * dims.H
	if format != videoframe.RGB24 {
		return src[:n]
	}

	s.luma = grow(s.luma, n)
	for i := 0; i < n; i++ {
		r, g, b := int(src[i*3]), int(src[i*3+1]), int(src[i*3+2])
		s.luma[i] = byte((r*299 + g*587 + b*114) / 1000)
	}
	return s.luma
}

func sobelEdges(out, y []byte, dims videoframe.Dimensions, threshold int) []byte {
	w, h := dims.W, dims.H
	for i := range out {
		out[i] = 0
	}
	at := func(x, yy int) int { return int(y[yy*w+x]) }

	for row := 1; row < h-1; row++ {
		for col := 1; col < w-1; col++ {
			gx := -at(col-1, row-1) + at(col+1, row-1) +
				-2*at(col-1, row) + 2*at(col+1, row) +
				-at(col-1, row+1) + at(col+1, row+1)
			gy := -at(col-1, row-1) - 2*at(col, row-1) - at(col+1, row-1) +
				at(col-1, row+1) + 2*at(col, row+1) + at(col+1, row+1)
			if abs(gx)+abs(gy) >= threshold {
				out[row*w+col] = 0xFF
			}
		}
	}
	return out
}

// ExpandGray lays a single channel edge map out in the given format,
// writing into dst when it is large enough. Gray8 returns edges as is.
func ExpandGray(dst, edges []byte, dims videoframe.Dimensions, format videoframe.PixelFormat) ([]byte, error) {
	switch format {
	case videoframe.Gray8:
		return edges, nil
	case videoframe.YUV420:
		out := grow(dst, format.BufferSize(dims))
		n := copy(out, edges)
		for i := n; i < len(out); i++ {
			out[i] = 0x80
		}
		return out, nil
	case videoframe.RGB24:
		out := grow(dst, len(edges)*3)
		for i, v := range edges {
			out[i*3], out[i*3+1], out[i*3+2] = v, v, v
		}
		return out, nil
	}
	return nil, xerror.Errorf("unsupported pixel format %s", format)
}

// grow returns b resliced to n, allocating only when it is too small.
func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
