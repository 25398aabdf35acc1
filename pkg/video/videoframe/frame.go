package videoframe

import (
	"fmt"
	"strings"
	"time"

	"github.com/tauraamui/xerror"
)

type Dimensions struct {
	W, H int
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.W, d.H)
}

type PixelFormat int

const (
	// YUV420 is planar I420: a full resolution luma plane followed
	// by two quarter resolution chroma planes.
	YUV420 PixelFormat = iota
	Gray8
	RGB24
)

func (f PixelFormat) String() string {
	switch f {
	case YUV420:
		return "yuv420"
	case Gray8:
		return "gray8"
	case RGB24:
		return "rgb24"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// BufferSize returns the number of bytes one frame of the given
// dimensions occupies in this format.
func (f PixelFormat) BufferSize(d Dimensions) int {
	switch f {
	case YUV420:
		return d.W*d.H + 2*(((d.W+1)/2)*((d.H+1)/2))
	case Gray8:
		return d.W * d.H
	case RGB24:
		return d.W * d.H * 3
	default:
		return 0
	}
}

func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(s) {
	case "yuv420", "yuv_420_888", "i420":
		return YUV420, nil
	case "gray8", "gray", "y8":
		return Gray8, nil
	case "rgb24", "rgb":
		return RGB24, nil
	}
	return 0, xerror.Errorf("unknown pixel format: %s", s)
}

var epoch = time.Now()

// Now reports the monotonic time elapsed since process start. Wall clock
// adjustments never move it backwards.
var Now = func() time.Duration {
	return time.Since(epoch)
}

// Frame is one captured image. Pixel data, geometry, sequence number and
// capture timestamp are fixed at acquisition. Only the processed state
// changes, and only on the stage which currently owns the frame.
type Frame struct {
	buf           *Buffer
	data          []byte
	dims          Dimensions
	format        PixelFormat
	seq           uint64
	timestamp     time.Duration
	wantTransform bool
	processed     bool
}

// New wraps an acquired pool buffer. The returned frame owns the buffer
// reference and gives it back on Release.
func New(buf *Buffer, dims Dimensions, format PixelFormat, seq uint64, ts time.Duration, wantTransform bool) *Frame {
	var data []byte
	if buf != nil {
		data = buf.Bytes()[:format.BufferSize(dims)]
	}
	return &Frame{
		buf: buf, data: data,
		dims: dims, format: format,
		seq: seq, timestamp: ts,
		wantTransform: wantTransform,
	}
}

func (f *Frame) Data() []byte             { return f.data }
func (f *Frame) Dimensions() Dimensions   { return f.dims }
func (f *Frame) Format() PixelFormat      { return f.format }
func (f *Frame) Seq() uint64              { return f.seq }
func (f *Frame) Timestamp() time.Duration { return f.timestamp }
func (f *Frame) TransformRequested() bool { return f.wantTransform }
func (f *Frame) Processed() bool          { return f.processed }
func (f *Frame) Buffer() *Buffer          { return f.buf }

// SetProcessed installs the transform output as the frame's pixel data.
// The pool buffer stays attached until the frame is released.
func (f *Frame) SetProcessed(data []byte) {
	f.data = data
	f.processed = true
}

// Detach copies the frame's pixels into dst, growing it when too small,
// and returns a frame over the copy which holds no pool buffer. It fails
// with ErrStaleBuffer once the pool has taken the buffer back.
func (f *Frame) Detach(dst []byte) (*Frame, error) {
	out := *f
	out.buf = nil
	if f.buf == nil {
		out.data = append(dst[:0], f.data...)
		return &out, nil
	}
	if err := f.buf.pool.read(f.buf, func() { out.data = append(dst[:0], f.data...) }); err != nil {
		return nil, err
	}
	return &out, nil
}

// Claim marks the frame as taken by the processing worker. It fails if
// the pool has already reclaimed the frame's buffer for a newer capture.
func (f *Frame) Claim() bool {
	if f.buf == nil {
		return true
	}
	return f.buf.pool.claim(f.buf)
}

// MarkPending flags the frame's buffer as waiting, unstarted, in the
// pipeline slot. Pending buffers are the only ones the pool may reclaim.
func (f *Frame) MarkPending() {
	if f.buf != nil {
		f.buf.pool.markPending(f.buf)
	}
}

// Retain takes an extra reference on the underlying buffer, keeping it
// IN_USE until a matching Release.
func (f *Frame) Retain() error {
	if f.buf == nil {
		return nil
	}
	return f.buf.Retain()
}

func (f *Frame) Release() error {
	if f.buf == nil {
		return nil
	}
	return f.buf.Release()
}
