package transform

import (
	"fmt"
	"strings"

	"github.com/tauraamui/edgeview/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const Failure = xerror.Kind("transform_failure")

type Kind int

const (
	Identity Kind = iota
	EdgeDetect
)

func (k Kind) String() string {
	switch k {
	case Identity:
		return "identity"
	case EdgeDetect:
		return "edge-detect"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Func maps a frame's pixels to new pixels of the same format and
// dimensions. Implementations must be deterministic and finish in bounded
// time. A Func is called from one goroutine at a time and may reuse the
// slice it returned on its next call.
type Func func(src []byte, dims videoframe.Dimensions, format videoframe.PixelFormat) ([]byte, error)

// Transform is a tagged choice of what to do to each frame. The zero
// value is Identity.
type Transform struct {
	kind Kind
	name string
	fn   Func
}

func NewIdentity() Transform {
	return Transform{kind: Identity, name: "identity"}
}

func NewEdgeDetect(name string, fn Func) Transform {
	return Transform{kind: EdgeDetect, name: name, fn: fn}
}

func (t Transform) Kind() Kind { return t.kind }

func (t Transform) Name() string {
	if len(t.name) == 0 {
		return t.kind.String()
	}
	return t.name
}

// Apply runs the transform. Identity returns src itself without copying.
// A panic inside the transform is turned into a Failure error so one bad
// frame can never take down the caller.
func (t Transform) Apply(src []byte, dims videoframe.Dimensions, format videoframe.PixelFormat) (out []byte, err error) {
	if t.kind == Identity || t.fn == nil {
		return src, nil
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, xerror.NewWithKind(Failure, fmt.Sprintf("%s transform panicked: %v", t.Name(), r))
		}
	}()

	out, err = t.fn(src, dims, format)
	if err != nil {
		return nil, xerror.NewWithKind(Failure, fmt.Sprintf("%s transform failed: %v", t.Name(), err))
	}
	if len(out) != format.BufferSize(dims) {
		return nil, xerror.NewWithKind(
			Failure, fmt.Sprintf("%s transform returned %d bytes, expected %d", t.Name(), len(out), format.BufferSize(dims)),
		)
	}
	return out, nil
}

type Options struct {
	Threshold int
	Low       float32
	High      float32
}

var registry = map[string]func(Options) Func{
	"sobel": func(o Options) Func { return Sobel(o.Threshold) },
}

// Register adds a named edge detector, letting backends with native
// dependencies plug in without this package importing them.
func Register(name string, build func(Options) Func) {
	registry[strings.ToLower(name)] = build
}

// Resolve returns the edge detect transform registered under name.
func Resolve(name string, opts Options) (Transform, error) {
	build, ok := registry[strings.ToLower(name)]
	if !ok {
		return Transform{}, xerror.Errorf("unknown transform: %s", name)
	}
	return NewEdgeDetect(strings.ToLower(name), build(opts)), nil
}
