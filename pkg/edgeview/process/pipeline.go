package process

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tauraamui/edgeview/pkg/edgeview/stats"
	"github.com/tauraamui/edgeview/pkg/log"
	"github.com/tauraamui/edgeview/pkg/video/transform"
	"github.com/tauraamui/edgeview/pkg/video/videoframe"
	"github.com/tauraamui/edgeview/pkg/video/videosink"
)

type PipelineSettings struct {
	Title            string
	Transform        transform.Transform
	TransformEnabled bool
	Sink             videosink.Sink
	Stats            *stats.Tracker
	// OnFailure is told about every frame the transform failed on.
	OnFailure func(seq uint64, err error)
}

// Pipeline runs the processing worker. It owns the slot the capture
// context hands frames into and transforms at most one frame at a time,
// so frames leave in the order they were acquired.
type Pipeline struct {
	title     string
	slot      *Slot
	transform transform.Transform
	sink      videosink.Sink
	stats     *stats.Tracker
	onFailure func(uint64, error)
	enabled   atomic.Bool
	processed atomic.Uint64
	failures  atomic.Uint64
	lastSeq   atomic.Int64
	proc      Process
}

func NewPipeline(settings PipelineSettings) *Pipeline {
	p := &Pipeline{
		title:     settings.Title,
		slot:      NewSlot(),
		transform: settings.Transform,
		sink:      settings.Sink,
		stats:     settings.Stats,
		onFailure: settings.OnFailure,
	}
	if p.sink == nil {
		p.sink = videosink.Discard
	}
	if p.stats == nil {
		p.stats = stats.NewTracker(stats.DefaultWindow, videoframe.Now())
	}
	p.enabled.Store(settings.TransformEnabled)
	p.lastSeq.Store(-1)

	p.proc = New(Settings{
		WaitForShutdownMsg: fmt.Sprintf("Stopping frame processing for [%s]...", p.title),
		Process:            p.run,
	})
	return p
}

// SetTransformEnabled selects transform or pass through for frames
// acquired from now on. Frames already acquired keep their choice.
func (p *Pipeline) SetTransformEnabled(enabled bool) {
	p.enabled.Store(enabled)
}

func (p *Pipeline) TransformEnabled() bool {
	return p.enabled.Load()
}

// Submit hands a freshly acquired frame to the worker. A frame still
// waiting in the slot is dropped and its buffer released.
func (p *Pipeline) Submit(f *videoframe.Frame) {
	f.MarkPending()
	displaced, ok := p.slot.Put(f)
	if !ok {
		p.stats.RecordDrop(stats.TransientDrop)
		release(f)
		return
	}

	if displaced != nil {
		log.Debug("Frame [%d] replaced unstarted frame [%d] for [%s]", f.Seq(), displaced.Seq(), p.title)
		p.stats.RecordDrop(stats.TransientDrop)
		release(displaced)
	}
}

func (p *Pipeline) Setup() Process { return p }
func (p *Pipeline) Start()         { p.proc.Start() }

// Stop lets the worker finish the frame it is on and releases the frame
// still waiting in the slot, if any.
func (p *Pipeline) Stop() {
	p.proc.Stop()
	p.closeSlot()
}

func (p *Pipeline) Wait() { p.proc.Wait() }

func (p *Pipeline) Processed() uint64 { return p.processed.Load() }
func (p *Pipeline) Failures() uint64  { return p.failures.Load() }
func (p *Pipeline) Pending() bool     { return p.slot.Pending() }

// LastSeq is the sequence number of the last frame to reach the sink,
// -1 before the first one.
func (p *Pipeline) LastSeq() int64 { return p.lastSeq.Load() }

func (p *Pipeline) run(ctx context.Context) []chan interface{} {
	stopping := make(chan interface{})
	go func() {
		defer close(stopping)
		for {
			f := p.slot.Take()
			if f == nil {
				return
			}
			p.handle(f)
		}
	}()
	return []chan interface{}{stopping}
}

func (p *Pipeline) closeSlot() {
	if f := p.slot.Close(); f != nil {
		p.stats.RecordDrop(stats.TransientDrop)
		release(f)
	}
}

func (p *Pipeline) handle(f *videoframe.Frame) {
	if !f.Claim() {
		log.Debug("Skipping frame [%d] for [%s], its buffer was reclaimed", f.Seq(), p.title)
		p.stats.RecordDrop(stats.StaleFrame)
		return
	}
	defer release(f)

	began := videoframe.Now()
	if f.TransformRequested() {
		out, err := p.transform.Apply(f.Data(), f.Dimensions(), f.Format())
		if err != nil {
			p.failures.Add(1)
			p.stats.RecordFailure()
			log.Error("Unable to transform frame [%d] for [%s]: %v", f.Seq(), p.title, err)
			if p.onFailure != nil {
				p.onFailure(f.Seq(), err)
			}
			return
		}
		f.SetProcessed(out)
	}

	p.sink.Present(f)

	done := videoframe.Now()
	p.stats.RecordProcessingTime(done - began)
	p.stats.RecordCompletion(done)
	p.processed.Add(1)
	p.lastSeq.Store(int64(f.Seq()))
}

func release(f *videoframe.Frame) {
	err := f.Release()
	if err == nil || errors.Is(err, videoframe.ErrStaleBuffer) {
		return
	}
	log.Error("Unable to release frame [%d]: %v", f.Seq(), err)
}
