package clipper

import (
	"fmt"
	"io"

	"github.com/ansel1/merry/v2"
)

// =============================================================================
// Filter graph core
// =============================================================================

// FilterChain is a per-output-stream graph of transform stages with one input
// buffer per contributing source stream and a single output sink.
type FilterChain interface {
	// Input returns the buffer source fed by the given source stream.
	Input(streamIndex int) (BufferSource, bool)
	Output() BufferSink
	Close() error
}

// BufferSource accepts decoded frames. Pushing nil ends the input.
type BufferSource interface {
	Push(f Frame) error
}

// BufferSink yields transformed frames. Pull returns ErrAgain when nothing is
// ready and io.EOF once every input ended and all stages were flushed.
type BufferSink interface {
	Pull() (Frame, error)
}

// linkFormat describes the frames travelling on one link of a graph.
type linkFormat struct {
	kind MediaKind
	tb   Rational

	width     int
	height    int
	pixFmt    PixelFormat
	frameRate Rational

	sampleRate int
	channels   int
	sampleFmt  AudioFormat
}

func (f linkFormat) String() string {
	if f.kind == MediaVideo {
		return fmt.Sprintf("video %dx%d %s @%s tb=%s", f.width, f.height, f.pixFmt, f.frameRate, f.tb)
	}
	return fmt.Sprintf("audio %s %dHz %dch tb=%s", f.sampleFmt, f.sampleRate, f.channels, f.tb)
}

func (f linkFormat) sameAudio(o linkFormat) bool {
	return f.sampleRate == o.sampleRate && f.channels == o.channels && f.sampleFmt == o.sampleFmt
}

func streamLinkFormat(s StreamInfo) linkFormat {
	p := s.Params
	return linkFormat{
		kind:       p.Kind,
		tb:         s.TimeBase,
		width:      p.Width,
		height:     p.Height,
		pixFmt:     p.PixelFormat,
		frameRate:  s.FrameRate,
		sampleRate: p.SampleRate,
		channels:   p.Channels,
		sampleFmt:  p.SampleFormat,
	}
}

func graphError(stage string, format string, args ...any) error {
	return merry.Wrap(ErrInvalidGraph, merry.WithMessagef("%s: %s", stage, fmt.Sprintf(format, args...)))
}

// stage is one transform. configure runs once at construction; it validates
// the input link and returns the output link.
type stage interface {
	name() string
	configure(in linkFormat) (linkFormat, error)
	process(f Frame, emit func(Frame) error) error
	flush(emit func(Frame) error) error
}

// pipeline runs frames through a linear list of stages.
type pipeline struct {
	stages []stage
	emit   func(Frame) error
}

// link configures every stage in order and returns the output format.
func (p *pipeline) link(in linkFormat) (linkFormat, error) {
	cur := in
	for _, s := range p.stages {
		out, err := s.configure(cur)
		if err != nil {
			return linkFormat{}, err
		}
		cur = out
	}
	return cur, nil
}

func (p *pipeline) push(f Frame) error { return p.run(0, f) }

func (p *pipeline) run(i int, f Frame) error {
	if i == len(p.stages) {
		return p.emit(f)
	}
	return p.stages[i].process(f, func(out Frame) error { return p.run(i+1, out) })
}

// drain flushes the stages front to back so that each flush passes through
// the stages after it.
func (p *pipeline) drain() error {
	for i, s := range p.stages {
		next := i + 1
		if err := s.flush(func(out Frame) error { return p.run(next, out) }); err != nil {
			return err
		}
	}
	return nil
}

// sinkBuffer is the terminal buffer of a chain.
type sinkBuffer struct {
	want linkFormat
	out  outputQueue[Frame]
}

func (s *sinkBuffer) accept(f Frame) error {
	s.out.push(f)
	return nil
}

func (s *sinkBuffer) Pull() (Frame, error) { return s.out.pop() }

func (s *sinkBuffer) finish() { s.out.draining = true }

// checkSink verifies that the chain output matches what the consumer accepts.
func checkSink(got, want linkFormat) error {
	if got.kind != want.kind {
		return graphError("sink", "kind %s, want %s", got.kind, want.kind)
	}
	switch got.kind {
	case MediaVideo:
		if got.width != want.width || got.height != want.height || got.pixFmt != want.pixFmt {
			return graphError("sink", "got %s, encoder wants %s", got, want)
		}
	case MediaAudio:
		if !got.sameAudio(want) {
			return graphError("sink", "got %s, encoder wants %s", got, want)
		}
	}
	return nil
}

// sourceBuffer feeds one pipeline and reports end of input to its owner.
type sourceBuffer struct {
	p     *pipeline
	ended bool
	onEnd func() error
}

func (b *sourceBuffer) Push(f Frame) error {
	if b.ended {
		if f == nil {
			return nil
		}
		return io.ErrClosedPipe
	}
	if f == nil {
		b.ended = true
		if err := b.p.drain(); err != nil {
			return err
		}
		return b.onEnd()
	}
	return b.p.push(f)
}
