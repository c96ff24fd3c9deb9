package clipper

import (
	"errors"
)

// VideoChainConfig describes the target of a video chain. Zero values keep the
// source property.
type VideoChainConfig struct {
	Width     int
	Height    int
	FrameRate Rational
	ScaleMode ScaleMode
}

// VideoChain is source -> [scale] -> [fps] -> sink for one video stream.
type VideoChain struct {
	streamIndex int
	source      *sourceBuffer
	sink        *sinkBuffer
	in, out     linkFormat
	stages      []stage
}

// NewVideoChain builds and validates the chain for the given source stream.
// The scale stage is only inserted when the size differs and the fps stage
// only when the frame rate differs.
func NewVideoChain(src StreamInfo, config VideoChainConfig) (*VideoChain, error) {
	in := streamLinkFormat(src)
	if in.kind != MediaVideo {
		return nil, graphError("buffer", "stream %d is %s, not video", src.Index, in.kind)
	}
	if !in.tb.Valid() {
		return nil, graphError("buffer", "stream %d has no time base", src.Index)
	}

	c := &VideoChain{streamIndex: src.Index, in: in, sink: &sinkBuffer{}}

	width, height := config.Width, config.Height
	if width <= 0 {
		width = in.width
	}
	if height <= 0 {
		height = in.height
	}
	if width != in.width || height != in.height {
		c.stages = append(c.stages, &scaleStage{width: width, height: height, mode: config.ScaleMode})
	}
	if config.FrameRate.Valid() && !config.FrameRate.Equal(in.frameRate) {
		c.stages = append(c.stages, &fpsStage{rate: config.FrameRate})
	}

	p := &pipeline{stages: c.stages, emit: c.sink.accept}
	out, err := p.link(in)
	if err != nil {
		return nil, err
	}
	c.out = out
	c.sink.want = out
	c.source = &sourceBuffer{p: p, onEnd: func() error {
		c.sink.finish()
		return nil
	}}
	return c, nil
}

// Input implements FilterChain.
func (c *VideoChain) Input(streamIndex int) (BufferSource, bool) {
	if streamIndex != c.streamIndex {
		return nil, false
	}
	return c.source, true
}

// Output implements FilterChain.
func (c *VideoChain) Output() BufferSink { return c.sink }

// Close implements FilterChain.
func (c *VideoChain) Close() error {
	c.sink.out.reset()
	return nil
}

func (c *VideoChain) outputFormat() linkFormat { return c.out }

// =============================================================================
// Video stages
// =============================================================================

type scaleStage struct {
	width, height int
	mode          ScaleMode
	scaler        *VideoScaler
}

func (s *scaleStage) name() string { return "scale" }

func (s *scaleStage) configure(in linkFormat) (linkFormat, error) {
	if in.pixFmt != PixelFormatI420 {
		return linkFormat{}, graphError(s.name(), "unsupported pixel format %s", in.pixFmt)
	}
	if s.width <= 0 || s.height <= 0 || s.width%2 != 0 || s.height%2 != 0 {
		return linkFormat{}, graphError(s.name(), "output size %dx%d must be positive and even", s.width, s.height)
	}
	s.scaler = NewVideoScaler(in.width, in.height, s.width, s.height, s.mode)
	out := in
	out.width, out.height = s.width, s.height
	return out, nil
}

func (s *scaleStage) process(f Frame, emit func(Frame) error) error {
	vf, ok := f.(*VideoFrame)
	if !ok {
		return errors.New("scale: not a video frame")
	}
	return emit(s.scaler.Scale(vf))
}

func (s *scaleStage) flush(func(Frame) error) error { return nil }

// fpsStage converts to a constant frame rate by duplicating or dropping
// frames. Each input frame is assigned the output slot nearest to its
// timestamp; a slot takes the latest frame assigned at or before it.
type fpsStage struct {
	rate  Rational
	inTB  Rational
	outTB Rational

	last *VideoFrame
	next int64
}

func (s *fpsStage) name() string { return "fps" }

func (s *fpsStage) configure(in linkFormat) (linkFormat, error) {
	if !s.rate.Valid() {
		return linkFormat{}, graphError(s.name(), "invalid rate %s", s.rate)
	}
	s.inTB = in.tb
	s.outTB = s.rate.Invert()
	out := in
	out.frameRate = s.rate
	out.tb = s.outTB
	return out, nil
}

func (s *fpsStage) process(f Frame, emit func(Frame) error) error {
	vf, ok := f.(*VideoFrame)
	if !ok {
		return errors.New("fps: not a video frame")
	}
	slot := Rescale(vf.PTS, s.inTB, s.outTB)
	if s.last == nil {
		s.last, s.next = vf, slot
		return nil
	}
	for s.next < slot {
		if err := emit(s.slotFrame()); err != nil {
			return err
		}
	}
	s.last = vf
	return nil
}

func (s *fpsStage) flush(emit func(Frame) error) error {
	if s.last == nil {
		return nil
	}
	err := emit(s.slotFrame())
	s.last = nil
	return err
}

// slotFrame emits the held frame for the current slot and advances.
func (s *fpsStage) slotFrame() *VideoFrame {
	out := *s.last
	out.PTS = s.next
	out.Duration = 1
	s.next++
	return &out
}
