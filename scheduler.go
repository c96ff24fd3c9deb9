package clipper

import (
	"context"
	"errors"
	"io"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Progress is emitted after every packet read.
type Progress struct {
	TargetID   string
	Completion float64 // Completion of this target in [0,1]
	Overall    float64 // Mean over the video windows of every target
}

// ProgressFunc receives progress synchronously from the read loop and must
// not block.
type ProgressFunc func(Progress)

type options struct {
	log      zerolog.Logger
	progress ProgressFunc
}

func applyOptions(opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Scheduler, or every scheduler of RunJobs.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// Scheduler runs one demux pass per batch of overlapping clips over a single
// input, plus a replay for the two-pass targets of each batch. It is
// single-threaded; a Scheduler must not be shared between goroutines.
type Scheduler struct {
	options
	backend Backend

	input   string
	sources *SourceStreamSet
	targets []*OutputTarget
	batches []Batch
	seeks   int
}

// NewScheduler creates a scheduler over backend.
func NewScheduler(backend Backend, opts ...Option) *Scheduler {
	return &Scheduler{options: applyOptions(opts), backend: backend}
}

// Targets returns every target, including the ones disabled at setup.
func (s *Scheduler) Targets() []*OutputTarget { return s.targets }

// Batches returns the batches planned by the last Run.
func (s *Scheduler) Batches() []Batch { return s.batches }

// Seeks returns the number of input seeks performed so far.
func (s *Scheduler) Seeks() int { return s.seeks }

func (s *Scheduler) live() []*OutputTarget {
	return lo.Filter(s.targets, func(t *OutputTarget, _ int) bool { return !t.Failed() })
}

// Build opens the input, lets every clip build its output against the stream
// set, opens the decoders the transcoding targets need and initialises the
// outputs. Input failures are returned. A target whose setup fails is disabled
// and reported through its Err; the others proceed.
func (s *Scheduler) Build(input string, clips []*ClipSpec) error {
	if s.sources != nil {
		return errors.New("scheduler already built")
	}
	sources, err := openSourceStreams(s.backend, input)
	if err != nil {
		return err
	}
	s.input, s.sources = input, sources
	s.log.Info().Str("input", input).Int("streams", len(sources.Streams())).Int("clips", len(clips)).Msg("input opened")

	for _, clip := range clips {
		t := newOutputTarget(clip, s.backend, s.log)
		s.targets = append(s.targets, t)
		if err := t.createStreams(sources); err != nil {
			t.fail(err)
		}
	}

	needed := mapset.NewSet[int]()
	for _, t := range s.live() {
		for _, idx := range t.decodedStreams() {
			needed.Add(idx)
		}
	}
	indices := needed.ToSlice()
	slices.Sort(indices)
	for _, idx := range indices {
		if err := sources.openDecoder(s.backend, idx); err != nil {
			for _, t := range s.live() {
				if slices.Contains(t.decodedStreams(), idx) {
					t.fail(setupError(t.Path(), "open decoder", err))
				}
			}
		}
	}

	for _, t := range s.live() {
		if err := t.Initialise(); err != nil {
			t.fail(err)
		}
	}
	return nil
}

// Run plans the batches and drives the read loop for each of them. It returns
// ctx.Err() when cancelled and an ErrRuntime error when a backend call fails
// inside the loop; both abort the whole run.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.sources == nil {
		return errors.New("scheduler not built")
	}
	s.batches = planBatches(s.live())
	for i, b := range s.batches {
		log := s.log.With().Int("batch", i).Dur("start", b.Start).Dur("end", b.End).Logger()
		log.Debug().Int("targets", len(b.Targets)).Msg("batch started")
		if err := s.runBatch(ctx, log, b); err != nil {
			return err
		}
		log.Debug().Msg("batch done")
	}
	return nil
}

func (s *Scheduler) runBatch(ctx context.Context, log zerolog.Logger, b Batch) error {
	if err := s.seek(b); err != nil {
		return err
	}
	if err := s.readLoop(ctx, b.Targets); err != nil {
		return err
	}

	twoPass := lo.Filter(b.Targets, func(t *OutputTarget, _ int) bool { return t.TwoPass() && !t.Failed() })
	if len(twoPass) == 0 {
		return nil
	}
	for _, t := range twoPass {
		if err := t.preparePass2(); err != nil {
			t.fail(err)
		}
	}
	twoPass = lo.Filter(twoPass, func(t *OutputTarget, _ int) bool { return !t.Failed() })
	if len(twoPass) == 0 {
		return nil
	}
	log.Debug().Int("targets", len(twoPass)).Msg("second pass")
	if err := s.seek(b); err != nil {
		return err
	}
	return s.readLoop(ctx, twoPass)
}

func (s *Scheduler) seek(b Batch) error {
	s.seeks++
	if err := s.sources.demuxer.Seek(b.Start); err != nil {
		return runtimeError(s.input, "seek", err)
	}
	s.sources.resetDecoders()
	return nil
}

// readLoop reads packets until every target finished or the input ends.
func (s *Scheduler) readLoop(ctx context.Context, targets []*OutputTarget) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lo.EveryBy(targets, func(t *OutputTarget) bool { return t.Finished() }) {
			return nil
		}

		pkt, err := s.sources.demuxer.ReadPacket()
		if errors.Is(err, io.EOF) {
			return s.endOfInput(targets)
		}
		if err != nil {
			return runtimeError(s.input, "read", err)
		}
		if s.sources.Stream(pkt.StreamIndex) == nil {
			continue
		}

		decode := false
		for _, t := range targets {
			want, err := t.ConsumePacket(pkt)
			if err != nil {
				return err
			}
			decode = decode || want
		}
		if decode {
			frames, err := s.sources.decode(pkt)
			if err != nil {
				return runtimeError(s.input, "decode", err)
			}
			if err := s.route(targets, pkt, frames); err != nil {
				return err
			}
		}
		s.reportProgress(targets)
	}
}

func (s *Scheduler) route(targets []*OutputTarget, pkt *Packet, frames []Frame) error {
	for _, f := range frames {
		for _, t := range targets {
			if err := t.ConsumeFrame(pkt, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// endOfInput drains the decoders and finishes every open window.
func (s *Scheduler) endOfInput(targets []*OutputTarget) error {
	for _, st := range s.sources.Streams() {
		if !st.Decoding() {
			continue
		}
		frames, err := s.sources.drain(st.Info.Index)
		if err != nil {
			return runtimeError(s.input, "decode", err)
		}
		if err := s.route(targets, &Packet{StreamIndex: st.Info.Index, PTS: NoPTS, DTS: NoPTS}, frames); err != nil {
			return err
		}
	}
	for _, t := range targets {
		if err := t.finishInput(); err != nil {
			return err
		}
	}
	s.reportProgress(targets)
	return nil
}

func (s *Scheduler) reportProgress(targets []*OutputTarget) {
	if s.progress == nil {
		return
	}
	overall := s.Overall()
	for _, t := range targets {
		if t.Failed() {
			continue
		}
		s.progress(Progress{TargetID: t.ID, Completion: t.CompletionFactor(), Overall: overall})
	}
}

// Overall is the mean completion over the video windows of every live target.
func (s *Scheduler) Overall() float64 {
	var sum float64
	var n int
	for _, t := range s.live() {
		for _, w := range t.windows {
			if w.kind == MediaVideo {
				sum += t.windowCompletion(w)
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Finish finalises every live target. A failure disables that target only;
// all failures are returned together.
func (s *Scheduler) Finish() error {
	var result *multierror.Error
	for _, t := range s.live() {
		if err := t.Finalise(); err != nil {
			t.fail(err)
			result = multierror.Append(result, err)
			continue
		}
		t.log.Info().Msg("output finalised")
	}
	return result.ErrorOrNil()
}

// Close releases every context owned by the run. Targets that were not
// finalised are left incomplete.
func (s *Scheduler) Close() error {
	var result *multierror.Error
	for _, t := range s.targets {
		if err := t.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if s.sources != nil {
		if err := s.sources.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
