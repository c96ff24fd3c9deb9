package clipper

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// route points a source stream at the window input it feeds.
type route struct {
	window *OutputWindow
	input  int
}

// OutputTarget produces one output file.
type OutputTarget struct {
	ID   string
	clip *ClipSpec
	log  zerolog.Logger

	backend Backend
	muxer   Muxer
	windows []*OutputWindow
	routes  []route // Indexed by source stream index

	twoPass     bool
	pass        int
	initialised bool
	finalised   bool
	err         error
}

func newOutputTarget(clip *ClipSpec, backend Backend, log zerolog.Logger) *OutputTarget {
	id := clip.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &OutputTarget{
		ID:      id,
		clip:    clip,
		backend: backend,
		log:     log.With().Str("target", id).Str("path", clip.OutputPath).Logger(),
	}
}

// Path returns the output file path.
func (t *OutputTarget) Path() string { return t.clip.OutputPath }

// Clip returns the clip the target was built from.
func (t *OutputTarget) Clip() *ClipSpec { return t.clip }

// Windows returns the output windows in output stream order.
func (t *OutputTarget) Windows() []*OutputWindow { return t.windows }

// Err returns the setup error that disabled the target, if any.
func (t *OutputTarget) Err() error { return t.err }

// Failed reports whether the target was disabled by a setup error.
func (t *OutputTarget) Failed() bool { return t.err != nil }

// fail disables the target and releases its contexts.
func (t *OutputTarget) fail(err error) {
	if t.err == nil {
		t.err = err
	}
	t.log.Error().Err(err).Msg("output target disabled")
	t.Close()
}

// createStreams builds the output streams, windows, encoders and filter chains
// against the fixed source stream set.
func (t *OutputTarget) createStreams(sources *SourceStreamSet) error {
	clip := t.clip
	if err := clip.Validate(); err != nil {
		return setupError(clip.OutputPath, "validate", err)
	}

	var video *SourceStream
	if clip.Mode.Video() {
		if vs := sources.OfKind(MediaVideo); len(vs) > 0 {
			video = vs[0]
		}
	}
	var audio []*SourceStream
	var volumes []float64
	if clip.Mode.Audio() {
		for n, as := range sources.OfKind(MediaAudio) {
			if setting := clip.trackSetting(n); setting.Enabled {
				audio = append(audio, as)
				volumes = append(volumes, setting.Volume)
			}
		}
	}
	if video == nil && len(audio) == 0 {
		return setupError(clip.OutputPath, "select streams", ErrNoStreams)
	}

	t.twoPass = clip.TwoPass && !clip.CopyPackets && video != nil
	if clip.TwoPass && !t.twoPass {
		t.log.Warn().Msg("two-pass ignored without a transcoded video stream")
	}
	t.routes = make([]route, len(sources.Streams()))

	mux, err := t.backend.CreateOutput(clip.OutputPath)
	if err != nil {
		return setupError(clip.OutputPath, "create output", err)
	}
	t.muxer = mux

	if video != nil {
		if err := t.addVideo(video); err != nil {
			return err
		}
	}
	switch {
	case len(audio) == 0:
	case clip.CopyPackets:
		for _, as := range audio {
			if err := t.addAudioCopy(as); err != nil {
				return err
			}
		}
	case clip.MergeAudio:
		if err := t.addAudio(audio, volumes, true); err != nil {
			return err
		}
	default:
		for i, as := range audio {
			if err := t.addAudio([]*SourceStream{as}, volumes[i:i+1], false); err != nil {
				return err
			}
		}
	}
	if t.twoPass {
		t.pass = 1
	}
	t.log.Debug().
		Int("windows", len(t.windows)).
		Bool("copy", clip.CopyPackets).
		Bool("two_pass", t.twoPass).
		Msg("output streams created")
	return nil
}

func (t *OutputTarget) newWindow(kind MediaKind, streams []*SourceStream) *OutputWindow {
	infos := lo.Map(streams, func(s *SourceStream, _ int) StreamInfo { return s.Info })
	w := newOutputWindow(kind, t.clip.OutputPath, infos, t.clip.Start, t.clip.End)
	w.muxer = t.muxer
	w.copyMode = t.clip.CopyPackets
	for k, s := range streams {
		t.routes[s.Info.Index] = route{window: w, input: k}
	}
	t.windows = append(t.windows, w)
	return w
}

func (t *OutputTarget) addStream(w *OutputWindow, params CodecParameters, tb Rational) error {
	idx, err := t.muxer.AddStream(params, tb)
	if err != nil {
		return setupError(t.clip.OutputPath, "add stream", err)
	}
	w.outIndex = idx
	w.outTB = tb
	return nil
}

func (t *OutputTarget) addVideo(src *SourceStream) error {
	w := t.newWindow(MediaVideo, []*SourceStream{src})
	if t.clip.CopyPackets {
		return t.addStream(w, src.Info.Params, src.Info.TimeBase)
	}

	settings := t.clip.Video
	rate := RationalFromFloat(settings.FPS)
	codec := ParseCodec(settings.Codec)
	if codec == CodecUnknown {
		codec = src.Info.Params.Codec
	}
	bitrate := settings.Bitrate
	if bitrate <= 0 {
		bitrate = src.Info.Params.Bitrate
	}
	chainConfig := VideoChainConfig{
		Width:     settings.Width,
		Height:    settings.Height,
		FrameRate: rate,
		ScaleMode: settings.ScaleMode,
	}

	w.build = func(pass int, stats []byte) (Encoder, FilterChain, error) {
		chain, err := NewVideoChain(src.Info, chainConfig)
		if err != nil {
			return nil, nil, setupError(t.clip.OutputPath, "build video filter", err)
		}
		out := chain.outputFormat()
		enc, err := t.backend.NewEncoder(EncoderConfig{
			Codec:       codec,
			Kind:        MediaVideo,
			Width:       out.width,
			Height:      out.height,
			PixelFormat: out.pixFmt,
			FrameRate:   out.frameRate,
			TimeBase:    out.tb,
			Bitrate:     bitrate,
			Pass:        pass,
			Stats:       stats,
		})
		if err != nil {
			chain.Close()
			return nil, nil, setupError(t.clip.OutputPath, "open video encoder", err)
		}
		if pass == 1 {
			if _, ok := enc.(StatsEncoder); !ok {
				enc.Close()
				chain.Close()
				return nil, nil, setupError(t.clip.OutputPath, "open video encoder",
					fmt.Errorf("%s encoder does not support two-pass", codec))
			}
		}
		if err := checkSink(out, linkFormat{
			kind:   MediaVideo,
			width:  enc.Parameters().Width,
			height: enc.Parameters().Height,
			pixFmt: enc.Parameters().PixelFormat,
		}); err != nil {
			enc.Close()
			chain.Close()
			return nil, nil, setupError(t.clip.OutputPath, "link video encoder", err)
		}
		return enc, chain, nil
	}

	pass := 0
	if t.twoPass {
		pass = 1
	}
	if err := w.openPass(pass); err != nil {
		return err
	}
	return t.addStream(w, w.encoder.Parameters(), w.encoder.TimeBase())
}

func (t *OutputTarget) addAudioCopy(src *SourceStream) error {
	w := t.newWindow(MediaAudio, []*SourceStream{src})
	return t.addStream(w, src.Info.Params, src.Info.TimeBase)
}

func (t *OutputTarget) addAudio(srcs []*SourceStream, volumes []float64, merge bool) error {
	w := t.newWindow(MediaAudio, srcs)

	// The encoder format follows the last contributing track.
	last := srcs[len(srcs)-1].Info.Params
	codec := ParseCodec(t.clip.Audio.Codec)
	if codec == CodecUnknown {
		codec = last.Codec
	}
	bitrate := t.clip.Audio.Bitrate
	if bitrate <= 0 {
		bitrate = last.Bitrate
	}
	inputs := make([]AudioChainInput, len(srcs))
	for i, s := range srcs {
		inputs[i] = AudioChainInput{Stream: s.Info, Volume: volumes[i]}
	}

	w.build = func(pass int, _ []byte) (Encoder, FilterChain, error) {
		enc, err := t.backend.NewEncoder(EncoderConfig{
			Codec:        codec,
			Kind:         MediaAudio,
			SampleRate:   last.SampleRate,
			Channels:     last.Channels,
			SampleFormat: last.SampleFormat,
			TimeBase:     Rational{1, int64(last.SampleRate)},
			Bitrate:      bitrate,
		})
		if err != nil {
			return nil, nil, setupError(t.clip.OutputPath, "open audio encoder", err)
		}
		p := enc.Parameters()
		chain, err := NewAudioChain(inputs, merge, AudioChainOutput{
			SampleRate: p.SampleRate,
			Channels:   p.Channels,
			Format:     p.SampleFormat,
		})
		if err != nil {
			enc.Close()
			return nil, nil, setupError(t.clip.OutputPath, "build audio filter", err)
		}
		return enc, chain, nil
	}

	if err := w.openPass(0); err != nil {
		return err
	}
	params := w.encoder.Parameters()
	if t.clip.Audio.Bitrate > 0 && params.Bitrate == 0 {
		t.log.Warn().Stringer("codec", codec).Int("bitrate", t.clip.Audio.Bitrate).
			Msg("audio encoder ignores the requested bitrate")
	}
	return t.addStream(w, params, w.encoder.TimeBase())
}

// decodedStreams lists the source streams that must be decoded for this target.
func (t *OutputTarget) decodedStreams() []int {
	if t.clip.CopyPackets {
		return nil
	}
	var out []int
	for idx, r := range t.routes {
		if r.window != nil {
			out = append(out, idx)
		}
	}
	return out
}

// participates reports whether w takes part in the current pass. Pass 1 of a
// two-pass target only analyses video.
func (t *OutputTarget) participates(w *OutputWindow) bool {
	return t.pass != 1 || w.kind == MediaVideo
}

// ConsumePacket offers a source packet to the target. In copy mode the packet
// is written directly and false is returned. Otherwise the result reports
// whether the packet must be decoded for this target.
func (t *OutputTarget) ConsumePacket(pkt *Packet) (bool, error) {
	if t.err != nil || pkt.StreamIndex < 0 || pkt.StreamIndex >= len(t.routes) {
		return false, nil
	}
	r := t.routes[pkt.StreamIndex]
	if r.window == nil || !t.participates(r.window) {
		return false, nil
	}
	pts := pkt.PTS
	if pts == NoPTS {
		pts = pkt.DTS
	}
	w := r.window
	switch w.admit(r.input, pts) {
	case verdictAccept:
		if w.copyMode {
			return false, w.writeCopy(r.input, pkt)
		}
		return true, nil
	case verdictEarly:
		// Transcoded streams decode from the seek point so inter-coded
		// frames can be reconstructed; frames before the start are dropped.
		return !w.copyMode, nil
	case verdictLate:
		return false, w.finishInput(r.input)
	}
	return false, nil
}

// ConsumeFrame routes a decoded frame through the chain, encoder and writer of
// the window fed by pkt's stream.
func (t *OutputTarget) ConsumeFrame(pkt *Packet, f Frame) error {
	if t.err != nil || pkt.StreamIndex < 0 || pkt.StreamIndex >= len(t.routes) {
		return nil
	}
	r := t.routes[pkt.StreamIndex]
	if r.window == nil || r.window.copyMode || !t.participates(r.window) {
		return nil
	}
	return r.window.consumeFrame(r.input, f)
}

// finishInput closes every window still open at end of input.
func (t *OutputTarget) finishInput() error {
	if t.err != nil {
		return nil
	}
	for _, w := range t.windows {
		if !t.participates(w) {
			continue
		}
		for k := range w.inputs {
			if w.inputs[k].state != WindowFinished {
				if err := w.finishInput(k); err != nil {
					return err
				}
			}
		}
		if err := w.close(); err != nil {
			return err
		}
	}
	return nil
}

// Finished reports whether every window taking part in the current pass is
// done.
func (t *OutputTarget) Finished() bool {
	if t.err != nil {
		return true
	}
	return lo.EveryBy(t.windows, func(w *OutputWindow) bool {
		return !t.participates(w) || w.closed
	})
}

// TwoPass reports whether the target encodes video in two passes.
func (t *OutputTarget) TwoPass() bool { return t.twoPass }

// preparePass2 swaps the analysis encoders for final ones fed with the pass 1
// statistics and arms the audio windows.
func (t *OutputTarget) preparePass2() error {
	t.pass = 2
	for _, w := range t.windows {
		pass := 0
		if w.kind == MediaVideo {
			pass = 2
		}
		if err := w.openPass(pass); err != nil {
			return err
		}
		// Stream parameters were declared with the pass 1 encoder.
		w.outTB = t.muxer.StreamTimeBase(w.outIndex)
	}
	t.log.Debug().Msg("pass 2 prepared")
	return nil
}

// CompletionFactor is the mean completion of the video windows. Targets
// without video fall back to their audio windows.
func (t *OutputTarget) CompletionFactor() float64 {
	windows := t.progressWindows()
	if len(windows) == 0 {
		return 0
	}
	return lo.SumBy(windows, t.windowCompletion) / float64(len(windows))
}

func (t *OutputTarget) progressWindows() []*OutputWindow {
	windows := lo.Filter(t.windows, func(w *OutputWindow, _ int) bool { return w.kind == MediaVideo })
	if len(windows) == 0 {
		return t.windows
	}
	return windows
}

// windowCompletion maps a window's completion onto the whole job. For
// two-pass targets the analysis pass covers the first half.
func (t *OutputTarget) windowCompletion(w *OutputWindow) float64 {
	c := w.Completion()
	switch {
	case !t.twoPass:
		return c
	case t.pass < 2:
		return c / 2
	default:
		return 0.5 + c/2
	}
}

// Initialise opens the output container for writing.
func (t *OutputTarget) Initialise() error {
	if err := t.muxer.WriteHeader(); err != nil {
		return setupError(t.clip.OutputPath, "write header", err)
	}
	for _, w := range t.windows {
		w.outTB = t.muxer.StreamTimeBase(w.outIndex)
	}
	t.initialised = true
	return nil
}

// Finalise writes the trailer and closes the container.
func (t *OutputTarget) Finalise() error {
	if t.err != nil || t.finalised || !t.initialised {
		return nil
	}
	t.finalised = true
	if err := t.muxer.WriteTrailer(); err != nil {
		t.muxer.Close()
		t.muxer = nil
		return setupError(t.clip.OutputPath, "write trailer", err)
	}
	err := t.muxer.Close()
	t.muxer = nil
	if err != nil {
		return setupError(t.clip.OutputPath, "close output", err)
	}
	return nil
}

// Close releases every context. An output that was not finalised is left
// incomplete.
func (t *OutputTarget) Close() error {
	for _, w := range t.windows {
		w.disposeCodec()
	}
	if t.muxer != nil {
		err := t.muxer.Close()
		t.muxer = nil
		return err
	}
	return nil
}
