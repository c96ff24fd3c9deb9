package clipper

import (
	"encoding/binary"
	"errors"
	"math"
)

// AudioChainInput is one contributing source track.
type AudioChainInput struct {
	Stream StreamInfo
	Volume float64 // Linear gain, 1 keeps the level
}

// AudioChainOutput is the format the consumer (normally the encoder) accepts.
type AudioChainOutput struct {
	SampleRate int
	Channels   int
	Format     AudioFormat
}

// AudioChain is either a single track chain
//
//	source -> [gain] -> format-normalize -> sink
//
// or a merged chain
//
//	source_i -> [gain_i] -> [normalize_i] -> mix(N) -> format-normalize -> sink
//
// The mix runs in the format of the last input; branches in another format get
// a normalize stage in front of the mixer.
type AudioChain struct {
	sources map[int]*sourceBuffer
	sink    *sinkBuffer
	mixer   *mixStage
	tail    *pipeline
	out     linkFormat
}

// NewAudioChain builds the chain. merge selects the mixing variant; without it
// exactly one input is accepted.
func NewAudioChain(inputs []AudioChainInput, merge bool, output AudioChainOutput) (*AudioChain, error) {
	if len(inputs) == 0 {
		return nil, graphError("buffer", "no audio inputs")
	}
	if !merge && len(inputs) != 1 {
		return nil, graphError("buffer", "%d inputs without a mix stage", len(inputs))
	}
	want := linkFormat{
		kind:       MediaAudio,
		sampleRate: output.SampleRate,
		channels:   output.Channels,
		sampleFmt:  output.Format,
		tb:         Rational{1, int64(output.SampleRate)},
	}

	c := &AudioChain{sources: make(map[int]*sourceBuffer, len(inputs)), sink: &sinkBuffer{want: want}}
	formats := make([]linkFormat, len(inputs))
	for i, in := range inputs {
		f := streamLinkFormat(in.Stream)
		if f.kind != MediaAudio {
			return nil, graphError("buffer", "stream %d is %s, not audio", in.Stream.Index, f.kind)
		}
		if _, dup := c.sources[in.Stream.Index]; dup {
			return nil, graphError("buffer", "stream %d added twice", in.Stream.Index)
		}
		c.sources[in.Stream.Index] = nil
		formats[i] = f
	}

	if !merge {
		in := inputs[0]
		stages := append(gainStages(in.Volume), &normalizeStage{target: want})
		p := &pipeline{stages: stages, emit: c.sink.accept}
		out, err := p.link(formats[0])
		if err != nil {
			return nil, err
		}
		if err := checkSink(out, want); err != nil {
			return nil, err
		}
		c.out = out
		c.sources[in.Stream.Index] = &sourceBuffer{p: p, onEnd: func() error {
			c.sink.finish()
			return nil
		}}
		return c, nil
	}

	c.tail = &pipeline{stages: []stage{&normalizeStage{target: want}}, emit: c.sink.accept}

	// The mix format follows the last contributing track.
	mixFmt := formats[len(formats)-1]
	mixFmt.tb = Rational{1, int64(mixFmt.sampleRate)}
	c.mixer = newMixStage(len(inputs), mixFmt)

	for i, in := range inputs {
		stages := gainStages(in.Volume)
		if !formats[i].sameAudio(mixFmt) || !formats[i].tb.Equal(mixFmt.tb) {
			stages = append(stages, &normalizeStage{target: mixFmt})
		}
		branch := i
		p := &pipeline{stages: stages, emit: func(f Frame) error { return c.mixer.push(branch, f, c.tail.push) }}
		out, err := p.link(formats[i])
		if err != nil {
			return nil, err
		}
		if err := c.mixer.configureInput(branch, out); err != nil {
			return nil, err
		}
		c.sources[in.Stream.Index] = &sourceBuffer{p: p, onEnd: func() error {
			done, err := c.mixer.end(branch, c.tail.push)
			if err != nil || !done {
				return err
			}
			if err := c.tail.drain(); err != nil {
				return err
			}
			c.sink.finish()
			return nil
		}}
	}

	out, err := c.tail.link(mixFmt)
	if err != nil {
		return nil, err
	}
	if err := checkSink(out, want); err != nil {
		return nil, err
	}
	c.out = out
	return c, nil
}

func gainStages(volume float64) []stage {
	if volume == 1 {
		return nil
	}
	return []stage{&gainStage{volume: volume}}
}

// Input implements FilterChain.
func (c *AudioChain) Input(streamIndex int) (BufferSource, bool) {
	s, ok := c.sources[streamIndex]
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}

// Output implements FilterChain.
func (c *AudioChain) Output() BufferSink { return c.sink }

// Close implements FilterChain.
func (c *AudioChain) Close() error {
	c.sink.out.reset()
	if c.mixer != nil {
		c.mixer.reset()
	}
	return nil
}

func (c *AudioChain) outputFormat() linkFormat { return c.out }

// =============================================================================
// Sample helpers
// =============================================================================

func samplesToFloat(s *AudioSamples) []float32 {
	n := s.SampleCount * s.Channels
	out := make([]float32, n)
	switch s.Format {
	case AudioFormatS16:
		for i := 0; i < n; i++ {
			out[i] = float32(int16(binary.LittleEndian.Uint16(s.Data[2*i:]))) / 32768
		}
	case AudioFormatF32:
		for i := 0; i < n; i++ {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(s.Data[4*i:]))
		}
	}
	return out
}

func floatToBytes(in []float32, format AudioFormat) []byte {
	out := make([]byte, len(in)*format.BytesPerSample())
	switch format {
	case AudioFormatS16:
		for i, v := range in {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(clampS16(v)))
		}
	case AudioFormatF32:
		for i, v := range in {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
	}
	return out
}

func clampS16(v float32) int16 {
	x := math.Round(float64(v) * 32768)
	if x > math.MaxInt16 {
		return math.MaxInt16
	}
	if x < math.MinInt16 {
		return math.MinInt16
	}
	return int16(x)
}

// remix converts interleaved samples between channel counts. Mono is
// duplicated, downmix to mono averages, other layouts keep the common
// channels and zero the rest.
func remix(in []float32, from, to int) []float32 {
	if from == to {
		return in
	}
	frames := len(in) / from
	out := make([]float32, frames*to)
	for i := 0; i < frames; i++ {
		src := in[i*from : (i+1)*from]
		dst := out[i*to : (i+1)*to]
		switch {
		case from == 1:
			for c := range dst {
				dst[c] = src[0]
			}
		case to == 1:
			var sum float32
			for _, v := range src {
				sum += v
			}
			dst[0] = sum / float32(from)
		default:
			copy(dst, src)
		}
	}
	return out
}

// =============================================================================
// Audio stages
// =============================================================================

type gainStage struct {
	volume float64
}

func (g *gainStage) name() string { return "volume" }

func (g *gainStage) configure(in linkFormat) (linkFormat, error) {
	if g.volume < 0 || math.IsNaN(g.volume) || math.IsInf(g.volume, 0) {
		return linkFormat{}, graphError(g.name(), "invalid volume %v", g.volume)
	}
	if in.sampleFmt != AudioFormatS16 && in.sampleFmt != AudioFormatF32 {
		return linkFormat{}, graphError(g.name(), "unsupported sample format %s", in.sampleFmt)
	}
	return in, nil
}

func (g *gainStage) process(f Frame, emit func(Frame) error) error {
	s, ok := f.(*AudioSamples)
	if !ok {
		return errors.New("volume: not an audio frame")
	}
	buf := samplesToFloat(s)
	for i := range buf {
		buf[i] *= float32(g.volume)
	}
	out := *s
	out.Data = floatToBytes(buf, s.Format)
	return emit(&out)
}

func (g *gainStage) flush(func(Frame) error) error { return nil }

// normalizeStage converts sample format, channel count and sample rate to a
// fixed target. Resampling is linear and keeps its phase across frames.
// Output timestamps count samples from the first input timestamp.
type normalizeStage struct {
	target linkFormat
	in     linkFormat

	step    float64   // input samples per output sample
	pos     float64   // read position into pending, in input samples
	pending []float32 // remixed input not yet consumed, interleaved
	nextPTS int64
	started bool
}

func (n *normalizeStage) name() string { return "aformat" }

func (n *normalizeStage) configure(in linkFormat) (linkFormat, error) {
	if in.sampleRate <= 0 || in.channels <= 0 {
		return linkFormat{}, graphError(n.name(), "invalid input %s", in)
	}
	if n.target.sampleRate <= 0 || n.target.channels <= 0 || n.target.sampleFmt.BytesPerSample() == 0 {
		return linkFormat{}, graphError(n.name(), "invalid target %s", n.target)
	}
	if in.sampleFmt.BytesPerSample() == 0 {
		return linkFormat{}, graphError(n.name(), "unsupported sample format %s", in.sampleFmt)
	}
	n.in = in
	n.step = float64(in.sampleRate) / float64(n.target.sampleRate)
	out := n.target
	out.kind = MediaAudio
	out.tb = Rational{1, int64(n.target.sampleRate)}
	return out, nil
}

func (n *normalizeStage) process(f Frame, emit func(Frame) error) error {
	s, ok := f.(*AudioSamples)
	if !ok {
		return errors.New("aformat: not an audio frame")
	}
	if !n.started {
		n.nextPTS = Rescale(s.PTS, n.in.tb, Rational{1, int64(n.target.sampleRate)})
		n.started = true
	}
	buf := remix(samplesToFloat(s), s.Channels, n.target.channels)
	if n.in.sampleRate == n.target.sampleRate {
		return n.emitSamples(buf, emit)
	}
	n.pending = append(n.pending, buf...)
	return n.resample(false, emit)
}

func (n *normalizeStage) flush(emit func(Frame) error) error {
	if n.in.sampleRate == n.target.sampleRate || len(n.pending) == 0 {
		return nil
	}
	return n.resample(true, emit)
}

func (n *normalizeStage) resample(final bool, emit func(Frame) error) error {
	ch := n.target.channels
	frames := len(n.pending) / ch
	var out []float32
	for {
		i := int(n.pos)
		if i >= frames || (!final && i+1 >= frames) {
			break
		}
		frac := float32(n.pos - float64(i))
		j := min(i+1, frames-1)
		for c := 0; c < ch; c++ {
			a, b := n.pending[i*ch+c], n.pending[j*ch+c]
			out = append(out, a+(b-a)*frac)
		}
		n.pos += n.step
	}
	consumed := min(int(n.pos), frames)
	n.pending = append(n.pending[:0], n.pending[consumed*ch:]...)
	n.pos -= float64(consumed)
	if final {
		n.pending, n.pos = nil, 0
	}
	if len(out) == 0 {
		return nil
	}
	return n.emitSamples(out, emit)
}

func (n *normalizeStage) emitSamples(buf []float32, emit func(Frame) error) error {
	count := len(buf) / n.target.channels
	if count == 0 {
		return nil
	}
	out := &AudioSamples{
		Data:        floatToBytes(buf, n.target.sampleFmt),
		SampleRate:  n.target.sampleRate,
		Channels:    n.target.channels,
		SampleCount: count,
		Format:      n.target.sampleFmt,
		PTS:         n.nextPTS,
	}
	n.nextPTS += int64(count)
	return emit(out)
}

// mixStage sums N inputs sharing one format. Output continues until the
// longest input ends; inputs that ended early contribute silence.
type mixStage struct {
	format  linkFormat
	fifos   [][]float32
	ended   []bool
	started bool
	nextPTS int64
}

func newMixStage(inputs int, format linkFormat) *mixStage {
	return &mixStage{
		format: format,
		fifos:  make([][]float32, inputs),
		ended:  make([]bool, inputs),
	}
}

func (m *mixStage) configureInput(i int, in linkFormat) error {
	if !in.sameAudio(m.format) || !in.tb.Equal(m.format.tb) {
		return graphError("amix", "input %d is %s, mix runs at %s", i, in, m.format)
	}
	return nil
}

func (m *mixStage) push(i int, f Frame, emit func(Frame) error) error {
	s, ok := f.(*AudioSamples)
	if !ok {
		return errors.New("amix: not an audio frame")
	}
	if m.ended[i] {
		return nil
	}
	buf := samplesToFloat(s)
	ch := m.format.channels
	if !m.started {
		m.started = true
		m.nextPTS = s.PTS
	}
	if len(m.fifos[i]) == 0 {
		// Align a new or starved input against the mix timeline.
		if gap := s.PTS - m.nextPTS; gap > 0 {
			m.fifos[i] = make([]float32, int(gap)*ch)
		} else if gap < 0 {
			buf = buf[min(int(-gap)*ch, len(buf)):]
		}
	}
	m.fifos[i] = append(m.fifos[i], buf...)
	return m.mix(false, emit)
}

// end marks input i finished and reports whether every input has ended.
func (m *mixStage) end(i int, emit func(Frame) error) (bool, error) {
	m.ended[i] = true
	for _, e := range m.ended {
		if !e {
			return false, m.mix(false, emit)
		}
	}
	return true, m.mix(true, emit)
}

func (m *mixStage) mix(final bool, emit func(Frame) error) error {
	ch := m.format.channels
	n := 0
	if final {
		for _, fifo := range m.fifos {
			n = max(n, len(fifo)/ch)
		}
	} else {
		// Only mix what every live input has delivered.
		n = math.MaxInt
		for i, fifo := range m.fifos {
			if !m.ended[i] {
				n = min(n, len(fifo)/ch)
			}
		}
		if n == math.MaxInt {
			n = 0
		}
	}
	if n <= 0 {
		return nil
	}

	out := make([]float32, n*ch)
	for i, fifo := range m.fifos {
		take := min(len(fifo), n*ch)
		for k := 0; k < take; k++ {
			out[k] += fifo[k]
		}
		m.fifos[i] = append(fifo[:0], fifo[take:]...)
	}
	for k, v := range out {
		out[k] = float32(math.Max(-1, math.Min(1, float64(v))))
	}

	samples := &AudioSamples{
		Data:        floatToBytes(out, m.format.sampleFmt),
		SampleRate:  m.format.sampleRate,
		Channels:    ch,
		SampleCount: n,
		Format:      m.format.sampleFmt,
		PTS:         m.nextPTS,
	}
	m.nextPTS += int64(n)
	return emit(samples)
}

func (m *mixStage) reset() {
	for i := range m.fifos {
		m.fifos[i] = nil
	}
}
