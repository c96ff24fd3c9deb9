package clipper

import (
	"errors"
	"io"
	"time"
)

// WindowState is the per source stream state of an OutputWindow.
type WindowState int

const (
	// WindowArmed waits for the first packet at or after the window start.
	WindowArmed WindowState = iota
	// WindowActive passes packets or frames to the output.
	WindowActive
	// WindowFinished has seen a packet at or after the window end, or the
	// input was exhausted. It is terminal.
	WindowFinished
)

func (s WindowState) String() string {
	switch s {
	case WindowArmed:
		return "armed"
	case WindowActive:
		return "active"
	case WindowFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// packetVerdict is the outcome of matching a packet against a window.
type packetVerdict int

const (
	verdictIgnore packetVerdict = iota // Finished contribution
	verdictEarly                       // pts < start
	verdictAccept                      // start <= pts < end
	verdictLate                        // pts >= end, contribution just finished
)

// windowInput tracks one contributing source stream.
type windowInput struct {
	stream StreamInfo
	start  int64 // Window start in the stream time base
	end    int64 // Window end in the stream time base
	state  WindowState
}

// encodeStage builds the encoder and filter chain of a transcoding window
// for a given pass.
type encodeStage func(pass int, stats []byte) (Encoder, FilterChain, error)

// OutputWindow maps 1..N source streams into one output stream.
type OutputWindow struct {
	kind   MediaKind
	path   string
	inputs []windowInput

	muxer    Muxer
	outIndex int
	outTB    Rational

	copyMode bool
	build    encodeStage
	encoder  Encoder
	chain    FilterChain
	pass     int
	drained  bool // Encoder received its end of input

	lastWritten int64 // Source ticks of inputs[0], for progress
	written     int
	closed      bool
	stats       []byte
}

// newOutputWindow computes the per stream PTS interval once from the clip
// bounds.
func newOutputWindow(kind MediaKind, path string, streams []StreamInfo, start, end time.Duration) *OutputWindow {
	w := &OutputWindow{kind: kind, path: path, inputs: make([]windowInput, len(streams))}
	for i, s := range streams {
		w.inputs[i] = windowInput{
			stream: s,
			start:  DurationToPTS(start, s.TimeBase),
			end:    DurationToPTS(end, s.TimeBase),
		}
	}
	w.lastWritten = w.inputs[0].start
	return w
}

// Kind returns the media kind of the output stream.
func (w *OutputWindow) Kind() MediaKind { return w.kind }

// State returns the state of the contribution from input k.
func (w *OutputWindow) State(k int) WindowState { return w.inputs[k].state }

// Bounds returns the PTS interval of input k in its stream time base.
func (w *OutputWindow) Bounds(k int) (start, end int64) {
	return w.inputs[k].start, w.inputs[k].end
}

// Written returns the number of packets written to the output stream.
func (w *OutputWindow) Written() int { return w.written }

// Finished reports whether every contributing stream finished.
func (w *OutputWindow) Finished() bool {
	for i := range w.inputs {
		if w.inputs[i].state != WindowFinished {
			return false
		}
	}
	return true
}

// Completion is (lastWritten - start) / (end - start) clamped to [0,1].
func (w *OutputWindow) Completion() float64 {
	if w.Finished() {
		return 1
	}
	in := &w.inputs[0]
	span := in.end - in.start
	if span <= 0 {
		return 0
	}
	f := float64(w.lastWritten-in.start) / float64(span)
	return min(max(f, 0), 1)
}

// admit matches a packet of input k against the window. A late packet
// finishes that contribution; a finished contribution is never reopened.
func (w *OutputWindow) admit(k int, pts int64) packetVerdict {
	in := &w.inputs[k]
	if in.state == WindowFinished {
		return verdictIgnore
	}
	if pts == NoPTS {
		if in.state == WindowActive {
			return verdictAccept
		}
		return verdictEarly
	}
	if pts >= in.end {
		in.state = WindowFinished
		return verdictLate
	}
	if pts < in.start {
		return verdictEarly
	}
	in.state = WindowActive
	return verdictAccept
}

// writeCopy writes a source packet of input k unchanged apart from the
// timestamps, which are rebased to the window start and rescaled.
func (w *OutputWindow) writeCopy(k int, pkt *Packet) error {
	in := &w.inputs[k]
	tb := in.stream.TimeBase
	out := &Packet{
		StreamIndex: w.outIndex,
		PTS:         rebase(pkt.PTS, in.start, tb, w.outTB),
		DTS:         rebase(pkt.DTS, in.start, tb, w.outTB),
		Duration:    Rescale(pkt.Duration, tb, w.outTB),
		Key:         pkt.Key,
		Data:        pkt.Data,
	}
	if k == 0 && pkt.PTS != NoPTS {
		w.lastWritten = max(w.lastWritten, pkt.PTS)
	}
	return w.writePacket(out)
}

func rebase(ts, start int64, from, to Rational) int64 {
	if ts == NoPTS {
		return NoPTS
	}
	return Rescale(ts-start, from, to)
}

// writePacket performs the interleaved write. Writes after the window closed
// are skipped; so are pass 1 packets, which only feed the encoder statistics.
func (w *OutputWindow) writePacket(pkt *Packet) error {
	if w.closed || w.pass == 1 {
		return nil
	}
	if err := w.muxer.WriteInterleaved(pkt); err != nil {
		return runtimeError(w.path, "write", err)
	}
	w.written++
	return nil
}

// consumeFrame pushes a decoded frame of input k through the chain and the
// encoder. Frames outside [start, end) are dropped.
func (w *OutputWindow) consumeFrame(k int, f Frame) error {
	in := &w.inputs[k]
	if in.state == WindowFinished || w.closed {
		return nil
	}
	pts := framePTS(f)
	if pts == NoPTS || pts < in.start || pts >= in.end {
		return nil
	}
	src, ok := w.chain.Input(in.stream.Index)
	if !ok {
		return nil
	}
	if err := src.Push(withPTS(f, pts-in.start)); err != nil {
		return runtimeError(w.path, "filter", err)
	}
	return w.pump()
}

// pump moves every frame the chain emits into the encoder and every packet
// the encoder emits into the muxer.
func (w *OutputWindow) pump() error {
	for {
		f, err := w.chain.Output().Pull()
		if errors.Is(err, ErrAgain) {
			break
		}
		if errors.Is(err, io.EOF) {
			if !w.drained {
				w.drained = true
				if err := w.encoder.SendFrame(nil); err != nil {
					return runtimeError(w.path, "encode", err)
				}
			}
			break
		}
		if err != nil {
			return runtimeError(w.path, "filter", err)
		}
		if err := w.encoder.SendFrame(f); err != nil {
			return runtimeError(w.path, "encode", err)
		}
		if err := w.drainEncoder(); err != nil {
			return err
		}
	}
	return w.drainEncoder()
}

func (w *OutputWindow) drainEncoder() error {
	encTB := w.encoder.TimeBase()
	srcTB := w.inputs[0].stream.TimeBase
	for {
		pkt, err := w.encoder.ReceivePacket()
		if errors.Is(err, ErrAgain) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return runtimeError(w.path, "encode", err)
		}
		if pkt.PTS != NoPTS {
			w.lastWritten = max(w.lastWritten, w.inputs[0].start+Rescale(pkt.PTS, encTB, srcTB))
		}
		out := &Packet{
			StreamIndex: w.outIndex,
			PTS:         Rescale(pkt.PTS, encTB, w.outTB),
			DTS:         Rescale(pkt.DTS, encTB, w.outTB),
			Duration:    Rescale(pkt.Duration, encTB, w.outTB),
			Key:         pkt.Key,
			Data:        pkt.Data,
		}
		if err := w.writePacket(out); err != nil {
			return err
		}
	}
}

// finishInput marks input k finished. When this closes the window, the chain
// and encoder are flushed and their remaining output written.
func (w *OutputWindow) finishInput(k int) error {
	in := &w.inputs[k]
	in.state = WindowFinished
	if w.closed {
		return nil
	}
	if !w.copyMode {
		src, ok := w.chain.Input(in.stream.Index)
		if ok {
			if err := src.Push(nil); err != nil {
				return runtimeError(w.path, "filter", err)
			}
		}
		if err := w.pump(); err != nil {
			return err
		}
	}
	if w.Finished() {
		return w.close()
	}
	return nil
}

// close ends the output side of the window.
func (w *OutputWindow) close() error {
	if w.closed {
		return nil
	}
	if !w.copyMode {
		if err := w.pump(); err != nil {
			return err
		}
		if w.pass == 1 {
			if se, ok := w.encoder.(StatsEncoder); ok {
				w.stats = se.Stats()
			}
		}
	}
	w.closed = true
	return nil
}

// openPass creates the encoder and chain for pass 0, 1 or 2 and rearms the
// window. Pass 2 consumes the statistics collected by pass 1.
func (w *OutputWindow) openPass(pass int) error {
	if w.copyMode {
		return nil
	}
	w.disposeCodec()
	enc, chain, err := w.build(pass, w.stats)
	if err != nil {
		return err
	}
	w.encoder, w.chain, w.pass = enc, chain, pass
	w.drained = false
	for i := range w.inputs {
		w.inputs[i].state = WindowArmed
	}
	w.lastWritten = w.inputs[0].start
	w.closed = false
	return nil
}

func (w *OutputWindow) disposeCodec() {
	if w.chain != nil {
		w.chain.Close()
		w.chain = nil
	}
	if w.encoder != nil {
		w.encoder.Close()
		w.encoder = nil
	}
}
