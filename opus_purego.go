//go:build (darwin || linux) && !noopus

// Opus support through the system libopus, loaded at runtime with purego.

package clipper

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ansel1/merry/v2"
	"github.com/ebitengine/purego"
)

const (
	opusApplicationAudio = 2049
	opusMaxPacket        = 4000
	// 120 ms at 48 kHz, the longest Opus packet.
	opusMaxFrameSamples = 5760
)

var (
	opusOnce    sync.Once
	opusHandle  uintptr
	opusInitErr error
)

var (
	opusEncoderCreate    func(fs, channels, application int32, errOut *int32) uintptr
	opusEncode           func(enc uintptr, pcm *int16, frameSize int32, data *byte, maxBytes int32) int32
	opusEncoderDestroy   func(enc uintptr)
	opusDecoderCreate    func(fs, channels int32, errOut *int32) uintptr
	opusDecode           func(dec uintptr, data *byte, length int32, pcm *int16, frameSize int32, decodeFEC int32) int32
	opusDecoderDestroy   func(dec uintptr)
	opusStrerror         func(code int32) uintptr
	opusGetVersionString func() uintptr
)

func init() {
	registerDecoder(CodecOpus, ProviderLibopus, func(s StreamInfo) (Decoder, error) {
		return newOpusDecoder(s)
	})
	registerEncoder(CodecOpus, ProviderLibopus, func(c EncoderConfig) (Encoder, error) {
		return newOpusEncoder(c)
	})
}

func loadOpus() error {
	opusOnce.Do(func() {
		opusInitErr = loadOpusLib()
	})
	return opusInitErr
}

func loadOpusLib() error {
	var lastErr error
	for _, path := range opusLibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		opusHandle = handle
		purego.RegisterLibFunc(&opusEncoderCreate, handle, "opus_encoder_create")
		purego.RegisterLibFunc(&opusEncode, handle, "opus_encode")
		purego.RegisterLibFunc(&opusEncoderDestroy, handle, "opus_encoder_destroy")
		purego.RegisterLibFunc(&opusDecoderCreate, handle, "opus_decoder_create")
		purego.RegisterLibFunc(&opusDecode, handle, "opus_decode")
		purego.RegisterLibFunc(&opusDecoderDestroy, handle, "opus_decoder_destroy")
		purego.RegisterLibFunc(&opusStrerror, handle, "opus_strerror")
		purego.RegisterLibFunc(&opusGetVersionString, handle, "opus_get_version_string")
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libopus: %w", lastErr)
	}
	return errors.New("libopus not found")
}

func opusLibPaths() []string {
	var paths []string
	if env := os.Getenv("CLIPPER_OPUS_LIB"); env != "" {
		paths = append(paths, env)
	}

	names := []string{"libopus.so.0", "libopus.so"}
	if runtime.GOOS == "darwin" {
		names = []string{"libopus.0.dylib", "libopus.dylib"}
	}

	if root := findModuleRoot(); root != "" {
		for _, n := range names {
			paths = append(paths, filepath.Join(root, "build", n))
		}
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		for _, n := range names {
			paths = append(paths, filepath.Join(dir, n), filepath.Join(dir, "..", "lib", n))
		}
	}

	// Bare names go through the dynamic loader search path.
	paths = append(paths, names...)
	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			"/opt/homebrew/lib/libopus.0.dylib",
			"/usr/local/lib/libopus.0.dylib",
		)
	case "linux":
		paths = append(paths,
			"/usr/lib/x86_64-linux-gnu/libopus.so.0",
			"/usr/lib/aarch64-linux-gnu/libopus.so.0",
			"/usr/local/lib/libopus.so.0",
			"/usr/lib/libopus.so.0",
		)
	}
	return paths
}

// IsOpusAvailable reports whether libopus could be loaded.
func IsOpusAvailable() bool { return loadOpus() == nil }

// OpusVersion returns the libopus version string, or "" when unavailable.
func OpusVersion() string {
	if loadOpus() != nil {
		return ""
	}
	return goStringFromPtr(opusGetVersionString())
}

func opusError(code int32) string { return goStringFromPtr(opusStrerror(code)) }

func unavailableOpus(err error) error {
	return merry.Wrap(ErrUnsupportedCodec, merry.WithMessagef("opus: %v", err))
}

// opusRate maps a requested sample rate onto one libopus accepts.
func opusRate(rate int) int {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return rate
	}
	return opusSampleRate
}

// =============================================================================
// Decoder
// =============================================================================

// opusDecoder always decodes at 48 kHz so frame timestamps stay in the
// stream's Ogg time base.
type opusDecoder struct {
	handle   uintptr
	channels int
	pcm      []int16
	out      outputQueue[Frame]
}

func newOpusDecoder(s StreamInfo) (*opusDecoder, error) {
	if err := loadOpus(); err != nil {
		return nil, unavailableOpus(err)
	}
	channels := s.Params.Channels
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("opus: %d channels", channels)
	}
	var code int32
	handle := opusDecoderCreate(opusSampleRate, int32(channels), &code)
	if handle == 0 || code != 0 {
		return nil, fmt.Errorf("opus: create decoder: %s", opusError(code))
	}
	return &opusDecoder{
		handle:   handle,
		channels: channels,
		pcm:      make([]int16, opusMaxFrameSamples*channels),
	}, nil
}

func (d *opusDecoder) SendPacket(pkt *Packet) error {
	if pkt == nil {
		d.out.draining = true
		return nil
	}
	if d.handle == 0 {
		return errors.New("opus: decoder closed")
	}
	if len(pkt.Data) == 0 {
		return nil
	}
	n := opusDecode(d.handle, &pkt.Data[0], int32(len(pkt.Data)), &d.pcm[0], opusMaxFrameSamples, 0)
	runtime.KeepAlive(pkt.Data)
	if n < 0 {
		return fmt.Errorf("opus: decode: %s", opusError(n))
	}
	data := make([]byte, int(n)*d.channels*2)
	for i, v := range d.pcm[:int(n)*d.channels] {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	d.out.push(&AudioSamples{
		Data:        data,
		SampleRate:  opusSampleRate,
		Channels:    d.channels,
		SampleCount: int(n),
		Format:      AudioFormatS16,
		PTS:         pkt.PTS,
	})
	return nil
}

func (d *opusDecoder) ReceiveFrame() (Frame, error) { return d.out.pop() }
func (d *opusDecoder) Flush() { d.out.reset() }

func (d *opusDecoder) Close() error {
	d.out.reset()
	if d.handle != 0 {
		opusDecoderDestroy(d.handle)
		d.handle = 0
	}
	return nil
}

// =============================================================================
// Encoder
// =============================================================================

// opusEncoder cuts its input into 20 ms frames. The tail is padded with
// silence on drain.
type opusEncoder struct {
	handle    uintptr
	rate      int
	channels  int
	frameSize int
	pending   []int16
	nextPTS   int64
	started   bool
	buf       []byte
	out       outputQueue[*Packet]
}

func newOpusEncoder(c EncoderConfig) (*opusEncoder, error) {
	if err := loadOpus(); err != nil {
		return nil, unavailableOpus(err)
	}
	rate := opusRate(c.SampleRate)
	channels := min(max(c.Channels, 1), 2)
	var code int32
	handle := opusEncoderCreate(int32(rate), int32(channels), opusApplicationAudio, &code)
	if handle == 0 || code != 0 {
		return nil, fmt.Errorf("opus: create encoder: %s", opusError(code))
	}
	return &opusEncoder{
		handle:    handle,
		rate:      rate,
		channels:  channels,
		frameSize: rate / 50,
		buf:       make([]byte, opusMaxPacket),
	}, nil
}

func (e *opusEncoder) SendFrame(f Frame) error {
	if e.handle == 0 {
		return errors.New("opus: encoder closed")
	}
	if f == nil {
		if len(e.pending) > 0 {
			pad := e.frameSize*e.channels - len(e.pending)
			e.pending = append(e.pending, make([]int16, pad)...)
			if err := e.encodeFrame(); err != nil {
				return err
			}
		}
		e.out.draining = true
		return nil
	}
	s, ok := f.(*AudioSamples)
	if !ok {
		return errors.New("opus: not an audio frame")
	}
	if s.Format != AudioFormatS16 || s.SampleRate != e.rate || s.Channels != e.channels {
		return fmt.Errorf("opus: samples %s %d Hz %d ch do not match encoder S16 %d Hz %d ch",
			s.Format, s.SampleRate, s.Channels, e.rate, e.channels)
	}
	if !e.started {
		e.nextPTS = s.PTS
		e.started = true
	}
	for i := 0; i+1 < len(s.Data); i += 2 {
		e.pending = append(e.pending, int16(binary.LittleEndian.Uint16(s.Data[i:])))
	}
	for len(e.pending) >= e.frameSize*e.channels {
		if err := e.encodeFrame(); err != nil {
			return err
		}
	}
	return nil
}

func (e *opusEncoder) encodeFrame() error {
	n := opusEncode(e.handle, &e.pending[0], int32(e.frameSize), &e.buf[0], int32(len(e.buf)))
	if n < 0 {
		return fmt.Errorf("opus: encode: %s", opusError(n))
	}
	data := make([]byte, n)
	copy(data, e.buf[:n])
	e.out.push(&Packet{PTS: e.nextPTS, DTS: e.nextPTS, Duration: int64(e.frameSize), Key: true, Data: data})
	e.nextPTS += int64(e.frameSize)
	e.pending = e.pending[e.frameSize*e.channels:]
	return nil
}

func (e *opusEncoder) ReceivePacket() (*Packet, error) { return e.out.pop() }

// Parameters leaves Bitrate at zero. opus_encoder_ctl is variadic and is never
// called, so libopus runs at its default bitrate.
func (e *opusEncoder) Parameters() CodecParameters {
	return CodecParameters{
		Codec:        CodecOpus,
		Kind:         MediaAudio,
		SampleRate:   e.rate,
		Channels:     e.channels,
		SampleFormat: AudioFormatS16,
	}
}

func (e *opusEncoder) TimeBase() Rational { return Rational{1, int64(e.rate)} }

func (e *opusEncoder) Close() error {
	e.out.reset()
	e.pending = nil
	if e.handle != 0 {
		opusEncoderDestroy(e.handle)
		e.handle = 0
	}
	return nil
}
