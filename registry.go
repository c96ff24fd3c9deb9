package clipper

import (
	"sort"
	"sync"

	"github.com/ansel1/merry/v2"
)

// Provider names the implementation behind a registered codec.
type Provider string

const (
	ProviderBuiltin Provider = "builtin" // Pure Go
	ProviderLibopus Provider = "libopus" // Loaded at runtime
)

type decoderFactory func(StreamInfo) (Decoder, error)
type encoderFactory func(EncoderConfig) (Encoder, error)

type codecEntry[F any] struct {
	provider Provider
	factory  F
}

type codecRegistry struct {
	mu sync.RWMutex

	decoders map[CodecID]codecEntry[decoderFactory]
	encoders map[CodecID]codecEntry[encoderFactory]
}

var globalCodecRegistry = &codecRegistry{
	decoders: make(map[CodecID]codecEntry[decoderFactory]),
	encoders: make(map[CodecID]codecEntry[encoderFactory]),
}

// registerDecoder registers a decoder factory. A later registration for the
// same codec replaces the earlier one.
func registerDecoder(codec CodecID, provider Provider, factory decoderFactory) {
	globalCodecRegistry.mu.Lock()
	defer globalCodecRegistry.mu.Unlock()
	globalCodecRegistry.decoders[codec] = codecEntry[decoderFactory]{provider, factory}
}

// registerEncoder registers an encoder factory.
func registerEncoder(codec CodecID, provider Provider, factory encoderFactory) {
	globalCodecRegistry.mu.Lock()
	defer globalCodecRegistry.mu.Unlock()
	globalCodecRegistry.encoders[codec] = codecEntry[encoderFactory]{provider, factory}
}

// newDecoder creates a decoder for the stream's codec.
func newDecoder(stream StreamInfo) (Decoder, error) {
	globalCodecRegistry.mu.RLock()
	entry, ok := globalCodecRegistry.decoders[stream.Params.Codec]
	globalCodecRegistry.mu.RUnlock()
	if !ok {
		return nil, merry.Wrap(ErrUnsupportedCodec, merry.WithMessagef("no decoder for %s", stream.Params.Codec))
	}
	return entry.factory(stream)
}

// newEncoder creates an encoder for config.Codec.
func newEncoder(config EncoderConfig) (Encoder, error) {
	globalCodecRegistry.mu.RLock()
	entry, ok := globalCodecRegistry.encoders[config.Codec]
	globalCodecRegistry.mu.RUnlock()
	if !ok {
		return nil, merry.Wrap(ErrUnsupportedCodec, merry.WithMessagef("no encoder for %s", config.Codec))
	}
	return entry.factory(config)
}

// IsDecoderAvailable reports whether a decoder is registered for codec.
func IsDecoderAvailable(codec CodecID) bool {
	globalCodecRegistry.mu.RLock()
	defer globalCodecRegistry.mu.RUnlock()
	_, ok := globalCodecRegistry.decoders[codec]
	return ok
}

// IsEncoderAvailable reports whether an encoder is registered for codec.
func IsEncoderAvailable(codec CodecID) bool {
	globalCodecRegistry.mu.RLock()
	defer globalCodecRegistry.mu.RUnlock()
	_, ok := globalCodecRegistry.encoders[codec]
	return ok
}

// CodecSupport describes one registered codec.
type CodecSupport struct {
	Codec    CodecID
	Provider Provider
	Decoder  bool
	Encoder  bool
}

// AvailableCodecs lists the registered codecs ordered by codec ID.
func AvailableCodecs() []CodecSupport {
	globalCodecRegistry.mu.RLock()
	defer globalCodecRegistry.mu.RUnlock()

	byCodec := make(map[CodecID]*CodecSupport)
	get := func(c CodecID, p Provider) *CodecSupport {
		s, ok := byCodec[c]
		if !ok {
			s = &CodecSupport{Codec: c, Provider: p}
			byCodec[c] = s
		}
		return s
	}
	for c, e := range globalCodecRegistry.decoders {
		get(c, e.provider).Decoder = true
	}
	for c, e := range globalCodecRegistry.encoders {
		get(c, e.provider).Encoder = true
	}

	out := make([]CodecSupport, 0, len(byCodec))
	for _, s := range byCodec {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Codec < out[j].Codec })
	return out
}
