package clipper

import (
	"errors"
	"fmt"
)

func init() {
	registerDecoder(CodecPCMS16LE, ProviderBuiltin, func(s StreamInfo) (Decoder, error) {
		return newPCMDecoder(s)
	})
	registerEncoder(CodecPCMS16LE, ProviderBuiltin, func(c EncoderConfig) (Encoder, error) {
		return newPCMEncoder(c)
	})
}

type pcmDecoder struct {
	sampleRate, channels int
	out                  outputQueue[Frame]
}

func newPCMDecoder(s StreamInfo) (*pcmDecoder, error) {
	if s.Params.SampleRate <= 0 || s.Params.Channels <= 0 {
		return nil, fmt.Errorf("pcm: invalid format %d Hz %d ch", s.Params.SampleRate, s.Params.Channels)
	}
	return &pcmDecoder{sampleRate: s.Params.SampleRate, channels: s.Params.Channels}, nil
}

func (d *pcmDecoder) SendPacket(pkt *Packet) error {
	if pkt == nil {
		d.out.draining = true
		return nil
	}
	frameSize := 2 * d.channels
	if len(pkt.Data)%frameSize != 0 {
		return fmt.Errorf("pcm: packet size %d is not a multiple of %d", len(pkt.Data), frameSize)
	}
	data := make([]byte, len(pkt.Data))
	copy(data, pkt.Data)
	d.out.push(&AudioSamples{
		Data:        data,
		SampleRate:  d.sampleRate,
		Channels:    d.channels,
		SampleCount: len(data) / frameSize,
		Format:      AudioFormatS16,
		PTS:         pkt.PTS,
	})
	return nil
}

func (d *pcmDecoder) ReceiveFrame() (Frame, error) { return d.out.pop() }
func (d *pcmDecoder) Flush() { d.out.reset() }
func (d *pcmDecoder) Close() error {
	d.out.reset()
	return nil
}

type pcmEncoder struct {
	config EncoderConfig
	out    outputQueue[*Packet]
}

func newPCMEncoder(c EncoderConfig) (*pcmEncoder, error) {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return nil, fmt.Errorf("pcm: invalid format %d Hz %d ch", c.SampleRate, c.Channels)
	}
	return &pcmEncoder{config: c}, nil
}

func (e *pcmEncoder) SendFrame(f Frame) error {
	if f == nil {
		e.out.draining = true
		return nil
	}
	s, ok := f.(*AudioSamples)
	if !ok {
		return errors.New("pcm: not an audio frame")
	}
	if s.Format != AudioFormatS16 || s.SampleRate != e.config.SampleRate || s.Channels != e.config.Channels {
		return fmt.Errorf("pcm: samples %s %d Hz %d ch do not match encoder S16 %d Hz %d ch",
			s.Format, s.SampleRate, s.Channels, e.config.SampleRate, e.config.Channels)
	}
	data := make([]byte, len(s.Data))
	copy(data, s.Data)
	e.out.push(&Packet{PTS: s.PTS, DTS: s.PTS, Duration: int64(s.SampleCount), Key: true, Data: data})
	return nil
}

func (e *pcmEncoder) ReceivePacket() (*Packet, error) { return e.out.pop() }

func (e *pcmEncoder) Parameters() CodecParameters {
	return CodecParameters{
		Codec:        CodecPCMS16LE,
		Kind:         MediaAudio,
		SampleRate:   e.config.SampleRate,
		Channels:     e.config.Channels,
		SampleFormat: AudioFormatS16,
		Bitrate:      e.config.SampleRate * e.config.Channels * 16,
	}
}

func (e *pcmEncoder) TimeBase() Rational { return Rational{1, int64(e.config.SampleRate)} }

func (e *pcmEncoder) Close() error {
	e.out.reset()
	return nil
}
