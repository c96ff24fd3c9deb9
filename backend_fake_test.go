package clipper

import (
	"cmp"
	"errors"
	"io"
	"os"
	"slices"
	"time"
)

const (
	testWidth     = 16
	testHeight    = 16
	testFPS       = 25
	testAudioRate = 8000
	// 100 ms of mono PCM per packet.
	testAudioChunk = 800
)

var errDiskOnFire = errors.New("read failed")

type fakeInput struct {
	streams []StreamInfo
	packets []*Packet
}

// newTestInput builds a raw I420 video stream followed by audioTracks mono
// PCM tracks, interleaved by time. Video frame f has luma f; audio track n
// carries the constant sample 1000*(n+1).
func newTestInput(seconds, audioTracks int) *fakeInput {
	in := &fakeInput{}
	in.streams = append(in.streams, StreamInfo{
		Index:     0,
		TimeBase:  Rational{1, testFPS},
		FrameRate: Rational{testFPS, 1},
		Params: CodecParameters{
			Codec:       CodecRawVideo,
			Kind:        MediaVideo,
			Width:       testWidth,
			Height:      testHeight,
			PixelFormat: PixelFormatI420,
		},
	})
	for n := 0; n < audioTracks; n++ {
		in.streams = append(in.streams, StreamInfo{
			Index:    n + 1,
			TimeBase: Rational{1, testAudioRate},
			Params: CodecParameters{
				Codec:        CodecPCMS16LE,
				Kind:         MediaAudio,
				SampleRate:   testAudioRate,
				Channels:     1,
				SampleFormat: AudioFormatS16,
			},
		})
	}

	for f := 0; f < seconds*testFPS; f++ {
		data := make([]byte, I420Size(testWidth, testHeight))
		luma := testWidth * testHeight
		for i := range data {
			if i < luma {
				data[i] = byte(f)
			} else {
				data[i] = 128
			}
		}
		in.packets = append(in.packets, &Packet{StreamIndex: 0, PTS: int64(f), DTS: int64(f), Duration: 1, Key: true, Data: data})
	}
	for n := 0; n < audioTracks; n++ {
		sample := int16(1000 * (n + 1))
		for k := 0; k < seconds*testAudioRate/testAudioChunk; k++ {
			data := make([]byte, 2*testAudioChunk)
			for i := 0; i < testAudioChunk; i++ {
				data[2*i] = byte(sample)
				data[2*i+1] = byte(sample >> 8)
			}
			pts := int64(k * testAudioChunk)
			in.packets = append(in.packets, &Packet{StreamIndex: n + 1, PTS: pts, DTS: pts, Duration: testAudioChunk, Key: true, Data: data})
		}
	}
	slices.SortStableFunc(in.packets, func(a, b *Packet) int {
		return cmp.Compare(in.packetTime(a), in.packetTime(b))
	})
	return in
}

func (in *fakeInput) packetTime(p *Packet) time.Duration {
	return PTSToDuration(p.PTS, in.streams[p.StreamIndex].TimeBase)
}

// fakeBackend serves in-memory inputs and records every output, using the
// built-in raw and PCM codecs.
type fakeBackend struct {
	inputs    map[string]*fakeInput
	outputs   map[string]*fakeMuxer
	createErr map[string]error
	readErrAt int // ReadPacket fails once this many packets were read, when > 0
	seeks     []time.Duration
	demuxer   *fakeDemuxer
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		inputs:    make(map[string]*fakeInput),
		outputs:   make(map[string]*fakeMuxer),
		createErr: make(map[string]error),
	}
}

func (b *fakeBackend) OpenInput(path string) (Demuxer, error) {
	in, ok := b.inputs[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	b.demuxer = &fakeDemuxer{b: b, in: in}
	return b.demuxer, nil
}

func (b *fakeBackend) NewDecoder(stream StreamInfo) (Decoder, error) { return newDecoder(stream) }

func (b *fakeBackend) NewEncoder(config EncoderConfig) (Encoder, error) { return newEncoder(config) }

func (b *fakeBackend) CreateOutput(path string) (Muxer, error) {
	if err := b.createErr[path]; err != nil {
		return nil, err
	}
	m := &fakeMuxer{}
	b.outputs[path] = m
	return m, nil
}

type fakeDemuxer struct {
	b      *fakeBackend
	in     *fakeInput
	pos    int
	reads  int
	closed bool
}

func (d *fakeDemuxer) Streams() []StreamInfo { return d.in.streams }

func (d *fakeDemuxer) ReadPacket() (*Packet, error) {
	if d.b.readErrAt > 0 && d.reads >= d.b.readErrAt {
		return nil, errDiskOnFire
	}
	if d.pos >= len(d.in.packets) {
		return nil, io.EOF
	}
	pkt := d.in.packets[d.pos].Clone()
	d.pos++
	d.reads++
	return pkt, nil
}

// Seek lands on the first packet at or after ts. Every test packet is a
// keyframe.
func (d *fakeDemuxer) Seek(ts time.Duration) error {
	d.b.seeks = append(d.b.seeks, ts)
	d.pos = len(d.in.packets)
	for i, p := range d.in.packets {
		if d.in.packetTime(p) >= ts {
			d.pos = i
			break
		}
	}
	return nil
}

func (d *fakeDemuxer) Close() error {
	d.closed = true
	return nil
}

type fakeMuxer struct {
	params  []CodecParameters
	tbs     []Rational
	packets [][]*Packet

	header  bool
	trailer bool
	closed  bool
}

func (m *fakeMuxer) AddStream(params CodecParameters, tb Rational) (int, error) {
	m.params = append(m.params, params)
	m.tbs = append(m.tbs, tb)
	m.packets = append(m.packets, nil)
	return len(m.params) - 1, nil
}

func (m *fakeMuxer) WriteHeader() error {
	m.header = true
	return nil
}

func (m *fakeMuxer) StreamTimeBase(i int) Rational { return m.tbs[i] }

func (m *fakeMuxer) WriteInterleaved(pkt *Packet) error {
	if !m.header || m.trailer {
		return errors.New("write outside header/trailer")
	}
	m.packets[pkt.StreamIndex] = append(m.packets[pkt.StreamIndex], pkt.Clone())
	return nil
}

func (m *fakeMuxer) WriteTrailer() error {
	m.trailer = true
	return nil
}

func (m *fakeMuxer) Close() error {
	m.closed = true
	return nil
}

func (m *fakeMuxer) pts(stream int) []int64 {
	out := make([]int64, len(m.packets[stream]))
	for i, p := range m.packets[stream] {
		out[i] = p.PTS
	}
	return out
}

func ptsRange(start, n int, step int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(start) + int64(i)*step
	}
	return out
}
