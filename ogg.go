package clipper

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

const (
	oggSignature   = "OggS"
	opusSampleRate = 48000
	// Decoder pre-roll recommended for Opus seeking (80 ms).
	opusSeekPreRoll = 3840
)

var opusTimeBase = Rational{1, opusSampleRate}

// opusPacketSamples returns the number of 48 kHz samples carried by an Opus
// packet, read from its TOC byte.
func opusPacketSamples(packet []byte) int64 {
	if len(packet) == 0 {
		return 0
	}
	toc := packet[0]
	config := toc >> 3
	var frame int64
	switch {
	case config < 12:
		frame = [4]int64{480, 960, 1920, 2880}[config%4]
	case config < 16:
		frame = [2]int64{480, 960}[config%2]
	default:
		frame = [4]int64{120, 240, 480, 960}[config%4]
	}
	switch toc & 0x03 {
	case 0:
		return frame
	case 1, 2:
		return 2 * frame
	default:
		if len(packet) < 2 {
			return 0
		}
		return int64(packet[1]&0x3F) * frame
	}
}

// =============================================================================
// Ogg Opus demuxer
// =============================================================================

// The demuxer expects one Opus packet per page, which is what oggwriter and
// most live encoders produce.
type oggDemuxer struct {
	f      *os.File
	cr     *countingReader
	reader *oggreader.OggReader
	info   StreamInfo
	index  []oggIndexEntry
	next   int
}

type oggIndexEntry struct {
	offset int64
	pts    int64
	dur    int64
}

func openOgg(f *os.File) (*oggDemuxer, error) {
	cr := &countingReader{r: f}
	reader, header, err := oggreader.NewWith(cr)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ogg: %w", err)
	}
	d := &oggDemuxer{
		f:      f,
		cr:     cr,
		reader: reader,
		info: StreamInfo{
			Index:    0,
			TimeBase: opusTimeBase,
			Params: CodecParameters{
				Codec:        CodecOpus,
				Kind:         MediaAudio,
				SampleRate:   opusSampleRate,
				Channels:     int(header.Channels),
				SampleFormat: AudioFormatS16,
			},
		},
	}
	start := cr.off
	if err := d.scan(int64(header.PreSkip)); err != nil {
		f.Close()
		return nil, err
	}
	if err := d.rewind(0, start); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

func (d *oggDemuxer) scan(preSkip int64) error {
	var samples int64
	for {
		off := d.cr.off
		payload, _, err := d.reader.ParseNextPage()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ogg: %w", err)
		}
		if skipOggPage(payload) {
			continue
		}
		n := opusPacketSamples(payload)
		d.index = append(d.index, oggIndexEntry{offset: off, pts: samples - preSkip, dur: n})
		samples += n
	}
}

func skipOggPage(payload []byte) bool {
	return len(payload) == 0 || bytes.HasPrefix(payload, []byte("OpusTags"))
}

// rewind moves to index entry i. fallback is the offset used when the index
// is empty.
func (d *oggDemuxer) rewind(i int, fallback int64) error {
	off := fallback
	if i < len(d.index) {
		off = d.index[i].offset
	}
	if err := d.cr.seekTo(d.f, off); err != nil {
		return err
	}
	d.reader.ResetReader(func(int64) io.Reader { return d.cr })
	d.next = i
	return nil
}

func (d *oggDemuxer) Streams() []StreamInfo { return []StreamInfo{d.info} }

func (d *oggDemuxer) ReadPacket() (*Packet, error) {
	for d.next < len(d.index) {
		payload, _, err := d.reader.ParseNextPage()
		if err != nil {
			return nil, err
		}
		if skipOggPage(payload) {
			continue
		}
		e := d.index[d.next]
		d.next++
		return &Packet{StreamIndex: 0, PTS: e.pts, DTS: e.pts, Duration: e.dur, Key: true, Data: payload}, nil
	}
	return nil, io.EOF
}

// Seek lands opusSeekPreRoll samples ahead of ts so the decoder converges
// before the requested position.
func (d *oggDemuxer) Seek(ts time.Duration) error {
	target := DurationToPTS(ts, opusTimeBase) - opusSeekPreRoll
	i := sort.Search(len(d.index), func(i int) bool { return d.index[i].pts > target })
	return d.rewind(max(i-1, 0), d.cr.off)
}

func (d *oggDemuxer) Close() error { return d.f.Close() }

// =============================================================================
// Ogg Opus muxer
// =============================================================================

// oggMuxer feeds oggwriter with one RTP-framed packet per Opus packet. The
// writer derives granule positions from RTP timestamp deltas.
type oggMuxer struct {
	path   string
	f      *os.File
	w      *oggwriter.OggWriter
	params *CodecParameters
}

// oggFile hides Close from oggwriter so the muxer keeps ownership of the
// file.
type oggFile struct{ w io.Writer }

func (o oggFile) Write(p []byte) (int, error) { return o.w.Write(p) }

func (m *oggMuxer) AddStream(params CodecParameters, tb Rational) (int, error) {
	if m.params != nil {
		return 0, errors.New("ogg: container holds a single stream")
	}
	if params.Codec != CodecOpus {
		return 0, fmt.Errorf("ogg: cannot store %s", params.Codec)
	}
	if params.Channels < 1 || params.Channels > 2 {
		return 0, fmt.Errorf("ogg: %d channels", params.Channels)
	}
	m.params = &params
	return 0, nil
}

func (m *oggMuxer) WriteHeader() error {
	if m.params == nil {
		return errors.New("ogg: no stream declared")
	}
	f, err := os.Create(m.path)
	if err != nil {
		return err
	}
	w, err := oggwriter.NewWith(oggFile{f}, opusSampleRate, uint16(m.params.Channels))
	if err != nil {
		f.Close()
		return err
	}
	m.f, m.w = f, w
	return nil
}

func (m *oggMuxer) StreamTimeBase(int) Rational { return opusTimeBase }

func (m *oggMuxer) WriteInterleaved(pkt *Packet) error {
	if m.w == nil {
		return errors.New("ogg: header not written")
	}
	// oggwriter treats a previous timestamp of 1 as "no packet yet".
	ts := uint32(pkt.PTS) + 2
	return m.w.WriteRTP(&rtp.Packet{
		Header:  rtp.Header{Version: 2, Timestamp: ts},
		Payload: pkt.Data,
	})
}

func (m *oggMuxer) WriteTrailer() error {
	if m.w == nil {
		return errors.New("ogg: header not written")
	}
	if err := m.w.Close(); err != nil {
		return err
	}
	return m.f.Sync()
}

func (m *oggMuxer) Close() error {
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f, m.w = nil, nil
	return err
}
