package clipper

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

const (
	ivfSignature       = "DKIF"
	ivfFileHeaderSize  = 32
	ivfFrameHeaderSize = 12
)

// =============================================================================
// IVF demuxer
// =============================================================================

type ivfIndexEntry struct {
	offset int64
	pts    int64
	key    bool
}

type ivfDemuxer struct {
	f      *os.File
	cr     *countingReader
	reader *ivfreader.IVFReader
	num    uint64
	den    uint64
	info   StreamInfo
	index  []ivfIndexEntry
	next   int // Index entry of the next frame to read
}

func openIVF(f *os.File) (*ivfDemuxer, error) {
	cr := &countingReader{r: f}
	reader, header, err := ivfreader.NewWith(cr)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ivf: %w", err)
	}
	d := &ivfDemuxer{
		f:      f,
		cr:     cr,
		reader: reader,
		num:    uint64(header.TimebaseNumerator),
		den:    uint64(header.TimebaseDenominator),
	}
	codec := codecFromFourCC(header.FourCC)
	if codec == CodecUnknown || d.num == 0 || d.den == 0 {
		f.Close()
		return nil, fmt.Errorf("ivf: unsupported stream fourcc=%q timebase=%d/%d", header.FourCC, d.num, d.den)
	}

	if err := d.scan(codec); err != nil {
		f.Close()
		return nil, err
	}

	tb := Rational{int64(d.num), int64(d.den)}
	d.info = StreamInfo{
		Index:     0,
		TimeBase:  tb,
		FrameRate: d.guessFrameRate(tb),
		Params: CodecParameters{
			Codec:       codec,
			Kind:        MediaVideo,
			Width:       int(header.Width),
			Height:      int(header.Height),
			PixelFormat: PixelFormatI420,
			Bitrate:     d.estimateBitrate(tb),
		},
	}
	if err := d.rewind(0); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

// scan reads every frame header once to build the seek index.
func (d *ivfDemuxer) scan(codec CodecID) error {
	for {
		off := d.cr.off
		payload, fh, err := d.reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// A truncated last frame ends the stream.
			if len(d.index) > 0 {
				return nil
			}
			return fmt.Errorf("ivf: %w", err)
		}
		d.index = append(d.index, ivfIndexEntry{
			offset: off,
			pts:    d.framePTS(fh.Timestamp),
			key:    isKeyframe(codec, payload),
		})
	}
}

// framePTS recovers the stored pts from ivfreader's header timestamp, which
// is pts*den/num rounded down.
func (d *ivfDemuxer) framePTS(ts uint64) int64 {
	return int64((ts*d.num + d.den - 1) / d.den)
}

func (d *ivfDemuxer) guessFrameRate(tb Rational) Rational {
	if len(d.index) >= 2 {
		if delta := d.index[1].pts - d.index[0].pts; delta > 0 {
			return Rational{tb.Den, tb.Num * delta}
		}
	}
	return tb.Invert()
}

func (d *ivfDemuxer) estimateBitrate(tb Rational) int {
	if len(d.index) < 2 {
		return 0
	}
	last := d.index[len(d.index)-1]
	seconds := PTSToDuration(last.pts-d.index[0].pts, tb).Seconds()
	if seconds <= 0 {
		return 0
	}
	bytes := last.offset - d.index[0].offset
	return int(math.Round(float64(bytes*8) / seconds))
}

func (d *ivfDemuxer) rewind(entry int) error {
	off := int64(ivfFileHeaderSize)
	if entry < len(d.index) {
		off = d.index[entry].offset
	}
	if err := d.cr.seekTo(d.f, off); err != nil {
		return err
	}
	d.reader.ResetReader(func(int64) io.Reader { return d.cr })
	d.next = entry
	return nil
}

func (d *ivfDemuxer) Streams() []StreamInfo { return []StreamInfo{d.info} }

func (d *ivfDemuxer) ReadPacket() (*Packet, error) {
	if d.next >= len(d.index) {
		return nil, io.EOF
	}
	payload, _, err := d.reader.ParseNextFrame()
	if err != nil {
		return nil, err
	}
	e := d.index[d.next]
	d.next++
	var dur int64
	if d.next < len(d.index) {
		dur = d.index[d.next].pts - e.pts
	}
	return &Packet{StreamIndex: 0, PTS: e.pts, DTS: e.pts, Duration: dur, Key: e.key, Data: payload}, nil
}

// Seek positions the reader on the last keyframe at or before ts.
func (d *ivfDemuxer) Seek(ts time.Duration) error {
	return d.rewind(nearestKeyframe(d.index, DurationToPTS(ts, d.info.TimeBase)))
}

// nearestKeyframe returns the last keyframe entry with pts <= target, or 0.
func nearestKeyframe(index []ivfIndexEntry, target int64) int {
	i := sort.Search(len(index), func(i int) bool { return index[i].pts > target })
	for i--; i > 0; i-- {
		if index[i].key {
			return i
		}
	}
	return 0
}

func (d *ivfDemuxer) Close() error { return d.f.Close() }

// isKeyframe inspects the codec bitstream header of one IVF frame.
func isKeyframe(codec CodecID, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	switch codec {
	case CodecVP8:
		return data[0]&0x01 == 0
	case CodecVP9:
		b := data[0]
		if b>>6 != 0x2 {
			return false
		}
		profile := (b>>5)&1 | ((b>>4)&1)<<1
		shift := 3
		if profile == 3 {
			shift = 2
		}
		showExisting := (b >> shift) & 1
		frameType := (b >> (shift - 1)) & 1
		return showExisting == 0 && frameType == 0
	case CodecAV1:
		return av1HasSequenceHeader(data)
	case CodecH264:
		for i := 0; i+3 < len(data); i++ {
			if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 && data[i+3]&0x1F == 5 {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// av1HasSequenceHeader walks the OBUs of a temporal unit.
func av1HasSequenceHeader(data []byte) bool {
	for len(data) > 0 {
		h := data[0]
		obuType := (h >> 3) & 0x0F
		if obuType == 1 {
			return true
		}
		pos := 1
		if h&0x04 != 0 {
			pos++
		}
		if h&0x02 == 0 {
			return false
		}
		size, n := binary.Uvarint(data[min(pos, len(data)):])
		if n <= 0 {
			return false
		}
		pos += n
		if uint64(len(data)-pos) < size {
			return false
		}
		data = data[pos+int(size):]
	}
	return false
}

// =============================================================================
// IVF muxer
// =============================================================================

// ivfMuxer writes a single video stream. The header frame count is patched by
// WriteTrailer.
type ivfMuxer struct {
	path   string
	f      *os.File
	w      *bufio.Writer
	params *CodecParameters
	tb     Rational
	frames uint32
}

func (m *ivfMuxer) AddStream(params CodecParameters, tb Rational) (int, error) {
	if m.params != nil {
		return 0, errors.New("ivf: container holds a single stream")
	}
	if params.Kind != MediaVideo || params.Codec.FourCC() == "" {
		return 0, fmt.Errorf("ivf: cannot store %s", params.Codec)
	}
	if !tb.Valid() || tb.Num > math.MaxUint32 || tb.Den > math.MaxUint32 {
		return 0, fmt.Errorf("ivf: time base %s out of range", tb)
	}
	if params.Width > math.MaxUint16 || params.Height > math.MaxUint16 {
		return 0, fmt.Errorf("ivf: size %dx%d out of range", params.Width, params.Height)
	}
	m.params, m.tb = &params, tb
	return 0, nil
}

func (m *ivfMuxer) WriteHeader() error {
	if m.params == nil {
		return errors.New("ivf: no stream declared")
	}
	f, err := os.Create(m.path)
	if err != nil {
		return err
	}
	m.f, m.w = f, bufio.NewWriter(f)

	header := make([]byte, ivfFileHeaderSize)
	copy(header[0:4], ivfSignature)
	binary.LittleEndian.PutUint16(header[4:], 0)
	binary.LittleEndian.PutUint16(header[6:], ivfFileHeaderSize)
	copy(header[8:12], m.params.Codec.FourCC())
	binary.LittleEndian.PutUint16(header[12:], uint16(m.params.Width))
	binary.LittleEndian.PutUint16(header[14:], uint16(m.params.Height))
	binary.LittleEndian.PutUint32(header[16:], uint32(m.tb.Den))
	binary.LittleEndian.PutUint32(header[20:], uint32(m.tb.Num))
	_, err = m.w.Write(header)
	return err
}

func (m *ivfMuxer) StreamTimeBase(int) Rational { return m.tb }

func (m *ivfMuxer) WriteInterleaved(pkt *Packet) error {
	if m.w == nil {
		return errors.New("ivf: header not written")
	}
	pts := max(pkt.PTS, 0)
	var fh [ivfFrameHeaderSize]byte
	binary.LittleEndian.PutUint32(fh[0:], uint32(len(pkt.Data)))
	binary.LittleEndian.PutUint64(fh[4:], uint64(pts))
	if _, err := m.w.Write(fh[:]); err != nil {
		return err
	}
	if _, err := m.w.Write(pkt.Data); err != nil {
		return err
	}
	m.frames++
	return nil
}

func (m *ivfMuxer) WriteTrailer() error {
	if m.w == nil {
		return errors.New("ivf: header not written")
	}
	if err := m.w.Flush(); err != nil {
		return err
	}
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], m.frames)
	_, err := m.f.WriteAt(count[:], 24)
	return err
}

func (m *ivfMuxer) Close() error {
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f, m.w = nil, nil
	return err
}
