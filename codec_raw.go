package clipper

import (
	"errors"
	"fmt"
)

func init() {
	registerDecoder(CodecRawVideo, ProviderBuiltin, func(s StreamInfo) (Decoder, error) {
		return newRawVideoDecoder(s)
	})
	registerEncoder(CodecRawVideo, ProviderBuiltin, func(c EncoderConfig) (Encoder, error) {
		return newRawVideoEncoder(c)
	})
}

// rawVideoDecoder unpacks tightly packed I420 packets.
type rawVideoDecoder struct {
	width, height int
	out           outputQueue[Frame]
}

func newRawVideoDecoder(s StreamInfo) (*rawVideoDecoder, error) {
	if s.Params.Width <= 0 || s.Params.Height <= 0 {
		return nil, fmt.Errorf("rawvideo: invalid dimensions %dx%d", s.Params.Width, s.Params.Height)
	}
	return &rawVideoDecoder{width: s.Params.Width, height: s.Params.Height}, nil
}

func (d *rawVideoDecoder) SendPacket(pkt *Packet) error {
	if pkt == nil {
		d.out.draining = true
		return nil
	}
	if want := I420Size(d.width, d.height); len(pkt.Data) != want {
		return fmt.Errorf("rawvideo: packet size %d, want %d", len(pkt.Data), want)
	}
	frame := NewI420Frame(d.width, d.height)
	n := copy(frame.Data[0], pkt.Data)
	n += copy(frame.Data[1], pkt.Data[n:])
	copy(frame.Data[2], pkt.Data[n:])
	frame.PTS = pkt.PTS
	if frame.PTS == NoPTS {
		frame.PTS = pkt.DTS
	}
	frame.Duration = pkt.Duration
	d.out.push(frame)
	return nil
}

func (d *rawVideoDecoder) ReceiveFrame() (Frame, error) { return d.out.pop() }
func (d *rawVideoDecoder) Flush() { d.out.reset() }
func (d *rawVideoDecoder) Close() error {
	d.out.reset()
	return nil
}

// rawVideoEncoder packs I420 frames. It supports the two-pass protocol: pass 1
// records frame statistics, pass 2 fails its drain when it encoded a different
// number of frames than pass 1 saw.
type rawVideoEncoder struct {
	config EncoderConfig
	tb     Rational
	out    outputQueue[*Packet]

	frames int64
	bytes  int64

	wantFrames int64 // Pass 1 frame count, pass 2 only
}

const rawStatsFormat = "rawvideo frames=%d bytes=%d"

func newRawVideoEncoder(c EncoderConfig) (*rawVideoEncoder, error) {
	if c.Width <= 0 || c.Height <= 0 || c.Width%2 != 0 || c.Height%2 != 0 {
		return nil, fmt.Errorf("rawvideo: dimensions must be positive and even, got %dx%d", c.Width, c.Height)
	}
	tb := c.TimeBase
	if !tb.Valid() {
		if !c.FrameRate.Valid() {
			return nil, errors.New("rawvideo: time base or frame rate required")
		}
		tb = c.FrameRate.Invert()
	}
	e := &rawVideoEncoder{config: c, tb: tb}
	if c.Pass == 2 {
		var frames, bytes int64
		if _, err := fmt.Sscanf(string(c.Stats), rawStatsFormat, &frames, &bytes); err != nil {
			return nil, fmt.Errorf("rawvideo: invalid pass 1 stats: %w", err)
		}
		e.wantFrames = frames
	}
	return e, nil
}

func (e *rawVideoEncoder) SendFrame(f Frame) error {
	if f == nil {
		if e.config.Pass == 2 && e.frames != e.wantFrames {
			return fmt.Errorf("rawvideo: pass 2 encoded %d frames, pass 1 saw %d", e.frames, e.wantFrames)
		}
		e.out.draining = true
		return nil
	}
	vf, ok := f.(*VideoFrame)
	if !ok {
		return errors.New("rawvideo: not a video frame")
	}
	if vf.Width != e.config.Width || vf.Height != e.config.Height || vf.Format != PixelFormatI420 {
		return fmt.Errorf("rawvideo: frame %dx%d %s does not match encoder %dx%d I420",
			vf.Width, vf.Height, vf.Format, e.config.Width, e.config.Height)
	}

	data := make([]byte, 0, I420Size(vf.Width, vf.Height))
	for plane := 0; plane < 3; plane++ {
		w, h := vf.Width, vf.Height
		if plane > 0 {
			w, h = w/2, h/2
		}
		stride := vf.Stride[plane]
		for y := 0; y < h; y++ {
			data = append(data, vf.Data[plane][y*stride:y*stride+w]...)
		}
	}

	e.frames++
	e.bytes += int64(len(data))
	e.out.push(&Packet{PTS: vf.PTS, DTS: vf.PTS, Duration: vf.Duration, Key: true, Data: data})
	return nil
}

func (e *rawVideoEncoder) ReceivePacket() (*Packet, error) { return e.out.pop() }

func (e *rawVideoEncoder) Parameters() CodecParameters {
	return CodecParameters{
		Codec:       CodecRawVideo,
		Kind:        MediaVideo,
		Width:       e.config.Width,
		Height:      e.config.Height,
		PixelFormat: PixelFormatI420,
		Bitrate:     e.config.Bitrate,
	}
}

func (e *rawVideoEncoder) TimeBase() Rational { return e.tb }

// Stats returns the pass 1 statistics.
func (e *rawVideoEncoder) Stats() []byte {
	return []byte(fmt.Sprintf(rawStatsFormat, e.frames, e.bytes))
}

func (e *rawVideoEncoder) Close() error {
	e.out.reset()
	return nil
}
