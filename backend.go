package clipper

import (
	"errors"
	"time"
)

// ErrAgain is returned by ReceiveFrame/ReceivePacket when more input is needed
// before output can be produced.
var ErrAgain = errors.New("resource temporarily unavailable")

// Packet is one encoded unit of an elementary stream. Timestamps are in the
// time base of the stream the packet belongs to.
type Packet struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	Duration    int64
	Key         bool
	Data        []byte
}

// Clone returns a deep copy of the packet.
func (p *Packet) Clone() *Packet {
	c := *p
	if p.Data != nil {
		c.Data = make([]byte, len(p.Data))
		copy(c.Data, p.Data)
	}
	return &c
}

// Demuxer reads packets from an input container.
type Demuxer interface {
	Streams() []StreamInfo
	// ReadPacket returns io.EOF once the container is exhausted.
	ReadPacket() (*Packet, error)
	// Seek positions every stream on the last keyframe at or before ts.
	Seek(ts time.Duration) error
	Close() error
}

// Decoder turns packets into frames. Sending a nil packet starts draining;
// ReceiveFrame then returns io.EOF once all buffered frames were returned.
type Decoder interface {
	SendPacket(pkt *Packet) error
	ReceiveFrame() (Frame, error)
	// Flush drops buffered state, used after a seek.
	Flush()
	Close() error
}

// EncoderConfig configures an encoder context.
type EncoderConfig struct {
	Codec CodecID
	Kind  MediaKind

	Width       int
	Height      int
	PixelFormat PixelFormat
	FrameRate   Rational

	SampleRate   int
	Channels     int
	SampleFormat AudioFormat

	TimeBase Rational // Time base of the frames sent to the encoder
	Bitrate  int

	Pass  int    // 0 single pass, 1 analysis, 2 final
	Stats []byte // Pass 1 statistics, required when Pass is 2
}

// Encoder turns frames into packets. Sending a nil frame starts draining;
// ReceivePacket then returns io.EOF once all buffered packets were returned.
// Packets carry timestamps in TimeBase().
type Encoder interface {
	SendFrame(f Frame) error
	ReceivePacket() (*Packet, error)
	// Parameters describes the produced stream and the frame format the
	// encoder accepts.
	Parameters() CodecParameters
	TimeBase() Rational
	Close() error
}

// StatsEncoder is implemented by encoders that support two-pass encoding.
// Stats is valid after a pass 1 encoder has been drained.
type StatsEncoder interface {
	Encoder
	Stats() []byte
}

// Muxer writes packets to an output container.
type Muxer interface {
	// AddStream declares an output stream and returns its index.
	AddStream(params CodecParameters, tb Rational) (int, error)
	WriteHeader() error
	// StreamTimeBase is the time base packets must be written in. It is
	// only final after WriteHeader.
	StreamTimeBase(index int) Rational
	WriteInterleaved(pkt *Packet) error
	WriteTrailer() error
	// Close releases the container. Without a preceding WriteTrailer the
	// file is left incomplete.
	Close() error
}

// Backend groups the codec and container primitives the scheduler drives.
type Backend interface {
	OpenInput(path string) (Demuxer, error)
	NewDecoder(stream StreamInfo) (Decoder, error)
	NewEncoder(config EncoderConfig) (Encoder, error)
	CreateOutput(path string) (Muxer, error)
}
