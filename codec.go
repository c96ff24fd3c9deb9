package clipper

import "strings"

// MediaKind classifies an elementary stream.
type MediaKind int

const (
	MediaUnknown MediaKind = iota
	MediaVideo
	MediaAudio
)

func (k MediaKind) String() string {
	switch k {
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// CodecID identifies a codec.
type CodecID int

const (
	CodecUnknown CodecID = iota
	// CodecRawVideo is uncompressed I420, one frame per packet.
	CodecRawVideo
	CodecVP8
	CodecVP9
	CodecAV1
	CodecH264
	// CodecPCMS16LE is interleaved signed 16-bit little-endian PCM.
	CodecPCMS16LE
	CodecOpus
)

func (c CodecID) String() string {
	switch c {
	case CodecRawVideo:
		return "rawvideo"
	case CodecVP8:
		return "vp8"
	case CodecVP9:
		return "vp9"
	case CodecAV1:
		return "av1"
	case CodecH264:
		return "h264"
	case CodecPCMS16LE:
		return "pcm_s16le"
	case CodecOpus:
		return "opus"
	default:
		return "unknown"
	}
}

// Kind returns the media kind carried by the codec.
func (c CodecID) Kind() MediaKind {
	switch c {
	case CodecRawVideo, CodecVP8, CodecVP9, CodecAV1, CodecH264:
		return MediaVideo
	case CodecPCMS16LE, CodecOpus:
		return MediaAudio
	default:
		return MediaUnknown
	}
}

// FourCC returns the IVF fourcc for video codecs, empty otherwise.
func (c CodecID) FourCC() string {
	switch c {
	case CodecRawVideo:
		return "I420"
	case CodecVP8:
		return "VP80"
	case CodecVP9:
		return "VP90"
	case CodecAV1:
		return "AV01"
	case CodecH264:
		return "H264"
	default:
		return ""
	}
}

// ParseCodec resolves a codec name ("vp8", "opus", ...). Unknown names map to
// CodecUnknown.
func ParseCodec(name string) CodecID {
	switch strings.ToLower(name) {
	case "rawvideo", "raw", "i420":
		return CodecRawVideo
	case "vp8":
		return CodecVP8
	case "vp9":
		return CodecVP9
	case "av1":
		return CodecAV1
	case "h264", "avc":
		return CodecH264
	case "pcm_s16le", "pcm", "s16le":
		return CodecPCMS16LE
	case "opus":
		return CodecOpus
	default:
		return CodecUnknown
	}
}

func codecFromFourCC(fourcc string) CodecID {
	for _, c := range []CodecID{CodecRawVideo, CodecVP8, CodecVP9, CodecAV1, CodecH264} {
		if c.FourCC() == fourcc {
			return c
		}
	}
	return CodecUnknown
}

// CodecParameters describes the encoded form of a stream.
type CodecParameters struct {
	Codec CodecID
	Kind  MediaKind

	// Video
	Width       int
	Height      int
	PixelFormat PixelFormat

	// Audio
	SampleRate   int
	Channels     int
	SampleFormat AudioFormat

	Bitrate   int    // Bits per second, 0 when unknown
	Extradata []byte // Codec private data
}

// StreamInfo describes one elementary stream of a container.
type StreamInfo struct {
	Index     int
	TimeBase  Rational
	FrameRate Rational // Guessed frame rate, zero for audio
	Params    CodecParameters
}

// Kind is shorthand for Params.Kind.
func (s StreamInfo) Kind() MediaKind { return s.Params.Kind }
