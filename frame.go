// Core frame and sample types used across the clipper package.
package clipper

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420 PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                    // YUV 4:2:0 semi-planar (Y + interleaved UV)
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3
	case PixelFormatNV12:
		return 2
	default:
		return 0
	}
}

// AudioFormat represents audio sample formats. Samples are always interleaved.
type AudioFormat int

const (
	AudioFormatS16 AudioFormat = iota // Signed 16-bit PCM
	AudioFormatF32                    // 32-bit float
)

func (a AudioFormat) String() string {
	switch a {
	case AudioFormatS16:
		return "S16"
	case AudioFormatF32:
		return "F32"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a {
	case AudioFormatS16:
		return 2
	case AudioFormatF32:
		return 4
	default:
		return 0
	}
}

// Frame is a decoded unit: *VideoFrame or *AudioSamples.
type Frame interface {
	MediaKind() MediaKind
}

// VideoFrame represents a raw video frame. PTS and Duration are expressed in
// the time base of the link that carries the frame.
type VideoFrame struct {
	Data     [][]byte    // Plane data
	Stride   []int       // Stride for each plane in bytes
	Width    int         // Frame width in pixels
	Height   int         // Frame height in pixels
	Format   PixelFormat // Pixel format
	PTS      int64       // Presentation timestamp
	Duration int64       // Frame duration (optional)
}

// MediaKind implements Frame.
func (f *VideoFrame) MediaKind() MediaKind { return MediaVideo }

// Clone creates a deep copy of the video frame.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:     make([][]byte, len(f.Data)),
		Stride:   make([]int, len(f.Stride)),
		Width:    f.Width,
		Height:   f.Height,
		Format:   f.Format,
		PTS:      f.PTS,
		Duration: f.Duration,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// NewI420Frame allocates a tightly packed I420 frame.
func NewI420Frame(width, height int) *VideoFrame {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	buf := make([]byte, ySize+2*uvSize)
	return &VideoFrame{
		Data:   [][]byte{buf[:ySize], buf[ySize : ySize+uvSize], buf[ySize+uvSize:]},
		Stride: []int{width, width / 2, width / 2},
		Width:  width,
		Height: height,
		Format: PixelFormatI420,
	}
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	return ySize + uvSize*2
}

// AudioSamples represents interleaved raw audio. PTS is expressed in the time
// base of the link that carries the samples, normally 1/SampleRate.
type AudioSamples struct {
	Data        []byte      // Sample data
	SampleRate  int         // Sample rate (e.g., 48000)
	Channels    int         // Number of channels (1 = mono, 2 = stereo)
	SampleCount int         // Number of samples (per channel)
	Format      AudioFormat // Sample format
	PTS         int64       // Presentation timestamp
}

// MediaKind implements Frame.
func (s *AudioSamples) MediaKind() MediaKind { return MediaAudio }

// Clone creates a deep copy of the audio samples.
func (s *AudioSamples) Clone() *AudioSamples {
	clone := &AudioSamples{
		SampleRate:  s.SampleRate,
		Channels:    s.Channels,
		SampleCount: s.SampleCount,
		Format:      s.Format,
		PTS:         s.PTS,
	}
	if s.Data != nil {
		clone.Data = make([]byte, len(s.Data))
		copy(clone.Data, s.Data)
	}
	return clone
}

func framePTS(f Frame) int64 {
	switch v := f.(type) {
	case *VideoFrame:
		return v.PTS
	case *AudioSamples:
		return v.PTS
	}
	return NoPTS
}

// withPTS returns a shallow copy of f carrying pts. Decoded frames are shared
// between targets, so they are never retimed in place.
func withPTS(f Frame, pts int64) Frame {
	switch v := f.(type) {
	case *VideoFrame:
		out := *v
		out.PTS = pts
		return &out
	case *AudioSamples:
		out := *v
		out.PTS = pts
		return &out
	}
	return f
}
