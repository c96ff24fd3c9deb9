package clipper

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRawIVF writes frames raw I420 frames of w x h at fps; frame i has luma i.
func writeRawIVF(t *testing.T, path string, w, h, fps, frames int) {
	t.Helper()
	m, err := NewFileBackend().CreateOutput(path)
	require.NoError(t, err)
	_, err = m.AddStream(CodecParameters{Codec: CodecRawVideo, Kind: MediaVideo, Width: w, Height: h, PixelFormat: PixelFormatI420}, Rational{1, int64(fps)})
	require.NoError(t, err)
	require.NoError(t, m.WriteHeader())
	for i := 0; i < frames; i++ {
		data := make([]byte, I420Size(w, h))
		for j := 0; j < w*h; j++ {
			data[j] = byte(i)
		}
		require.NoError(t, m.WriteInterleaved(&Packet{PTS: int64(i), DTS: int64(i), Key: true, Data: data}))
	}
	require.NoError(t, m.WriteTrailer())
	require.NoError(t, m.Close())
}

func readAll(t *testing.T, d Demuxer) []*Packet {
	t.Helper()
	var out []*Packet
	for {
		p, err := d.ReadPacket()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, p)
	}
}

func TestIVFRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.ivf")
	writeRawIVF(t, path, 4, 2, 25, 10)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "DKIF", string(raw[:4]))
	assert.Equal(t, "I420", string(raw[8:12]))
	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(raw[24:]), "frame count patched by the trailer")

	d, err := NewFileBackend().OpenInput(path)
	require.NoError(t, err)
	defer d.Close()

	streams := d.Streams()
	require.Len(t, streams, 1)
	s := streams[0]
	assert.Equal(t, CodecRawVideo, s.Params.Codec)
	assert.Equal(t, 4, s.Params.Width)
	assert.Equal(t, 2, s.Params.Height)
	assert.Equal(t, Rational{1, 25}, s.TimeBase)
	assert.Equal(t, Rational{25, 1}, s.FrameRate)

	pkts := readAll(t, d)
	require.Len(t, pkts, 10)
	for i, p := range pkts {
		assert.Equal(t, int64(i), p.PTS)
		assert.True(t, p.Key)
		assert.Equal(t, byte(i), p.Data[0])
	}
	assert.Equal(t, int64(1), pkts[0].Duration)

	require.NoError(t, d.Seek(200*time.Millisecond))
	p, err := d.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.PTS)

	require.NoError(t, d.Seek(time.Hour))
	p, err = d.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, int64(9), p.PTS, "seek past the end lands on the last keyframe")

	require.NoError(t, d.Seek(0))
	assert.Len(t, readAll(t, d), 10)
}

func TestIVFMuxerRejects(t *testing.T) {
	m := &ivfMuxer{path: filepath.Join(t.TempDir(), "x.ivf")}
	_, err := m.AddStream(CodecParameters{Codec: CodecOpus, Kind: MediaAudio}, Rational{1, 48000})
	assert.Error(t, err)

	_, err = m.AddStream(CodecParameters{Codec: CodecVP8, Kind: MediaVideo, Width: 4, Height: 4}, Rational{1, 30})
	require.NoError(t, err)
	_, err = m.AddStream(CodecParameters{Codec: CodecVP8, Kind: MediaVideo, Width: 4, Height: 4}, Rational{1, 30})
	assert.Error(t, err, "second stream")

	assert.Error(t, m.WriteInterleaved(&Packet{}), "write before header")
	assert.NoError(t, m.Close())
}

func TestNearestKeyframe(t *testing.T) {
	index := []ivfIndexEntry{
		{pts: 0, key: true},
		{pts: 1},
		{pts: 2},
		{pts: 3, key: true},
		{pts: 4},
	}
	tests := []struct {
		target int64
		want   int
	}{
		{-5, 0},
		{0, 0},
		{2, 0},
		{3, 3},
		{4, 3},
		{100, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nearestKeyframe(index, tt.target), "target %d", tt.target)
	}
}

func TestIsKeyframe(t *testing.T) {
	tests := []struct {
		name  string
		codec CodecID
		data  []byte
		want  bool
	}{
		{"vp8 key", CodecVP8, []byte{0x10, 0x02}, true},
		{"vp8 inter", CodecVP8, []byte{0x11, 0x02}, false},
		{"vp9 key", CodecVP9, []byte{0x80}, true},
		{"vp9 inter", CodecVP9, []byte{0x84}, false},
		{"vp9 show existing", CodecVP9, []byte{0x88}, false},
		{"vp9 bad marker", CodecVP9, []byte{0x00}, false},
		{"av1 sequence header", CodecAV1, []byte{0x12, 0x00, 0x0A, 0x01, 0x00}, true},
		{"av1 frame only", CodecAV1, []byte{0x12, 0x00, 0x32, 0x01, 0x00}, false},
		{"h264 idr", CodecH264, []byte{0, 0, 0, 1, 0x65, 0x88}, true},
		{"h264 slice", CodecH264, []byte{0, 0, 0, 1, 0x41, 0x9a}, false},
		{"raw", CodecRawVideo, []byte{1}, true},
		{"empty", CodecVP8, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isKeyframe(tt.codec, tt.data))
		})
	}
}

func TestFileBackendErrors(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend()

	_, err := b.OpenInput(filepath.Join(dir, "missing.ivf"))
	assert.Error(t, err)

	junk := filepath.Join(dir, "junk.bin")
	require.NoError(t, os.WriteFile(junk, []byte("RIFF....WAVE"), 0o644))
	_, err = b.OpenInput(junk)
	assert.True(t, errors.Is(err, ErrUnsupportedContainer), "%v", err)

	_, err = b.CreateOutput(filepath.Join(dir, "out.mkv"))
	assert.True(t, errors.Is(err, ErrUnsupportedContainer), "%v", err)
}

func TestExportFileBackend(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.ivf")
	writeRawIVF(t, input, 4, 4, 10, 20)

	res := Export(context.Background(), NewFileBackend(), input, []*ClipSpec{
		{Start: 500 * time.Millisecond, End: 1500 * time.Millisecond, CopyPackets: true, OutputPath: filepath.Join(dir, "copy.ivf")},
		{Start: 500 * time.Millisecond, End: 1500 * time.Millisecond, Video: VideoSettings{Width: 2, Height: 2}, OutputPath: filepath.Join(dir, "small.ivf")},
	})
	require.Equal(t, StatusSuccess, res.Status, "err: %v", res.Err)
	for _, tr := range res.Targets {
		require.NoError(t, tr.Err)
	}

	check := func(name string, w int) {
		d, err := NewFileBackend().OpenInput(filepath.Join(dir, name))
		require.NoError(t, err)
		defer d.Close()
		assert.Equal(t, w, d.Streams()[0].Params.Width, name)
		pkts := readAll(t, d)
		require.Len(t, pkts, 10, name)
		for i, p := range pkts {
			assert.Equal(t, int64(i), p.PTS, name)
			assert.Equal(t, byte(i+5), p.Data[0], name)
		}
	}
	check("copy.ivf", 4)
	check("small.ivf", 2)
}
