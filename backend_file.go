package clipper

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ansel1/merry/v2"
)

// FileBackend is the built-in Backend. It reads and writes IVF (video) and Ogg
// Opus (audio) files and uses the registered codecs: raw I420 and PCM in pure
// Go, Opus through libopus when it can be loaded.
type FileBackend struct{}

// NewFileBackend returns the built-in backend.
func NewFileBackend() *FileBackend { return &FileBackend{} }

// OpenInput sniffs the container signature and opens a demuxer.
func (b *FileBackend) OpenInput(path string) (Demuxer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		f.Close()
		return nil, merry.Wrap(ErrUnsupportedContainer, merry.WithMessagef("%s: cannot read signature: %v", path, err))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	switch string(magic) {
	case ivfSignature:
		return openIVF(f)
	case oggSignature:
		return openOgg(f)
	}
	f.Close()
	return nil, merry.Wrap(ErrUnsupportedContainer, merry.WithMessagef("%s: unknown signature %q", path, magic))
}

// NewDecoder implements Backend.
func (b *FileBackend) NewDecoder(stream StreamInfo) (Decoder, error) { return newDecoder(stream) }

// NewEncoder implements Backend.
func (b *FileBackend) NewEncoder(config EncoderConfig) (Encoder, error) { return newEncoder(config) }

// CreateOutput picks the container from the file extension. The file itself
// is created by WriteHeader.
func (b *FileBackend) CreateOutput(path string) (Muxer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ivf":
		return &ivfMuxer{path: path}, nil
	case ".ogg", ".opus", ".oga":
		return &oggMuxer{path: path}, nil
	}
	return nil, merry.Wrap(ErrUnsupportedContainer, merry.WithMessagef("no muxer for %q", filepath.Ext(path)))
}

// countingReader tracks the absolute offset of the underlying file so that
// packet positions can be indexed for seeking.
type countingReader struct {
	r   io.Reader
	off int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.off += int64(n)
	return n, err
}

// seekTo repositions f and the counter at off.
func (c *countingReader) seekTo(f io.Seeker, off int64) error {
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return err
	}
	c.off = off
	return nil
}
