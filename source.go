package clipper

import (
	"errors"
	"fmt"
	"io"
)

// SourceStream is one elementary stream of the input container.
type SourceStream struct {
	Info    StreamInfo
	decoder Decoder
}

// Decoding reports whether a decoder context was opened for the stream.
func (s *SourceStream) Decoding() bool { return s.decoder != nil }

// SourceStreamSet owns the input container and its decoder contexts.
type SourceStreamSet struct {
	path    string
	demuxer Demuxer
	streams []*SourceStream
}

// openSourceStreams opens the input once and resolves its streams.
func openSourceStreams(backend Backend, path string) (*SourceStreamSet, error) {
	d, err := backend.OpenInput(path)
	if err != nil {
		return nil, inputError(ErrContainerOpen, path, err)
	}
	infos := d.Streams()
	if len(infos) == 0 {
		d.Close()
		return nil, inputError(ErrStreamInfo, path, errors.New("container has no streams"))
	}
	set := &SourceStreamSet{path: path, demuxer: d, streams: make([]*SourceStream, len(infos))}
	for i, info := range infos {
		if info.Index != i {
			d.Close()
			return nil, inputError(ErrStreamInfo, path, fmt.Errorf("stream %d reported index %d", i, info.Index))
		}
		if info.Kind() != MediaUnknown && !info.TimeBase.Valid() {
			d.Close()
			return nil, inputError(ErrStreamInfo, path, fmt.Errorf("stream %d has time base %s", i, info.TimeBase))
		}
		set.streams[i] = &SourceStream{Info: info}
	}
	return set, nil
}

// Path returns the input path.
func (s *SourceStreamSet) Path() string { return s.path }

// Streams returns every stream in container order.
func (s *SourceStreamSet) Streams() []*SourceStream { return s.streams }

// Stream returns the stream at index i, or nil.
func (s *SourceStreamSet) Stream(i int) *SourceStream {
	if i < 0 || i >= len(s.streams) {
		return nil
	}
	return s.streams[i]
}

// OfKind returns the streams of one media kind in container order.
func (s *SourceStreamSet) OfKind(kind MediaKind) []*SourceStream {
	var out []*SourceStream
	for _, st := range s.streams {
		if st.Info.Kind() == kind {
			out = append(out, st)
		}
	}
	return out
}

// openDecoder creates the decoder context of stream i if needed.
func (s *SourceStreamSet) openDecoder(backend Backend, i int) error {
	st := s.streams[i]
	if st.decoder != nil {
		return nil
	}
	dec, err := backend.NewDecoder(st.Info)
	if err != nil {
		return err
	}
	st.decoder = dec
	return nil
}

// decode sends pkt to its stream decoder and collects every frame it yields.
func (s *SourceStreamSet) decode(pkt *Packet) ([]Frame, error) {
	st := s.streams[pkt.StreamIndex]
	if st.decoder == nil {
		return nil, nil
	}
	if err := st.decoder.SendPacket(pkt); err != nil {
		return nil, err
	}
	return receiveFrames(st.decoder)
}

// drain flushes the decoder of stream i at end of input.
func (s *SourceStreamSet) drain(i int) ([]Frame, error) {
	st := s.streams[i]
	if st.decoder == nil {
		return nil, nil
	}
	if err := st.decoder.SendPacket(nil); err != nil {
		return nil, err
	}
	return receiveFrames(st.decoder)
}

func receiveFrames(dec Decoder) ([]Frame, error) {
	var frames []Frame
	for {
		f, err := dec.ReceiveFrame()
		if errors.Is(err, ErrAgain) || errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

// resetDecoders drops decoder state after a seek.
func (s *SourceStreamSet) resetDecoders() {
	for _, st := range s.streams {
		if st.decoder != nil {
			st.decoder.Flush()
		}
	}
}

// Close releases every decoder and the demuxer.
func (s *SourceStreamSet) Close() error {
	var first error
	for _, st := range s.streams {
		if st.decoder != nil {
			if err := st.decoder.Close(); err != nil && first == nil {
				first = err
			}
			st.decoder = nil
		}
	}
	if s.demuxer != nil {
		if err := s.demuxer.Close(); err != nil && first == nil {
			first = err
		}
		s.demuxer = nil
	}
	return first
}
