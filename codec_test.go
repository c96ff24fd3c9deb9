package clipper

import (
	"errors"
	"io"
	"testing"
)

func TestCodecID_String(t *testing.T) {
	tests := []struct {
		codec CodecID
		want  string
	}{
		{CodecRawVideo, "rawvideo"},
		{CodecVP8, "vp8"},
		{CodecVP9, "vp9"},
		{CodecAV1, "av1"},
		{CodecH264, "h264"},
		{CodecPCMS16LE, "pcm_s16le"},
		{CodecOpus, "opus"},
		{CodecUnknown, "unknown"},
		{CodecID(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.codec.String(); got != tt.want {
				t.Errorf("CodecID.String() = %v, want %v", got, tt.want)
			}
			if tt.codec != CodecUnknown && tt.want != "unknown" {
				if got := ParseCodec(tt.want); got != tt.codec {
					t.Errorf("ParseCodec(%q) = %v, want %v", tt.want, got, tt.codec)
				}
			}
		})
	}
}

func TestCodecID_Kind(t *testing.T) {
	if CodecVP9.Kind() != MediaVideo {
		t.Error("vp9 should be video")
	}
	if CodecOpus.Kind() != MediaAudio {
		t.Error("opus should be audio")
	}
	if CodecUnknown.Kind() != MediaUnknown {
		t.Error("unknown codec should have unknown kind")
	}
}

func TestCodecFourCC(t *testing.T) {
	for _, c := range []CodecID{CodecRawVideo, CodecVP8, CodecVP9, CodecAV1, CodecH264} {
		if got := codecFromFourCC(c.FourCC()); got != c {
			t.Errorf("codecFromFourCC(%q) = %v, want %v", c.FourCC(), got, c)
		}
	}
	if CodecOpus.FourCC() != "" {
		t.Error("audio codecs have no IVF fourcc")
	}
	if codecFromFourCC("XXXX") != CodecUnknown {
		t.Error("unknown fourcc should map to CodecUnknown")
	}
}

func TestParseCodecAliases(t *testing.T) {
	tests := map[string]CodecID{
		"VP8":    CodecVP8,
		"avc":    CodecH264,
		"i420":   CodecRawVideo,
		"pcm":    CodecPCMS16LE,
		"":       CodecUnknown,
		"theora": CodecUnknown,
	}
	for name, want := range tests {
		if got := ParseCodec(name); got != want {
			t.Errorf("ParseCodec(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestRegistryBuiltins(t *testing.T) {
	for _, c := range []CodecID{CodecRawVideo, CodecPCMS16LE} {
		if !IsDecoderAvailable(c) || !IsEncoderAvailable(c) {
			t.Errorf("%s should be registered", c)
		}
	}

	var found bool
	for _, s := range AvailableCodecs() {
		if s.Codec == CodecRawVideo {
			found = true
			if s.Provider != ProviderBuiltin || !s.Decoder || !s.Encoder {
				t.Errorf("rawvideo support = %+v", s)
			}
		}
	}
	if !found {
		t.Error("rawvideo missing from AvailableCodecs")
	}

	_, err := newEncoder(EncoderConfig{Codec: CodecVP9})
	if !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("newEncoder(vp9) error = %v, want ErrUnsupportedCodec", err)
	}
	_, err = newDecoder(StreamInfo{Params: CodecParameters{Codec: CodecAV1}})
	if !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("newDecoder(av1) error = %v, want ErrUnsupportedCodec", err)
	}
}

func TestRawVideoRoundTrip(t *testing.T) {
	enc, err := newRawVideoEncoder(EncoderConfig{Width: 4, Height: 2, FrameRate: Rational{30, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if enc.TimeBase() != (Rational{1, 30}) {
		t.Errorf("TimeBase = %v, want 1/30", enc.TimeBase())
	}

	frame := NewI420Frame(4, 2)
	for i := range frame.Data[0] {
		frame.Data[0][i] = byte(i)
	}
	frame.Data[1][0], frame.Data[2][1] = 200, 201
	frame.PTS = 9

	if err := enc.SendFrame(frame); err != nil {
		t.Fatal(err)
	}
	if _, err := enc.ReceivePacket(); err != nil {
		t.Fatal(err)
	}
	if err := enc.SendFrame(frame); err != nil {
		t.Fatal(err)
	}
	if err := enc.SendFrame(nil); err != nil {
		t.Fatal(err)
	}
	pkt, err := enc.ReceivePacket()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.ReceivePacket(); !errors.Is(err, io.EOF) {
		t.Errorf("after drain: %v, want io.EOF", err)
	}

	dec, err := newRawVideoDecoder(StreamInfo{Params: CodecParameters{Width: 4, Height: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.ReceiveFrame(); !errors.Is(err, ErrAgain) {
		t.Errorf("empty decoder: %v, want ErrAgain", err)
	}
	if err := dec.SendPacket(pkt); err != nil {
		t.Fatal(err)
	}
	f, err := dec.ReceiveFrame()
	if err != nil {
		t.Fatal(err)
	}
	vf := f.(*VideoFrame)
	if vf.PTS != 9 || vf.Data[0][7] != 7 || vf.Data[1][0] != 200 || vf.Data[2][1] != 201 {
		t.Errorf("decoded frame mismatch: pts=%d y7=%d u0=%d v1=%d", vf.PTS, vf.Data[0][7], vf.Data[1][0], vf.Data[2][1])
	}

	if err := dec.SendPacket(&Packet{Data: make([]byte, 3)}); err == nil {
		t.Error("short packet should fail")
	}

	if string(enc.Stats()) != "rawvideo frames=2 bytes=24" {
		t.Errorf("Stats() = %q", enc.Stats())
	}
}

func TestRawVideoEncoderRejects(t *testing.T) {
	if _, err := newRawVideoEncoder(EncoderConfig{Width: 3, Height: 2, FrameRate: Rational{30, 1}}); err == nil {
		t.Error("odd width should fail")
	}
	if _, err := newRawVideoEncoder(EncoderConfig{Width: 4, Height: 2}); err == nil {
		t.Error("missing time base should fail")
	}
	if _, err := newRawVideoEncoder(EncoderConfig{Width: 4, Height: 2, FrameRate: Rational{30, 1}, Pass: 2, Stats: []byte("garbage")}); err == nil {
		t.Error("pass 2 without valid stats should fail")
	}

	enc, _ := newRawVideoEncoder(EncoderConfig{Width: 4, Height: 2, FrameRate: Rational{30, 1}})
	if err := enc.SendFrame(NewI420Frame(8, 8)); err == nil {
		t.Error("mismatched frame size should fail")
	}
	if err := enc.SendFrame(&AudioSamples{}); err == nil {
		t.Error("audio frame should fail")
	}
}

func TestPCMRoundTrip(t *testing.T) {
	enc, err := newPCMEncoder(EncoderConfig{SampleRate: 8000, Channels: 2})
	if err != nil {
		t.Fatal(err)
	}
	in := s16Samples(-1234, 10, 2, 8000, 80)
	if err := enc.SendFrame(in); err != nil {
		t.Fatal(err)
	}
	pkt, err := enc.ReceivePacket()
	if err != nil {
		t.Fatal(err)
	}
	if pkt.PTS != 80 || pkt.Duration != 10 || len(pkt.Data) != 40 {
		t.Errorf("packet pts=%d dur=%d len=%d", pkt.PTS, pkt.Duration, len(pkt.Data))
	}

	dec, err := newPCMDecoder(StreamInfo{Params: CodecParameters{SampleRate: 8000, Channels: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if err := dec.SendPacket(pkt); err != nil {
		t.Fatal(err)
	}
	f, err := dec.ReceiveFrame()
	if err != nil {
		t.Fatal(err)
	}
	s := f.(*AudioSamples)
	if s.SampleCount != 10 || s.PTS != 80 || firstSample(s) != -1234 {
		t.Errorf("decoded samples count=%d pts=%d first=%d", s.SampleCount, s.PTS, firstSample(s))
	}

	if err := dec.SendPacket(&Packet{Data: make([]byte, 3)}); err == nil {
		t.Error("partial sample should fail")
	}
	if err := enc.SendFrame(s16Samples(0, 10, 1, 8000, 0)); err == nil {
		t.Error("channel mismatch should fail")
	}
}

func TestRawVideoEncoderPass2FrameCount(t *testing.T) {
	stats := []byte("rawvideo frames=2 bytes=24")
	enc, err := newRawVideoEncoder(EncoderConfig{Width: 4, Height: 2, FrameRate: Rational{30, 1}, Pass: 2, Stats: stats})
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.SendFrame(NewI420Frame(4, 2)); err != nil {
		t.Fatal(err)
	}
	if err := enc.SendFrame(nil); err == nil {
		t.Error("drain after 1 of 2 frames should fail")
	}

	enc, _ = newRawVideoEncoder(EncoderConfig{Width: 4, Height: 2, FrameRate: Rational{30, 1}, Pass: 2, Stats: stats})
	for i := 0; i < 2; i++ {
		if err := enc.SendFrame(NewI420Frame(4, 2)); err != nil {
			t.Fatal(err)
		}
	}
	if err := enc.SendFrame(nil); err != nil {
		t.Errorf("drain with matching frame count: %v", err)
	}
	if _, err := enc.ReceivePacket(); err != nil {
		t.Errorf("ReceivePacket: %v", err)
	}
}
