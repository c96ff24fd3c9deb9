package clipper

import (
	"encoding/json"
	"time"

	"github.com/ansel1/merry/v2"
	"github.com/orsinium-labs/enum"
	"gopkg.in/yaml.v3"
)

// ExportMode selects which media kinds a clip exports.
type ExportMode enum.Member[string]

var (
	ExportAudioOnly = ExportMode{Value: "audio"}
	ExportVideoOnly = ExportMode{Value: "video"}
	ExportBoth      = ExportMode{Value: "both"}
	ExportModes     = enum.New(ExportAudioOnly, ExportVideoOnly, ExportBoth)
	ErrExportMode   = merry.Sentinel("unknown export mode")
)

// Video reports whether the mode exports video. The zero mode exports both.
//
//goland:noinspection GoMixedReceiverTypes
func (m ExportMode) Video() bool { return m != ExportAudioOnly }

// Audio reports whether the mode exports audio.
//
//goland:noinspection GoMixedReceiverTypes
func (m ExportMode) Audio() bool { return m != ExportVideoOnly }

//goland:noinspection GoMixedReceiverTypes
func (m ExportMode) String() string {
	if m.Value == "" {
		return ExportBoth.Value
	}
	return m.Value
}

//goland:noinspection GoMixedReceiverTypes
func (m ExportMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

//goland:noinspection GoMixedReceiverTypes
func (m *ExportMode) UnmarshalJSON(value []byte) error {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return err
	}
	return m.set(s)
}

//goland:noinspection GoMixedReceiverTypes
func (m ExportMode) MarshalYAML() (any, error) {
	return m.String(), nil
}

//goland:noinspection GoMixedReceiverTypes
func (m *ExportMode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return m.set(s)
}

//goland:noinspection GoMixedReceiverTypes
func (m *ExportMode) set(s string) error {
	mode := ExportModes.Parse(s)
	if mode == nil {
		return merry.Wrap(ErrExportMode, merry.WithMessagef("unknown export mode %q", s))
	}
	*m = *mode
	return nil
}

// AudioTrack configures one source audio track. Track is the position of the
// stream among the source audio streams, starting at 0.
type AudioTrack struct {
	Track   int     `yaml:"track" json:"track"`
	Enabled bool    `yaml:"enabled" json:"enabled"`
	Volume  float64 `yaml:"volume" json:"volume"` // Linear, 1 = 100%
}

// UnmarshalYAML defaults missing fields to an enabled track at unit volume.
func (t *AudioTrack) UnmarshalYAML(node *yaml.Node) error {
	type plain AudioTrack
	p := plain{Enabled: true, Volume: 1}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = AudioTrack(p)
	return nil
}

// VideoSettings overrides the video encoder. Zero fields keep the source value.
type VideoSettings struct {
	Width     int       `yaml:"width" json:"width"`
	Height    int       `yaml:"height" json:"height"`
	FPS       float64   `yaml:"fps" json:"fps"`
	Bitrate   int       `yaml:"bitrate" json:"bitrate"`
	Codec     string    `yaml:"codec" json:"codec"`
	ScaleMode ScaleMode `yaml:"scale_mode" json:"-"`
}

// AudioSettings overrides the audio encoder.
type AudioSettings struct {
	Bitrate int    `yaml:"bitrate" json:"bitrate"`
	Codec   string `yaml:"codec" json:"codec"`
}

// ClipSpec describes one requested output clip. It is read-only for the
// duration of a run.
type ClipSpec struct {
	ID          string        `yaml:"id" json:"id"`
	Start       time.Duration `yaml:"start" json:"start"`
	End         time.Duration `yaml:"end" json:"end"`
	Mode        ExportMode    `yaml:"mode" json:"mode"`
	AudioTracks []AudioTrack  `yaml:"audio_tracks" json:"audio_tracks"`
	Video       VideoSettings `yaml:"video" json:"video"`
	Audio       AudioSettings `yaml:"audio" json:"audio"`
	MergeAudio  bool          `yaml:"merge_audio" json:"merge_audio"`
	CopyPackets bool          `yaml:"copy" json:"copy"`
	TwoPass     bool          `yaml:"two_pass" json:"two_pass"`
	OutputPath  string        `yaml:"output" json:"output"`
}

// Validate checks the fields that do not depend on the source.
func (c *ClipSpec) Validate() error {
	if c.OutputPath == "" {
		return merry.New("clip has no output path")
	}
	if c.Start < 0 || c.End <= c.Start {
		return merry.Errorf("clip %s: invalid interval [%s, %s)", c.OutputPath, c.Start, c.End)
	}
	for _, t := range c.AudioTracks {
		if t.Volume < 0 {
			return merry.Errorf("clip %s: negative volume on track %d", c.OutputPath, t.Track)
		}
	}
	return nil
}

// trackSetting returns the setting for the n-th source audio stream. Tracks
// without an entry are enabled at unit volume.
func (c *ClipSpec) trackSetting(n int) AudioTrack {
	for _, t := range c.AudioTracks {
		if t.Track == n {
			return t
		}
	}
	return AudioTrack{Track: n, Enabled: true, Volume: 1}
}
