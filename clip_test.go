package clipper

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestExportModeKinds(t *testing.T) {
	var zero ExportMode
	assert.True(t, zero.Video())
	assert.True(t, zero.Audio())
	assert.Equal(t, "both", zero.String())

	assert.False(t, ExportAudioOnly.Video())
	assert.True(t, ExportAudioOnly.Audio())
	assert.True(t, ExportVideoOnly.Video())
	assert.False(t, ExportVideoOnly.Audio())
}

func TestExportModeEncoding(t *testing.T) {
	var m ExportMode
	require.NoError(t, json.Unmarshal([]byte(`"audio"`), &m))
	assert.Equal(t, ExportAudioOnly, m)
	out, err := json.Marshal(ExportVideoOnly)
	require.NoError(t, err)
	assert.JSONEq(t, `"video"`, string(out))

	err = json.Unmarshal([]byte(`"subtitles"`), &m)
	assert.True(t, errors.Is(err, ErrExportMode), "%v", err)

	var c ClipSpec
	require.NoError(t, yaml.Unmarshal([]byte("mode: both\nend: 2s\n"), &c))
	assert.Equal(t, ExportBoth, c.Mode)
	assert.Equal(t, 2*time.Second, c.End)
}

func TestClipValidate(t *testing.T) {
	tests := []struct {
		name string
		clip ClipSpec
		ok   bool
	}{
		{"valid", ClipSpec{Start: time.Second, End: 2 * time.Second, OutputPath: "a"}, true},
		{"no output", ClipSpec{End: time.Second}, false},
		{"negative start", ClipSpec{Start: -time.Second, End: time.Second, OutputPath: "a"}, false},
		{"empty interval", ClipSpec{Start: time.Second, End: time.Second, OutputPath: "a"}, false},
		{"negative volume", ClipSpec{End: time.Second, OutputPath: "a", AudioTracks: []AudioTrack{{Volume: -1}}}, false},
		{"muted track", ClipSpec{End: time.Second, OutputPath: "a", AudioTracks: []AudioTrack{{Volume: 0}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.clip.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestClipTrackSetting(t *testing.T) {
	c := ClipSpec{AudioTracks: []AudioTrack{
		{Track: 1, Enabled: false, Volume: 1},
		{Track: 2, Enabled: true, Volume: 0.25},
	}}
	assert.Equal(t, AudioTrack{Track: 0, Enabled: true, Volume: 1}, c.trackSetting(0), "unlisted tracks default on")
	assert.False(t, c.trackSetting(1).Enabled)
	assert.Equal(t, 0.25, c.trackSetting(2).Volume)
}
