package probe

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSound_MissingFileIsNotSound(t *testing.T) {
	p := New()
	assert.False(t, p.IsSound("/nonexistent/path/does-not-exist.mp4"))
}

func TestIsSound_TooSmallFileIsNotSound(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/tiny.mp4"
	assert.NoError(t, os.WriteFile(path, make([]byte, 10), 0o644))

	p := New()
	assert.False(t, p.IsSound(path))
}

func TestParseFFProbeJSON_ExtractsStreamsAndDuration(t *testing.T) {
	raw := []byte(`{
		"format": {"duration": "12.345"},
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30/1"},
			{"codec_type": "audio", "codec_name": "aac", "sample_rate": "44100"}
		]
	}`)

	props, err := parseFFProbeJSON(raw)
	assert.NoError(t, err)
	assert.InDelta(t, 12.345, props.DurationSec, 1e-6)
	assert.Equal(t, "h264", props.VideoCodec)
	assert.Equal(t, 1920, props.Width)
	assert.Equal(t, 1080, props.Height)
	assert.InDelta(t, 30.0, props.FPS, 1e-6)
	assert.Equal(t, "aac", props.AudioCodec)
	assert.Equal(t, 44100, props.SampleRate)
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 29.97, parseFrameRate("30000/1001"), 0.01)
	assert.InDelta(t, 25.0, parseFrameRate("25/1"), 1e-9)
	assert.Equal(t, float64(0), parseFrameRate("0/0"))
	assert.Equal(t, float64(0), parseFrameRate("garbage"))
}
