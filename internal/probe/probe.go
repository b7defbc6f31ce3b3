// Package probe runs cheap structural checks on media files using ffprobe,
// under a short fixed timeout. A timeout or non-zero exit counts as "not
// sound" rather than as an error, matching the spec's Probe/Validator
// contract: these are cheap gates, not diagnostic tools.
package probe

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/clipweave/stitcher/internal/procgroup"
)

// DefaultTimeout bounds every probe subprocess call.
const DefaultTimeout = 5 * time.Second

// minSoundBytes is the small file-size floor below which a file cannot be sound.
const minSoundBytes = 1024

// Properties is the subset of a media file's stream parameters the
// Orchestrator needs to compute output timing and validate canonical form.
type Properties struct {
	DurationSec float64
	Width       int
	Height      int
	VideoCodec  string
	AudioCodec  string
	SampleRate  int
	FPS         float64
}

// Prober runs the structural checks. FFProbePath defaults to "ffprobe" and
// is overridable for tests or custom installs.
type Prober struct {
	FFProbePath string
	Timeout     time.Duration
}

// New returns a Prober using the system ffprobe binary.
func New() *Prober {
	return &Prober{FFProbePath: "ffprobe", Timeout: DefaultTimeout}
}

func (p *Prober) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultTimeout
}

func (p *Prober) ffprobePath() string {
	if p.FFProbePath != "" {
		return p.FFProbePath
	}
	return "ffprobe"
}

// IsSound reports whether path is large enough, has at least one video
// stream, and decodes at least one frame from that stream. Any failure,
// including a timeout, returns false rather than an error.
func (p *Prober) IsSound(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() < minSoundBytes {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath(),
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_type",
		"-read_intervals", "%+#1",
		"-of", "csv=p=0",
		path,
	)
	procgroup.Set(cmd)
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "video")
}

// Properties probes the full stream parameter set used downstream for
// timing and canonical-form validation.
func (p *Prober) Properties(path string) (Properties, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath(),
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	procgroup.Set(cmd)
	out, err := cmd.Output()
	if err != nil {
		return Properties{}, err
	}
	return parseFFProbeJSON(out)
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		SampleRate string `json:"sample_rate"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

func parseFFProbeJSON(raw []byte) (Properties, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Properties{}, err
	}

	var props Properties
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		props.DurationSec = d
	}
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			props.VideoCodec = s.CodecName
			props.Width = s.Width
			props.Height = s.Height
			props.FPS = parseFrameRate(s.RFrameRate)
		case "audio":
			props.AudioCodec = s.CodecName
			if sr, err := strconv.Atoi(s.SampleRate); err == nil {
				props.SampleRate = sr
			}
		}
	}
	return props, nil
}

// parseFrameRate converts an ffprobe rational frame rate ("30000/1001") to
// a float, returning 0 on malformed input.
func parseFrameRate(raw string) float64 {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		f, _ := strconv.ParseFloat(raw, 64)
		return f
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
