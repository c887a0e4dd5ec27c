// Package video assembles and runs the single ffmpeg invocation that turns
// scene images and the voice track into the final video.
package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Clip is one input stream of the concat graph. An empty Path is a black
// gap of the given duration.
type Clip struct {
	Path     string
	Duration float64
	Filter   string
}

// Job is a full render request.
type Job struct {
	Clips     []Clip
	AudioPath string
	Output    string
	Width     int
	Height    int
	FPS       int
	Encoder   string
	Quality   int
}

type VideoEncoder interface {
	Render(ctx context.Context, job Job) error
}

type FFmpegEncoder struct {
	Binary string // defaults to "ffmpeg"
	Logger *slog.Logger
}

// Render runs ffmpeg for job. The combined output is attached to the error
// when ffmpeg fails.
func (e *FFmpegEncoder) Render(ctx context.Context, job Job) error {
	args, err := e.BuildArgs(job)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(job.Output); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	if e.Logger != nil {
		e.Logger.Debug("running ffmpeg", "clips", len(job.Clips), "output", job.Output, "args", strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg render error: %w, output: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// BuildArgs returns the ffmpeg arguments for job.
func (e *FFmpegEncoder) BuildArgs(job Job) ([]string, error) {
	if len(job.Clips) == 0 {
		return nil, errors.New("nothing to render: no clips")
	}
	if job.FPS <= 0 || job.Width <= 0 || job.Height <= 0 {
		return nil, fmt.Errorf("invalid output format %dx%d@%d", job.Width, job.Height, job.FPS)
	}
	if job.Output == "" {
		return nil, errors.New("output path is empty")
	}

	fps := strconv.Itoa(job.FPS)
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}

	var graph []string
	var concatInputs strings.Builder
	for i, c := range job.Clips {
		dur := fmt.Sprintf("%.6f", c.Duration)
		if c.Path == "" {
			args = append(args,
				"-f", "lavfi",
				"-t", dur,
				"-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d", job.Width, job.Height, job.FPS),
			)
		} else {
			args = append(args,
				"-loop", "1",
				"-framerate", fps,
				"-t", dur,
				"-i", c.Path,
			)
		}

		filter := c.Filter
		if filter == "" {
			filter = GapFilter(job.FPS, c.Duration)
		}
		graph = append(graph, fmt.Sprintf("[%d:v]setpts=PTS-STARTPTS,%s[v%d]", i, filter, i))
		fmt.Fprintf(&concatInputs, "[v%d]", i)
	}
	graph = append(graph, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[vout]", concatInputs.String(), len(job.Clips)))

	if job.AudioPath != "" {
		args = append(args, "-i", job.AudioPath)
	}

	args = append(args, "-filter_complex", strings.Join(graph, ";"), "-map", "[vout]")
	if job.AudioPath != "" {
		args = append(args, "-map", fmt.Sprintf("%d:a:0", len(job.Clips)))
	}

	encoder := job.Encoder
	if encoder == "" {
		encoder = "libx264"
	}
	args = append(args, "-r", fps, "-c:v", encoder, "-pix_fmt", "yuv420p")
	args = append(args, QualityArgs(encoder, job.Quality)...)

	if job.AudioPath != "" {
		args = append(args, "-c:a", "aac", "-shortest")
	}
	args = append(args, "-movflags", "+faststart", job.Output)
	return args, nil
}

// QualityArgs maps a quality value onto the encoder's rate control flags.
func QualityArgs(encoder string, quality int) []string {
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox does not honor -q:v everywhere; use a bitrate.
		bitrate := quality * 100 // kbit/s, 75 -> 7.5 Mbit/s
		return []string{"-b:v", fmt.Sprintf("%dk", bitrate)}
	case "h264_nvenc":
		return []string{"-cq", strconv.Itoa(quality)}
	default: // libx264
		return []string{"-crf", strconv.Itoa(quality), "-preset", "medium"}
	}
}

// GapFilter normalizes a black gap stream for concat.
func GapFilter(fps int, duration float64) string {
	return fmt.Sprintf("setsar=1,fps=%d,trim=duration=%.6f,format=yuv420p", fps, duration)
}
