package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/ivlev/phrase2video/internal/analyzer"
	"github.com/ivlev/phrase2video/internal/config"
	"github.com/ivlev/phrase2video/internal/effects"
	"github.com/ivlev/phrase2video/internal/logging"
	"github.com/ivlev/phrase2video/internal/manifest"
	"github.com/ivlev/phrase2video/internal/source"
	"github.com/ivlev/phrase2video/internal/system"
	"github.com/ivlev/phrase2video/internal/timeline"
	"github.com/ivlev/phrase2video/internal/transcribe"
	"github.com/ivlev/phrase2video/internal/video"
)

// LockFile is created in the output directory while a render runs.
const LockFile = ".phrase2video.lock"

// ErrOutputLocked is returned when another process renders into the same
// output directory.
var ErrOutputLocked = errors.New("output directory is locked by another run")

// DurationProbe reports the length of an audio file in seconds.
type DurationProbe func(ctx context.Context, path string) (float64, error)

// VideoProject wires the pipeline stages together for one configuration.
type VideoProject struct {
	Config      *config.Config
	Transcriber transcribe.Transcriber
	Encoder     video.VideoEncoder
	Resolver    *source.Resolver
	Detector    analyzer.Detector
	Probe       DurationProbe
	Logger      *slog.Logger
}

// NewVideoProject validates cfg and builds the default collaborators:
// whisper.cpp (behind the sqlite cache when CachePath is set), ffmpeg and
// the contrast detector. The returned close function releases the cache.
func NewVideoProject(cfg *config.Config, logger *slog.Logger) (*VideoProject, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger = logging.OrDiscard(logger)

	if cfg.VideoEncoder == "auto" {
		cfg.VideoEncoder = system.GetBestH264Encoder()
		if cfg.VideoEncoder != "libx264" {
			logger.Info("hardware encoder detected", "encoder", cfg.VideoEncoder)
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = system.RecommendedWorkers()
	}

	det, err := analyzer.NewDetector(cfg.FocusDetector)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() error { return nil }
	var tr transcribe.Transcriber = transcribe.NewWhisper(cfg.Whisper, cfg.WorkDir, nil, logging.WithComponent(logger, "whisper"))
	if cfg.CachePath != "" {
		cache, err := transcribe.OpenCache(cfg.CachePath, logger)
		if err != nil {
			return nil, nil, err
		}
		tr = &transcribe.Cached{Inner: tr, Cache: cache, Config: cfg.Whisper, Logger: logger}
		closeFn = cache.Close
	}

	p := &VideoProject{
		Config:      cfg,
		Transcriber: tr,
		Encoder:     &video.FFmpegEncoder{Logger: logging.WithComponent(logger, "ffmpeg")},
		Resolver:    source.NewResolver(cfg.ImagesDir, cfg.WorkDir),
		Detector:    det,
		Probe:       system.AudioDuration,
		Logger:      logger,
	}
	return p, closeFn, nil
}

// Run executes transcription, matching and rendering in one go.
func (p *VideoProject) Run(ctx context.Context) (*manifest.Manifest, error) {
	unlock, err := p.lockOutput()
	if err != nil {
		return nil, err
	}
	defer unlock()

	startTime := time.Now()

	tr, err := p.Segments(ctx)
	if err != nil {
		return nil, err
	}
	transcribeEnd := time.Now()

	tl, err := p.Match(ctx, tr)
	if err != nil {
		return nil, err
	}
	matchEnd := time.Now()

	m, err := p.render(ctx, tl)
	if err != nil {
		return nil, err
	}

	p.log().Info("run finished",
		"output", p.Config.OutputVideo,
		"scenes", len(tl.Scenes),
		"transcribe", transcribeEnd.Sub(startTime).Round(time.Millisecond),
		"match", matchEnd.Sub(transcribeEnd).Round(time.Millisecond),
		"render", time.Since(matchEnd).Round(time.Millisecond),
		"total", time.Since(startTime).Round(time.Millisecond),
	)
	return m, nil
}

// Segments returns the transcript for the run: read from TranscriptPath
// when set, otherwise produced by Transcribe.
func (p *VideoProject) Segments(ctx context.Context) (*timeline.Transcript, error) {
	if p.Config.TranscriptPath != "" {
		tr, err := timeline.ReadTranscript(p.Config.TranscriptPath)
		if err != nil {
			return nil, fmt.Errorf("read transcript: %w", err)
		}
		p.log().Info("transcript loaded", "path", p.Config.TranscriptPath, "segments", len(tr.Segments))
		return tr, nil
	}
	return p.Transcribe(ctx)
}

// Transcribe runs speech recognition on the audio file and writes the
// segments to SegmentsPath.
func (p *VideoProject) Transcribe(ctx context.Context) (*timeline.Transcript, error) {
	if p.Config.AudioPath == "" {
		return nil, config.NewConfigError("audio", "", "no audio file given")
	}
	if p.Transcriber == nil {
		return nil, errors.New("no transcriber configured")
	}

	tr, err := p.Transcriber.Transcribe(ctx, p.Config.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	if p.Config.RefineSentences {
		before := len(tr.Segments)
		tr.Segments = transcribe.RefineSentences(tr.Segments)
		p.log().Debug("segments refined", "before", before, "after", len(tr.Segments))
	}
	if err := timeline.WriteTranscript(p.Config.SegmentsPath, tr); err != nil {
		return nil, fmt.Errorf("write segments: %w", err)
	}
	p.log().Info("transcript ready", "segments", len(tr.Segments), "path", p.Config.SegmentsPath)
	return tr, nil
}

// Match builds the timeline from a transcript and the mapping file and
// writes it to TimelinePath.
func (p *VideoProject) Match(ctx context.Context, tr *timeline.Transcript) (*timeline.Timeline, error) {
	mapping, err := config.LoadMapping(p.Config.MappingPath)
	if err != nil {
		return nil, err
	}

	duration := p.audioDuration(ctx, tr)
	tl, err := timeline.Build(ctx, tr.Segments, mapping.Rules, timeline.Options{
		Threshold:     mapping.Threshold(),
		AudioPath:     p.Config.AudioPath,
		AudioDuration: duration,
		FPS:           p.Config.FPS,
		EndPolicy:     p.Config.EndPolicy,
		Workers:       p.Config.Workers,
		Logger:        logging.WithComponent(p.log(), "timeline"),
	})
	if err != nil {
		return nil, err
	}
	if err := p.resolveAutoFocus(tl); err != nil {
		return nil, err
	}

	if err := timeline.Write(p.Config.TimelinePath, tl); err != nil {
		return nil, fmt.Errorf("write timeline: %w", err)
	}
	p.log().Info("timeline ready", "scenes", len(tl.Scenes), "rules", len(mapping.Rules), "path", p.Config.TimelinePath)
	return tl, nil
}

// Render compiles effects for tl and produces the video and its manifest.
func (p *VideoProject) Render(ctx context.Context, tl *timeline.Timeline) (*manifest.Manifest, error) {
	unlock, err := p.lockOutput()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return p.render(ctx, tl)
}

func (p *VideoProject) render(ctx context.Context, tl *timeline.Timeline) (*manifest.Manifest, error) {
	cfg := p.Config
	if p.audioPath(tl) == "" {
		p.log().Warn("rendering without audio track")
	}
	if err := p.resolveAutoFocus(tl); err != nil {
		return nil, err
	}

	if enc, ok := p.Encoder.(*video.FFmpegEncoder); ok {
		if err := system.CheckBinary(cmp.Or(enc.Binary, "ffmpeg")); err != nil {
			return nil, err
		}
	}

	params, err := effects.CompileTimeline(ctx, tl, p.Resolver.Dims, cfg.Workers)
	if err != nil {
		return nil, err
	}

	m := manifest.New(tl, p.settings(tl))
	m.Output = cfg.OutputVideo
	logger := logging.WithRun(p.log(), m.RunID)

	placements := make([]video.Placement, 0, len(tl.Scenes))
	for i, scene := range tl.Scenes {
		if scene.Duration <= 0 {
			logger.Debug("skipping empty scene", "scene", i, "image", scene.Image)
			continue
		}
		path, err := p.Resolver.Path(scene.Image)
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", i, err)
		}
		filter := effects.FilterChain(params[i], config.SegmentParams{
			Width:      cfg.Width,
			Height:     cfg.Height,
			FPS:        cfg.FPS,
			Duration:   scene.Duration,
			Oversample: cfg.Oversample,
			SceneIndex: i,
			Debug:      cfg.Debug,
		})
		placements = append(placements, video.Placement{Path: path, Start: scene.Start, End: scene.End, Filter: filter})
		m.Scenes = append(m.Scenes, manifest.SceneRender{
			Index:  i,
			Image:  scene.Image,
			Path:   path,
			Start:  scene.Start,
			End:    scene.End,
			Params: params[i],
			Filter: filter,
		})
	}

	job := video.Job{
		Clips:     video.Layout(placements, tl.Audio.Duration, cfg.FPS),
		AudioPath: p.audioPath(tl),
		Output:    cfg.OutputVideo,
		Width:     cfg.Width,
		Height:    cfg.Height,
		FPS:       cfg.FPS,
		Encoder:   cfg.VideoEncoder,
		Quality:   cfg.DefaultQuality(),
	}
	if b, ok := p.Encoder.(interface {
		BuildArgs(video.Job) ([]string, error)
	}); ok {
		args, err := b.BuildArgs(job)
		if err != nil {
			return nil, err
		}
		m.FFmpegArgs = args
	}
	if err := manifest.Write(cfg.ManifestPath, m); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	logger.Info("rendering video",
		"clips", len(job.Clips),
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"fps", cfg.FPS,
		"encoder", job.Encoder,
	)
	if err := p.Encoder.Render(ctx, job); err != nil {
		return nil, err
	}
	logger.Info("video ready", "output", cfg.OutputVideo, "manifest", cfg.ManifestPath)
	return m, nil
}

// resolveAutoFocus fills in detected focus targets for scenes that ask for
// one. Effects are copied so rules shared with the mapping stay untouched.
// Scenes where nothing is detected lose their focus axis.
func (p *VideoProject) resolveAutoFocus(tl *timeline.Timeline) error {
	for i := range tl.Scenes {
		s := &tl.Scenes[i]
		if s.Effects == nil || s.Effects.Focus == nil || !s.Effects.Focus.Auto || s.Effects.Focus.Target != nil {
			continue
		}
		if p.Detector == nil {
			return config.NewConfigError("effects.focus.auto", s.Image, "no detector configured")
		}

		img, err := p.Resolver.Image(s.Image)
		if err != nil {
			return fmt.Errorf("scene %d: %w", i, err)
		}
		target, ok, err := analyzer.FocusTarget(p.Detector, img)
		if err != nil {
			return fmt.Errorf("scene %d: detect focus: %w", i, err)
		}

		spec := *s.Effects
		if ok {
			focus := *spec.Focus
			b := img.Bounds()
			focus.Source = &config.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
			focus.Target = &target
			spec.Focus = &focus
			p.log().Debug("focus detected", "scene", i, "image", s.Image, "target", target)
		} else {
			spec.Focus = nil
			p.log().Warn("no focus region detected", "scene", i, "image", s.Image)
		}
		s.Effects = &spec
	}
	return nil
}

// audioDuration probes the audio file. When that is not possible the
// transcript's own duration or last segment end is used.
func (p *VideoProject) audioDuration(ctx context.Context, tr *timeline.Transcript) float64 {
	if p.Config.AudioPath != "" && p.Probe != nil {
		d, err := p.Probe(ctx, p.Config.AudioPath)
		if err == nil && d > 0 {
			return d
		}
		p.log().Warn("audio duration unavailable", "audio", p.Config.AudioPath, "error", err)
	}
	if tr.Duration > 0 {
		return tr.Duration
	}
	if n := len(tr.Segments); n > 0 {
		return tr.Segments[n-1].End
	}
	return 0
}

// audioPath prefers the configured audio over the one recorded in tl.
func (p *VideoProject) audioPath(tl *timeline.Timeline) string {
	if p.Config.AudioPath != "" {
		return p.Config.AudioPath
	}
	return tl.Audio.Path
}

func (p *VideoProject) settings(tl *timeline.Timeline) manifest.Settings {
	cfg := p.Config
	return manifest.Settings{
		Version:    cfg.BuildVersion,
		Mapping:    cfg.MappingPath,
		Audio:      p.audioPath(tl),
		Width:      cfg.Width,
		Height:     cfg.Height,
		FPS:        cfg.FPS,
		Oversample: cfg.Oversample,
		Encoder:    cfg.VideoEncoder,
		Quality:    cfg.DefaultQuality(),
		Threshold:  tl.Threshold,
		EndPolicy:  tl.EndPolicy,
	}
}

// lockOutput takes an exclusive lock on the output directory.
func (p *VideoProject) lockOutput() (func(), error) {
	dir := p.Config.OutputDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, dir)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			p.log().Warn("release output lock", "error", err)
		}
	}, nil
}

func (p *VideoProject) log() *slog.Logger {
	return logging.OrDiscard(p.Logger)
}
