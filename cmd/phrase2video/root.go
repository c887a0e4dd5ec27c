package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ivlev/phrase2video/internal/config"
	"github.com/ivlev/phrase2video/internal/engine"
	"github.com/ivlev/phrase2video/internal/logging"
	"github.com/ivlev/phrase2video/internal/system"
)

// defaultAudioDir is searched for the newest audio file when --audio is
// not given.
const defaultAudioDir = "input/audio"

type commandContext struct {
	cfg    config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "phrase2video",
		Short:         "Build a narrated slideshow video from spoken phrases",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx.logger = logging.New(logging.Options{
				Level:  ctx.cfg.LogLevel,
				Format: ctx.cfg.LogFormat,
				Output: cmd.ErrOrStderr(),
			})
			ctx.cfg.BuildVersion = version
			system.InitResourceLimits(ctx.logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&ctx.cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&ctx.cfg.LogFormat, "log-format", "auto", "Log format: text, json or auto")
	pf.StringVarP(&ctx.cfg.OutputDir, "output-dir", "o", "out", "Directory for segments, timeline, manifest and video")
	pf.IntVar(&ctx.cfg.Workers, "workers", 0, "Parallel workers (0 picks from CPU and memory)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newTranscribeCommand(ctx))
	rootCmd.AddCommand(newMatchCommand(ctx))
	rootCmd.AddCommand(newRenderCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))

	return rootCmd
}

// project builds the pipeline from the parsed flags.
func (c *commandContext) project() (*engine.VideoProject, func() error, error) {
	return engine.NewVideoProject(&c.cfg, c.logger)
}

// defaultAudio picks the newest file in defaultAudioDir when no audio or
// transcript was given.
func (c *commandContext) defaultAudio() {
	if c.cfg.AudioPath != "" || c.cfg.TranscriptPath != "" {
		return
	}
	latest, err := system.FindLatestAudio(defaultAudioDir)
	if err != nil {
		return
	}
	c.cfg.AudioPath = latest
	c.logger.Info("using latest audio file", "audio", latest)
}
