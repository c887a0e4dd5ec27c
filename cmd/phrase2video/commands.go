package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivlev/phrase2video/internal/config"
	"github.com/ivlev/phrase2video/internal/engine"
	"github.com/ivlev/phrase2video/internal/logging"
	"github.com/ivlev/phrase2video/internal/timeline"
	"github.com/ivlev/phrase2video/internal/watcher"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Transcribe, match and render in one pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx.defaultAudio()
			p, closeFn, err := ctx.project()
			if err != nil {
				return err
			}
			defer closeFn()

			m, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTimeline(m.Timeline))
			fmt.Fprintf(cmd.OutOrStdout(), "Video: %s\n", m.Output)
			return nil
		},
	}
	addAudioFlag(cmd, &ctx.cfg)
	addMatchFlags(cmd, &ctx.cfg)
	addTranscribeFlags(cmd, &ctx.cfg)
	addRenderFlags(cmd, &ctx.cfg)
	return cmd
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe the audio into timestamped segments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx.defaultAudio()
			p, closeFn, err := ctx.project()
			if err != nil {
				return err
			}
			defer closeFn()

			tr, err := p.Transcribe(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d segments written to %s\n", len(tr.Segments), p.Config.SegmentsPath)
			return nil
		},
	}
	addAudioFlag(cmd, &ctx.cfg)
	addTranscribeFlags(cmd, &ctx.cfg)
	return cmd
}

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var initMapping bool
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match transcript segments against the mapping and write the timeline",
		Long: "Match reads segments written by `transcribe` (or --segments) and the mapping file, " +
			"then writes timeline.yaml. With --init it writes a sample mapping file instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if initMapping {
				written, err := config.WriteSampleMapping(ctx.cfg.MappingPath)
				if err != nil {
					return err
				}
				if written {
					fmt.Fprintf(cmd.OutOrStdout(), "Sample mapping written to %s\n", ctx.cfg.MappingPath)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Mapping %s already exists, left untouched\n", ctx.cfg.MappingPath)
				}
				return nil
			}

			p, closeFn, err := ctx.project()
			if err != nil {
				return err
			}
			defer closeFn()

			tl, err := matchOnce(cmd.Context(), p)
			if err != nil {
				return err
			}
			printTimeline(cmd, tl)
			return nil
		},
	}
	cmd.Flags().BoolVar(&initMapping, "init", false, "Write a sample mapping file and exit")
	addAudioFlag(cmd, &ctx.cfg)
	addMatchFlags(cmd, &ctx.cfg)
	return cmd
}

func newRenderCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a video from an existing timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closeFn, err := ctx.project()
			if err != nil {
				return err
			}
			defer closeFn()

			tl, err := timeline.Read(p.Config.TimelinePath)
			if err != nil {
				return fmt.Errorf("read timeline: %w", err)
			}
			m, err := p.Render(cmd.Context(), tl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Video: %s (run %s)\n", m.Output, m.RunID)
			return nil
		},
	}
	addAudioFlag(cmd, &ctx.cfg)
	cmd.Flags().StringVarP(&ctx.cfg.ImagesDir, "images", "i", "images", "Directory with the images named in the timeline")
	cmd.Flags().StringVar(&ctx.cfg.TimelinePath, "timeline", "", "Timeline to render (default <output-dir>/timeline.yaml)")
	cmd.Flags().IntVar(&ctx.cfg.FPS, "fps", 30, "Frame rate")
	addRenderFlags(cmd, &ctx.cfg)
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the timeline every time the mapping file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closeFn, err := ctx.project()
			if err != nil {
				return err
			}
			defer closeFn()

			rebuild := func(c context.Context, path string) error {
				tl, err := matchOnce(c, p)
				if err != nil {
					return err
				}
				printTimeline(cmd, tl)
				return nil
			}
			if err := rebuild(cmd.Context(), p.Config.MappingPath); err != nil {
				ctx.logger.Error("initial build failed", "error", err)
			}

			w, err := watcher.New(p.Config.MappingPath, rebuild, logging.WithComponent(ctx.logger, "watch"), watcher.DefaultDebounce)
			if err != nil {
				return err
			}
			defer w.Stop()
			return w.Start(cmd.Context())
		},
	}
	addAudioFlag(cmd, &ctx.cfg)
	addMatchFlags(cmd, &ctx.cfg)
	return cmd
}

// matchOnce reads the transcript (default: the segments file written by
// transcribe) and rebuilds the timeline.
func matchOnce(ctx context.Context, p *engine.VideoProject) (*timeline.Timeline, error) {
	if p.Config.TranscriptPath == "" {
		p.Config.TranscriptPath = p.Config.SegmentsPath
	}
	tr, err := p.Segments(ctx)
	if err != nil {
		return nil, err
	}
	return p.Match(ctx, tr)
}

func printTimeline(cmd *cobra.Command, tl *timeline.Timeline) {
	out := cmd.OutOrStdout()
	if len(tl.Scenes) == 0 {
		fmt.Fprintln(out, "No phrases matched; the timeline is empty.")
		return
	}
	fmt.Fprintln(out, renderTimeline(tl))
}
