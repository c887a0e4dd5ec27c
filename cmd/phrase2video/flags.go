package main

import (
	"github.com/spf13/cobra"

	"github.com/ivlev/phrase2video/internal/config"
)

func addAudioFlag(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().StringVarP(&cfg.AudioPath, "audio", "a", "", "Voice-over audio file (default: newest file in "+defaultAudioDir+")")
}

func addMatchFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	f.StringVarP(&cfg.MappingPath, "mapping", "m", "mapping.yaml", "Phrase to image mapping (.yaml, .json or .toml)")
	f.StringVarP(&cfg.ImagesDir, "images", "i", "images", "Directory with the images named in the mapping")
	f.StringVar(&cfg.TranscriptPath, "segments", "", "Read transcript segments from this file instead of transcribing")
	f.StringVar(&cfg.TimelinePath, "timeline", "", "Timeline output path (default <output-dir>/timeline.yaml)")
	f.StringVar(&cfg.EndPolicy, "end-policy", config.EndPolicyHold, "Scene end: hold (until next scene) or segment")
	f.IntVar(&cfg.FPS, "fps", 30, "Frame rate; timeline times snap to frame boundaries")
	f.StringVar(&cfg.FocusDetector, "focus-detector", "contrast", "Region detector for focus.auto: contrast or none")
}

func addTranscribeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.Whisper.BinaryPath, "whisper-bin", "whisper-cli", "whisper.cpp executable")
	f.StringVar(&cfg.Whisper.ModelPath, "whisper-model", "", "whisper.cpp model file")
	f.StringVar(&cfg.Whisper.Language, "language", "", "Spoken language code (empty lets whisper detect it)")
	f.IntVar(&cfg.Whisper.Threads, "threads", 4, "whisper.cpp threads")
	f.BoolVar(&cfg.RefineSentences, "refine-sentences", false, "Split segments at sentence boundaries")
	f.StringVar(&cfg.CachePath, "cache", "", "sqlite file caching transcripts by audio content")
	f.StringVar(&cfg.SegmentsPath, "segments-out", "", "Segments output path (default <output-dir>/segments.yaml)")
}

func addRenderFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	f.IntVar(&cfg.Width, "width", 1920, "Output width")
	f.IntVar(&cfg.Height, "height", 1080, "Output height")
	f.StringVar(&cfg.Preset, "preset", "", "Format preset: 16:9, 9:16 (Shorts/TikTok), 4:5 (Instagram)")
	f.StringVar(&cfg.VideoEncoder, "encoder", "auto", "H.264 encoder: auto, libx264, h264_nvenc, h264_videotoolbox")
	f.IntVar(&cfg.Quality, "quality", 0, "Quality (0 = auto; x264 CRF, NVENC CQ, VideoToolbox bitrate = Q*100 kbit/s)")
	f.IntVar(&cfg.Oversample, "oversample", 2, "Supersampling factor for smooth zoom")
	f.BoolVar(&cfg.Debug, "debug", false, "Burn scene index and timestamps into the video")
	f.StringVar(&cfg.OutputVideo, "output", "", "Video path (default <output-dir>/output.mp4)")
	f.StringVar(&cfg.ManifestPath, "manifest", "", "Render manifest path (default <output-dir>/render_manifest.yaml)")
}
