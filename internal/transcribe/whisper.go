// Package transcribe produces timestamped transcript segments from an
// audio file with the whisper.cpp command line tool.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ivlev/phrase2video/internal/config"
	"github.com/ivlev/phrase2video/internal/logging"
	"github.com/ivlev/phrase2video/internal/timeline"
)

// Transcriber turns an audio file into transcript segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*timeline.Transcript, error)
}

// Whisper runs whisper.cpp with JSON output.
type Whisper struct {
	cfg      config.WhisperConfig
	workDir  string
	executor Executor
	logger   *slog.Logger
}

// NewWhisper creates a whisper.cpp transcriber that writes its raw output
// into workDir.
func NewWhisper(cfg config.WhisperConfig, workDir string, executor Executor, logger *slog.Logger) *Whisper {
	if executor == nil {
		executor = NewExecutor()
	}
	return &Whisper{cfg: cfg, workDir: workDir, executor: executor, logger: logging.OrDiscard(logger)}
}

// Args returns the whisper.cpp arguments for audioPath. Decoding is kept
// deterministic: fixed beam search, no temperature fallback.
func (w *Whisper) Args(audioPath, outputPrefix string) []string {
	args := []string{
		"-m", w.cfg.ModelPath,
		"-f", audioPath,
		"-oj",
		"-t", strconv.Itoa(max(1, w.cfg.Threads)),
		"-bo", "5",
		"-bs", "5",
		"-tp", "0",
		"-nf",
		"--output-file", outputPrefix,
	}
	if w.cfg.Language != "" {
		args = append(args, "-l", w.cfg.Language)
	}
	return args
}

func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (*timeline.Transcript, error) {
	if w.cfg.ModelPath == "" {
		return nil, config.NewConfigError("whisper.model", "", "model path is required for transcription")
	}
	if err := os.MkdirAll(w.workDir, 0755); err != nil {
		return nil, err
	}

	prefix := filepath.Join(w.workDir, strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath)))
	w.logger.Info("transcribing", "audio", audioPath, "model", w.cfg.ModelPath, "threads", w.cfg.Threads)

	if _, err := w.executor.Execute(ctx, w.cfg.BinaryPath, w.Args(audioPath, prefix)...); err != nil {
		return nil, fmt.Errorf("whisper transcribe: %w", err)
	}

	data, err := os.ReadFile(prefix + ".json")
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}
	tr, err := ParseWhisperJSON(data)
	if err != nil {
		return nil, err
	}
	w.logger.Info("transcription completed", "segments", len(tr.Segments), "language", tr.Language)
	return tr, nil
}

type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// ParseWhisperJSON converts whisper.cpp -oj output into segments. Offsets
// are milliseconds; blank segments are dropped and ids renumbered.
func ParseWhisperJSON(data []byte) (*timeline.Transcript, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	tr := &timeline.Transcript{Language: out.Result.Language}
	for _, s := range out.Transcription {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		start := float64(s.Offsets.From) / 1000
		end := float64(s.Offsets.To) / 1000
		if end < start {
			end = start
		}
		if n := len(tr.Segments); n > 0 && start < tr.Segments[n-1].Start {
			start = tr.Segments[n-1].Start
		}
		tr.Segments = append(tr.Segments, timeline.Segment{
			Index: len(tr.Segments),
			Start: start,
			End:   end,
			Text:  text,
		})
	}
	if n := len(tr.Segments); n > 0 {
		tr.Duration = tr.Segments[n-1].End
	}
	return tr, nil
}
