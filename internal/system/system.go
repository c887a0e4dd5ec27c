package system

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sys/unix"
)

// InitResourceLimits raises the open file limit; a render opens one input
// per scene.
func InitResourceLimits(logger *slog.Logger) {
	var rLimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("read open file limit", "error", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("raise open file limit", "error", err)
		return
	}
	logger.Debug("open file limit raised", "limit", rLimit.Cur)
}

var audioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}

// IsAudio reports whether name has a known audio extension.
func IsAudio(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// FindLatestAudio returns the most recently modified audio file in dir.
func FindLatestAudio(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !IsAudio(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no audio files found in %s", dir)
	}

	return latestFile, nil
}

// AudioDuration asks ffprobe for the container duration in seconds.
func AudioDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return ParseDuration(string(out))
}

// ParseDuration parses ffprobe's bare duration output.
func ParseDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %v", d)
	}
	return d, nil
}

// CheckBinary returns an error when name is not on PATH.
func CheckBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return nil
}

var (
	ffmpegInfoMu sync.Mutex
	ffmpegInfo   = map[string]string{}
)

// ffmpegList runs `ffmpeg -hide_banner -<what>` once per process.
func ffmpegList(what string) string {
	ffmpegInfoMu.Lock()
	defer ffmpegInfoMu.Unlock()
	if out, ok := ffmpegInfo[what]; ok {
		return out
	}
	out, err := exec.Command("ffmpeg", "-hide_banner", "-"+what).CombinedOutput()
	if err != nil {
		out = nil
	}
	ffmpegInfo[what] = string(out)
	return ffmpegInfo[what]
}

// CheckFilterSupport reports whether the local ffmpeg has the named filter.
func CheckFilterSupport(name string) bool {
	for _, line := range strings.Split(ffmpegList("filters"), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}

// GetBestH264Encoder picks a hardware H.264 encoder when ffmpeg has one.
func GetBestH264Encoder() string {
	// Priority: VideoToolbox on macOS, then NVENC, then libx264.
	encoders := ffmpegList("encoders")
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(encoders, name) {
			return name
		}
	}
	return "libx264"
}

// RecommendedWorkers sizes the worker pool from physical cores, keeping
// roughly 256 MiB of available memory per worker.
func RecommendedWorkers() int {
	workers, err := cpu.Counts(false)
	if err != nil || workers < 1 {
		workers = runtime.NumCPU()
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		const perWorker = 256 << 20
		if byMem := int(vm.Available / perWorker); byMem >= 1 && byMem < workers {
			workers = byMem
		}
	}

	return max(1, workers)
}
