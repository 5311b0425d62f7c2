package extractor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"notez-go/internal/logger"
	"notez-go/internal/storage"
)

// ErrInvalidDuration means the probe produced no strictly positive duration.
var ErrInvalidDuration = errors.New("audio duration is missing or not positive")

// FFmpeg converts uploads to an audio-only artifact and probes its duration.
type FFmpeg struct {
	binary      string
	probeBinary string
	codec       string
	ext         string
	runner      Runner
	stat        func(string) (os.FileInfo, error)
	remove      func(string) error
	log         *logger.Logger
}

type Options struct {
	Binary      string
	ProbeBinary string
	AudioCodec  string
	AudioExt    string
}

func New(opts Options, runner Runner, log *logger.Logger) *FFmpeg {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFmpeg{
		binary:      opts.Binary,
		probeBinary: opts.ProbeBinary,
		codec:       opts.AudioCodec,
		ext:         opts.AudioExt,
		runner:      runner,
		stat:        os.Stat,
		remove:      os.Remove,
		log:         log.WithComponent("extractor"),
	}
}

// Extract writes <source base><ext> next to the source and returns its path.
func (f *FFmpeg) Extract(ctx context.Context, sourcePath string) (string, error) {
	audioPath := storage.SwapExt(sourcePath, f.ext)
	if audioPath == sourcePath {
		return "", fmt.Errorf("audio path would overwrite source %s", sourcePath)
	}

	args := buildExtractArgs(sourcePath, audioPath, f.codec)
	f.log.WithField("source", sourcePath).Debug("running ffmpeg")

	res, err := f.runner.Run(ctx, f.binary, args...)
	if err != nil {
		_ = f.remove(audioPath)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &CommandError{
			Command:  f.binary,
			Args:     args,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}

	if _, err := f.stat(audioPath); err != nil {
		return "", &CommandError{
			Command: f.binary,
			Args:    args,
			Stderr:  res.Stderr,
			Err:     fmt.Errorf("ffmpeg completed but output file is missing: %w", err),
		}
	}
	return audioPath, nil
}

// Probe returns the duration of path in seconds.
func (f *FFmpeg) Probe(ctx context.Context, path string) (float64, error) {
	args := buildProbeArgs(path)
	res, err := f.runner.Run(ctx, f.probeBinary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &CommandError{
			Command:  f.probeBinary,
			Args:     args,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}
	return parseDuration(res.Stdout)
}

func buildExtractArgs(inputPath, outPath, codec string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-c:a", codec,
		outPath,
	}
}

func buildProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// parseDuration reads the first line of ffprobe output. ffprobe prints "N/A"
// when the container carries no duration.
func parseDuration(out string) (float64, error) {
	line := strings.TrimSpace(out)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" || line == "N/A" {
		return 0, ErrInvalidDuration
	}
	d, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, line)
	}
	if !(d > 0) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, d)
	}
	return d, nil
}
