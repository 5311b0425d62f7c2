// Package pipeline drives one Job through extraction, transcription and
// summarization.
package pipeline

import (
	"context"
	"errors"
	"time"

	"notez-go/internal/logger"
	"notez-go/internal/types"
)

type AudioExtractor interface {
	Extract(ctx context.Context, sourcePath string) (string, error)
}

type DurationProber interface {
	Probe(ctx context.Context, path string) (float64, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Cleaner removes job artifacts. Missing files are not an error.
type Cleaner interface {
	Remove(paths ...string) error
}

// Recorder observes terminal jobs.
type Recorder interface {
	Record(job *types.Job)
}

type Deps struct {
	Extractor   AudioExtractor
	Prober      DurationProber
	Transcriber Transcriber
	Summarizer  Summarizer
	Cleaner     Cleaner
	Recorder    Recorder
}

type Orchestrator struct {
	deps Deps
	log  *logger.Logger
}

func New(deps Deps, log *logger.Logger) *Orchestrator {
	return &Orchestrator{deps: deps, log: log.WithComponent("pipeline")}
}

// Run executes every stage once, in order. On failure the job is Failed, its
// artifacts are removed and a *types.StageError is returned. On success the
// source upload is removed and the audio artifact is kept for serving.
func (o *Orchestrator) Run(ctx context.Context, job *types.Job) error {
	start := time.Now()
	if err := job.BeginConversion(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return o.fail(ctx, job, types.ErrCancelled, err)
	}
	audioPath, err := o.deps.Extractor.Extract(ctx, job.SourcePath)
	if err != nil {
		return o.fail(ctx, job, types.ErrExtraction, err)
	}
	duration, err := o.deps.Prober.Probe(ctx, audioPath)
	if err != nil {
		return o.fail(ctx, job, types.ErrExtraction, err, audioPath)
	}
	if err := job.ConversionDone(audioPath, duration); err != nil {
		return o.fail(ctx, job, types.ErrExtraction, err, audioPath)
	}
	o.log.WithJob(job).WithField("duration_sec", duration).Info("audio extracted")

	if err := ctx.Err(); err != nil {
		return o.fail(ctx, job, types.ErrCancelled, err)
	}
	transcript, err := o.deps.Transcriber.Transcribe(ctx, job.AudioPath)
	if err != nil {
		return o.fail(ctx, job, types.ErrTranscription, err)
	}
	if err := job.TranscriptionDone(transcript); err != nil {
		return o.fail(ctx, job, types.ErrTranscription, err)
	}
	o.log.WithJob(job).WithField("chars", len(transcript)).Info("audio transcribed")

	if err := ctx.Err(); err != nil {
		return o.fail(ctx, job, types.ErrCancelled, err)
	}
	summary, err := o.deps.Summarizer.Summarize(ctx, job.Transcript)
	if err != nil {
		return o.fail(ctx, job, types.ErrSummarization, err)
	}
	if err := job.SummaryDone(summary); err != nil {
		return o.fail(ctx, job, types.ErrSummarization, err)
	}

	if err := o.deps.Cleaner.Remove(job.SourcePath); err != nil {
		o.log.WithJob(job).WithField("error", err.Error()).Warn("failed to remove source upload")
	}
	o.record(job)
	o.log.WithJob(job).WithField("elapsed", time.Since(start).String()).Info("job complete")
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, job *types.Job, kind, cause error, extra ...string) *types.StageError {
	if ctx.Err() != nil {
		kind = types.ErrCancelled
	}
	se := &types.StageError{Stage: job.Stage, Kind: kind, Err: cause}
	var d interface{ Diagnostic() string }
	if errors.As(cause, &d) {
		se.Diagnostic = d.Diagnostic()
	}

	entry := o.log.WithJob(job).WithField("error", cause.Error())
	if se.Diagnostic != "" {
		entry = entry.WithField("diagnostic", se.Diagnostic)
	}
	if kind == types.ErrCancelled {
		entry.Warn("job cancelled")
	} else {
		entry.Error("job failed")
	}

	_ = job.Fail(se)

	owned := append([]string{job.SourcePath, job.AudioPath}, extra...)
	if err := o.deps.Cleaner.Remove(nonEmpty(owned)...); err != nil {
		o.log.WithJob(job).WithField("error", err.Error()).Warn("failed to remove job artifacts")
	}
	o.record(job)
	return se
}

func (o *Orchestrator) record(job *types.Job) {
	if o.deps.Recorder != nil {
		o.deps.Recorder.Record(job)
	}
}

func nonEmpty(paths []string) []string {
	out := paths[:0]
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
