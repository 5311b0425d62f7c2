// Package publisher turns a completed job into the success payload.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	"notez-go/internal/logger"
	"notez-go/internal/report"
	"notez-go/internal/storage"
	"notez-go/internal/types"
)

// ErrJobNotComplete is a caller bug: only Complete jobs may be published.
var ErrJobNotComplete = errors.New("job is not complete")

type Publisher struct {
	baseURL   string
	ws        *storage.Workspace
	exporters []report.Exporter
	log       *logger.Logger
}

func New(baseURL string, ws *storage.Workspace, exporters []report.Exporter, log *logger.Logger) *Publisher {
	return &Publisher{
		baseURL:   baseURL,
		ws:        ws,
		exporters: exporters,
		log:       log.WithComponent("publisher"),
	}
}

// Publish builds the result for job. When exporters are configured each report
// is written next to the audio artifact and linked under Reports. Any export
// failure removes what was written, including the audio, and returns an error.
func (p *Publisher) Publish(ctx context.Context, job *types.Job) (types.Result, error) {
	if job == nil || !job.Reached(types.StageComplete) {
		stage := types.Stage("")
		if job != nil {
			stage = job.Stage
		}
		p.log.WithJob(job).Error("publish called on a job that is not complete")
		return types.Result{}, fmt.Errorf("%w: stage %s", ErrJobNotComplete, stage)
	}

	audioURL, err := p.urlFor(job.AudioPath)
	if err != nil {
		return types.Result{}, err
	}
	res := types.Result{
		AudioURL:      audioURL,
		Transcription: job.Transcript,
		Summary:       job.Summary,
		DurationSec:   job.DurationSeconds,
	}

	if len(p.exporters) == 0 {
		return res, nil
	}

	doc := report.FromJob(job)
	var written []string
	res.Reports = make(map[string]string, len(p.exporters))
	for _, exp := range p.exporters {
		if err := ctx.Err(); err != nil {
			p.discard(job, written)
			return types.Result{}, err
		}
		path, err := p.ws.Resolve(filepath.Base(storage.SwapExt(job.AudioPath, "."+exp.Format())))
		if err == nil {
			err = exp.Export(path, doc)
		}
		if err != nil {
			p.discard(job, append(written, path))
			return types.Result{}, fmt.Errorf("export %s report: %w", exp.Format(), err)
		}
		written = append(written, path)

		u, err := p.urlFor(path)
		if err != nil {
			p.discard(job, written)
			return types.Result{}, err
		}
		res.Reports[exp.Format()] = u
	}
	p.log.WithJob(job).WithField("reports", len(written)).Debug("reports exported")
	return res, nil
}

func (p *Publisher) urlFor(path string) (string, error) {
	u, err := url.JoinPath(p.baseURL, filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("build public url: %w", err)
	}
	return u, nil
}

func (p *Publisher) discard(job *types.Job, reports []string) {
	paths := append([]string{job.AudioPath}, reports...)
	var clean []string
	for _, path := range paths {
		if path != "" {
			clean = append(clean, path)
		}
	}
	if err := p.ws.Remove(clean...); err != nil {
		p.log.WithJob(job).WithField("error", err.Error()).Warn("failed to remove artifacts after publish failure")
	}
}
