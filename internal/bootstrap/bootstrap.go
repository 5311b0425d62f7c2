// Package bootstrap wires configured components into a runnable App.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"notez-go/internal/aggregator"
	"notez-go/internal/config"
	"notez-go/internal/extractor"
	"notez-go/internal/intake"
	"notez-go/internal/logger"
	"notez-go/internal/pipeline"
	"notez-go/internal/publisher"
	"notez-go/internal/report"
	"notez-go/internal/storage"
	"notez-go/internal/summarizer"
	"notez-go/internal/transcription"
)

// App holds the long-lived services shared by the HTTP server and the watcher.
type App struct {
	Workspace *storage.Workspace
	Intake    *intake.Intake
	Pipeline  *pipeline.Orchestrator
	Publisher *publisher.Publisher
	Stats     *aggregator.Aggregator
}

func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	ws, err := storage.NewWorkspace(cfg.Storage.WorkDir)
	if err != nil {
		return nil, err
	}

	ff := extractor.New(extractor.Options{
		Binary:      cfg.FFmpeg.Binary,
		ProbeBinary: cfg.FFmpeg.ProbeBinary,
		AudioCodec:  cfg.FFmpeg.AudioCodec,
		AudioExt:    cfg.FFmpeg.AudioExt,
	}, nil, log)

	stt, err := newTranscriptionBackend(ctx, cfg.Transcription, log)
	if err != nil {
		return nil, err
	}
	llm, err := newSummarizerBackend(ctx, cfg.Summarization)
	if err != nil {
		return nil, err
	}

	exporters, err := report.ForFormats(cfg.Reports.Formats)
	if err != nil {
		return nil, err
	}

	stats := aggregator.New()
	orch := pipeline.New(pipeline.Deps{
		Extractor:   ff,
		Prober:      ff,
		Transcriber: transcription.NewClient(stt, cfg.Transcription.Timeout, log),
		Summarizer: summarizer.NewClient(llm, summarizer.Options{
			SystemPrompt: cfg.Summarization.SystemPrompt,
			Temperature:  *cfg.Summarization.Temperature,
			Timeout:      cfg.Summarization.Timeout,
		}, log),
		Cleaner:  ws,
		Recorder: stats,
	}, log)

	return &App{
		Workspace: ws,
		Intake:    intake.New(ws, cfg.Storage.AllowedContentTypes, log),
		Pipeline:  orch,
		Publisher: publisher.New(cfg.Storage.PublicBaseURL, ws, exporters, log),
		Stats:     stats,
	}, nil
}

func newTranscriptionBackend(ctx context.Context, cfg config.TranscriptionConfig, log *logger.Logger) (transcription.Backend, error) {
	switch cfg.Provider {
	case "openai":
		return transcription.NewOpenAI(cfg.Endpoint, cfg.APIKey, cfg.Model, &http.Client{Timeout: cfg.Timeout}), nil
	case "gemini":
		return transcription.NewGemini(ctx, cfg.APIKey, cfg.Model)
	case "async":
		return transcription.NewAsync(transcription.AsyncOptions{
			Host:         cfg.Endpoint,
			APIKey:       cfg.APIKey,
			PollInterval: cfg.PollInterval,
			MaxPolls:     cfg.MaxPolls,
		}, &http.Client{Timeout: 30 * time.Second}, log), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}

func newSummarizerBackend(ctx context.Context, cfg config.SummarizationConfig) (summarizer.Backend, error) {
	switch cfg.Provider {
	case "openai":
		return summarizer.NewOpenAI(cfg.Endpoint, cfg.APIKey, cfg.Model, &http.Client{Timeout: cfg.Timeout}), nil
	case "gemini":
		return summarizer.NewGemini(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown summarization provider %q", cfg.Provider)
	}
}

// Sweep removes workspace artifacts older than retention every interval until
// ctx ends. A zero retention disables it.
func (a *App) Sweep(ctx context.Context, retention, interval time.Duration, log *logger.Logger) {
	if retention <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.Workspace.Sweep(retention)
			if err != nil {
				log.WithField("error", err.Error()).Warn("workspace sweep incomplete")
			}
			if n > 0 {
				log.WithField("removed", n).Info("workspace sweep")
			}
		}
	}
}
