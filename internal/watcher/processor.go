package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"notez-go/internal/logger"
	"notez-go/internal/storage"
	"notez-go/internal/types"
)

type Acceptor interface {
	AcceptFile(ctx context.Context, path string) (*types.Job, error)
}

type Runner interface {
	Run(ctx context.Context, job *types.Job) error
}

type Publisher interface {
	Publish(ctx context.Context, job *types.Job) (types.Result, error)
}

// Processor runs one inbox file end to end and writes the outcome to the outbox
// as <jobID>.json, holding either the result or {"error": ...}.
type Processor struct {
	intake    Acceptor
	pipeline  Runner
	publisher Publisher
	outbox    string
	rejected  func(name string) string
	log       *logger.Logger
}

func NewProcessor(intake Acceptor, pipeline Runner, publisher Publisher, outbox string, log *logger.Logger) (*Processor, error) {
	if err := os.MkdirAll(outbox, 0o755); err != nil {
		return nil, fmt.Errorf("create outbox: %w", err)
	}
	return &Processor{
		intake:    intake,
		pipeline:  pipeline,
		publisher: publisher,
		outbox:    outbox,
		rejected:  rejectedName,
		log:       log.WithComponent("watcher.processor"),
	}, nil
}

// Handle matches the Handler signature. The returned error is the pipeline
// outcome; the outbox file is written either way.
func (p *Processor) Handle(ctx context.Context, path string) error {
	job, err := p.intake.AcceptFile(ctx, path)
	if err != nil {
		name := p.rejected(filepath.Base(path))
		return p.writeOutcome(name, types.ErrorResponse{Error: types.PublicMessage(err)}, err)
	}
	name := job.ID

	if err := p.pipeline.Run(ctx, job); err != nil {
		return p.writeOutcome(name, types.ErrorResponse{Error: types.PublicMessage(err)}, err)
	}

	res, err := p.publisher.Publish(ctx, job)
	if err != nil {
		return p.writeOutcome(name, types.ErrorResponse{Error: types.PublicMessage(err)}, err)
	}
	p.log.WithJob(job).WithField("audio_url", res.AudioURL).Info("inbox file processed")
	return p.writeOutcome(name, res, nil)
}

func (p *Processor) writeOutcome(name string, payload any, cause error) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errors.Join(cause, err)
	}
	target := filepath.Join(p.outbox, name+".json")
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Join(cause, fmt.Errorf("write outbox: %w", err))
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return errors.Join(cause, fmt.Errorf("write outbox: %w", err))
	}
	return cause
}

// rejectedName names the outcome of a file intake refused. There is no job id
// yet, so it gets the same time and random prefix a job id would.
func rejectedName(base string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), suffix, storage.SanitizeName(base))
}
