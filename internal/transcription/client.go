package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"notez-go/internal/logger"
)

// ErrEmptyTranscript means the backend succeeded but returned no text at all.
var ErrEmptyTranscript = errors.New("transcription returned empty text")

// Backend sends one audio payload to a speech-to-text provider.
type Backend interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// Client reads an audio artifact and hands it to a Backend.
type Client struct {
	backend  Backend
	timeout  time.Duration
	readFile func(string) ([]byte, error)
	log      *logger.Logger
}

func NewClient(backend Backend, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		backend:  backend,
		timeout:  timeout,
		readFile: os.ReadFile,
		log:      log.WithComponent("transcription"),
	}
}

// Transcribe returns the transcript of audioPath. Whitespace-only text is a
// valid transcript; only "" is rejected.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	data, err := c.readFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := c.backend.Transcribe(ctx, filepath.Base(audioPath), data)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrEmptyTranscript
	}

	c.log.WithField("bytes", len(data)).
		WithField("chars", len(text)).
		WithField("elapsed", time.Since(start).String()).
		Debug("transcription received")
	return text, nil
}
