package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"notez-go/internal/logger"
	"notez-go/internal/provider"
)

// ErrPollTimeout means the job never left the queue within the poll budget.
var ErrPollTimeout = errors.New("transcription did not finish in time")

var errPending = errors.New("transcription pending")

type publishResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		MediaID          string `json:"MediaId"`
		Status           string `json:"Status"`
		TranscriptionURL string `json:"TranscriptionURL"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

type statusResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		Status               string `json:"Status"`
		TranscriptionTextURL string `json:"TranscriptionTextURL"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

// Async drives a submit-then-poll transcription service:
// POST /transcribe, GET /getstatus?mediaId=..., then download the text.
type Async struct {
	host         string
	apiKey       string
	pollInterval time.Duration
	maxPolls     int
	httpClient   *http.Client
	log          *logger.Logger
}

type AsyncOptions struct {
	Host         string
	APIKey       string
	PollInterval time.Duration
	MaxPolls     int
}

func NewAsync(opts AsyncOptions, httpClient *http.Client, log *logger.Logger) *Async {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Async{
		host:         opts.Host,
		apiKey:       opts.APIKey,
		pollInterval: opts.PollInterval,
		maxPolls:     opts.MaxPolls,
		httpClient:   httpClient,
		log:          log.WithComponent("transcription.async"),
	}
}

func (a *Async) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	mediaID, readyURL, err := a.publish(ctx, filename, audio)
	if err != nil {
		return "", err
	}
	if readyURL != "" {
		return a.download(ctx, readyURL)
	}

	textURL, err := a.poll(ctx, mediaID)
	if err != nil {
		return "", err
	}
	a.log.WithField("media_id", mediaID).Debug("downloading transcript")
	return a.download(ctx, textURL)
}

func (a *Async) publish(ctx context.Context, filename string, audio []byte) (string, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", "", err
	}
	if err := w.Close(); err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.Endpoint(a.host, "transcribe"), &b)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp publishResponse
	if err := a.doJSON(req, &resp); err != nil {
		return "", "", err
	}
	if resp.Code != http.StatusOK {
		return "", "", fmt.Errorf("transcribe publish error: code=%d reason=%s", resp.Code, resp.Reason)
	}
	if resp.Data.TranscriptionURL != "" && strings.EqualFold(resp.Data.Status, "success") {
		return "", resp.Data.TranscriptionURL, nil
	}
	if resp.Data.MediaID == "" {
		return "", "", errors.New("transcribe publish returned no media id")
	}
	return resp.Data.MediaID, "", nil
}

// poll checks the job status at a fixed interval. Transport errors, 5xx
// responses and pending states are retried. A Failed status or a 4xx stops
// immediately.
func (a *Async) poll(ctx context.Context, mediaID string) (string, error) {
	u, err := url.Parse(provider.Endpoint(a.host, "getstatus"))
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("mediaId", mediaID)
	u.RawQuery = q.Encode()

	var textURL string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		var s statusResponse
		if err := a.doJSON(req, &s); err != nil {
			var se *provider.StatusError
			if errors.As(err, &se) && se.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		switch s.Data.Status {
		case "Success":
			if s.Data.TranscriptionTextURL == "" {
				return backoff.Permanent(errors.New("transcription succeeded without a text url"))
			}
			textURL = s.Data.TranscriptionTextURL
			return nil
		case "Failed":
			return backoff.Permanent(fmt.Errorf("transcription failed: %s", s.Reason))
		default:
			return errPending
		}
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(a.pollInterval)
	if a.maxPolls > 0 {
		b = backoff.WithMaxRetries(b, uint64(a.maxPolls))
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, errPending) {
			return "", ErrPollTimeout
		}
		return "", err
	}
	return textURL, nil
}

func (a *Async) download(ctx context.Context, textURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, textURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download transcript: %w", err)
	}
	defer resp.Body.Close()
	if err := provider.CheckResponse("transcript download", resp); err != nil {
		return "", err
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(b), nil
}

func (a *Async) doJSON(req *http.Request, target any) error {
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := provider.CheckResponse("async transcription", resp); err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("json decode error: %w", err)
	}
	return nil
}
