package transcription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"notez-go/internal/logger"
	"notez-go/internal/provider"
)

type asyncServer struct {
	statuses []string
	polls    atomic.Int32
	srv      *httptest.Server
}

func newAsyncServer(t *testing.T, publish string, statuses ...string) *asyncServer {
	t.Helper()
	s := &asyncServer{statuses: statuses}
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("publish method = %s", r.Method)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("publish missing file: %v", err)
		}
		_, _ = fmt.Fprint(w, publish)
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mediaId") != "m-1" {
			t.Errorf("mediaId = %q", r.URL.Query().Get("mediaId"))
		}
		n := int(s.polls.Add(1)) - 1
		status := s.statuses[len(s.statuses)-1]
		if n < len(s.statuses) {
			status = s.statuses[n]
		}
		_, _ = fmt.Fprintf(w, `{"Code":200,"Data":{"Status":%q,"TranscriptionTextURL":"%s/text"},"Reason":"bad audio"}`, status, s.srv.URL)
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "final transcript")
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func newTestAsync(host string, maxPolls int) *Async {
	return NewAsync(AsyncOptions{Host: host, PollInterval: time.Millisecond, MaxPolls: maxPolls}, nil, logger.New())
}

const queued = `{"Code":200,"Data":{"MediaId":"m-1","Status":"Queued"}}`

func TestAsyncPollsUntilSuccess(t *testing.T) {
	s := newAsyncServer(t, queued, "Queued", "Processing", "Success")
	got, err := newTestAsync(s.srv.URL, 10).Transcribe(context.Background(), "a.mp3", []byte("x"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "final transcript" {
		t.Fatalf("text = %q", got)
	}
	if n := s.polls.Load(); n != 3 {
		t.Fatalf("polls = %d, want 3", n)
	}
}

func TestAsyncFailedStatusStopsPolling(t *testing.T) {
	s := newAsyncServer(t, queued, "Processing", "Failed")
	_, err := newTestAsync(s.srv.URL, 10).Transcribe(context.Background(), "a.mp3", []byte("x"))
	if err == nil {
		t.Fatal("expected error for Failed status")
	}
	if n := s.polls.Load(); n != 2 {
		t.Fatalf("polls = %d, want 2", n)
	}
}

func TestAsyncPollBudgetExhausted(t *testing.T) {
	s := newAsyncServer(t, queued, "Queued")
	_, err := newTestAsync(s.srv.URL, 3).Transcribe(context.Background(), "a.mp3", []byte("x"))
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("err = %v, want ErrPollTimeout", err)
	}
	if n := s.polls.Load(); n != 4 {
		t.Fatalf("polls = %d, want 4", n)
	}
}

func TestAsyncReadyOnPublish(t *testing.T) {
	s := newAsyncServer(t, "", "Queued")
	ready := newAsyncServer(t, fmt.Sprintf(`{"Code":200,"Data":{"Status":"success","TranscriptionURL":"%s/text"}}`, s.srv.URL), "Queued")

	got, err := newTestAsync(ready.srv.URL, 3).Transcribe(context.Background(), "a.mp3", []byte("x"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "final transcript" {
		t.Fatalf("text = %q", got)
	}
	if ready.polls.Load() != 0 {
		t.Fatal("should not poll when publish returns a ready transcript")
	}
}

func TestAsyncPublishRejected(t *testing.T) {
	s := newAsyncServer(t, `{"Code":400,"Reason":"unsupported media"}`, "Queued")
	if _, err := newTestAsync(s.srv.URL, 3).Transcribe(context.Background(), "a.mp3", []byte("x")); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestAsyncCancelled(t *testing.T) {
	s := newAsyncServer(t, queued, "Queued")
	ctx, cancel := context.WithCancel(context.Background())
	a := NewAsync(AsyncOptions{Host: s.srv.URL, PollInterval: 20 * time.Millisecond}, nil, logger.New())
	go func() {
		for s.polls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	if _, err := a.Transcribe(ctx, "a.mp3", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestAsyncClientErrorStopsPolling(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, queued)
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	_, err := newTestAsync(srv.URL, 10).Transcribe(context.Background(), "a.mp3", []byte("x"))
	var se *provider.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 StatusError", err)
	}
	if n := polls.Load(); n != 1 {
		t.Fatalf("polls = %d, want 1", n)
	}
}

func TestAsyncServerErrorKeepsPolling(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, queued)
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			http.Error(w, "upstream busy", http.StatusBadGateway)
			return
		}
		_, _ = fmt.Fprintf(w, `{"Code":200,"Data":{"Status":"Success","TranscriptionTextURL":"http://%s/text"}}`, r.Host)
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "after retry")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	got, err := newTestAsync(srv.URL, 10).Transcribe(context.Background(), "a.mp3", []byte("x"))
	if err != nil || got != "after retry" {
		t.Fatalf("Transcribe() = %q, %v", got, err)
	}
	if n := polls.Load(); n != 2 {
		t.Fatalf("polls = %d, want 2", n)
	}
}
