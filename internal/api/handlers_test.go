package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"notez-go/internal/aggregator"
	"notez-go/internal/extractor"
	"notez-go/internal/intake"
	"notez-go/internal/logger"
	"notez-go/internal/pipeline"
	"notez-go/internal/publisher"
	"notez-go/internal/storage"
)

const frontend = "http://localhost:5173"

// stages copies the upload bytes into the "audio" file so each job's artifact
// can be told apart, and rejects uploads whose content is "corrupt".
type stages struct{}

func (stages) Extract(ctx context.Context, src string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	if string(data) == "corrupt" {
		return "", &extractor.CommandError{Command: "ffmpeg", ExitCode: 1, Stderr: "moov atom not found", Err: errors.New("exit status 1")}
	}
	audio := storage.SwapExt(src, ".mp3")
	return audio, os.WriteFile(audio, data, 0o644)
}

func (stages) Probe(ctx context.Context, path string) (float64, error) { return 10, nil }

func (stages) Transcribe(ctx context.Context, audio string) (string, error) { return " ", nil }

func (stages) Summarize(ctx context.Context, transcript string) (string, error) {
	return "Meeting covered nothing.", nil
}

type testServer struct {
	ws     *storage.Workspace
	stats  *aggregator.Aggregator
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewWithOptions(logger.Options{Level: "error", Output: io.Discard})

	ws, err := storage.NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	stats := aggregator.New()
	orch := pipeline.New(pipeline.Deps{
		Extractor:   stages{},
		Prober:      stages{},
		Transcriber: stages{},
		Summarizer:  stages{},
		Cleaner:     ws,
		Recorder:    stats,
	}, log)

	svc := Services{
		Intake:    intake.New(ws, []string{"video/mp4"}, log),
		Pipeline:  orch,
		Publisher: publisher.New("http://localhost:5000/uploads", ws, nil, log),
		Artifacts: ws,
		Stats:     stats,
	}
	return &testServer{ws: ws, stats: stats, router: NewRouter(svc, Options{FrontendURL: frontend, MaxUploadBytes: 1 << 20}, log)}
}

func uploadRequest(t *testing.T, field, filename, contentType, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write([]byte(content))
	} else {
		_ = w.WriteField("note", "no file here")
	}
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func (s *testServer) fetch(t *testing.T, audioURL string) string {
	t.Helper()
	u, err := url.Parse(audioURL)
	if err != nil {
		t.Fatal(err)
	}
	rec := s.do(httptest.NewRequest(http.MethodGet, u.Path, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s = %d", u.Path, rec.Code)
	}
	return rec.Body.String()
}

func TestUploadEndToEnd(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(uploadRequest(t, "file", "silent.mp4", "video/mp4", "ten seconds of silence"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	m := decode(t, rec)
	if len(m) != 4 {
		t.Fatalf("payload keys = %v, want exactly four", m)
	}
	if m["transcription"] != " " || m["summary"] != "Meeting covered nothing." || m["durationSec"] != float64(10) {
		t.Fatalf("payload = %v", m)
	}
	audioURL, _ := m["audioUrl"].(string)
	if got := s.fetch(t, audioURL); got != "ten seconds of silence" {
		t.Fatalf("audio body = %q", got)
	}
	if snap := s.stats.Snapshot(); snap.Completed != 1 {
		t.Fatalf("stats = %+v", snap)
	}
}

func TestConcurrentUploadsWithSameName(t *testing.T) {
	s := newTestServer(t)

	const n = 8
	urls := make([]string, n)
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		req := uploadRequest(t, "file", "standup.mp4", "video/mp4", fmt.Sprintf("payload-%d", i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := s.do(req)
			codes[i] = rec.Code
			var res struct {
				AudioURL string `json:"audioUrl"`
			}
			_ = json.Unmarshal(rec.Body.Bytes(), &res)
			urls[i] = res.AudioURL
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		if codes[i] != http.StatusOK {
			t.Fatalf("upload %d status = %d", i, codes[i])
		}
		if seen[urls[i]] {
			t.Fatalf("duplicate audioUrl %s", urls[i])
		}
		seen[urls[i]] = true
		if got, want := s.fetch(t, urls[i]), fmt.Sprintf("payload-%d", i); got != want {
			t.Fatalf("upload %d served %q, want %q", i, got, want)
		}
	}
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
	}{
		{"no file", func(t *testing.T) *http.Request { return uploadRequest(t, "", "", "", "") }},
		{"wrong type", func(t *testing.T) *http.Request { return uploadRequest(t, "file", "a.mp3", "audio/mpeg", "x") }},
		{"not multipart", func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/upload", bytes.NewBufferString("{}"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(tt.req(t))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			m := decode(t, rec)
			if len(m) != 1 || m["error"] == "" {
				t.Fatalf("body = %v, want only error", m)
			}
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(uploadRequest(t, "file", "big.mp4", "video/mp4", string(make([]byte, 2<<20))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadExtractionFailure(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(uploadRequest(t, "file", "broken.mp4", "video/mp4", "corrupt"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	m := decode(t, rec)
	if len(m) != 1 {
		t.Fatalf("failure body = %v, want only error", m)
	}
	for _, k := range []string{"audioUrl", "transcription", "summary", "durationSec"} {
		if _, ok := m[k]; ok {
			t.Fatalf("failure body carries %q", k)
		}
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("moov")) {
		t.Fatal("subprocess diagnostic leaked to caller")
	}
	entries, _ := os.ReadDir(s.ws.Dir())
	if len(entries) != 0 {
		t.Fatalf("artifacts left after failure: %d", len(entries))
	}
	if snap := s.stats.Snapshot(); snap.FailuresByStage["converting"] != 1 {
		t.Fatalf("stats = %+v", snap)
	}
}

func TestServeArtifactNotFound(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/uploads/missing.mp3", "/uploads/..%2F..%2Fetc%2Fpasswd"} {
		if rec := s.do(httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, rec.Code)
		}
	}
}

func TestLivenessAndStats(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("GET / = %d %q", rec.Code, rec.Body.String())
	}
	if rec := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Body.String() != "ok" {
		t.Fatalf("GET /healthz = %q", rec.Body.String())
	}
	rec := s.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	m := decode(t, rec)
	if m["completed"] != float64(0) {
		t.Fatalf("stats = %v", m)
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", frontend)
	rec := s.do(req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != frontend {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	if rec := s.do(req); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign origin status = %d, want 403", rec.Code)
	}
}
