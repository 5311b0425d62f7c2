package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	FFmpeg        FFmpegConfig        `yaml:"ffmpeg"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Summarization SummarizationConfig `yaml:"summarization"`
	Reports       ReportsConfig       `yaml:"reports"`
	Watch         WatchConfig         `yaml:"watch"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	FrontendURL  string        `yaml:"frontend_url"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxUploadMB  int64         `yaml:"max_upload_mb"`
}

type StorageConfig struct {
	WorkDir             string        `yaml:"work_dir"`
	PublicBaseURL       string        `yaml:"public_base_url"`
	AllowedContentTypes []string      `yaml:"allowed_content_types"`
	Retention           time.Duration `yaml:"retention"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
}

type FFmpegConfig struct {
	Binary      string `yaml:"binary"`
	ProbeBinary string `yaml:"probe_binary"`
	AudioCodec  string `yaml:"audio_codec"`
	AudioExt    string `yaml:"audio_ext"`
}

type TranscriptionConfig struct {
	Provider     string        `yaml:"provider"` // openai|gemini|async
	Endpoint     string        `yaml:"endpoint"`
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
}

type SummarizationConfig struct {
	Provider     string        `yaml:"provider"` // openai|gemini
	Endpoint     string        `yaml:"endpoint"`
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	Temperature  *float64      `yaml:"temperature"`
	SystemPrompt string        `yaml:"system_prompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

type ReportsConfig struct {
	Formats []string `yaml:"formats"` // xlsx, docx
}

type WatchConfig struct {
	Inbox         string `yaml:"inbox"`
	Outbox        string `yaml:"outbox"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const DefaultSystemPrompt = "You are a helpful assistant that summarizes meetings and extracts action items."

const DefaultTemperature = 0.7

// Load reads .env, then the optional YAML file at path, then applies environment
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	setString(&c.Server.FrontendURL, "FRONTEND_URL")
	setString(&c.Storage.WorkDir, "WORK_DIR")
	setString(&c.Storage.PublicBaseURL, "PUBLIC_BASE_URL")

	setString(&c.Transcription.Provider, "TRANSCRIBE_PROVIDER")
	setString(&c.Transcription.Endpoint, "TRANSCRIBE_URL")
	setString(&c.Transcription.Model, "TRANSCRIBE_MODEL")
	setString(&c.Summarization.Provider, "SUMMARIZE_PROVIDER")
	setString(&c.Summarization.Endpoint, "LLM_GATEWAY_URL")
	setString(&c.Summarization.Model, "LLM_MODEL")
	if v := getenv("LLM_TEMPERATURE"); v != "" {
		temp, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("LLM_TEMPERATURE: %w", err)
		}
		c.Summarization.Temperature = &temp
	}

	// Provider keys follow the provider that is selected.
	for _, p := range []struct {
		provider string
		key      *string
	}{
		{c.Transcription.Provider, &c.Transcription.APIKey},
		{c.Summarization.Provider, &c.Summarization.APIKey},
	} {
		switch strings.ToLower(p.provider) {
		case "gemini":
			setString(p.key, "GEMINI_API_KEY")
		case "async":
			setString(p.key, "TRANSCRIBE_API_KEY")
		default:
			setString(p.key, "OPENAI_API_KEY")
		}
	}
	setString(&c.Summarization.APIKey, "LLM_API_KEY")

	if v := getenv("REPORT_FORMATS"); v != "" {
		c.Reports.Formats = splitList(v)
	}
	setString(&c.Watch.Inbox, "WATCH_INBOX")
	setString(&c.Watch.Outbox, "WATCH_OUTBOX")
	setString(&c.Logging.Level, "LOG_LEVEL")
	return nil
}

// Validate checks required values and fills defaults.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.FrontendURL == "" {
		c.Server.FrontendURL = "http://localhost:5173"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 60 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Minute
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 512
	}

	if c.Storage.WorkDir == "" {
		c.Storage.WorkDir = "uploads"
	}
	if c.Storage.PublicBaseURL == "" {
		c.Storage.PublicBaseURL = fmt.Sprintf("http://localhost:%d/uploads", c.Server.Port)
	}
	if len(c.Storage.AllowedContentTypes) == 0 {
		c.Storage.AllowedContentTypes = []string{"video/mp4"}
	}
	if c.Storage.SweepInterval == 0 {
		c.Storage.SweepInterval = time.Hour
	}

	if c.FFmpeg.Binary == "" {
		c.FFmpeg.Binary = "ffmpeg"
	}
	if c.FFmpeg.ProbeBinary == "" {
		c.FFmpeg.ProbeBinary = "ffprobe"
	}
	if c.FFmpeg.AudioCodec == "" {
		c.FFmpeg.AudioCodec = "libmp3lame"
	}
	if c.FFmpeg.AudioExt == "" {
		c.FFmpeg.AudioExt = ".mp3"
	}
	if !strings.HasPrefix(c.FFmpeg.AudioExt, ".") {
		c.FFmpeg.AudioExt = "." + c.FFmpeg.AudioExt
	}

	c.Transcription.Provider = strings.ToLower(c.Transcription.Provider)
	switch c.Transcription.Provider {
	case "":
		c.Transcription.Provider = "openai"
		fallthrough
	case "openai":
		if c.Transcription.Endpoint == "" {
			c.Transcription.Endpoint = "https://api.openai.com/v1"
		}
		if c.Transcription.Model == "" {
			c.Transcription.Model = "whisper-1"
		}
	case "gemini":
		if c.Transcription.Model == "" {
			c.Transcription.Model = "gemini-2.5-flash"
		}
	case "async":
		if c.Transcription.Endpoint == "" {
			return fmt.Errorf("transcription.endpoint is required for the async provider")
		}
	default:
		return fmt.Errorf("unknown transcription.provider %q", c.Transcription.Provider)
	}
	if c.Transcription.Timeout == 0 {
		c.Transcription.Timeout = 5 * time.Minute
	}
	if c.Transcription.PollInterval == 0 {
		c.Transcription.PollInterval = 1500 * time.Millisecond
	}
	if c.Transcription.MaxPolls == 0 {
		c.Transcription.MaxPolls = 40
	}

	c.Summarization.Provider = strings.ToLower(c.Summarization.Provider)
	switch c.Summarization.Provider {
	case "":
		c.Summarization.Provider = "openai"
		fallthrough
	case "openai":
		if c.Summarization.Endpoint == "" {
			c.Summarization.Endpoint = "https://api.openai.com/v1"
		}
		if c.Summarization.Model == "" {
			c.Summarization.Model = "gpt-3.5-turbo"
		}
	case "gemini":
		if c.Summarization.Model == "" {
			c.Summarization.Model = "gemini-2.5-flash"
		}
	default:
		return fmt.Errorf("unknown summarization.provider %q", c.Summarization.Provider)
	}
	if c.Summarization.Temperature == nil {
		t := DefaultTemperature
		c.Summarization.Temperature = &t
	}
	if *c.Summarization.Temperature < 0 || *c.Summarization.Temperature > 2 {
		return fmt.Errorf("summarization.temperature %v out of range [0,2]", *c.Summarization.Temperature)
	}
	if c.Summarization.SystemPrompt == "" {
		c.Summarization.SystemPrompt = DefaultSystemPrompt
	}
	if c.Summarization.Timeout == 0 {
		c.Summarization.Timeout = 2 * time.Minute
	}

	for i, f := range c.Reports.Formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "xlsx" && f != "docx" {
			return fmt.Errorf("unknown report format %q", f)
		}
		c.Reports.Formats[i] = f
	}

	if c.Watch.Inbox == "" {
		c.Watch.Inbox = "inbox"
	}
	if c.Watch.Outbox == "" {
		c.Watch.Outbox = "outbox"
	}
	if c.Watch.MaxConcurrent <= 0 {
		c.Watch.MaxConcurrent = 2
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
