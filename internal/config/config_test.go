package config

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("DEPPRUNE_TEST_INT", "42")
	if v := envInt("DEPPRUNE_TEST_INT", 0); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	t.Setenv("DEPPRUNE_TEST_INT", "abc")
	if v := envInt("DEPPRUNE_TEST_INT", 7); v != 7 {
		t.Fatalf("expected fallback 7, got %d", v)
	}
	if v := envInt("DEPPRUNE_TEST_INT_MISSING", 99); v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("DEPPRUNE_TEST_BOOL", "true")
	if !envBool("DEPPRUNE_TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	t.Setenv("DEPPRUNE_TEST_BOOL", "maybe")
	if envBool("DEPPRUNE_TEST_BOOL", false) {
		t.Fatal("expected fallback false")
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("DEPPRUNE_TEST_DUR", "90s")
	if d := envDuration("DEPPRUNE_TEST_DUR", time.Second); d != 90*time.Second {
		t.Fatalf("expected 90s, got %v", d)
	}
	t.Setenv("DEPPRUNE_TEST_DUR", "soon")
	if d := envDuration("DEPPRUNE_TEST_DUR", time.Second); d != time.Second {
		t.Fatalf("expected fallback 1s, got %v", d)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"STORE_BACKEND", "INVOKER", "SUMMARIZER", "LOG_LEVEL", "LOG_FORMAT", "LOCAL_STORE_ROOT"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != "local" || cfg.LocalStoreRoot != "_local_s3" {
		t.Errorf("store = %q at %q", cfg.StoreBackend, cfg.LocalStoreRoot)
	}
	if cfg.Invoker != "local" {
		t.Errorf("invoker = %q", cfg.Invoker)
	}
	if cfg.CloneTimeout != 5*time.Minute {
		t.Errorf("clone timeout = %v", cfg.CloneTimeout)
	}
}

func TestLoadOpenAIKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPEN_API_KEY", "sk-legacy")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAIAPIKey != "sk-legacy" {
		t.Errorf("OpenAIAPIKey = %q", cfg.OpenAIAPIKey)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "ftp")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown store backend")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		StoreBackend: "local", LocalStoreRoot: "x", Invoker: "local",
		Summarizer: "auto", LogLevel: "info", LogFormat: "text",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	minio := base
	minio.StoreBackend = "minio"
	if err := minio.Validate(); err == nil || !strings.Contains(err.Error(), "S3_ENDPOINT") {
		t.Errorf("minio without endpoint: err = %v", err)
	}

	amqp := base
	amqp.Invoker = "amqp"
	if err := amqp.Validate(); err == nil || !strings.Contains(err.Error(), "AMQP_URL") {
		t.Errorf("amqp without url: err = %v", err)
	}

	level := base
	level.LogLevel = "loud"
	if err := level.Validate(); err == nil {
		t.Error("expected error for unknown log level")
	}
}

func TestSummarizerProvider(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"auto no keys", Config{Summarizer: "auto"}, "none"},
		{"auto openai", Config{Summarizer: "auto", OpenAIAPIKey: "k", GeminiAPIKey: "g"}, "openai"},
		{"auto gemini", Config{Summarizer: "auto", GeminiAPIKey: "g"}, "gemini"},
		{"gemini forced", Config{Summarizer: "gemini", OpenAIAPIKey: "k", GeminiAPIKey: "g"}, "gemini"},
		{"openai without key", Config{Summarizer: "openai"}, "none"},
		{"none", Config{Summarizer: "none", OpenAIAPIKey: "k"}, "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.SummarizerProvider(); got != tt.want {
				t.Errorf("SummarizerProvider() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{LogLevel: "warn", LogFormat: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "job_id", "j1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"job_id":"j1"`) {
		t.Errorf("expected JSON field in output: %s", out)
	}
}
