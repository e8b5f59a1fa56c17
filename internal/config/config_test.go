package config

import (
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidEmbeddingDimensions(t *testing.T) {
	t.Setenv("DECISIONINTEL_EMBEDDING_DIMENSIONS", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid DECISIONINTEL_EMBEDDING_DIMENSIONS")
	}
	if got := err.Error(); !contains(got, "DECISIONINTEL_EMBEDDING_DIMENSIONS") || !contains(got, "abc") {
		t.Fatalf("error should mention DECISIONINTEL_EMBEDDING_DIMENSIONS and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("DECISIONINTEL_EMBEDDING_DIMENSIONS", "abc")
	t.Setenv("DECISIONINTEL_BREAKER_THRESHOLD", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "DECISIONINTEL_EMBEDDING_DIMENSIONS") {
		t.Fatalf("error should mention DECISIONINTEL_EMBEDDING_DIMENSIONS, got: %s", got)
	}
	if !contains(got, "DECISIONINTEL_BREAKER_THRESHOLD") {
		t.Fatalf("error should mention DECISIONINTEL_BREAKER_THRESHOLD, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	// With no env vars set, Load should succeed using all defaults.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.EmbeddingDimensions != 1024 {
		t.Fatalf("expected default embedding dimensions 1024, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.BreakerThreshold != 5 {
		t.Fatalf("expected default breaker threshold 5, got %d", cfg.BreakerThreshold)
	}
	if cfg.BreakerWindow != 24*time.Hour {
		t.Fatalf("expected default breaker window 24h, got %s", cfg.BreakerWindow)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && searchSubstring(s, substr)
}

func searchSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestLoad_OTELEndpointParsing(t *testing.T) {
	endpoint := "https://otel.example.com:4317"
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", endpoint)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.OTELEndpoint != endpoint {
		t.Fatalf("expected OTELEndpoint %q, got %q", endpoint, cfg.OTELEndpoint)
	}
}

func TestLoad_EmbeddingProviderSelection(t *testing.T) {
	t.Setenv("DECISIONINTEL_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("OLLAMA_URL", "http://localhost:11434")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.EmbeddingProvider != "ollama" {
		t.Fatalf("expected EmbeddingProvider %q, got %q", "ollama", cfg.EmbeddingProvider)
	}
	if cfg.OllamaURL != "http://localhost:11434" {
		t.Fatalf("expected OllamaURL %q, got %q", "http://localhost:11434", cfg.OllamaURL)
	}
}

func TestLoad_QdrantURLValidation(t *testing.T) {
	t.Run("explicit URL", func(t *testing.T) {
		qdrantURL := "https://qdrant.example.com:6334"
		t.Setenv("QDRANT_URL", qdrantURL)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected Load() to succeed, got: %v", err)
		}
		if cfg.QdrantURL != qdrantURL {
			t.Fatalf("expected QdrantURL %q, got %q", qdrantURL, cfg.QdrantURL)
		}
	})

	t.Run("empty default", func(t *testing.T) {
		// QDRANT_URL is not set; default should be empty.
		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected Load() to succeed, got: %v", err)
		}
		if cfg.QdrantURL != "" {
			t.Fatalf("expected empty QdrantURL by default, got %q", cfg.QdrantURL)
		}
	})
}

func TestLoad_AllEnvVarsHonored(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/testdb")
	t.Setenv("NOTIFY_URL", "postgres://test:test@db:5432/testdb_notify")
	t.Setenv("DECISIONINTEL_EMBEDDING_DIMENSIONS", "768")
	t.Setenv("OTEL_SERVICE_NAME", "decisionintel-test")
	t.Setenv("DECISIONINTEL_LOG_LEVEL", "debug")
	t.Setenv("DECISIONINTEL_REINDEX_INTERVAL", "10s")
	t.Setenv("DECISIONINTEL_TRACKER_SESSION_TTL", "2m")
	t.Setenv("DECISIONINTEL_BREAKER_WINDOW", "12h")
	t.Setenv("DECISIONINTEL_BREAKER_THRESHOLD", "3")
	t.Setenv("DECISIONINTEL_BREAKER_COOLDOWN_MS", "900000")
	t.Setenv("DECISIONINTEL_CALIBRATION_BASELINE_DAYS", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}

	if cfg.DatabaseURL != "postgres://test:test@db:5432/testdb" {
		t.Fatalf("expected DatabaseURL %q, got %q", "postgres://test:test@db:5432/testdb", cfg.DatabaseURL)
	}
	if cfg.NotifyURL != "postgres://test:test@db:5432/testdb_notify" {
		t.Fatalf("expected NotifyURL %q, got %q", "postgres://test:test@db:5432/testdb_notify", cfg.NotifyURL)
	}
	if cfg.EmbeddingDimensions != 768 {
		t.Fatalf("expected EmbeddingDimensions 768, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.ServiceName != "decisionintel-test" {
		t.Fatalf("expected ServiceName %q, got %q", "decisionintel-test", cfg.ServiceName)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LogLevel %q, got %q", "debug", cfg.LogLevel)
	}
	if cfg.ReindexInterval != 10*time.Second {
		t.Fatalf("expected ReindexInterval 10s, got %s", cfg.ReindexInterval)
	}
	if cfg.TrackerSessionTTL != 2*time.Minute {
		t.Fatalf("expected TrackerSessionTTL 2m, got %s", cfg.TrackerSessionTTL)
	}
	if cfg.BreakerWindow != 12*time.Hour {
		t.Fatalf("expected BreakerWindow 12h, got %s", cfg.BreakerWindow)
	}
	if cfg.BreakerThreshold != 3 {
		t.Fatalf("expected BreakerThreshold 3, got %d", cfg.BreakerThreshold)
	}
	if cfg.BreakerCooldownMs != 900000 {
		t.Fatalf("expected BreakerCooldownMs 900000, got %d", cfg.BreakerCooldownMs)
	}
	if cfg.CalibrationBaselineDays != 30 {
		t.Fatalf("expected CalibrationBaselineDays 30, got %d", cfg.CalibrationBaselineDays)
	}
}
