package profile

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	p := &Profile{}
	p.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"provider defaults to openai", "openai", p.LLMProvider},
		{"base url from provider defaults", "https://api.openai.com/v1", p.LLMBaseURL},
		{"model from provider defaults", "gpt-4o-mini", p.LLMModel},
		{"api key empty by default", "", p.LLMAPIKey},
		{"no secondary provider", "", p.LLMFallbackProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, tt.actual)
			}
		})
	}

	if p.LLMTimeout != 20 {
		t.Errorf("expected default timeout 20, got %d", p.LLMTimeout)
	}
	if p.IsGenerativeEnabled() {
		t.Error("generative must be disabled without an api key")
	}
}

func TestFromEnvProviderDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHOPTALK_LLM_PROVIDER", "deepseek")
	t.Setenv("SHOPTALK_LLM_API_KEY", "test-key")

	p := &Profile{}
	p.FromEnv()

	if p.LLMBaseURL != "https://api.deepseek.com" {
		t.Errorf("expected deepseek base url, got %q", p.LLMBaseURL)
	}
	if p.LLMModel != "deepseek-chat" {
		t.Errorf("expected deepseek-chat, got %q", p.LLMModel)
	}
	if !p.IsGenerativeEnabled() {
		t.Error("generative must be enabled with an api key")
	}
}

func TestFromEnvUnknownProviderFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHOPTALK_LLM_PROVIDER", "nonsense")

	p := &Profile{}
	p.FromEnv()

	if p.LLMProvider != "openai" {
		t.Errorf("unknown provider must fall back to openai, got %q", p.LLMProvider)
	}
}

func TestFromEnvSecondaryBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHOPTALK_LLM_FALLBACK_PROVIDER", "siliconflow")
	t.Setenv("SHOPTALK_LLM_FALLBACK_API_KEY", "secondary-key")

	p := &Profile{}
	p.FromEnv()

	if p.LLMFallbackBaseURL != "https://api.siliconflow.cn/v1" {
		t.Errorf("expected siliconflow base url, got %q", p.LLMFallbackBaseURL)
	}
	if p.LLMFallbackModel == "" {
		t.Error("secondary model must get a provider default")
	}
}

func TestValidateModeDefaulting(t *testing.T) {
	p := &Profile{Mode: "bogus", Data: t.TempDir(), Driver: "sqlite"}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if p.Mode != "demo" {
		t.Errorf("invalid mode must default to demo, got %q", p.Mode)
	}
}

func TestValidateSQLiteDSN(t *testing.T) {
	dir := t.TempDir()
	p := &Profile{Mode: "dev", Data: dir, Driver: "sqlite"}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	expected := filepath.Join(dir, "shoptalk_dev.db")
	if p.DSN != expected {
		t.Errorf("expected dsn %q, got %q", expected, p.DSN)
	}
}

func TestValidateKeepsExplicitDSN(t *testing.T) {
	p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "sqlite", DSN: "/tmp/custom.db"}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if p.DSN != "/tmp/custom.db" {
		t.Errorf("explicit dsn must be preserved, got %q", p.DSN)
	}
}

func TestValidateMissingDataDir(t *testing.T) {
	p := &Profile{Mode: "dev", Data: "/definitely/not/a/real/dir", Driver: "sqlite"}
	if err := p.Validate(); err == nil {
		t.Error("expected an error for a missing data directory")
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SHOPTALK_LLM_PROVIDER", "SHOPTALK_LLM_API_KEY", "SHOPTALK_LLM_BASE_URL",
		"SHOPTALK_LLM_MODEL", "SHOPTALK_LLM_TIMEOUT_SECONDS",
		"SHOPTALK_LLM_FALLBACK_PROVIDER", "SHOPTALK_LLM_FALLBACK_API_KEY",
		"SHOPTALK_LLM_FALLBACK_BASE_URL", "SHOPTALK_LLM_FALLBACK_MODEL",
	} {
		t.Setenv(key, "")
	}
}

func TestCheckDataDirTrimsTrailingSep(t *testing.T) {
	dir := t.TempDir()
	got, err := checkDataDir(dir + string(filepath.Separator))
	if err != nil {
		t.Fatalf("checkDataDir: %v", err)
	}
	if strings.HasSuffix(got, string(filepath.Separator)) {
		t.Errorf("trailing separator not trimmed: %q", got)
	}
}
