package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// Primary generative backend (OpenAI-compatible protocol)
	// All providers (openai, deepseek, siliconflow, openrouter, ollama) use the same config
	LLMProvider string // Provider identifier: openai, deepseek, siliconflow, openrouter, ollama
	LLMAPIKey   string // API key for the primary backend
	LLMBaseURL  string // Base URL (optional, has default per provider)
	LLMModel    string // Model name: gpt-4o, deepseek-chat, etc.
	LLMTimeout  int    // Request timeout in seconds (default: 20)

	// Secondary generative backend, tried once when the primary fails
	LLMFallbackProvider string
	LLMFallbackAPIKey   string
	LLMFallbackBaseURL  string
	LLMFallbackModel    string

	// Other configurations
	Mode    string
	DSN     string
	Driver  string
	Version string
	Addr    string
	Data    string
	Port    int
}

// Provider default base URLs for generative backends.
// Used when SHOPTALK_LLM_BASE_URL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "deepseek/deepseek-chat",
	},
	"ollama": {
		BaseURL: "http://localhost:11434",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsGenerativeEnabled returns true if a primary backend API key is configured.
func (p *Profile) IsGenerativeEnabled() bool {
	return p.LLMAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads backend configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("SHOPTALK_LLM_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("SHOPTALK_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("SHOPTALK_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("SHOPTALK_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("SHOPTALK_LLM_TIMEOUT_SECONDS", 20)

	if p.LLMProvider != "" {
		if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
			slog.Warn("Unknown LLM provider, using default: openai", "provider", p.LLMProvider)
			p.LLMProvider = "openai"
		}
	}
	if p.LLMBaseURL == "" || p.LLMModel == "" {
		if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
			if p.LLMBaseURL == "" {
				p.LLMBaseURL = defaults.BaseURL
			}
			if p.LLMModel == "" {
				p.LLMModel = defaults.Model
			}
		}
	}

	// Secondary backend, only used when its own key is set.
	p.LLMFallbackProvider = getEnvOrDefault("SHOPTALK_LLM_FALLBACK_PROVIDER", "")
	p.LLMFallbackAPIKey = getEnvOrDefault("SHOPTALK_LLM_FALLBACK_API_KEY", "")
	p.LLMFallbackBaseURL = getEnvOrDefault("SHOPTALK_LLM_FALLBACK_BASE_URL", "")
	p.LLMFallbackModel = getEnvOrDefault("SHOPTALK_LLM_FALLBACK_MODEL", "")
	if p.LLMFallbackAPIKey != "" && p.LLMFallbackProvider != "" {
		if defaults, ok := llmProviderDefaults[p.LLMFallbackProvider]; ok {
			if p.LLMFallbackBaseURL == "" {
				p.LLMFallbackBaseURL = defaults.BaseURL
			}
			if p.LLMFallbackModel == "" {
				p.LLMFallbackModel = defaults.Model
			}
		}
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "shoptalk")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/shoptalk"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("shoptalk_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
