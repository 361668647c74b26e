// Package config loads service configuration from the platform-native
// backend, environment variables, and the platform secret store.
package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server   ServerConfig
	LLM      LLMConfig
	Render   RenderConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
	// BaseURL is the externally visible prefix used when building stored
	// media URLs.
	BaseURL string
	// Token authenticates API clients (browser extension, CLI).
	Token string
}

type LLMConfig struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
}

type RenderConfig struct {
	// URL of the headless render service used when static fetches come back
	// with too little text. Empty disables the escalation.
	URL string
}

type StorageConfig struct {
	DataDir string
	// MediaEnabled controls whether preview images are downloaded and stored
	// locally. When false, captures keep the remote image URL.
	MediaEnabled bool
}

type PipelineConfig struct {
	// SweepLimit caps how many pending captures one process-pending run
	// handles by default.
	SweepLimit int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
			BaseURL: "http://127.0.0.1:4600",
		},
		LLM: LLMConfig{
			BaseURL:    "https://api.openai.com/v1",
			ChatModel:  "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
		},
		Storage: StorageConfig{
			DataDir:      dataDir,
			MediaEnabled: true,
		},
		Pipeline: PipelineConfig{
			SweepLimit: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.clipd.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/clipd/config.json
// and secrets live in $XDG_DATA_HOME/clipd/secrets.json.
//
// Environment variables (CLIPD_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform secret store for secrets still empty.
	if cfg.LLM.APIKey == "" {
		if key, err := kc.Get("clipd", "llm_api_key"); err == nil && key != "" {
			cfg.LLM.APIKey = key
		}
	}
	if cfg.Server.Token == "" {
		if tok, err := kc.Get("clipd", "api_token"); err == nil && tok != "" {
			cfg.Server.Token = tok
		}
	}

	if cfg.LLM.APIKey == "" {
		msg := "missing required config: LLM API key. " +
			"Set it via environment variable CLIPD_LLM_API_KEY" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}
	if cfg.Server.Token == "" {
		return Config{}, fmt.Errorf("missing required config: API token. Set it via environment variable CLIPD_API_TOKEN")
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
