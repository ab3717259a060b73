package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources    Sources    `yaml:"sources"`
	Analysis   Analysis   `yaml:"analysis"`
	Similar    Similar    `yaml:"similar"`
	Scrape     Scrape     `yaml:"scrape"`
	Reputation Reputation `yaml:"reputation"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Sources struct {
	Feeds []Feed `yaml:"feeds"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// Analysis configures the OpenAI-compatible chat endpoint used for bias
// analysis (Groq, OpenAI or Ollama's /v1).
type Analysis struct {
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float32 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// Similar configures embedding-based similar-article linking.
type Similar struct {
	Enabled        bool    `yaml:"enabled"`
	BaseURL        string  `yaml:"base_url"`
	EmbeddingModel string  `yaml:"embedding_model"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Candidates     int     `yaml:"candidates"`
	TopK           int     `yaml:"top_k"`
	Threshold      float64 `yaml:"threshold"`
}

type Scrape struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Reputation struct {
	Timezone string `yaml:"timezone"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	AnalyzePerMinute int    `yaml:"analyze_per_minute"`
	AnalyzeBurst     int    `yaml:"analyze_burst"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for biaslens.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "biaslens")
}

// DataDir returns the XDG data directory for biaslens.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "biaslens")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/biaslens/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'biaslens init' to create a default config",
		xdgConfig,
	)
}

// LoadEnv loads KEY=value pairs from a dotenv file into the process
// environment. Variables already set are left alone, and a missing file is
// not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Analysis: Analysis{
			BaseURL:        "https://api.groq.com/openai/v1",
			Model:          "llama-3.3-70b-versatile",
			APIKeyEnv:      "GROQ_API_KEY",
			MaxTokens:      1500,
			Temperature:    0.3,
			TimeoutSeconds: 60,
		},
		Similar: Similar{
			BaseURL:        "http://localhost:11434/v1",
			EmbeddingModel: "nomic-embed-text",
			Candidates:     50,
			TopK:           5,
			Threshold:      0.6,
		},
		Scrape: Scrape{
			TimeoutSeconds: 15,
			UserAgent:      "Mozilla/5.0 (compatible; BiasLens/1.0)",
			MaxBodyBytes:   5 << 20,
		},
		Reputation: Reputation{Timezone: "UTC"},
		Server: Server{
			Host:             "127.0.0.1",
			Port:             8000,
			AnalyzePerMinute: 10,
			AnalyzeBurst:     3,
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite database path inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "biaslens.db")
}

// Location returns the timezone streak dates are computed in.
func (c *Config) Location() (*time.Location, error) {
	if c.Reputation.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Reputation.Timezone)
	if err != nil {
		return nil, fmt.Errorf("reputation.timezone: %w", err)
	}
	return loc, nil
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// APIKey returns the analysis API key from the environment.
func (a Analysis) APIKey() string {
	return os.Getenv(a.APIKeyEnv)
}

// Timeout returns the per-request analysis timeout.
func (a Analysis) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// APIKey returns the embedding API key from the environment, if any.
func (s Similar) APIKey() string {
	if s.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(s.APIKeyEnv)
}

// Timeout returns the per-page scrape timeout.
func (s Scrape) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
