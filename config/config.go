// Package config loads vellum's YAML configuration and sets up logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/vellum/ai"
	"github.com/poiesic/vellum/chunking"
	"github.com/poiesic/vellum/pipeline"
	"github.com/poiesic/vellum/providers"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the data directory.
const FileName = "vellum.yaml"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete runtime configuration.
type Config struct {
	// DataDir is the root for everything vellum persists. Directories left
	// empty below are derived from it.
	DataDir     string `yaml:"data_dir"`
	SessionsDir string `yaml:"sessions_dir,omitempty"`
	DatabaseDir string `yaml:"database_dir,omitempty"`
	OutputDir   string `yaml:"output_dir,omitempty"`

	// Provider names the export format read by imports.
	Provider string `yaml:"provider"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file,omitempty"`

	AI       AIConfig       `yaml:"ai"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// AIConfig mirrors ai.Config. Host, when set, applies to both services.
type AIConfig struct {
	Host            string   `yaml:"host,omitempty"`
	KnowledgeHost   string   `yaml:"knowledge_host,omitempty"`
	ClassifierHost  string   `yaml:"classifier_host,omitempty"`
	KnowledgeModel  string   `yaml:"knowledge_model"`
	ClassifierModel string   `yaml:"classifier_model"`
	APIKey          string   `yaml:"api_key,omitempty"`
	Categories      []string `yaml:"categories"`
	ParseAttempts   int      `yaml:"parse_attempts"`
}

// ChunkingConfig controls how oversized conversations are split.
type ChunkingConfig struct {
	Threshold       int `yaml:"threshold"`
	OverlapMessages int `yaml:"overlap_messages"`
}

// PipelineConfig tunes phase runs.
type PipelineConfig struct {
	ItemsPerDump     int           `yaml:"items_per_dump"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	ProgressInterval int           `yaml:"progress_interval"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		DataDir:  DefaultDataDir(),
		Provider: "simplified",
		LogLevel: "info",
		AI: AIConfig{
			KnowledgeHost:   aiDefaults.KnowledgeHost,
			ClassifierHost:  aiDefaults.ClassifierHost,
			KnowledgeModel:  aiDefaults.KnowledgeModel,
			ClassifierModel: aiDefaults.ClassifierModel,
			APIKey:          aiDefaults.APIKey,
			Categories:      aiDefaults.Categories,
			ParseAttempts:   aiDefaults.ParseAttempts,
		},
		Chunking: ChunkingConfig{
			Threshold:       chunking.DefaultThreshold,
			OverlapMessages: chunking.DefaultOverlapMessages,
		},
		Pipeline: PipelineConfig{
			ItemsPerDump:     pipeline.DefaultItemsPerDump,
			RetryAttempts:    3,
			RetryDelay:       time.Second,
			ProgressInterval: 25,
		},
	}
}

// DefaultDataDir is ~/.vellum, or .vellum when there is no home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vellum"
	}
	return filepath.Join(home, ".vellum")
}

// Load reads path over the defaults, then normalizes and validates the
// result. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Normalize expands ~ and environment variables in paths and derives the
// directories that were left empty.
func (c *Config) Normalize() {
	c.DataDir = expandPath(c.DataDir)
	if c.SessionsDir == "" {
		c.SessionsDir = filepath.Join(c.DataDir, "sessions")
	}
	if c.DatabaseDir == "" {
		c.DatabaseDir = filepath.Join(c.DataDir, "db")
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.DataDir, "documents")
	}
	c.SessionsDir = expandPath(c.SessionsDir)
	c.DatabaseDir = expandPath(c.DatabaseDir)
	c.OutputDir = expandPath(c.OutputDir)
	c.LogFile = expandPath(c.LogFile)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	if c.AI.Host != "" {
		c.AI.KnowledgeHost = c.AI.Host
		c.AI.ClassifierHost = c.AI.Host
	}
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return filepath.Clean(p)
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalidConfig)
	}
	if _, err := providers.Lookup(c.Provider); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := chunking.NewChunker(c.ChunkOptions()...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch {
	case c.Pipeline.ItemsPerDump <= 0:
		return fmt.Errorf("%w: pipeline.items_per_dump must be positive", ErrInvalidConfig)
	case c.Pipeline.RetryAttempts <= 0:
		return fmt.Errorf("%w: pipeline.retry_attempts must be positive", ErrInvalidConfig)
	case c.Pipeline.RetryDelay < 0:
		return fmt.Errorf("%w: pipeline.retry_delay must not be negative", ErrInvalidConfig)
	}
	return nil
}

// AIConfig builds the ai package configuration.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithKnowledgeHost(c.AI.KnowledgeHost),
		ai.WithClassifierHost(c.AI.ClassifierHost),
		ai.WithKnowledgeModel(c.AI.KnowledgeModel),
		ai.WithClassifierModel(c.AI.ClassifierModel),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithCategories(c.AI.Categories...),
		ai.WithParseAttempts(c.AI.ParseAttempts),
	)
}

// ChunkOptions returns the chunker options for the configured thresholds.
func (c *Config) ChunkOptions() []chunking.Option {
	return []chunking.Option{
		chunking.WithThreshold(c.Chunking.Threshold),
		chunking.WithOverlapMessages(c.Chunking.OverlapMessages),
	}
}
