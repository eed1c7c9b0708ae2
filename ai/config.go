// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"errors"
	"slices"
	"strings"
)

// Config holds configuration for AI service providers.
type Config struct {
	// KnowledgeHost is the base URL for the knowledge extraction service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	KnowledgeHost string

	// ClassifierHost is the base URL for the document classification service API.
	ClassifierHost string

	// KnowledgeModel is the model used to turn conversations into documents.
	// Example: "qwen2.5:7b", "gpt-4o-mini"
	KnowledgeModel string

	// ClassifierModel is the model used to file documents into categories.
	ClassifierModel string

	// APIKey is sent as the bearer token. Local OpenAI-compatible servers
	// accept any value. Default: "none"
	APIKey string

	// Categories are the folders the classifier may choose from.
	// Default: DefaultCategories
	Categories []string

	// ParseAttempts is how many times a malformed model response is retried
	// before the call fails. Default: 3
	ParseAttempts int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithKnowledgeHost sets the knowledge extraction service host URL.
func WithKnowledgeHost(host string) ConfigOption {
	return func(c *Config) {
		c.KnowledgeHost = host
	}
}

// WithClassifierHost sets the classifier service host URL.
func WithClassifierHost(host string) ConfigOption {
	return func(c *Config) {
		c.ClassifierHost = host
	}
}

// WithHost sets both knowledge and classifier hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.KnowledgeHost = host
		c.ClassifierHost = host
	}
}

// WithKnowledgeModel sets the knowledge extraction model identifier.
func WithKnowledgeModel(model string) ConfigOption {
	return func(c *Config) {
		c.KnowledgeModel = model
	}
}

// WithClassifierModel sets the classifier model identifier.
func WithClassifierModel(model string) ConfigOption {
	return func(c *Config) {
		c.ClassifierModel = model
	}
}

// WithAPIKey sets the bearer token sent to both services.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithCategories replaces the classifier's category list.
func WithCategories(categories ...string) ConfigOption {
	return func(c *Config) {
		c.Categories = slices.Clone(categories)
	}
}

// WithParseAttempts sets how many malformed responses are tolerated per call.
func WithParseAttempts(n int) ConfigOption {
	return func(c *Config) {
		c.ParseAttempts = n
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, both services use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		KnowledgeHost:   defaultHost,
		ClassifierHost:  defaultHost,
		KnowledgeModel:  "qwen2.5:7b",
		ClassifierModel: "qwen2.5:3b",
		APIKey:          "none",
		Categories:      slices.Clone(DefaultCategories),
		ParseAttempts:   3,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithKnowledgeModel("gpt-4o-mini"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.KnowledgeHost = normalizeHost(c.KnowledgeHost)
	c.ClassifierHost = normalizeHost(c.ClassifierHost)
	for i, cat := range c.Categories {
		c.Categories[i] = strings.TrimSpace(cat)
	}
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.KnowledgeHost == "" {
		return errors.New("ai config: KnowledgeHost is required")
	}
	if c.ClassifierHost == "" {
		return errors.New("ai config: ClassifierHost is required")
	}
	if c.KnowledgeModel == "" {
		return errors.New("ai config: KnowledgeModel is required")
	}
	if c.ClassifierModel == "" {
		return errors.New("ai config: ClassifierModel is required")
	}
	if len(c.Categories) == 0 || slices.Contains(c.Categories, "") {
		return errors.New("ai config: Categories must be non-empty names")
	}
	if c.ParseAttempts < 1 {
		return errors.New("ai config: ParseAttempts must be at least 1")
	}
	return nil
}
