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
	"strings"
)

// Config holds configuration for the remote content analysis service.
type Config struct {
	// Host is the base URL of an OpenAI-compatible chat API.
	// Example: "http://localhost:11434/v1"
	Host string

	// Model is the chat model used to rank candidates.
	// Example: "qwen2.5:3b", "gpt-4o-mini"
	Model string

	// Token authenticates against hosted services. Local servers accept "none".
	Token string

	// MaxMatches is the number of ranked matches kept from a response.
	// Default: 3
	MaxMatches int

	// MaxPayloadBytes bounds the payload excerpt sent with a request.
	// Default: 8192
	MaxPayloadBytes int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithHost sets the analysis service host URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithModel sets the analysis model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithToken sets the API token.
func WithToken(token string) ConfigOption {
	return func(c *Config) {
		c.Token = token
	}
}

// WithMaxMatches sets how many matches are kept.
func WithMaxMatches(n int) ConfigOption {
	return func(c *Config) {
		c.MaxMatches = n
	}
}

// WithMaxPayloadBytes sets the payload excerpt bound.
func WithMaxPayloadBytes(n int) ConfigOption {
	return func(c *Config) {
		c.MaxPayloadBytes = n
	}
}

// DefaultConfig returns a Config for a local OpenAI-compatible server.
func DefaultConfig() *Config {
	return &Config{
		Host:            "http://localhost:11434/v1",
		Model:           "qwen2.5:3b",
		Token:           "none",
		MaxMatches:      DefaultMaxMatches,
		MaxPayloadBytes: 8192,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434"),
//	    WithModel("gpt-4o-mini"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize adds the /v1 suffix OpenAI-compatible servers expect when missing.
func (c *Config) Normalize() {
	if c.Host != "" && !strings.HasSuffix(c.Host, "/v1") {
		c.Host = strings.TrimSuffix(c.Host, "/") + "/v1"
	}
	if c.Token == "" {
		c.Token = "none"
	}
}

// Validate normalizes the configuration and checks it is complete.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Host == "" {
		return errors.New("ai config: Host is required")
	}
	if c.Model == "" {
		return errors.New("ai config: Model is required")
	}
	if c.MaxMatches < 1 {
		return errors.New("ai config: MaxMatches must be at least 1")
	}
	if c.MaxPayloadBytes < 1 {
		return errors.New("ai config: MaxPayloadBytes must be positive")
	}
	return nil
}
