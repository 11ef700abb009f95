package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Host)
	assert.Equal(t, "qwen2.5:3b", cfg.Model)
	assert.Equal(t, "none", cfg.Token)
	assert.Equal(t, 3, cfg.MaxMatches)
	assert.Equal(t, 8192, cfg.MaxPayloadBytes)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with custom values", func(t *testing.T) {
		cfg := NewConfig(
			WithHost("http://custom:8080/v1"),
			WithModel("gpt-4o-mini"),
			WithToken("sk-test"),
			WithMaxMatches(5),
			WithMaxPayloadBytes(1024),
		)

		assert.Equal(t, "http://custom:8080/v1", cfg.Host)
		assert.Equal(t, "gpt-4o-mini", cfg.Model)
		assert.Equal(t, "sk-test", cfg.Token)
		assert.Equal(t, 5, cfg.MaxMatches)
		assert.Equal(t, 1024, cfg.MaxPayloadBytes)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"adds suffix", "http://localhost:11434", "http://localhost:11434/v1"},
		{"trims trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"keeps suffix", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"leaves empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Host: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.Host)
			assert.Equal(t, "none", cfg.Token)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://localhost:11434"))
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "http://localhost:11434/v1", cfg.Host)
	})

	tests := []struct {
		name string
		opt  ConfigOption
		msg  string
	}{
		{"missing host", WithHost(""), "Host is required"},
		{"missing model", WithModel(""), "Model is required"},
		{"zero matches", WithMaxMatches(0), "MaxMatches"},
		{"zero payload", WithMaxPayloadBytes(0), "MaxPayloadBytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfig(tt.opt).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
