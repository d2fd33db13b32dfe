// internal/config/config_test.go
package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "mongo", cfg.Store.Provider)
	assert.Equal(t, "corpusd", cfg.Store.Mongo.Database)
	assert.Equal(t, "https://api.tavily.com", cfg.Search.BaseURL)
	assert.Equal(t, "DatasetSmith/1.0", cfg.Download.UserAgent)
	assert.Equal(t, 20*time.Second, cfg.Embeddings.MinInterval.Duration())
	assert.Equal(t, 3, cfg.Embeddings.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Embeddings.BackoffStep.Duration())
	assert.Equal(t, 3, cfg.Pipeline.SampleCount)
	assert.Equal(t, "corpusd", cfg.Observability.ServiceName)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := NewDefault()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "memory defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name: "mongo with uri is valid",
			mutate: func(c *Config) {
				c.Store.Provider = "mongo"
				c.Store.Mongo.URI = Secret("mongodb://localhost:27017")
			},
		},
		{
			name: "mongo without uri",
			mutate: func(c *Config) {
				c.Store.Provider = "mongo"
			},
			wantErr: "store.mongo.uri is required",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Store.Provider = "dynamo" },
			wantErr: "unknown store provider",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server port",
		},
		{
			name:    "zero retries",
			mutate:  func(c *Config) { c.Embeddings.MaxRetries = -1 },
			wantErr: "max_retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("sk-very-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "sk-very-secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(data))

	var empty Secret
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}

func TestDurationRoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	require.Error(t, d.UnmarshalText([]byte("-5s")))
	require.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
