package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(vars map[string]string) env.Options {
	if vars == nil {
		vars = map[string]string{}
	}
	return env.Options{Environment: vars}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", withEnv(nil))
	require.NoError(t, err)

	assert.Equal(t, []string{":8000"}, cfg.ListenAddrs)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, []string{"form-data"}, cfg.GateExemptKinds)
	assert.Equal(t, []string{"form-data", "reset-form"}, cfg.NonCacheableKinds)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Zero(t, cfg.ConnectRate)
	assert.False(t, cfg.TLSEnabled())
}

func TestLoad_Environment(t *testing.T) {
	cfg, err := load("", withEnv(map[string]string{
		"LISTEN_ADDRS":         ":8000,:8001",
		"STATIC_CACHE_MAX_AGE": "1h",
		"LOG_FORMAT":           "json",
		"ORIGIN_PATTERNS":      "slides.example.com,*.example.org",
		"CONNECT_RATE":         "2.5",
		"SEND_BUFFER":          "32",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{":8000", ":8001"}, cfg.ListenAddrs)
	assert.Equal(t, time.Hour, cfg.StaticCacheMaxAge)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, []string{"slides.example.com", "*.example.org"}, cfg.OriginPatterns)
	assert.Equal(t, 2.5, cfg.ConnectRate)
	assert.Equal(t, 32, cfg.SendBuffer)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := writeFile(t, `
listen_addrs: [":9000"]
log_level: debug
static_browse: true
write_timeout: 3s
gate_exempt_kinds: []
`)

	cfg, err := load(path, withEnv(map[string]string{"LOG_LEVEL": "warn"}))
	require.NoError(t, err)

	assert.Equal(t, []string{":9000"}, cfg.ListenAddrs)
	assert.Equal(t, "warn", cfg.LogLevel, "environment overrides the file")
	assert.True(t, cfg.StaticBrowse)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
	assert.Empty(t, cfg.GateExemptKinds)
	assert.Equal(t, "relay", cfg.ServiceName, "unset keys keep their defaults")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		vars map[string]string
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "nope.yaml")},
		{name: "bad yaml", path: writeFile(t, "listen_addrs: [")},
		{name: "bad duration", vars: map[string]string{"WRITE_TIMEOUT": "soon"}},
		{name: "unknown log format", vars: map[string]string{"LOG_FORMAT": "xml"}},
		{name: "tls without cert", vars: map[string]string{"TLS_ADDR": ":8443"}},
		{name: "static dir missing", vars: map[string]string{"STATIC_DIR": "/definitely/not/here"}},
		{name: "zero send buffer", vars: map[string]string{"SEND_BUFFER": "0"}},
		{name: "negative rate", vars: map[string]string{"CONNECT_RATE": "-1"}},
		{name: "tracing without url", path: writeFile(t, "tracing_enabled: true\nzipkin_url: \"\"\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(tt.path, withEnv(tt.vars))
			assert.Error(t, err)
		})
	}
}

func TestLoad_TLS(t *testing.T) {
	cfg, err := load("", withEnv(map[string]string{
		"TLS_ADDR":      ":8443",
		"TLS_CERT_FILE": "cert.pem",
		"TLS_KEY_FILE":  "key.pem",
	}))
	require.NoError(t, err)
	assert.True(t, cfg.TLSEnabled())
}

func TestLoad_StaticDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := load("", withEnv(map[string]string{"STATIC_DIR": dir, "STATIC_BROWSE": "true"}))
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.StaticDir)
	assert.True(t, cfg.StaticBrowse)
}
