package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir switches into a fresh directory for the duration of the test.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)
	t.Setenv("PORT", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Port", cfg.Port, "8080"},
		{"StoreBackend", cfg.StoreBackend, "sqlite"},
		{"DBPath", cfg.DBPath, "casefill.db"},
		{"ExtractProvider", cfg.ExtractProvider, "gemini"},
		{"GeminiModel", cfg.GeminiModel, "gemini-2.0-flash"},
		{"HTTPTimeout", cfg.HTTPTimeout, 60 * time.Second},
		{"DocBatchSize", cfg.DocBatchSize, 1},
		{"ImageBatchSize", cfg.ImageBatchSize, 2},
		{"Headless", cfg.Headless, true},
		{"RequireHumanCheckpoint", cfg.RequireHumanCheckpoint, true},
		{"WorkerConcurrency", cfg.WorkerConcurrency, 1},
		{"LogLevel", cfg.LogLevel, "info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
	assert.True(t, cfg.UseStubs(), "no key configured")
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t)
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("MIN_CALL_DELAY", "250ms")
	t.Setenv("REQUIRE_HUMAN_CHECKPOINT", "false")
	t.Setenv("GEMINI_API_KEY", "k")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, 250*time.Millisecond, cfg.ExtractOptions().MinCallDelay)
	assert.False(t, cfg.RequireHumanCheckpoint)
	assert.False(t, cfg.UseStubs())
}

func TestLoadFiles(t *testing.T) {
	dir := chdir(t)
	t.Setenv("OPENAI_MODEL", "")
	yaml := "port: \"7070\"\nextract_provider: openai\nopenai_model: gpt-4o\ncors_origins: \"https://a.example, https://b.example\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "casefill.yaml"), []byte(yaml), 0o644))
	env := "# comment line\nOPENAI_API_KEY=\"quoted value\"\nPORT=6060\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte(env), 0o644))

	t.Setenv("PORT", "5050")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "5050", cfg.Port, "environment wins over files")
	assert.Equal(t, "openai", cfg.ExtractProvider)
	assert.Equal(t, "gpt-4o", cfg.OpenAIModel)
	assert.Equal(t, "quoted value", cfg.OpenAIKey)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())
}

func TestLoadExplicitFileMissing(t *testing.T) {
	chdir(t)
	_, err := Load("nope.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	chdir(t)
	t.Setenv("STORE_BACKEND", "s3")
	_, err := Load("")
	assert.ErrorContains(t, err, "store_backend")
}

func TestUseStubs(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"gemini without key", Config{ExtractProvider: "gemini"}, true},
		{"gemini with key", Config{ExtractProvider: "gemini", GeminiKey: "k"}, false},
		{"openai without key", Config{ExtractProvider: "openai", GeminiKey: "k"}, true},
		{"openai with key", Config{ExtractProvider: "openai", OpenAIKey: "k"}, false},
		{"demo forces stubs", Config{ExtractProvider: "gemini", GeminiKey: "k", Demo: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.UseStubs())
		})
	}
}
