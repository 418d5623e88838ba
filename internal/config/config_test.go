package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "SHUTDOWN_TIMEOUT", "STORE_BACKEND", "CHAT_BACKEND", "AGENT_STREAM_TIMEOUT", "AGENT_IMAGE_TIMEOUT")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, ChatBackendArk, cfg.Ark.ChatBackend)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, 120*time.Second, cfg.Agents.StreamTimeout)
	assert.Equal(t, 90*time.Second, cfg.Agents.ImageTimeout)
}

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":               ":8080",
		"9000":           ":9000",
		":7000":          ":7000",
		"127.0.0.1:8081": "127.0.0.1:8081",
	}
	for in, want := range cases {
		got, err := normalizeAddr(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := normalizeAddr("80 80")
	assert.Error(t, err)
}

func TestLoadRejectsInvalidBackends(t *testing.T) {
	t.Setenv("CHAT_BACKEND", "gemini")
	_, err := Load()
	assert.ErrorContains(t, err, "CHAT_BACKEND")

	t.Setenv("CHAT_BACKEND", "openai")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err = Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestAgentModelFallbacks(t *testing.T) {
	t.Setenv("ARK_API_KEY", "shared")
	t.Setenv("ARK_MUSEUM_API_KEY", "")
	t.Setenv("ARK_RESEARCH_API_KEY", "research-key")
	t.Setenv("DOUBAO_VISION_MODEL_ID", "ep-vision")
	t.Setenv("DOUBAO_IMAGE_MODEL_ID", "")
	t.Setenv("DOUBAO_MUSEUM_VISION_MODEL_ID", "")
	t.Setenv("DOUBAO_MUSEUM_IMAGE_MODEL_ID", "ep-museum-image")
	t.Setenv("DOUBAO_RESEARCH_LITE_MODEL_ID", "ep-lite")
	t.Setenv("AGENT_STREAM_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, AgentModels{APIKey: "shared", ChatModel: "ep-vision", ImageModel: DefaultImageModel}, cfg.Scene())
	assert.Equal(t, AgentModels{APIKey: "shared", ChatModel: "ep-vision", ImageModel: "ep-museum-image"}, cfg.Museum())
	assert.Equal(t, AgentModels{APIKey: "research-key", ChatModel: "ep-lite"}, cfg.Research())
	assert.Equal(t, 30*time.Second, cfg.Agents.StreamTimeout)
}

func TestStorageConfig(t *testing.T) {
	t.Setenv("S3_BUCKET", "scene-images")
	t.Setenv("S3_ACCESS_KEY_ID", "ak")
	t.Setenv("S3_SECRET_ACCESS_KEY", "sk")
	t.Setenv("S3_PATH_STYLE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	s3 := cfg.Storage.S3()
	assert.True(t, s3.Enabled())
	assert.True(t, s3.PathStyle)
	assert.Equal(t, "scene-images", s3.Bucket)
}

func TestNewChatModelRequiresCredentials(t *testing.T) {
	_, err := ArkConfig{}.NewChatModel(context.Background(), "", "ep-x")
	assert.Error(t, err)
	_, err = ArkConfig{}.NewChatModel(context.Background(), "key", "")
	assert.Error(t, err)
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(t.TempDir()+"/missing.env"))
}
