package configuration

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inEmptyDir runs the test from a directory without a .env file.
func inEmptyDir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestReadPropertiesDefaults(t *testing.T) {
	inEmptyDir(t)
	t.Setenv("HOME", "/home/tester")

	config, err := ReadProperties()
	require.NoError(t, err)

	assert.Equal(t, "INFO", config.LogLevel)
	assert.Equal(t, "http://localhost:8088", config.API.BaseURL)
	assert.Empty(t, config.API.ChatURL)
	assert.Zero(t, config.API.Timeout)
	assert.Equal(t, []string{"openid", "email"}, config.Auth.Scopes)
	assert.Empty(t, config.Auth.JWTSecret)
	assert.Equal(t, time.Hour, config.S3.PresignExpiry)
	assert.Equal(t, uint(1024), config.Upload.MaxDimension)
	assert.Equal(t, 1<<20, config.Upload.MaxBytes)
	assert.Equal(t, "backoff", config.Upload.LabelStrategy)
	assert.Equal(t, "/home/tester/.photogallery/state.db", config.State.Path)
}

func TestReadPropertiesFromEnv(t *testing.T) {
	inEmptyDir(t)
	t.Setenv("API_BASE_URL", "https://gallery.example.com")
	t.Setenv("API_TIMEOUT", "15s")
	t.Setenv("HTTP_ALLOW_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("UPLOAD_LABEL_STRATEGY", "push")
	t.Setenv("STATE_PATH", ":memory:")

	config, err := ReadProperties()
	require.NoError(t, err)

	assert.Equal(t, "https://gallery.example.com", config.API.BaseURL)
	assert.Equal(t, 15*time.Second, config.API.Timeout)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, config.Server.AllowOrigins)
	assert.Equal(t, "push", config.Upload.LabelStrategy)
	assert.Equal(t, ":memory:", config.State.Path)
}

func TestReadPropertiesRejectsBadValues(t *testing.T) {
	inEmptyDir(t)
	t.Setenv("UPLOAD_MAX_BYTES", "lots")

	_, err := ReadProperties()
	assert.Error(t, err)
}
