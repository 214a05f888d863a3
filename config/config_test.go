package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/gitbridge/config"
	"github.com/byte4ever/gitbridge/git"
)

const sample = `
defaults:
  timeout_seconds: 20
  retry_attempts: 2
  retry_min_wait_ms: 250
  page_size: 50

platforms:
  github:
    token: gh-token
    page_size: 30
  gitlab:
    base_url: https://gitlab.example.com
    token: gl-token
  bitbucket:
    base_url: https://bb.example.com
    username: bob
    token: bb-token
`

func TestParse_merges_defaults(t *testing.T) {
	t.Parallel()

	f, err := config.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	cfg, ok := f.PlatformConfig(git.PlatformGitHub)
	require.True(t, ok)
	assert.Equal(t, "gh-token", cfg.Token)
	// Platform override wins over the defaults block.
	assert.Equal(t, 30, cfg.PageSize)
	assert.Equal(t, 20*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.RetryAttempts)
	assert.Equal(
		t, 250*time.Millisecond, cfg.RetryMinWait,
	)

	cfg, ok = f.PlatformConfig(git.PlatformGitLab)
	require.True(t, ok)
	assert.Equal(
		t, "https://gitlab.example.com", cfg.BaseURL,
	)
	assert.Equal(t, 50, cfg.PageSize)

	cfg, ok = f.PlatformConfig(git.PlatformBitbucket)
	require.True(t, ok)
	assert.Equal(t, "bob", cfg.Username)
}

func TestPlatformConfig_missing_platform(t *testing.T) {
	t.Parallel()

	f, err := config.Parse(strings.NewReader(`
defaults:
  timeout_seconds: 10
`))
	require.NoError(t, err)

	cfg, ok := f.PlatformConfig(git.PlatformGitHub)

	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Empty(t, cfg.Token)
}

func TestParse_rejects_unknown_platform(t *testing.T) {
	t.Parallel()

	_, err := config.Parse(strings.NewReader(`
platforms:
  gitea:
    token: x
`))

	assert.ErrorContains(t, err, "unknown platform")
}

func TestParse_rejects_unknown_field(t *testing.T) {
	t.Parallel()

	_, err := config.Parse(strings.NewReader(`
defaults:
  timout_seconds: 10
`))

	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(
		path, []byte(sample), 0o600,
	))

	f, err := config.Load(path)
	require.NoError(t, err)

	_, ok := f.PlatformConfig(git.PlatformGitLab)
	assert.True(t, ok)

	_, err = config.Load(
		filepath.Join(t.TempDir(), "missing.yaml"),
	)
	assert.Error(t, err)
}
