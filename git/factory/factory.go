// Package factory constructs platform adapters from a
// platform tag and a configuration. Zero-valued config
// fields are filled from per-platform defaults before
// construction.
//
// Pattern: Factory -- the only place that knows the
// concrete adapter types.
package factory

import (
	"time"

	"github.com/byte4ever/gitbridge/git"
	"github.com/byte4ever/gitbridge/git/bitbucket"
	"github.com/byte4ever/gitbridge/git/github"
	"github.com/byte4ever/gitbridge/git/gitlab"
)

// Shared defaults applied to every platform.
const (
	defaultTimeout      = 30 * time.Second
	defaultRetries      = 3
	defaultRetryMinWait = 500 * time.Millisecond
	defaultRetryMaxWait = 8 * time.Second
	defaultMaxPageSize  = 100
)

// Supported lists the platforms this factory can build,
// in stable order.
func Supported() []git.Platform {
	return []git.Platform{
		git.PlatformGitHub,
		git.PlatformGitLab,
		git.PlatformBitbucket,
	}
}

// IsSupported reports whether the factory can build an
// adapter for platform.
func IsSupported(platform git.Platform) bool {
	for _, p := range Supported() {
		if p == platform {
			return true
		}
	}

	return false
}

// DefaultConfig returns the construction defaults for
// one platform. Unsupported platforms get a zero config.
func DefaultConfig(platform git.Platform) git.Config {
	base := git.Config{
		MaxPageSize:   defaultMaxPageSize,
		Timeout:       defaultTimeout,
		RetryAttempts: defaultRetries,
		RetryMinWait:  defaultRetryMinWait,
		RetryMaxWait:  defaultRetryMaxWait,
	}

	switch platform {
	case git.PlatformGitHub:
		base.BaseURL = "https://api.github.com"
		base.PageSize = 30
	case git.PlatformGitLab:
		base.BaseURL = "https://gitlab.com"
		base.PageSize = 20
	case git.PlatformBitbucket:
		// Bitbucket Server is always self-hosted; the
		// caller must provide the instance URL.
		base.APIVersion = "1.0"
		base.PageSize = 25
	default:
		return git.Config{}
	}

	return base
}

// New builds an adapter for platform. Zero fields in cfg
// fall back to DefaultConfig(platform).
func New(
	platform git.Platform,
	cfg git.Config,
) (git.Adapter, error) {
	if !IsSupported(platform) {
		return nil, git.Errorf(
			platform,
			git.CodeUnsupportedPlatform,
			"platform %q is not supported", platform,
		)
	}

	merged := merge(cfg, DefaultConfig(platform))

	switch platform {
	case git.PlatformGitHub:
		return github.New(merged)
	case git.PlatformGitLab:
		return gitlab.New(merged)
	default:
		return bitbucket.New(merged)
	}
}

// merge fills zero fields of cfg from def.
func merge(cfg, def git.Config) git.Config {
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}

	if cfg.UploadURL == "" {
		cfg.UploadURL = def.UploadURL
	}

	if cfg.APIVersion == "" {
		cfg.APIVersion = def.APIVersion
	}

	if cfg.PageSize == 0 {
		cfg.PageSize = def.PageSize
	}

	if cfg.MaxPageSize == 0 {
		cfg.MaxPageSize = def.MaxPageSize
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}

	if cfg.RetryMinWait == 0 {
		cfg.RetryMinWait = def.RetryMinWait
	}

	if cfg.RetryMaxWait == 0 {
		cfg.RetryMaxWait = def.RetryMaxWait
	}

	return cfg
}
