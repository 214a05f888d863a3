// Package config loads multi-platform settings from
// YAML. A file carries shared defaults plus per-platform
// overrides; the merged result converts into the adapter
// construction config.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/byte4ever/gitbridge/git"
)

// Settings is one YAML settings block. Durations are
// expressed as plain integers (seconds, milliseconds) to
// keep the file format obvious.
type Settings struct {
	BaseURL     string `yaml:"base_url"`
	UploadURL   string `yaml:"upload_url"`
	APIVersion  string `yaml:"api_version"`
	Token       string `yaml:"token"`
	Username    string `yaml:"username"`
	PageSize    int    `yaml:"page_size"`
	MaxPageSize int    `yaml:"max_page_size"`

	TimeoutSeconds int `yaml:"timeout_seconds"`

	RetryAttempts  int `yaml:"retry_attempts"`
	RetryMinWaitMS int `yaml:"retry_min_wait_ms"`
	RetryMaxWaitMS int `yaml:"retry_max_wait_ms"`
}

// File is a parsed configuration file.
type File struct {
	// Defaults applies to every platform unless a
	// platform block overrides a field.
	Defaults Settings `yaml:"defaults"`

	// Platforms holds per-platform overrides keyed by
	// platform tag.
	Platforms map[git.Platform]Settings `yaml:"platforms"`
}

// Parse reads one YAML document from in. Unknown fields
// and unknown platform keys are rejected.
func Parse(in io.Reader) (*File, error) {
	const errCtx = "parsing config"

	var f File

	decoder := yaml.NewDecoder(in, yaml.Strict())

	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf(
			"%s: decoding yaml: %w", errCtx, err,
		)
	}

	for platform := range f.Platforms {
		if !knownPlatform(platform) {
			return nil, fmt.Errorf(
				"%s: unknown platform %q",
				errCtx, platform,
			)
		}
	}

	return &f, nil
}

// Load parses the file at path.
func Load(path string) (*File, error) {
	const errCtx = "loading config"

	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	defer fh.Close() //nolint:errcheck

	return Parse(fh)
}

func knownPlatform(platform git.Platform) bool {
	switch platform {
	case git.PlatformGitHub,
		git.PlatformGitLab,
		git.PlatformBitbucket:
		return true
	default:
		return false
	}
}

// PlatformConfig merges the defaults block with the
// platform's overrides and converts the result. The
// second return reports whether the platform has its own
// block.
func (f *File) PlatformConfig(
	platform git.Platform,
) (git.Config, bool) {
	settings := f.Defaults

	over, ok := f.Platforms[platform]
	if ok {
		settings = overlay(settings, over)
	}

	return settings.toConfig(), ok
}

// overlay returns def with every non-zero field of over
// applied on top.
func overlay(def, over Settings) Settings {
	if over.BaseURL != "" {
		def.BaseURL = over.BaseURL
	}

	if over.UploadURL != "" {
		def.UploadURL = over.UploadURL
	}

	if over.APIVersion != "" {
		def.APIVersion = over.APIVersion
	}

	if over.Token != "" {
		def.Token = over.Token
	}

	if over.Username != "" {
		def.Username = over.Username
	}

	if over.PageSize != 0 {
		def.PageSize = over.PageSize
	}

	if over.MaxPageSize != 0 {
		def.MaxPageSize = over.MaxPageSize
	}

	if over.TimeoutSeconds != 0 {
		def.TimeoutSeconds = over.TimeoutSeconds
	}

	if over.RetryAttempts != 0 {
		def.RetryAttempts = over.RetryAttempts
	}

	if over.RetryMinWaitMS != 0 {
		def.RetryMinWaitMS = over.RetryMinWaitMS
	}

	if over.RetryMaxWaitMS != 0 {
		def.RetryMaxWaitMS = over.RetryMaxWaitMS
	}

	return def
}

func (s Settings) toConfig() git.Config {
	return git.Config{
		BaseURL:     s.BaseURL,
		UploadURL:   s.UploadURL,
		APIVersion:  s.APIVersion,
		Token:       s.Token,
		Username:    s.Username,
		PageSize:    s.PageSize,
		MaxPageSize: s.MaxPageSize,
		Timeout: time.Duration(s.TimeoutSeconds) *
			time.Second,
		RetryAttempts: s.RetryAttempts,
		RetryMinWait: time.Duration(s.RetryMinWaitMS) *
			time.Millisecond,
		RetryMaxWait: time.Duration(s.RetryMaxWaitMS) *
			time.Millisecond,
	}
}
