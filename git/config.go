package git

import "time"

// Config holds the construction settings for one adapter
// instance. Every field can be overridden per instance;
// zero values are filled from the factory's per-platform
// defaults.
type Config struct {
	// BaseURL is the API root (e.g.
	// "https://api.github.com"). For self-hosted
	// platforms this is the instance URL.
	BaseURL string

	// UploadURL is the upload endpoint root, used only
	// by GitHub Enterprise setups.
	UploadURL string

	// APIVersion is the REST API version segment where
	// the platform uses one (GitLab "v4", Bitbucket
	// Server "1.0").
	APIVersion string

	// Token is the initial credential. SetAuth replaces
	// it at runtime.
	Token string

	// Username is required by basic-auth platforms
	// (Bitbucket Server).
	Username string

	// PageSize is the default listing page size.
	PageSize int

	// MaxPageSize caps caller-requested page sizes.
	MaxPageSize int

	// Timeout bounds each HTTP round trip.
	Timeout time.Duration

	// RetryAttempts is the number of tries for
	// idempotent reads hitting transient failures.
	RetryAttempts int

	// RetryMinWait is the first backoff delay; it
	// doubles per attempt up to RetryMaxWait.
	RetryMinWait time.Duration
	RetryMaxWait time.Duration
}

// PageSizeFor clamps a requested page size to the
// configured bounds, falling back to the default when
// the request is zero.
func (c Config) PageSizeFor(requested int) int {
	if requested <= 0 {
		return c.PageSize
	}

	if c.MaxPageSize > 0 && requested > c.MaxPageSize {
		return c.MaxPageSize
	}

	return requested
}
