package git

import "context"

// Pattern: Strategy -- swap git platform without
// changing orchestration or business logic.

// Adapter is the platform-neutral capability set every
// platform implementation satisfies. Methods return
// (value, error); expected failures are *Error values,
// never panics. Capabilities a platform cannot serve
// still exist on the adapter and return a stable
// CodeNotImplemented error so callers can
// feature-detect.
type Adapter interface {
	// Platform returns the adapter's platform tag.
	Platform() Platform

	// SetAuth replaces the adapter's credential.
	SetAuth(auth Auth) error

	// ValidateAuth verifies the credential against the
	// platform and returns the authenticated user.
	ValidateAuth(ctx context.Context) (*User, error)

	ListRepositories(
		ctx context.Context,
		opts RepositoryListOptions,
	) (*Page[Repository], error)

	GetRepository(
		ctx context.Context,
		owner string,
		repo string,
	) (*Repository, error)

	ListBranches(
		ctx context.Context,
		owner string,
		repo string,
		opts ListOptions,
	) (*Page[Branch], error)

	GetBranch(
		ctx context.Context,
		owner string,
		repo string,
		name string,
	) (*Branch, error)

	// CreateBranch creates branch name pointing at the
	// head of fromRef.
	CreateBranch(
		ctx context.Context,
		owner string,
		repo string,
		name string,
		fromRef string,
	) (*Branch, error)

	DeleteBranch(
		ctx context.Context,
		owner string,
		repo string,
		name string,
	) error

	CompareBranches(
		ctx context.Context,
		owner string,
		repo string,
		base string,
		head string,
	) (*Comparison, error)

	// GetBranchProtection reports protection for a
	// branch. A platform 404 means protection is
	// disabled and translates to Enabled false, not an
	// error.
	GetBranchProtection(
		ctx context.Context,
		owner string,
		repo string,
		branch string,
	) (*Protection, error)

	ListMergeRequests(
		ctx context.Context,
		owner string,
		repo string,
		opts MergeRequestListOptions,
	) (*Page[MergeRequest], error)

	GetMergeRequest(
		ctx context.Context,
		owner string,
		repo string,
		number int,
	) (*MergeRequest, error)

	CreateMergeRequest(
		ctx context.Context,
		owner string,
		repo string,
		in NewMergeRequest,
	) (*MergeRequest, error)

	UpdateMergeRequest(
		ctx context.Context,
		owner string,
		repo string,
		number int,
		upd MergeRequestUpdate,
	) (*MergeRequest, error)

	// MergeMergeRequest merges an open merge request.
	// An already-merged request is a success, not a
	// retryable error.
	MergeMergeRequest(
		ctx context.Context,
		owner string,
		repo string,
		number int,
		opts MergeOptions,
	) (*MergeRequest, error)

	CloseMergeRequest(
		ctx context.Context,
		owner string,
		repo string,
		number int,
	) (*MergeRequest, error)

	GetFileContent(
		ctx context.Context,
		owner string,
		repo string,
		path string,
		ref string,
	) (*FileContent, error)

	// SearchCode runs a platform code search with the
	// platform's own query syntax.
	SearchCode(
		ctx context.Context,
		query string,
		opts ListOptions,
	) (*Page[CodeMatch], error)

	GetRateLimit(ctx context.Context) (*RateLimit, error)

	// CheckConnection verifies that the platform is
	// reachable with the current credential.
	CheckConnection(ctx context.Context) error
}
