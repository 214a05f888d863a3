package service

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/byte4ever/gitbridge/git"
	"github.com/byte4ever/gitbridge/git/factory"
)

// Defaults applied when no option overrides them.
const (
	defaultCacheTTL       = 5 * time.Minute
	defaultBranchCacheTTL = 2 * time.Minute
	defaultStatsSamples   = 3
)

// Factory builds a platform adapter. Swapped in tests.
type Factory func(
	platform git.Platform,
	cfg git.Config,
) (git.Adapter, error)

// Service coordinates platform adapters behind a single
// API surface. One credential and one adapter are held
// per platform; reads go through a TTL cache that
// mutations invalidate.
//
// Pattern: Facade -- callers never touch an adapter
// directly.
type Service struct {
	factory Factory

	cacheTTL  time.Duration
	branchTTL time.Duration
	samples   int
	clock     func() time.Time

	cache *ttlCache

	mu       sync.Mutex
	cfgs     map[git.Platform]git.Config
	auths    map[git.Platform]git.Auth
	adapters map[git.Platform]git.Adapter
}

// Option configures a Service.
type Option func(*Service)

// WithFactory replaces the adapter factory.
func WithFactory(f Factory) Option {
	return func(s *Service) { s.factory = f }
}

// WithConfig sets the construction config used when a
// credential for platform arrives.
func WithConfig(
	platform git.Platform,
	cfg git.Config,
) Option {
	return func(s *Service) { s.cfgs[platform] = cfg }
}

// WithCacheTTL sets the general read cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithBranchCacheTTL sets the TTL for branch reads,
// which go stale faster than repository metadata.
func WithBranchCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.branchTTL = ttl }
}

// WithClock replaces the time source for cache expiry.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithStatsSampleLimit caps how many repositories per
// platform Stats inspects for branch counts.
func WithStatsSampleLimit(n int) Option {
	return func(s *Service) { s.samples = n }
}

// New builds a Service with no authenticated platforms.
func New(opts ...Option) *Service {
	s := &Service{
		factory:   factory.New,
		cacheTTL:  defaultCacheTTL,
		branchTTL: defaultBranchCacheTTL,
		samples:   defaultStatsSamples,
		clock:     time.Now,
		cfgs:      make(map[git.Platform]git.Config),
		auths:     make(map[git.Platform]git.Auth),
		adapters:  make(map[git.Platform]git.Adapter),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.cache = newTTLCache(s.clock)

	return s
}

// SetAuth stores a credential, builds the platform's
// adapter and drops every cache entry for the platform.
func (s *Service) SetAuth(auth git.Auth) error {
	s.mu.Lock()
	cfg := s.cfgs[auth.Platform]
	s.mu.Unlock()

	cfg.Token = auth.Token
	if auth.Username != "" {
		cfg.Username = auth.Username
	}

	adapter, err := s.factory(auth.Platform, cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.auths[auth.Platform] = auth
	s.adapters[auth.Platform] = adapter
	s.mu.Unlock()

	s.cache.invalidatePrefix(string(auth.Platform) + "/")

	slog.Info(
		"platform authenticated",
		"platform", auth.Platform,
	)

	return nil
}

// RemoveAuth forgets a platform's credential, adapter
// and cached reads.
func (s *Service) RemoveAuth(platform git.Platform) {
	s.mu.Lock()
	delete(s.auths, platform)
	delete(s.adapters, platform)
	s.mu.Unlock()

	s.cache.invalidatePrefix(string(platform) + "/")

	slog.Info(
		"platform credential removed",
		"platform", platform,
	)
}

// Authenticated lists the platforms holding a
// credential, in stable order.
func (s *Service) Authenticated() []git.Platform {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]git.Platform, 0, len(s.adapters))
	for p := range s.adapters {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i] < out[j]
	})

	return out
}

func (s *Service) adapter(
	platform git.Platform,
) (git.Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.adapters[platform]
	if !ok {
		return nil, git.Errorf(
			platform,
			git.CodeNotAuthenticated,
			"no credential for platform %q", platform,
		)
	}

	return a, nil
}

// ValidateAuth verifies the platform's stored credential
// and returns the authenticated user. Never cached.
func (s *Service) ValidateAuth(
	ctx context.Context,
	platform git.Platform,
) (*git.User, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	return a.ValidateAuth(ctx)
}

// CheckConnection verifies the platform is reachable.
func (s *Service) CheckConnection(
	ctx context.Context,
	platform git.Platform,
) error {
	a, err := s.adapter(platform)
	if err != nil {
		return err
	}

	return a.CheckConnection(ctx)
}

// ListRepositories lists repositories on one platform,
// served from cache within the TTL.
func (s *Service) ListRepositories(
	ctx context.Context,
	platform git.Platform,
	opts git.RepositoryListOptions,
) (*git.Page[git.Repository], error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	key := cacheKey(platform, "repos", "", opts)

	return cached(
		s, key, s.cacheTTL,
		func() (*git.Page[git.Repository], error) {
			return a.ListRepositories(ctx, opts)
		},
	)
}

// GetRepository fetches one repository.
func (s *Service) GetRepository(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
) (*git.Repository, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	key := cacheKey(
		platform, "repo", owner+"/"+repo, nil,
	)

	return cached(
		s, key, s.cacheTTL,
		func() (*git.Repository, error) {
			return a.GetRepository(ctx, owner, repo)
		},
	)
}

// ListBranches lists branches with the shorter branch
// TTL.
func (s *Service) ListBranches(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
	opts git.ListOptions,
) (*git.Page[git.Branch], error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	key := cacheKey(
		platform, "branches", owner+"/"+repo, opts,
	)

	return cached(
		s, key, s.branchTTL,
		func() (*git.Page[git.Branch], error) {
			return a.ListBranches(ctx, owner, repo, opts)
		},
	)
}

// GetBranch fetches one branch.
func (s *Service) GetBranch(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
	name string,
) (*git.Branch, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	key := cacheKey(
		platform, "branch",
		owner+"/"+repo+"/"+name, nil,
	)

	return cached(
		s, key, s.branchTTL,
		func() (*git.Branch, error) {
			return a.GetBranch(ctx, owner, repo, name)
		},
	)
}

// CreateBranch creates a branch and invalidates the
// repository's cached branch reads.
func (s *Service) CreateBranch(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
	name string,
	fromRef string,
) (*git.Branch, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	br, err := a.CreateBranch(
		ctx, owner, repo, name, fromRef,
	)
	if err != nil {
		return nil, err
	}

	s.invalidateBranches(platform, owner, repo)

	return br, nil
}

// DeleteBranch deletes a branch and invalidates the
// repository's cached branch reads.
func (s *Service) DeleteBranch(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
	name string,
) error {
	a, err := s.adapter(platform)
	if err != nil {
		return err
	}

	if err := a.DeleteBranch(
		ctx, owner, repo, name,
	); err != nil {
		return err
	}

	s.invalidateBranches(platform, owner, repo)

	return nil
}

// CompareBranches compares two refs. Comparisons use the
// branch TTL since they move with every push.
func (s *Service) CompareBranches(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
	base string,
	head string,
) (*git.Comparison, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	key := cacheKey(
		platform, "compare",
		owner+"/"+repo+"/"+base+"..."+head, nil,
	)

	return cached(
		s, key, s.branchTTL,
		func() (*git.Comparison, error) {
			return a.CompareBranches(
				ctx, owner, repo, base, head,
			)
		},
	)
}

// GetBranchProtection reports protection for a branch.
func (s *Service) GetBranchProtection(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
	branch string,
) (*git.Protection, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	key := cacheKey(
		platform, "protection",
		owner+"/"+repo+"/"+branch, nil,
	)

	return cached(
		s, key, s.cacheTTL,
		func() (*git.Protection, error) {
			return a.GetBranchProtection(
				ctx, owner, repo, branch,
			)
		},
	)
}

// ListMergeRequests lists merge requests.
func (s *Service) ListMergeRequests(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
	opts git.MergeRequestListOptions,
) (*git.Page[git.MergeRequest], error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	key := cacheKey(
		platform, "mrs", owner+"/"+repo, opts,
	)

	return cached(
		s, key, s.branchTTL,
		func() (*git.Page[git.MergeRequest], error) {
			return a.ListMergeRequests(
				ctx, owner, repo, opts,
			)
		},
	)
}

// GetMergeRequest fetches one merge request.
func (s *Service) GetMergeRequest(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
	number int,
) (*git.MergeRequest, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	key := cacheKey(
		platform, "mr",
		owner+"/"+repo+"/"+strconv.Itoa(number), nil,
	)

	return cached(
		s, key, s.branchTTL,
		func() (*git.MergeRequest, error) {
			return a.GetMergeRequest(
				ctx, owner, repo, number,
			)
		},
	)
}

// CreateMergeRequest opens a merge request and
// invalidates cached merge request reads.
func (s *Service) CreateMergeRequest(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
	in git.NewMergeRequest,
) (*git.MergeRequest, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	mr, err := a.CreateMergeRequest(ctx, owner, repo, in)
	if err != nil {
		return nil, err
	}

	s.invalidateMergeRequests(platform, owner, repo)

	return mr, nil
}

// UpdateMergeRequest edits a merge request and
// invalidates cached merge request reads.
func (s *Service) UpdateMergeRequest(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
	number int,
	upd git.MergeRequestUpdate,
) (*git.MergeRequest, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	mr, err := a.UpdateMergeRequest(
		ctx, owner, repo, number, upd,
	)
	if err != nil {
		return nil, err
	}

	s.invalidateMergeRequests(platform, owner, repo)

	return mr, nil
}

// MergeMergeRequest merges a merge request. Both merge
// request and branch reads are invalidated: the merge
// moves the target branch and may delete the source.
func (s *Service) MergeMergeRequest(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
	number int,
	opts git.MergeOptions,
) (*git.MergeRequest, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	mr, err := a.MergeMergeRequest(
		ctx, owner, repo, number, opts,
	)
	if err != nil {
		return nil, err
	}

	s.invalidateMergeRequests(platform, owner, repo)
	s.invalidateBranches(platform, owner, repo)

	return mr, nil
}

// CloseMergeRequest closes a merge request without
// merging and invalidates cached merge request reads.
func (s *Service) CloseMergeRequest(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
	number int,
) (*git.MergeRequest, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	mr, err := a.CloseMergeRequest(
		ctx, owner, repo, number,
	)
	if err != nil {
		return nil, err
	}

	s.invalidateMergeRequests(platform, owner, repo)

	return mr, nil
}

// GetFileContent fetches one file at a ref.
func (s *Service) GetFileContent(
	ctx context.Context,
	platform git.Platform,
	owner string,
	repo string,
	path string,
	ref string,
) (*git.FileContent, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	key := cacheKey(
		platform, "file",
		owner+"/"+repo+"/"+ref+"/"+path, nil,
	)

	return cached(
		s, key, s.cacheTTL,
		func() (*git.FileContent, error) {
			return a.GetFileContent(
				ctx, owner, repo, path, ref,
			)
		},
	)
}

// SearchCode runs a platform code search. Never cached:
// result relevance shifts with every push and queries
// rarely repeat verbatim.
func (s *Service) SearchCode(
	ctx context.Context,
	platform git.Platform,
	query string,
	opts git.ListOptions,
) (*git.Page[git.CodeMatch], error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	return a.SearchCode(ctx, query, opts)
}

// GetRateLimit reports the platform quota. Never cached.
func (s *Service) GetRateLimit(
	ctx context.Context,
	platform git.Platform,
) (*git.RateLimit, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	return a.GetRateLimit(ctx)
}

func (s *Service) invalidateBranches(
	platform git.Platform,
	owner string,
	repo string,
) {
	scope := owner + "/" + repo

	// Listing keys close the repo path with "?", nested
	// keys with "/". Terminating the prefix keeps a
	// sibling repo whose name merely extends this one.
	prefixes := []string{
		string(platform) + "/branches/" + scope + "?",
		string(platform) + "/branch/" + scope + "/",
		string(platform) + "/compare/" + scope + "/",
	}

	for _, p := range prefixes {
		s.cache.invalidatePrefix(p)
	}
}

func (s *Service) invalidateMergeRequests(
	platform git.Platform,
	owner string,
	repo string,
) {
	scope := owner + "/" + repo

	s.cache.invalidatePrefix(
		string(platform) + "/mrs/" + scope + "?",
	)
	s.cache.invalidatePrefix(
		string(platform) + "/mr/" + scope + "/",
	)
}
