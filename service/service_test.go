package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/gitbridge/git"
	"github.com/byte4ever/gitbridge/service"
)

// fakeAdapter counts calls and serves canned data. It
// embeds the not-implemented base so only the methods a
// test needs are overridden.
type fakeAdapter struct {
	git.Unimplemented

	repos    []git.Repository
	branches []git.Branch

	listRepoCalls   atomic.Int32
	listBranchCalls atomic.Int32

	failListRepos *git.Error
	panicOnList   bool
}

func (f *fakeAdapter) ListRepositories(
	_ context.Context,
	_ git.RepositoryListOptions,
) (*git.Page[git.Repository], error) {
	f.listRepoCalls.Add(1)

	if f.panicOnList {
		panic("boom")
	}

	if f.failListRepos != nil {
		return nil, f.failListRepos
	}

	return &git.Page[git.Repository]{
		Items: f.repos,
	}, nil
}

func (f *fakeAdapter) ListBranches(
	_ context.Context,
	_, _ string,
	_ git.ListOptions,
) (*git.Page[git.Branch], error) {
	f.listBranchCalls.Add(1)

	return &git.Page[git.Branch]{
		Items: f.branches,
	}, nil
}

func (f *fakeAdapter) ListMergeRequests(
	_ context.Context,
	_, _ string,
	_ git.MergeRequestListOptions,
) (*git.Page[git.MergeRequest], error) {
	return &git.Page[git.MergeRequest]{}, nil
}

func (f *fakeAdapter) CreateBranch(
	_ context.Context,
	_, _, name, _ string,
) (*git.Branch, error) {
	return &git.Branch{Name: name}, nil
}

func newFake(tag git.Platform) *fakeAdapter {
	return &fakeAdapter{
		Unimplemented: git.Unimplemented{
			Base: git.Base{Tag: tag},
		},
	}
}

// testClock is a mutable time source safe for the
// concurrent cache lookups of fan-out calls.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newService(
	t *testing.T,
	clock *testClock,
	fakes map[git.Platform]*fakeAdapter,
	opts ...service.Option,
) *service.Service {
	t.Helper()

	all := append([]service.Option{
		service.WithClock(clock.now),
		service.WithFactory(func(
			p git.Platform,
			_ git.Config,
		) (git.Adapter, error) {
			return fakes[p], nil
		}),
	}, opts...)

	s := service.New(all...)

	for p := range fakes {
		require.NoError(t, s.SetAuth(git.Auth{
			Platform: p,
			Token:    "tok",
		}))
	}

	return s
}

func TestListRepositories_served_from_cache(
	t *testing.T,
) {
	t.Parallel()

	clock := &testClock{t: time.Now()}
	fake := newFake(git.PlatformGitHub)
	fake.repos = []git.Repository{{Name: "r"}}

	s := newService(
		t, clock,
		map[git.Platform]*fakeAdapter{
			git.PlatformGitHub: fake,
		},
	)

	ctx := context.Background()
	opts := git.RepositoryListOptions{}

	_, err := s.ListRepositories(
		ctx, git.PlatformGitHub, opts,
	)
	require.NoError(t, err)

	_, err = s.ListRepositories(
		ctx, git.PlatformGitHub, opts,
	)
	require.NoError(t, err)

	assert.Equal(t, int32(1), fake.listRepoCalls.Load())

	// Distinct options miss the cache.
	_, err = s.ListRepositories(
		ctx, git.PlatformGitHub,
		git.RepositoryListOptions{Sort: "name"},
	)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.listRepoCalls.Load())

	// Past the TTL the entry expires.
	clock.advance(6 * time.Minute)

	_, err = s.ListRepositories(
		ctx, git.PlatformGitHub, opts,
	)
	require.NoError(t, err)
	assert.Equal(t, int32(3), fake.listRepoCalls.Load())
}

func TestCreateBranch_invalidates_branch_cache(
	t *testing.T,
) {
	t.Parallel()

	clock := &testClock{t: time.Now()}
	fake := newFake(git.PlatformGitHub)
	fake.branches = []git.Branch{{Name: "main"}}

	s := newService(
		t, clock,
		map[git.Platform]*fakeAdapter{
			git.PlatformGitHub: fake,
		},
	)

	ctx := context.Background()

	_, err := s.ListBranches(
		ctx, git.PlatformGitHub, "o", "r",
		git.ListOptions{},
	)
	require.NoError(t, err)

	_, err = s.ListBranches(
		ctx, git.PlatformGitHub, "o", "r",
		git.ListOptions{},
	)
	require.NoError(t, err)
	assert.Equal(
		t, int32(1), fake.listBranchCalls.Load(),
	)

	_, err = s.CreateBranch(
		ctx, git.PlatformGitHub,
		"o", "r", "feature/x", "main",
	)
	require.NoError(t, err)

	_, err = s.ListBranches(
		ctx, git.PlatformGitHub, "o", "r",
		git.ListOptions{},
	)
	require.NoError(t, err)
	assert.Equal(
		t, int32(2), fake.listBranchCalls.Load(),
	)
}

func TestInvalidation_spares_sibling_repo(
	t *testing.T,
) {
	t.Parallel()

	clock := &testClock{t: time.Now()}
	fake := newFake(git.PlatformGitHub)
	fake.branches = []git.Branch{{Name: "main"}}

	s := newService(
		t, clock,
		map[git.Platform]*fakeAdapter{
			git.PlatformGitHub: fake,
		},
	)

	ctx := context.Background()

	// Prime the cache for "r" and for "r2", whose name
	// extends "r".
	for _, repo := range []string{"r", "r2"} {
		_, err := s.ListBranches(
			ctx, git.PlatformGitHub, "o", repo,
			git.ListOptions{},
		)
		require.NoError(t, err)
	}

	assert.Equal(
		t, int32(2), fake.listBranchCalls.Load(),
	)

	_, err := s.CreateBranch(
		ctx, git.PlatformGitHub,
		"o", "r", "feature/x", "main",
	)
	require.NoError(t, err)

	// "r2" is still served from the cache; only "r" is
	// refetched.
	_, err = s.ListBranches(
		ctx, git.PlatformGitHub, "o", "r2",
		git.ListOptions{},
	)
	require.NoError(t, err)
	assert.Equal(
		t, int32(2), fake.listBranchCalls.Load(),
	)

	_, err = s.ListBranches(
		ctx, git.PlatformGitHub, "o", "r",
		git.ListOptions{},
	)
	require.NoError(t, err)
	assert.Equal(
		t, int32(3), fake.listBranchCalls.Load(),
	)
}

func TestRemoveAuth_purges_platform(t *testing.T) {
	t.Parallel()

	clock := &testClock{t: time.Now()}
	fake := newFake(git.PlatformGitLab)

	s := newService(
		t, clock,
		map[git.Platform]*fakeAdapter{
			git.PlatformGitLab: fake,
		},
	)

	ctx := context.Background()

	_, err := s.ListRepositories(
		ctx, git.PlatformGitLab,
		git.RepositoryListOptions{},
	)
	require.NoError(t, err)

	s.RemoveAuth(git.PlatformGitLab)

	assert.Empty(t, s.Authenticated())

	_, err = s.ListRepositories(
		ctx, git.PlatformGitLab,
		git.RepositoryListOptions{},
	)
	assert.True(
		t, git.IsCode(err, git.CodeNotAuthenticated),
	)
}

func TestAuthenticated_sorted(t *testing.T) {
	t.Parallel()

	clock := &testClock{t: time.Now()}

	s := newService(
		t, clock,
		map[git.Platform]*fakeAdapter{
			git.PlatformGitLab:    newFake(git.PlatformGitLab),
			git.PlatformGitHub:    newFake(git.PlatformGitHub),
			git.PlatformBitbucket: newFake(git.PlatformBitbucket),
		},
	)

	assert.Equal(t, []git.Platform{
		git.PlatformBitbucket,
		git.PlatformGitHub,
		git.PlatformGitLab,
	}, s.Authenticated())
}

func TestListAllRepositories_partial_failure(
	t *testing.T,
) {
	t.Parallel()

	clock := &testClock{t: time.Now()}

	now := time.Now()

	gh := newFake(git.PlatformGitHub)
	gh.repos = []git.Repository{
		{Name: "old", UpdatedAt: now.Add(-time.Hour)},
		{Name: "new", UpdatedAt: now},
	}

	gl := newFake(git.PlatformGitLab)
	gl.failListRepos = git.NewError(
		git.PlatformGitLab,
		git.CodeAuthFailed,
		"token expired",
	)

	s := newService(
		t, clock,
		map[git.Platform]*fakeAdapter{
			git.PlatformGitHub: gh,
			git.PlatformGitLab: gl,
		},
	)

	res, err := s.ListAllRepositories(
		context.Background(),
		git.RepositoryListOptions{},
	)

	require.NoError(t, err)
	require.Len(t, res.Repositories, 2)

	// Union is sorted by last activity, newest first.
	assert.Equal(t, "new", res.Repositories[0].Name)
	assert.Equal(t, "old", res.Repositories[1].Name)

	assert.True(
		t, res.PerPlatform[git.PlatformGitHub].OK,
	)

	failed := res.PerPlatform[git.PlatformGitLab]
	require.NotNil(t, failed.Err)
	assert.Equal(t, git.CodeAuthFailed, failed.Err.Code)
}

func TestListAllRepositories_all_fail(t *testing.T) {
	t.Parallel()

	clock := &testClock{t: time.Now()}

	gh := newFake(git.PlatformGitHub)
	gh.failListRepos = git.NewError(
		git.PlatformGitHub,
		git.CodeTransport,
		"connection refused",
	)

	gl := newFake(git.PlatformGitLab)
	gl.panicOnList = true

	s := newService(
		t, clock,
		map[git.Platform]*fakeAdapter{
			git.PlatformGitHub: gh,
			git.PlatformGitLab: gl,
		},
	)

	_, err := s.ListAllRepositories(
		context.Background(),
		git.RepositoryListOptions{},
	)

	assert.True(
		t, git.IsCode(err, git.CodeAllPlatformsFailed),
	)
	assert.ErrorContains(t, err, "connection refused")
}

func TestListAllRepositories_confines_panic(
	t *testing.T,
) {
	t.Parallel()

	clock := &testClock{t: time.Now()}

	gh := newFake(git.PlatformGitHub)
	gh.repos = []git.Repository{{Name: "r"}}

	gl := newFake(git.PlatformGitLab)
	gl.panicOnList = true

	s := newService(
		t, clock,
		map[git.Platform]*fakeAdapter{
			git.PlatformGitHub: gh,
			git.PlatformGitLab: gl,
		},
	)

	res, err := s.ListAllRepositories(
		context.Background(),
		git.RepositoryListOptions{},
	)

	require.NoError(t, err)
	assert.Len(t, res.Repositories, 1)

	failed := res.PerPlatform[git.PlatformGitLab]
	require.NotNil(t, failed.Err)
	assert.Equal(t, git.CodeUnknown, failed.Err.Code)
}

func TestListAllRepositories_requires_auth(
	t *testing.T,
) {
	t.Parallel()

	s := service.New()

	_, err := s.ListAllRepositories(
		context.Background(),
		git.RepositoryListOptions{},
	)

	assert.True(
		t, git.IsCode(err, git.CodeNotAuthenticated),
	)
}

func TestStats_samples_repositories(t *testing.T) {
	t.Parallel()

	clock := &testClock{t: time.Now()}

	gh := newFake(git.PlatformGitHub)
	gh.repos = []git.Repository{
		{Name: "a"}, {Name: "b"}, {Name: "c"},
		{Name: "d"}, {Name: "e"},
	}
	gh.branches = []git.Branch{
		{Name: "main"}, {Name: "dev"},
	}

	s := newService(
		t, clock,
		map[git.Platform]*fakeAdapter{
			git.PlatformGitHub: gh,
		},
		service.WithStatsSampleLimit(3),
	)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)

	res := stats.PerPlatform[git.PlatformGitHub]
	require.True(t, res.OK)

	assert.Equal(t, 5, res.Data.Repositories)
	assert.Equal(t, 3, res.Data.ReposSampled)
	assert.Equal(t, 6, res.Data.Branches)
}

func TestSetAuth_factory_failure(t *testing.T) {
	t.Parallel()

	s := service.New(service.WithFactory(func(
		p git.Platform,
		_ git.Config,
	) (git.Adapter, error) {
		return nil, git.NewError(
			p,
			git.CodeUnsupportedPlatform,
			"nope",
		)
	}))

	err := s.SetAuth(git.Auth{Platform: "gitea"})

	assert.True(
		t,
		git.IsCode(err, git.CodeUnsupportedPlatform),
	)
	assert.Empty(t, s.Authenticated())
}
