package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/byte4ever/gitbridge/git"
)

// MultiRepoResult is the outcome of a multi-platform
// repository listing. PerPlatform keeps every platform's
// own outcome; Repositories unions the successes.
type MultiRepoResult struct {
	// Repositories is the merged listing across all
	// succeeding platforms, newest activity first.
	Repositories []git.Repository

	// PerPlatform maps each queried platform to its own
	// result, failures included.
	PerPlatform map[git.Platform]git.Result[[]git.Repository]
}

// ListAllRepositories queries every authenticated
// platform concurrently and waits for all of them. One
// platform failing never hides another's results; only
// when every platform fails does the call return an
// error.
func (s *Service) ListAllRepositories(
	ctx context.Context,
	opts git.RepositoryListOptions,
) (*MultiRepoResult, error) {
	platforms := s.Authenticated()
	if len(platforms) == 0 {
		return nil, git.Errorf(
			"",
			git.CodeNotAuthenticated,
			"no authenticated platforms",
		)
	}

	out := &MultiRepoResult{
		PerPlatform: make(
			map[git.Platform]git.Result[[]git.Repository],
			len(platforms),
		),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, platform := range platforms {
		wg.Add(1)

		go func(platform git.Platform) {
			defer wg.Done()

			res := s.listOnPlatform(ctx, platform, opts)

			mu.Lock()
			out.PerPlatform[platform] = res
			if res.OK {
				out.Repositories = append(
					out.Repositories, res.Data...,
				)
			}
			mu.Unlock()
		}(platform)
	}

	wg.Wait()

	failures := make([]string, 0, len(platforms))

	for _, platform := range platforms {
		res := out.PerPlatform[platform]
		if !res.OK {
			failures = append(
				failures,
				string(platform)+": "+res.Err.Message,
			)
		}
	}

	if len(failures) == len(platforms) {
		return nil, git.Errorf(
			"",
			git.CodeAllPlatformsFailed,
			"all platforms failed: %s",
			strings.Join(failures, "; "),
		)
	}

	sort.SliceStable(
		out.Repositories,
		func(i, j int) bool {
			return out.Repositories[i].UpdatedAt.After(
				out.Repositories[j].UpdatedAt,
			)
		},
	)

	return out, nil
}

// listOnPlatform runs one platform's listing with fault
// isolation: a panicking adapter is confined to its own
// result instead of taking the fan-out down.
func (s *Service) listOnPlatform(
	ctx context.Context,
	platform git.Platform,
	opts git.RepositoryListOptions,
) (res git.Result[[]git.Repository]) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(
				"adapter panicked during listing",
				"platform", platform,
				"panic", r,
			)

			res = git.Fail[[]git.Repository](git.Errorf(
				platform,
				git.CodeUnknown,
				"adapter panicked: %v", r,
			))
		}
	}()

	page, err := s.ListRepositories(ctx, platform, opts)
	if err != nil {
		return git.Wrap[[]git.Repository](nil, err)
	}

	return git.OK(page.Items)
}

// PlatformStats summarizes one platform for Stats.
type PlatformStats struct {
	// Repositories counts the first listing page, which
	// bounds the work per platform.
	Repositories int

	// ReposSampled is how many repositories the branch
	// count was read from.
	ReposSampled int

	// Branches totals the branches of the sampled
	// repositories.
	Branches int

	// OpenMergeRequests totals open merge requests of
	// the sampled repositories.
	OpenMergeRequests int
}

// Stats is a cross-platform diagnostics snapshot.
type Stats struct {
	PerPlatform map[git.Platform]git.Result[PlatformStats]
}

// Stats gathers per-platform diagnostics concurrently.
// To keep the call cheap it samples at most the
// configured number of repositories per platform for
// branch and merge request counts.
func (s *Service) Stats(
	ctx context.Context,
) (*Stats, error) {
	platforms := s.Authenticated()
	if len(platforms) == 0 {
		return nil, git.Errorf(
			"",
			git.CodeNotAuthenticated,
			"no authenticated platforms",
		)
	}

	out := &Stats{
		PerPlatform: make(
			map[git.Platform]git.Result[PlatformStats],
			len(platforms),
		),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, platform := range platforms {
		wg.Add(1)

		go func(platform git.Platform) {
			defer wg.Done()

			res := s.platformStats(ctx, platform)

			mu.Lock()
			out.PerPlatform[platform] = res
			mu.Unlock()
		}(platform)
	}

	wg.Wait()

	return out, nil
}

func (s *Service) platformStats(
	ctx context.Context,
	platform git.Platform,
) (res git.Result[PlatformStats]) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(
				"adapter panicked during stats",
				"platform", platform,
				"panic", r,
			)

			res = git.Fail[PlatformStats](git.Errorf(
				platform,
				git.CodeUnknown,
				"adapter panicked: %v", r,
			))
		}
	}()

	page, err := s.ListRepositories(
		ctx, platform, git.RepositoryListOptions{},
	)
	if err != nil {
		return git.Wrap[PlatformStats](
			PlatformStats{}, err,
		)
	}

	stats := PlatformStats{
		Repositories: len(page.Items),
	}

	for _, repo := range page.Items {
		if stats.ReposSampled >= s.samples {
			break
		}

		owner := ""
		if repo.Owner != nil {
			owner = repo.Owner.Username
		}

		branches, err := s.ListBranches(
			ctx, platform, owner, repo.Name,
			git.ListOptions{},
		)
		if err != nil {
			slog.Warn(
				"skipping repository in stats",
				"platform", platform,
				"repo", repo.FullName,
				"error", err,
			)

			continue
		}

		mrs, err := s.ListMergeRequests(
			ctx, platform, owner, repo.Name,
			git.MergeRequestListOptions{
				State: git.MergeRequestOpen,
			},
		)
		if err != nil {
			slog.Warn(
				"skipping repository in stats",
				"platform", platform,
				"repo", repo.FullName,
				"error", err,
			)

			continue
		}

		stats.ReposSampled++
		stats.Branches += len(branches.Items)
		stats.OpenMergeRequests += len(mrs.Items)
	}

	return git.OK(stats)
}
