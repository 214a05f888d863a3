package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	gh "github.com/google/go-github/v68/github"

	"github.com/byte4ever/gitbridge/git"
)

// Adapter implements git.Adapter for GitHub and GitHub
// Enterprise.
//
// Pattern: Strategy -- implements git.Adapter.
type Adapter struct {
	git.Base

	cfg git.Config

	mu     sync.Mutex
	client *gh.Client
}

var _ git.Adapter = (*Adapter)(nil)

// New validates cfg and returns an Adapter. An empty
// cfg.BaseURL targets github.com; any other value is
// used verbatim as the API root (GitHub Enterprise
// "/api/v3/" endpoints included).
func New(cfg git.Config) (*Adapter, error) {
	const errCtx = "creating github adapter"

	a := &Adapter{
		Base: git.Base{
			Tag:      git.PlatformGitHub,
			Attempts: cfg.RetryAttempts,
			MinWait:  cfg.RetryMinWait,
			MaxWait:  cfg.RetryMaxWait,
		},
		cfg: cfg,
	}

	client, err := a.buildClient(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	a.client = client

	return a, nil
}

func (a *Adapter) buildClient(
	token string,
) (*gh.Client, error) {
	hc := &http.Client{Timeout: a.cfg.Timeout}

	client := gh.NewClient(hc)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	if a.cfg.BaseURL != "" {
		base := a.cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}

		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf(
				"base url: %w", err,
			)
		}

		client.BaseURL = parsed

		if a.cfg.UploadURL != "" {
			up := a.cfg.UploadURL
			if !strings.HasSuffix(up, "/") {
				up += "/"
			}

			parsedUp, err := url.Parse(up)
			if err != nil {
				return nil, fmt.Errorf(
					"upload url: %w", err,
				)
			}

			client.UploadURL = parsedUp
		}
	}

	return client, nil
}

func (a *Adapter) api() *gh.Client {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.client
}

// SetAuth replaces the adapter's credential.
func (a *Adapter) SetAuth(auth git.Auth) error {
	if auth.Token == "" {
		return a.Err(
			git.CodeAuthFailed,
			"access token must be set",
		)
	}

	client, err := a.buildClient(auth.Token)
	if err != nil {
		return a.Errf(
			git.CodeAuthFailed, "rebuild client: %v", err,
		)
	}

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()

	return nil
}

// ValidateAuth verifies the token and returns the
// authenticated user.
func (a *Adapter) ValidateAuth(
	ctx context.Context,
) (*git.User, error) {
	var user *gh.User

	err := a.Retry(ctx, func(ctx context.Context) error {
		u, resp, err := a.api().Users.Get(ctx, "")
		if err != nil {
			return a.apiErr("validating auth", resp, err)
		}

		user = u

		return nil
	})
	if err != nil {
		return nil, err
	}

	return translateUser(user), nil
}

// ListRepositories lists the authenticated user's
// repositories.
func (a *Adapter) ListRepositories(
	ctx context.Context,
	opts git.RepositoryListOptions,
) (*git.Page[git.Repository], error) {
	sort := opts.Sort
	if sort == "" {
		sort = "updated"
	}

	direction := opts.Direction
	if direction == "" {
		direction = "desc"
	}

	ghOpts := &gh.RepositoryListByAuthenticatedUserOptions{
		Sort:      sort,
		Direction: direction,
		ListOptions: gh.ListOptions{
			Page:    opts.Page,
			PerPage: a.cfg.PageSizeFor(opts.PerPage),
		},
	}

	var (
		repos []*gh.Repository
		resp  *gh.Response
	)

	err := a.Retry(ctx, func(ctx context.Context) error {
		var err error

		repos, resp, err = a.api().
			Repositories.
			ListByAuthenticatedUser(ctx, ghOpts)

		return a.apiErr("listing repositories", resp, err)
	})
	if err != nil {
		return nil, err
	}

	page := &git.Page[git.Repository]{
		Items: make([]git.Repository, 0, len(repos)),
		Pagination: pageInfo(
			opts.Page, ghOpts.PerPage, resp,
		),
	}

	for _, r := range repos {
		page.Items = append(
			page.Items, *translateRepository(r),
		)
	}

	return page, nil
}

// GetRepository fetches a single repository.
func (a *Adapter) GetRepository(
	ctx context.Context,
	owner string,
	repo string,
) (*git.Repository, error) {
	var out *gh.Repository

	err := a.Retry(ctx, func(ctx context.Context) error {
		r, resp, err := a.api().Repositories.Get(
			ctx, owner, repo,
		)
		if err != nil {
			return a.apiErr(
				"getting repository", resp, err,
			)
		}

		out = r

		return nil
	})
	if err != nil {
		return nil, err
	}

	return translateRepository(out), nil
}

// ListBranches lists branches. GitHub's branch listing
// does not flag the default branch, so the repository is
// fetched first (one extra round trip) to mark it.
func (a *Adapter) ListBranches(
	ctx context.Context,
	owner string,
	repo string,
	opts git.ListOptions,
) (*git.Page[git.Branch], error) {
	rep, err := a.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	ghOpts := &gh.BranchListOptions{
		ListOptions: gh.ListOptions{
			Page:    opts.Page,
			PerPage: a.cfg.PageSizeFor(opts.PerPage),
		},
	}

	var (
		branches []*gh.Branch
		resp     *gh.Response
	)

	err = a.Retry(ctx, func(ctx context.Context) error {
		var err error

		branches, resp, err = a.api().
			Repositories.
			ListBranches(ctx, owner, repo, ghOpts)

		return a.apiErr("listing branches", resp, err)
	})
	if err != nil {
		return nil, err
	}

	page := &git.Page[git.Branch]{
		Items: make([]git.Branch, 0, len(branches)),
		Pagination: pageInfo(
			opts.Page, ghOpts.PerPage, resp,
		),
	}

	for _, b := range branches {
		page.Items = append(page.Items, *translateBranch(
			b, rep.DefaultBranch,
		))
	}

	return page, nil
}

// GetBranch fetches one branch, marking the default
// flag via a repository lookup.
func (a *Adapter) GetBranch(
	ctx context.Context,
	owner string,
	repo string,
	name string,
) (*git.Branch, error) {
	rep, err := a.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	var out *gh.Branch

	err = a.Retry(ctx, func(ctx context.Context) error {
		b, resp, err := a.api().Repositories.GetBranch(
			ctx, owner, repo, name, 3,
		)
		if err != nil {
			return a.apiErr("getting branch", resp, err)
		}

		out = b

		return nil
	})
	if err != nil {
		return nil, err
	}

	return translateBranch(out, rep.DefaultBranch), nil
}

// CreateBranch creates a branch at the head of fromRef.
// The operation is safe to retry: GitHub rejects a
// duplicate ref with 422.
func (a *Adapter) CreateBranch(
	ctx context.Context,
	owner string,
	repo string,
	name string,
	fromRef string,
) (*git.Branch, error) {
	var baseSHA string

	err := a.Retry(ctx, func(ctx context.Context) error {
		ref, resp, err := a.api().Git.GetRef(
			ctx, owner, repo, "refs/heads/"+fromRef,
		)
		if err != nil {
			return a.apiErr(
				"resolving base branch", resp, err,
			)
		}

		baseSHA = ref.GetObject().GetSHA()

		return nil
	})
	if err != nil {
		return nil, err
	}

	newRef := &gh.Reference{
		Ref: gh.String("refs/heads/" + name),
		Object: &gh.GitObject{
			SHA: gh.String(baseSHA),
		},
	}

	var created *gh.Reference

	err = a.Retry(ctx, func(ctx context.Context) error {
		ref, resp, err := a.api().Git.CreateRef(
			ctx, owner, repo, newRef,
		)
		if err != nil {
			return a.apiErr("creating branch", resp, err)
		}

		created = ref

		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info(
		"created branch",
		"platform", a.Tag,
		"repo", owner+"/"+repo,
		"branch", name,
	)

	return &git.Branch{
		Name:   name,
		SHA:    created.GetObject().GetSHA(),
		Status: git.BranchActive,
	}, nil
}

// DeleteBranch deletes a branch ref. Never retried.
func (a *Adapter) DeleteBranch(
	ctx context.Context,
	owner string,
	repo string,
	name string,
) error {
	resp, err := a.api().Git.DeleteRef(
		ctx, owner, repo, "refs/heads/"+name,
	)
	if err != nil {
		return a.apiErr("deleting branch", resp, err)
	}

	slog.Info(
		"deleted branch",
		"platform", a.Tag,
		"repo", owner+"/"+repo,
		"branch", name,
	)

	return nil
}

// CompareBranches compares base against head.
func (a *Adapter) CompareBranches(
	ctx context.Context,
	owner string,
	repo string,
	base string,
	head string,
) (*git.Comparison, error) {
	var cmp *gh.CommitsComparison

	err := a.Retry(ctx, func(ctx context.Context) error {
		c, resp, err := a.api().
			Repositories.
			CompareCommits(
				ctx, owner, repo, base, head, nil,
			)
		if err != nil {
			return a.apiErr(
				"comparing branches", resp, err,
			)
		}

		cmp = c

		return nil
	})
	if err != nil {
		return nil, err
	}

	return translateComparison(base, head, cmp), nil
}

// GetBranchProtection reports branch protection. A 404
// means protection is disabled, which is a valid state
// and returns success with Enabled false.
func (a *Adapter) GetBranchProtection(
	ctx context.Context,
	owner string,
	repo string,
	branch string,
) (*git.Protection, error) {
	prot, resp, err := a.api().
		Repositories.
		GetBranchProtection(ctx, owner, repo, branch)
	if err != nil {
		if resp != nil &&
			resp.StatusCode == http.StatusNotFound {
			return &git.Protection{Enabled: false}, nil
		}

		return nil, a.apiErr(
			"getting branch protection", resp, err,
		)
	}

	return translateProtection(prot), nil
}

// ListMergeRequests lists pull requests. GitHub has no
// listing filter for merged state; merged and closed
// both map to the "closed" filter and the per-item state
// is derived after translation.
func (a *Adapter) ListMergeRequests(
	ctx context.Context,
	owner string,
	repo string,
	opts git.MergeRequestListOptions,
) (*git.Page[git.MergeRequest], error) {
	state := "all"

	switch opts.State {
	case git.MergeRequestOpen, git.MergeRequestDraft:
		state = "open"
	case git.MergeRequestClosed, git.MergeRequestMerged:
		state = "closed"
	}

	ghOpts := &gh.PullRequestListOptions{
		State: state,
		Base:  opts.TargetBranch,
		ListOptions: gh.ListOptions{
			Page:    opts.Page,
			PerPage: a.cfg.PageSizeFor(opts.PerPage),
		},
	}

	if opts.SourceBranch != "" {
		ghOpts.Head = owner + ":" + opts.SourceBranch
	}

	var (
		prs  []*gh.PullRequest
		resp *gh.Response
	)

	err := a.Retry(ctx, func(ctx context.Context) error {
		var err error

		prs, resp, err = a.api().PullRequests.List(
			ctx, owner, repo, ghOpts,
		)

		return a.apiErr(
			"listing pull requests", resp, err,
		)
	})
	if err != nil {
		return nil, err
	}

	page := &git.Page[git.MergeRequest]{
		Items: make([]git.MergeRequest, 0, len(prs)),
		Pagination: pageInfo(
			opts.Page, ghOpts.PerPage, resp,
		),
	}

	for _, pr := range prs {
		page.Items = append(
			page.Items, *translateMergeRequest(pr),
		)
	}

	return page, nil
}

// GetMergeRequest fetches one pull request including
// diff stats.
func (a *Adapter) GetMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
) (*git.MergeRequest, error) {
	var pr *gh.PullRequest

	err := a.Retry(ctx, func(ctx context.Context) error {
		p, resp, err := a.api().PullRequests.Get(
			ctx, owner, repo, number,
		)
		if err != nil {
			return a.apiErr(
				"getting pull request", resp, err,
			)
		}

		pr = p

		return nil
	})
	if err != nil {
		return nil, err
	}

	return translateMergeRequest(pr), nil
}

// CreateMergeRequest opens a pull request.
func (a *Adapter) CreateMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	in git.NewMergeRequest,
) (*git.MergeRequest, error) {
	newPR := &gh.NewPullRequest{
		Title: gh.String(in.Title),
		Head:  gh.String(in.SourceBranch),
		Base:  gh.String(in.TargetBranch),
		Body:  gh.String(in.Description),
		Draft: gh.Bool(in.Draft),
	}

	pr, resp, err := a.api().PullRequests.Create(
		ctx, owner, repo, newPR,
	)
	if err != nil {
		return nil, a.apiErr(
			"creating pull request", resp, err,
		)
	}

	if len(in.Labels) > 0 {
		_, _, labelErr := a.api().
			Issues.
			AddLabelsToIssue(
				ctx, owner, repo,
				pr.GetNumber(), in.Labels,
			)
		if labelErr != nil {
			slog.Warn(
				"could not apply labels",
				"platform", a.Tag,
				"number", pr.GetNumber(),
				"error", labelErr,
			)
		}
	}

	slog.Info(
		"created pull request",
		"platform", a.Tag,
		"url", pr.GetHTMLURL(),
	)

	return translateMergeRequest(pr), nil
}

// UpdateMergeRequest edits an open pull request.
func (a *Adapter) UpdateMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
	upd git.MergeRequestUpdate,
) (*git.MergeRequest, error) {
	patch := &gh.PullRequest{
		Title: upd.Title,
		Body:  upd.Description,
	}

	if upd.TargetBranch != nil {
		patch.Base = &gh.PullRequestBranch{
			Ref: upd.TargetBranch,
		}
	}

	pr, resp, err := a.api().PullRequests.Edit(
		ctx, owner, repo, number, patch,
	)
	if err != nil {
		return nil, a.apiErr(
			"updating pull request", resp, err,
		)
	}

	return translateMergeRequest(pr), nil
}

// MergeMergeRequest merges a pull request. When the
// merge call fails but the request turns out to be
// merged already, the call succeeds: "already merged" is
// an outcome, not a fault.
func (a *Adapter) MergeMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
	opts git.MergeOptions,
) (*git.MergeRequest, error) {
	ghOpts := &gh.PullRequestOptions{
		MergeMethod: opts.Method,
	}

	_, resp, err := a.api().PullRequests.Merge(
		ctx, owner, repo, number,
		opts.CommitMessage, ghOpts,
	)
	if err != nil {
		merged, getErr := a.GetMergeRequest(
			ctx, owner, repo, number,
		)
		if getErr == nil &&
			merged.State == git.MergeRequestMerged {
			return merged, nil
		}

		return nil, a.apiErr(
			"merging pull request", resp, err,
		)
	}

	slog.Info(
		"merged pull request",
		"platform", a.Tag,
		"repo", owner+"/"+repo,
		"number", number,
	)

	if opts.DeleteSourceBranch {
		pr, getErr := a.GetMergeRequest(
			ctx, owner, repo, number,
		)
		if getErr == nil && pr.SourceBranch != "" {
			if delErr := a.DeleteBranch(
				ctx, owner, repo, pr.SourceBranch,
			); delErr != nil {
				slog.Warn(
					"could not delete source branch",
					"branch", pr.SourceBranch,
					"error", delErr,
				)
			}
		}

		if getErr == nil {
			return pr, nil
		}
	}

	return a.GetMergeRequest(ctx, owner, repo, number)
}

// CloseMergeRequest closes a pull request without
// merging.
func (a *Adapter) CloseMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
) (*git.MergeRequest, error) {
	pr, resp, err := a.api().PullRequests.Edit(
		ctx, owner, repo, number,
		&gh.PullRequest{State: gh.String("closed")},
	)
	if err != nil {
		return nil, a.apiErr(
			"closing pull request", resp, err,
		)
	}

	return translateMergeRequest(pr), nil
}

// GetFileContent fetches and decodes one file at a ref.
func (a *Adapter) GetFileContent(
	ctx context.Context,
	owner string,
	repo string,
	path string,
	ref string,
) (*git.FileContent, error) {
	var fc *gh.RepositoryContent

	err := a.Retry(ctx, func(ctx context.Context) error {
		file, _, resp, err := a.api().
			Repositories.
			GetContents(
				ctx, owner, repo, path,
				&gh.RepositoryContentGetOptions{
					Ref: ref,
				},
			)
		if err != nil {
			return a.apiErr(
				"getting file content", resp, err,
			)
		}

		fc = file

		return nil
	})
	if err != nil {
		return nil, err
	}

	if fc == nil {
		return nil, a.Errf(
			git.CodeValidation,
			"%s is a directory, not a file", path,
		)
	}

	content, err := fc.GetContent()
	if err != nil {
		return nil, a.Errf(
			git.CodeUnknown,
			"decoding %s: %v", path, err,
		)
	}

	return &git.FileContent{
		Path:    fc.GetPath(),
		Ref:     ref,
		SHA:     fc.GetSHA(),
		Size:    fc.GetSize(),
		Content: content,
		WebURL:  fc.GetHTMLURL(),
	}, nil
}

// SearchCode runs a GitHub code search.
func (a *Adapter) SearchCode(
	ctx context.Context,
	query string,
	opts git.ListOptions,
) (*git.Page[git.CodeMatch], error) {
	ghOpts := &gh.SearchOptions{
		ListOptions: gh.ListOptions{
			Page:    opts.Page,
			PerPage: a.cfg.PageSizeFor(opts.PerPage),
		},
	}

	var (
		res  *gh.CodeSearchResult
		resp *gh.Response
	)

	err := a.Retry(ctx, func(ctx context.Context) error {
		var err error

		res, resp, err = a.api().Search.Code(
			ctx, query, ghOpts,
		)

		return a.apiErr("searching code", resp, err)
	})
	if err != nil {
		return nil, err
	}

	page := &git.Page[git.CodeMatch]{
		Items: make(
			[]git.CodeMatch, 0, len(res.CodeResults),
		),
		Pagination: pageInfo(
			opts.Page, ghOpts.PerPage, resp,
		),
	}

	page.Pagination.Total = res.GetTotal()

	for _, m := range res.CodeResults {
		page.Items = append(page.Items, git.CodeMatch{
			Repository: m.GetRepository().GetFullName(),
			Path:       m.GetPath(),
			WebURL:     m.GetHTMLURL(),
		})
	}

	return page, nil
}

// GetRateLimit reports the core API quota.
func (a *Adapter) GetRateLimit(
	ctx context.Context,
) (*git.RateLimit, error) {
	limits, resp, err := a.api().RateLimit.Get(ctx)
	if err != nil {
		return nil, a.apiErr(
			"getting rate limit", resp, err,
		)
	}

	core := limits.GetCore()

	return &git.RateLimit{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		ResetsAt:  core.Reset.Time,
	}, nil
}

// CheckConnection verifies reachability with the current
// credential.
func (a *Adapter) CheckConnection(
	ctx context.Context,
) error {
	_, err := a.ValidateAuth(ctx)

	return err
}

// apiErr converts a go-github failure into a stamped
// domain error. A nil err returns nil.
func (a *Adapter) apiErr(
	op string,
	resp *gh.Response,
	err error,
) error {
	if err == nil {
		return nil
	}

	var rle *gh.RateLimitError
	if errors.As(err, &rle) {
		return a.Errf(
			git.CodeRateLimited, "%s: %v", op, err,
		)
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	return a.Errf(
		codeForStatus(status), "%s: %v", op, err,
	).WithDetail("status", status)
}

func codeForStatus(status int) git.Code {
	switch {
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden:
		return git.CodeAuthFailed
	case status == http.StatusNotFound:
		return git.CodeNotFound
	case status == http.StatusBadRequest,
		status == http.StatusConflict,
		status == http.StatusUnprocessableEntity:
		return git.CodeValidation
	case status == http.StatusTooManyRequests:
		return git.CodeRateLimited
	case status == 0 || status >= 500:
		return git.CodeTransport
	default:
		return git.CodeUnknown
	}
}

// pageInfo normalizes GitHub's Link-header pagination.
// GitHub does not report totals; Total stays zero and
// TotalPages comes from the rel="last" link when
// present.
func pageInfo(
	requestedPage int,
	perPage int,
	resp *gh.Response,
) git.Pagination {
	page := requestedPage
	if page <= 0 {
		page = 1
	}

	info := git.Pagination{
		Page:    page,
		PerPage: perPage,
	}

	if resp == nil {
		return info
	}

	info.HasNext = resp.NextPage > 0
	info.HasPrev = resp.PrevPage > 0

	switch {
	case resp.LastPage > 0:
		info.TotalPages = resp.LastPage
	case !info.HasNext:
		// On the final page GitHub omits rel="last".
		info.TotalPages = page
	}

	return info
}
