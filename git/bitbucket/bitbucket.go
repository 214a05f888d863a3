package bitbucket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/gitbridge/git"
)

// Adapter implements git.Adapter for Bitbucket Server.
//
// Pattern: Strategy -- implements git.Adapter.
type Adapter struct {
	git.Unimplemented

	cfg git.Config

	hc *http.Client

	mu       sync.Mutex
	username string
	password string
}

var _ git.Adapter = (*Adapter)(nil)

// New validates cfg and returns an Adapter. BaseURL is
// the instance root (e.g. "https://bb.example.com");
// the REST prefix is appended per request.
func New(cfg git.Config) (*Adapter, error) {
	const errCtx = "creating bitbucket adapter"

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf(
			"%s: base url must be set", errCtx,
		)
	}

	if cfg.Username == "" {
		return nil, fmt.Errorf(
			"%s: username must be set", errCtx,
		)
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf(
			"%s: token must be set", errCtx,
		)
	}

	if cfg.APIVersion == "" {
		cfg.APIVersion = "1.0"
	}

	return &Adapter{
		Unimplemented: git.Unimplemented{
			Base: git.Base{
				Tag:      git.PlatformBitbucket,
				Attempts: cfg.RetryAttempts,
				MinWait:  cfg.RetryMinWait,
				MaxWait:  cfg.RetryMaxWait,
			},
		},
		cfg: cfg,
		hc: &http.Client{
			Timeout: cfg.Timeout,
		},
		username: cfg.Username,
		password: cfg.Token,
	}, nil
}

// apiPath builds a core REST API path.
func (a *Adapter) apiPath(path string) string {
	return strings.TrimSuffix(a.cfg.BaseURL, "/") +
		"/rest/api/" + a.cfg.APIVersion + path
}

// branchUtilsPath builds a branch-utils plugin path,
// which lives under its own REST prefix.
func (a *Adapter) branchUtilsPath(path string) string {
	return strings.TrimSuffix(a.cfg.BaseURL, "/") +
		"/rest/branch-utils/" + a.cfg.APIVersion + path
}

func repoPath(owner, repo string) string {
	return "/projects/" + url.PathEscape(owner) +
		"/repos/" + url.PathEscape(repo)
}

func (a *Adapter) creds() (string, string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.username, a.password
}

// do issues one request and decodes the JSON response
// into out when out is non-nil. Error responses are
// translated into stamped domain errors.
func (a *Adapter) do(
	ctx context.Context,
	op string,
	method string,
	rawURL string,
	query url.Values,
	in any,
	out any,
) error {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}

	var body io.Reader

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return a.Errf(
				git.CodeUnknown,
				"%s: marshal request: %v", op, err,
			)
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(
		ctx, method, rawURL, body,
	)
	if err != nil {
		return a.Errf(
			git.CodeUnknown,
			"%s: build request: %v", op, err,
		)
	}

	req.Header.Set(
		"Content-Type",
		"application/json; charset=utf-8",
	)

	user, pass := a.creds()
	req.SetBasicAuth(user, pass)

	resp, err := a.hc.Do(req)
	if err != nil {
		return a.Errf(
			git.CodeTransport,
			"%s: send request: %v", op, err,
		)
	}

	defer resp.Body.Close() //nolint:errcheck

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return a.Errf(
			git.CodeTransport,
			"%s: read response: %v", op, err,
		)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return a.apiErr(op, resp.StatusCode, rb)
	}

	if out != nil && len(rb) > 0 {
		if err := json.Unmarshal(rb, out); err != nil {
			return a.Errf(
				git.CodeUnknown,
				"%s: decode response: %v", op, err,
			)
		}
	}

	return nil
}

// get is a retried idempotent read.
func (a *Adapter) get(
	ctx context.Context,
	op string,
	rawURL string,
	query url.Values,
	out any,
) error {
	return a.Retry(ctx, func(ctx context.Context) error {
		return a.do(
			ctx, op, http.MethodGet,
			rawURL, query, nil, out,
		)
	})
}

// apiErr translates a Bitbucket error envelope into a
// stamped domain error.
func (a *Adapter) apiErr(
	op string,
	status int,
	body []byte,
) error {
	message := strings.TrimSpace(string(body))

	var env struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}

	if err := json.Unmarshal(body, &env); err == nil &&
		len(env.Errors) > 0 {
		parts := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			parts = append(parts, e.Message)
		}

		message = strings.Join(parts, "; ")
	}

	return a.Errf(
		codeForStatus(status), "%s: %s", op, message,
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
		status == http.StatusConflict:
		return git.CodeValidation
	case status == http.StatusTooManyRequests:
		return git.CodeRateLimited
	case status == 0 || status >= 500:
		return git.CodeTransport
	default:
		return git.CodeUnknown
	}
}

// pageQuery maps page-number options onto Bitbucket's
// start/limit cursor.
func (a *Adapter) pageQuery(
	opts git.ListOptions,
) url.Values {
	limit := a.cfg.PageSizeFor(opts.PerPage)

	page := opts.Page
	if page < 1 {
		page = 1
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("start", strconv.Itoa((page-1)*limit))

	return q
}

// pageInfo normalizes one start/limit envelope. Bitbucket
// reports no totals, only whether a next page exists.
func pageInfo(
	opts git.ListOptions,
	limit int,
	start int,
	isLastPage bool,
) git.Pagination {
	page := opts.Page
	if page < 1 {
		page = 1
	}

	return git.Pagination{
		Page:    page,
		PerPage: limit,
		HasNext: !isLastPage,
		HasPrev: start > 0,
	}
}

// SetAuth replaces the adapter's credential. Bitbucket
// Server authenticates with basic auth, so a username is
// required alongside the token.
func (a *Adapter) SetAuth(auth git.Auth) error {
	if auth.Token == "" {
		return a.Err(
			git.CodeAuthFailed,
			"access token must be set",
		)
	}

	if auth.Username == "" {
		return a.Err(
			git.CodeAuthFailed,
			"username must be set for basic auth",
		)
	}

	a.mu.Lock()
	a.username = auth.Username
	a.password = auth.Token
	a.mu.Unlock()

	return nil
}

// ValidateAuth verifies the credential by fetching the
// authenticated user's own profile.
func (a *Adapter) ValidateAuth(
	ctx context.Context,
) (*git.User, error) {
	user, _ := a.creds()

	var u bbUser

	err := a.get(
		ctx, "validating auth",
		a.apiPath("/users/"+url.PathEscape(user)),
		nil, &u,
	)
	if err != nil {
		return nil, err
	}

	return translateUser(&u), nil
}

// ListRepositories lists repositories visible to the
// caller. Bitbucket's listing has no server-side sort;
// Sort and Direction are ignored.
func (a *Adapter) ListRepositories(
	ctx context.Context,
	opts git.RepositoryListOptions,
) (*git.Page[git.Repository], error) {
	q := a.pageQuery(opts.ListOptions)

	var env bbPage[bbRepo]

	err := a.get(
		ctx, "listing repositories",
		a.apiPath("/repos"), q, &env,
	)
	if err != nil {
		return nil, err
	}

	page := &git.Page[git.Repository]{
		Items: make(
			[]git.Repository, 0, len(env.Values),
		),
		Pagination: pageInfo(
			opts.ListOptions,
			env.Limit, env.Start, env.IsLastPage,
		),
	}

	for i := range env.Values {
		page.Items = append(
			page.Items,
			*translateRepo(&env.Values[i], ""),
		)
	}

	return page, nil
}

// GetRepository fetches one repository plus its default
// branch, which Bitbucket serves from a separate
// endpoint.
func (a *Adapter) GetRepository(
	ctx context.Context,
	owner string,
	repo string,
) (*git.Repository, error) {
	var r bbRepo

	err := a.get(
		ctx, "getting repository",
		a.apiPath(repoPath(owner, repo)), nil, &r,
	)
	if err != nil {
		return nil, err
	}

	defaultBranch, err := a.defaultBranch(
		ctx, owner, repo,
	)
	if err != nil {
		return nil, err
	}

	return translateRepo(&r, defaultBranch), nil
}

func (a *Adapter) defaultBranch(
	ctx context.Context,
	owner string,
	repo string,
) (string, error) {
	var ref bbRef

	err := a.get(
		ctx, "getting default branch",
		a.apiPath(
			repoPath(owner, repo)+"/branches/default",
		),
		nil, &ref,
	)
	if err != nil {
		// A repository without commits has no default
		// branch yet.
		if git.IsCode(err, git.CodeNotFound) {
			return "", nil
		}

		return "", err
	}

	return ref.DisplayID, nil
}

// ListBranches lists branches. Bitbucket branch listings
// carry no commit metadata, so LastCommit and UpdatedAt
// stay empty and every unmerged branch reads as active.
func (a *Adapter) ListBranches(
	ctx context.Context,
	owner string,
	repo string,
	opts git.ListOptions,
) (*git.Page[git.Branch], error) {
	q := a.pageQuery(opts)

	var env bbPage[bbBranch]

	err := a.get(
		ctx, "listing branches",
		a.apiPath(repoPath(owner, repo)+"/branches"),
		q, &env,
	)
	if err != nil {
		return nil, err
	}

	page := &git.Page[git.Branch]{
		Items: make([]git.Branch, 0, len(env.Values)),
		Pagination: pageInfo(
			opts, env.Limit, env.Start, env.IsLastPage,
		),
	}

	for i := range env.Values {
		page.Items = append(
			page.Items,
			*translateBranch(&env.Values[i]),
		)
	}

	return page, nil
}

// GetBranch fetches one branch. Bitbucket has no
// single-branch endpoint; the listing is filtered and
// matched on the exact display name.
func (a *Adapter) GetBranch(
	ctx context.Context,
	owner string,
	repo string,
	name string,
) (*git.Branch, error) {
	q := url.Values{}
	q.Set("filterText", name)

	var env bbPage[bbBranch]

	err := a.get(
		ctx, "getting branch",
		a.apiPath(repoPath(owner, repo)+"/branches"),
		q, &env,
	)
	if err != nil {
		return nil, err
	}

	for i := range env.Values {
		if env.Values[i].DisplayID == name {
			return translateBranch(&env.Values[i]), nil
		}
	}

	return nil, a.Errf(
		git.CodeNotFound, "branch %q not found", name,
	)
}

// CreateBranch creates a branch at the head of fromRef.
// Retried: Bitbucket rejects a duplicate name, so a
// replayed create cannot fork state.
func (a *Adapter) CreateBranch(
	ctx context.Context,
	owner string,
	repo string,
	name string,
	fromRef string,
) (*git.Branch, error) {
	in := struct {
		Name       string `json:"name"`
		StartPoint string `json:"startPoint"`
	}{
		Name:       name,
		StartPoint: fromRef,
	}

	var out bbBranch

	err := a.Retry(ctx, func(ctx context.Context) error {
		return a.do(
			ctx, "creating branch", http.MethodPost,
			a.branchUtilsPath(
				repoPath(owner, repo)+"/branches",
			),
			nil, &in, &out,
		)
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

	return translateBranch(&out), nil
}

// DeleteBranch deletes a branch. Never retried.
func (a *Adapter) DeleteBranch(
	ctx context.Context,
	owner string,
	repo string,
	name string,
) error {
	in := struct {
		Name string `json:"name"`
	}{
		Name: "refs/heads/" + name,
	}

	err := a.do(
		ctx, "deleting branch", http.MethodDelete,
		a.branchUtilsPath(
			repoPath(owner, repo)+"/branches",
		),
		nil, &in, nil,
	)
	if err != nil {
		return err
	}

	slog.Info(
		"deleted branch",
		"platform", a.Tag,
		"repo", owner+"/"+repo,
		"branch", name,
	)

	return nil
}

// CompareBranches compares base against head. Each
// direction is one commits call; Ahead and Behind count
// the returned commits.
func (a *Adapter) CompareBranches(
	ctx context.Context,
	owner string,
	repo string,
	base string,
	head string,
) (*git.Comparison, error) {
	compareURL := a.apiPath(
		repoPath(owner, repo) + "/compare/commits",
	)

	forward := url.Values{}
	forward.Set("from", head)
	forward.Set("to", base)

	var ahead bbPage[bbCommit]

	err := a.get(
		ctx, "comparing branches",
		compareURL, forward, &ahead,
	)
	if err != nil {
		return nil, err
	}

	reverse := url.Values{}
	reverse.Set("from", base)
	reverse.Set("to", head)

	var behind bbPage[bbCommit]

	err = a.get(
		ctx, "comparing branches",
		compareURL, reverse, &behind,
	)
	if err != nil {
		return nil, err
	}

	return translateComparison(
		base, head, ahead.Values, behind.Values,
	), nil
}

// ListMergeRequests lists pull requests. Bitbucket
// filters on one branch per call, so when both branch
// filters are set the second is applied client-side.
func (a *Adapter) ListMergeRequests(
	ctx context.Context,
	owner string,
	repo string,
	opts git.MergeRequestListOptions,
) (*git.Page[git.MergeRequest], error) {
	q := a.pageQuery(opts.ListOptions)
	q.Set("state", prStateParam(opts.State))

	switch {
	case opts.TargetBranch != "":
		q.Set("at", "refs/heads/"+opts.TargetBranch)
		q.Set("direction", "INCOMING")
	case opts.SourceBranch != "":
		q.Set("at", "refs/heads/"+opts.SourceBranch)
		q.Set("direction", "OUTGOING")
	}

	var env bbPage[bbPullRequest]

	err := a.get(
		ctx, "listing pull requests",
		a.apiPath(repoPath(owner, repo)+"/pull-requests"),
		q, &env,
	)
	if err != nil {
		return nil, err
	}

	page := &git.Page[git.MergeRequest]{
		Items: make(
			[]git.MergeRequest, 0, len(env.Values),
		),
		Pagination: pageInfo(
			opts.ListOptions,
			env.Limit, env.Start, env.IsLastPage,
		),
	}

	for i := range env.Values {
		mr := translatePullRequest(&env.Values[i])

		if opts.SourceBranch != "" &&
			mr.SourceBranch != opts.SourceBranch {
			continue
		}

		if opts.TargetBranch != "" &&
			mr.TargetBranch != opts.TargetBranch {
			continue
		}

		page.Items = append(page.Items, *mr)
	}

	return page, nil
}

func prStateParam(state git.MergeRequestState) string {
	switch state {
	case git.MergeRequestOpen, git.MergeRequestDraft:
		return "OPEN"
	case git.MergeRequestMerged:
		return "MERGED"
	case git.MergeRequestClosed:
		return "DECLINED"
	default:
		return "ALL"
	}
}

// GetMergeRequest fetches one pull request.
func (a *Adapter) GetMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
) (*git.MergeRequest, error) {
	pr, err := a.getPR(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}

	return translatePullRequest(pr), nil
}

func (a *Adapter) getPR(
	ctx context.Context,
	owner string,
	repo string,
	number int,
) (*bbPullRequest, error) {
	var pr bbPullRequest

	err := a.get(
		ctx, "getting pull request",
		a.apiPath(
			repoPath(owner, repo)+"/pull-requests/"+
				strconv.Itoa(number),
		),
		nil, &pr,
	)
	if err != nil {
		return nil, err
	}

	return &pr, nil
}

// CreateMergeRequest opens a pull request. Bitbucket
// Server has no draft or label concept; both fields are
// ignored.
func (a *Adapter) CreateMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	in git.NewMergeRequest,
) (*git.MergeRequest, error) {
	ref := bbRepoRef{
		Repository: bbRepoKey{
			Slug: repo,
			Project: bbProject{
				Key: owner,
			},
		},
	}

	fromRef := ref
	fromRef.ID = "refs/heads/" + in.SourceBranch

	toRef := ref
	toRef.ID = "refs/heads/" + in.TargetBranch

	payload := bbPullRequest{
		Title:       in.Title,
		Description: in.Description,
		State:       "OPEN",
		Open:        true,
		FromRef:     &fromRef,
		ToRef:       &toRef,
	}

	var out bbPullRequest

	err := a.do(
		ctx, "creating pull request", http.MethodPost,
		a.apiPath(repoPath(owner, repo)+"/pull-requests"),
		nil, &payload, &out,
	)
	if err != nil {
		return nil, err
	}

	slog.Info(
		"created pull request",
		"platform", a.Tag,
		"repo", owner+"/"+repo,
		"number", out.ID,
	)

	return translatePullRequest(&out), nil
}

// UpdateMergeRequest edits an open pull request.
// Bitbucket requires the current version for optimistic
// locking, so the request is fetched first.
func (a *Adapter) UpdateMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
	upd git.MergeRequestUpdate,
) (*git.MergeRequest, error) {
	current, err := a.getPR(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}

	payload := bbPullRequest{
		Version:     current.Version,
		Title:       current.Title,
		Description: current.Description,
	}

	if upd.Title != nil {
		payload.Title = *upd.Title
	}

	if upd.Description != nil {
		payload.Description = *upd.Description
	}

	if upd.TargetBranch != nil {
		toRef := *current.ToRef
		toRef.ID = "refs/heads/" + *upd.TargetBranch
		payload.ToRef = &toRef
	}

	var out bbPullRequest

	err = a.do(
		ctx, "updating pull request", http.MethodPut,
		a.apiPath(
			repoPath(owner, repo)+"/pull-requests/"+
				strconv.Itoa(number),
		),
		nil, &payload, &out,
	)
	if err != nil {
		return nil, err
	}

	return translatePullRequest(&out), nil
}

// MergeMergeRequest merges an open pull request. When the
// merge call fails but the request turns out to be merged
// already, the call succeeds. Bitbucket picks the merge
// strategy from repository settings; Method and
// CommitMessage are ignored.
func (a *Adapter) MergeMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
	opts git.MergeOptions,
) (*git.MergeRequest, error) {
	current, err := a.getPR(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}

	if current.State == "MERGED" {
		return translatePullRequest(current), nil
	}

	q := url.Values{}
	q.Set("version", strconv.Itoa(current.Version))

	var out bbPullRequest

	err = a.do(
		ctx, "merging pull request", http.MethodPost,
		a.apiPath(
			repoPath(owner, repo)+"/pull-requests/"+
				strconv.Itoa(number)+"/merge",
		),
		q, nil, &out,
	)
	if err != nil {
		merged, getErr := a.getPR(
			ctx, owner, repo, number,
		)
		if getErr == nil && merged.State == "MERGED" {
			return translatePullRequest(merged), nil
		}

		return nil, err
	}

	slog.Info(
		"merged pull request",
		"platform", a.Tag,
		"repo", owner+"/"+repo,
		"number", number,
	)

	if opts.DeleteSourceBranch && out.FromRef != nil {
		name := strings.TrimPrefix(
			out.FromRef.ID, "refs/heads/",
		)

		if err := a.DeleteBranch(
			ctx, owner, repo, name,
		); err != nil {
			slog.Warn(
				"could not delete source branch",
				"platform", a.Tag,
				"branch", name,
				"error", err,
			)
		}
	}

	return translatePullRequest(&out), nil
}

// CloseMergeRequest declines a pull request, which is
// Bitbucket's close-without-merge.
func (a *Adapter) CloseMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
) (*git.MergeRequest, error) {
	current, err := a.getPR(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("version", strconv.Itoa(current.Version))

	var out bbPullRequest

	err = a.do(
		ctx, "declining pull request", http.MethodPost,
		a.apiPath(
			repoPath(owner, repo)+"/pull-requests/"+
				strconv.Itoa(number)+"/decline",
		),
		q, nil, &out,
	)
	if err != nil {
		return nil, err
	}

	return translatePullRequest(&out), nil
}

// GetFileContent fetches one file at a ref. The raw
// endpoint serves the bytes directly, so no decode step
// is needed.
func (a *Adapter) GetFileContent(
	ctx context.Context,
	owner string,
	repo string,
	path string,
	ref string,
) (*git.FileContent, error) {
	rawURL := a.apiPath(
		repoPath(owner, repo) + "/raw/" + path,
	)

	q := url.Values{}
	if ref != "" {
		q.Set("at", ref)
	}

	if len(q) > 0 {
		rawURL += "?" + q.Encode()
	}

	var content string

	err := a.Retry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodGet, rawURL, nil,
		)
		if err != nil {
			return a.Errf(
				git.CodeUnknown,
				"getting file content: build request: %v",
				err,
			)
		}

		user, pass := a.creds()
		req.SetBasicAuth(user, pass)

		resp, err := a.hc.Do(req)
		if err != nil {
			return a.Errf(
				git.CodeTransport,
				"getting file content: send request: %v",
				err,
			)
		}

		defer resp.Body.Close() //nolint:errcheck

		rb, err := io.ReadAll(resp.Body)
		if err != nil {
			return a.Errf(
				git.CodeTransport,
				"getting file content: read response: %v",
				err,
			)
		}

		if resp.StatusCode >= http.StatusBadRequest {
			return a.apiErr(
				"getting file content",
				resp.StatusCode, rb,
			)
		}

		content = string(rb)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &git.FileContent{
		Path:    path,
		Ref:     ref,
		Size:    len(content),
		Content: content,
	}, nil
}

// CheckConnection verifies reachability through the
// unauthenticated application-properties endpoint plus a
// credential check.
func (a *Adapter) CheckConnection(
	ctx context.Context,
) error {
	err := a.get(
		ctx, "checking connection",
		a.apiPath("/application-properties"), nil, nil,
	)
	if err != nil {
		return err
	}

	_, err = a.ValidateAuth(ctx)

	return err
}

// GetBranchProtection, SearchCode and GetRateLimit fall
// through to Unimplemented: API 1.0 models protection as
// branch permissions in a separate plugin and exposes
// neither code search nor quota inspection.
