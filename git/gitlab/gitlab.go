package gitlab

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/byte4ever/gitbridge/git"
)

// Adapter implements git.Adapter for GitLab and
// self-managed GitLab instances.
//
// Transient-failure retries are handled inside
// client-go (retryablehttp), so reads are not routed
// through Base.Retry a second time.
//
// Pattern: Strategy -- implements git.Adapter.
type Adapter struct {
	git.Unimplemented

	cfg git.Config

	mu     sync.Mutex
	client *gl.Client
}

var _ git.Adapter = (*Adapter)(nil)

// New validates cfg and returns an Adapter. An empty
// cfg.BaseURL targets gitlab.com.
func New(cfg git.Config) (*Adapter, error) {
	const errCtx = "creating gitlab adapter"

	a := &Adapter{
		Unimplemented: git.Unimplemented{
			Base: git.Base{
				Tag:      git.PlatformGitLab,
				Attempts: cfg.RetryAttempts,
				MinWait:  cfg.RetryMinWait,
				MaxWait:  cfg.RetryMaxWait,
			},
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
) (*gl.Client, error) {
	opts := []gl.ClientOptionFunc{
		gl.WithHTTPClient(&http.Client{
			Timeout: a.cfg.Timeout,
		}),
	}

	if a.cfg.BaseURL != "" {
		opts = append(
			opts, gl.WithBaseURL(a.cfg.BaseURL),
		)
	}

	if a.cfg.RetryAttempts > 0 {
		opts = append(opts, gl.WithCustomRetryMax(
			a.cfg.RetryAttempts,
		))
	}

	if a.cfg.RetryMinWait > 0 &&
		a.cfg.RetryMaxWait > 0 {
		opts = append(
			opts,
			gl.WithCustomRetryWaitMinMax(
				a.cfg.RetryMinWait,
				a.cfg.RetryMaxWait,
			),
		)
	}

	client, err := gl.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}

	return client, nil
}

func (a *Adapter) api() *gl.Client {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.client
}

// pid builds the project path identifier GitLab uses in
// place of owner/repo pairs.
func pid(owner, repo string) string {
	return owner + "/" + repo
}

// listOpts clamps the page size and widens to the
// client-go pagination ints.
func listOpts(
	cfg git.Config,
	opts git.ListOptions,
) gl.ListOptions {
	return gl.ListOptions{
		Page:    int64(opts.Page),
		PerPage: int64(cfg.PageSizeFor(opts.PerPage)),
	}
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
	user, resp, err := a.api().Users.CurrentUser(
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, a.apiErr("validating auth", resp, err)
	}

	return translateUser(user), nil
}

// ListRepositories lists projects the authenticated
// user is a member of.
func (a *Adapter) ListRepositories(
	ctx context.Context,
	opts git.RepositoryListOptions,
) (*git.Page[git.Repository], error) {
	orderBy := "last_activity_at"

	switch opts.Sort {
	case "created":
		orderBy = "created_at"
	case "name":
		orderBy = "name"
	}

	direction := opts.Direction
	if direction == "" {
		direction = "desc"
	}

	glOpts := &gl.ListProjectsOptions{
		Membership:  gl.Ptr(true),
		OrderBy:     gl.Ptr(orderBy),
		Sort:        gl.Ptr(direction),
		ListOptions: listOpts(a.cfg, opts.ListOptions),
	}

	projects, resp, err := a.api().Projects.ListProjects(
		glOpts, gl.WithContext(ctx),
	)
	if err != nil {
		return nil, a.apiErr(
			"listing projects", resp, err,
		)
	}

	page := &git.Page[git.Repository]{
		Items: make(
			[]git.Repository, 0, len(projects),
		),
		Pagination: pageInfo(resp),
	}

	for _, p := range projects {
		page.Items = append(
			page.Items, *translateProject(p),
		)
	}

	return page, nil
}

// GetRepository fetches a single project.
func (a *Adapter) GetRepository(
	ctx context.Context,
	owner string,
	repo string,
) (*git.Repository, error) {
	project, resp, err := a.api().Projects.GetProject(
		pid(owner, repo),
		&gl.GetProjectOptions{},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, a.apiErr("getting project", resp, err)
	}

	return translateProject(project), nil
}

// ListBranches lists branches. GitLab flags both the
// default branch and merged state in the listing, so no
// extra round trip is needed.
func (a *Adapter) ListBranches(
	ctx context.Context,
	owner string,
	repo string,
	opts git.ListOptions,
) (*git.Page[git.Branch], error) {
	glOpts := &gl.ListBranchesOptions{
		ListOptions: listOpts(a.cfg, opts),
	}

	branches, resp, err := a.api().Branches.ListBranches(
		pid(owner, repo), glOpts, gl.WithContext(ctx),
	)
	if err != nil {
		return nil, a.apiErr(
			"listing branches", resp, err,
		)
	}

	page := &git.Page[git.Branch]{
		Items:      make([]git.Branch, 0, len(branches)),
		Pagination: pageInfo(resp),
	}

	for _, b := range branches {
		page.Items = append(
			page.Items, *translateBranch(b),
		)
	}

	return page, nil
}

// GetBranch fetches one branch.
func (a *Adapter) GetBranch(
	ctx context.Context,
	owner string,
	repo string,
	name string,
) (*git.Branch, error) {
	branch, resp, err := a.api().Branches.GetBranch(
		pid(owner, repo), name, gl.WithContext(ctx),
	)
	if err != nil {
		return nil, a.apiErr("getting branch", resp, err)
	}

	return translateBranch(branch), nil
}

// CreateBranch creates a branch at the head of fromRef.
func (a *Adapter) CreateBranch(
	ctx context.Context,
	owner string,
	repo string,
	name string,
	fromRef string,
) (*git.Branch, error) {
	branch, resp, err := a.api().Branches.CreateBranch(
		pid(owner, repo),
		&gl.CreateBranchOptions{
			Branch: gl.Ptr(name),
			Ref:    gl.Ptr(fromRef),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, a.apiErr("creating branch", resp, err)
	}

	slog.Info(
		"created branch",
		"platform", a.Tag,
		"repo", pid(owner, repo),
		"branch", name,
	)

	return translateBranch(branch), nil
}

// DeleteBranch deletes a branch. Never retried.
func (a *Adapter) DeleteBranch(
	ctx context.Context,
	owner string,
	repo string,
	name string,
) error {
	resp, err := a.api().Branches.DeleteBranch(
		pid(owner, repo), name, gl.WithContext(ctx),
	)
	if err != nil {
		return a.apiErr("deleting branch", resp, err)
	}

	slog.Info(
		"deleted branch",
		"platform", a.Tag,
		"repo", pid(owner, repo),
		"branch", name,
	)

	return nil
}

// CompareBranches compares base against head. GitLab's
// compare endpoint reports only the forward direction;
// Behind stays zero because an exact count needs a
// second, reversed call.
func (a *Adapter) CompareBranches(
	ctx context.Context,
	owner string,
	repo string,
	base string,
	head string,
) (*git.Comparison, error) {
	cmp, resp, err := a.api().Repositories.Compare(
		pid(owner, repo),
		&gl.CompareOptions{
			From: gl.Ptr(base),
			To:   gl.Ptr(head),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, a.apiErr(
			"comparing branches", resp, err,
		)
	}

	return translateComparison(base, head, cmp), nil
}

// GetBranchProtection reports protection for a branch. A
// 404 means the branch is not protected and returns
// success with Enabled false.
func (a *Adapter) GetBranchProtection(
	ctx context.Context,
	owner string,
	repo string,
	branch string,
) (*git.Protection, error) {
	prot, resp, err := a.api().
		ProtectedBranches.
		GetProtectedBranch(
			pid(owner, repo), branch,
			gl.WithContext(ctx),
		)
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

// ListMergeRequests lists merge requests.
func (a *Adapter) ListMergeRequests(
	ctx context.Context,
	owner string,
	repo string,
	opts git.MergeRequestListOptions,
) (*git.Page[git.MergeRequest], error) {
	glOpts := &gl.ListProjectMergeRequestsOptions{
		ListOptions: listOpts(a.cfg, opts.ListOptions),
	}

	switch opts.State {
	case git.MergeRequestOpen, git.MergeRequestDraft:
		glOpts.State = gl.Ptr("opened")
	case git.MergeRequestClosed:
		glOpts.State = gl.Ptr("closed")
	case git.MergeRequestMerged:
		glOpts.State = gl.Ptr("merged")
	}

	if opts.SourceBranch != "" {
		glOpts.SourceBranch = gl.Ptr(opts.SourceBranch)
	}

	if opts.TargetBranch != "" {
		glOpts.TargetBranch = gl.Ptr(opts.TargetBranch)
	}

	mrs, resp, err := a.api().
		MergeRequests.
		ListProjectMergeRequests(
			pid(owner, repo), glOpts,
			gl.WithContext(ctx),
		)
	if err != nil {
		return nil, a.apiErr(
			"listing merge requests", resp, err,
		)
	}

	page := &git.Page[git.MergeRequest]{
		Items:      make([]git.MergeRequest, 0, len(mrs)),
		Pagination: pageInfo(resp),
	}

	for _, mr := range mrs {
		page.Items = append(
			page.Items, *translateBasicMergeRequest(mr),
		)
	}

	return page, nil
}

// GetMergeRequest fetches one merge request including
// conflict state and change count.
func (a *Adapter) GetMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
) (*git.MergeRequest, error) {
	mr, resp, err := a.api().
		MergeRequests.
		GetMergeRequest(
			pid(owner, repo), int64(number),
			&gl.GetMergeRequestsOptions{},
			gl.WithContext(ctx),
		)
	if err != nil {
		return nil, a.apiErr(
			"getting merge request", resp, err,
		)
	}

	return translateMergeRequest(mr), nil
}

// CreateMergeRequest opens a merge request. A draft is
// expressed through the title prefix, which is how
// GitLab models drafts.
func (a *Adapter) CreateMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	in git.NewMergeRequest,
) (*git.MergeRequest, error) {
	title := in.Title
	if in.Draft {
		title = "Draft: " + title
	}

	glOpts := &gl.CreateMergeRequestOptions{
		Title:        gl.Ptr(title),
		Description:  gl.Ptr(in.Description),
		SourceBranch: gl.Ptr(in.SourceBranch),
		TargetBranch: gl.Ptr(in.TargetBranch),
	}

	if len(in.Labels) > 0 {
		labels := gl.LabelOptions(in.Labels)
		glOpts.Labels = &labels
	}

	mr, resp, err := a.api().
		MergeRequests.
		CreateMergeRequest(
			pid(owner, repo), glOpts,
			gl.WithContext(ctx),
		)
	if err != nil {
		return nil, a.apiErr(
			"creating merge request", resp, err,
		)
	}

	slog.Info(
		"created merge request",
		"platform", a.Tag,
		"url", mr.WebURL,
	)

	return translateMergeRequest(mr), nil
}

// UpdateMergeRequest edits an open merge request.
func (a *Adapter) UpdateMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
	upd git.MergeRequestUpdate,
) (*git.MergeRequest, error) {
	glOpts := &gl.UpdateMergeRequestOptions{
		Title:        upd.Title,
		Description:  upd.Description,
		TargetBranch: upd.TargetBranch,
	}

	mr, resp, err := a.api().
		MergeRequests.
		UpdateMergeRequest(
			pid(owner, repo), int64(number), glOpts,
			gl.WithContext(ctx),
		)
	if err != nil {
		return nil, a.apiErr(
			"updating merge request", resp, err,
		)
	}

	return translateMergeRequest(mr), nil
}

// MergeMergeRequest accepts a merge request. When the
// accept call fails but the request turns out to be
// merged already, the call succeeds.
func (a *Adapter) MergeMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
	opts git.MergeOptions,
) (*git.MergeRequest, error) {
	glOpts := &gl.AcceptMergeRequestOptions{}

	if opts.CommitMessage != "" {
		glOpts.MergeCommitMessage = gl.Ptr(
			opts.CommitMessage,
		)
	}

	if opts.Method == git.MergeMethodSquash {
		glOpts.Squash = gl.Ptr(true)
	}

	if opts.DeleteSourceBranch {
		glOpts.ShouldRemoveSourceBranch = gl.Ptr(true)
	}

	mr, resp, err := a.api().
		MergeRequests.
		AcceptMergeRequest(
			pid(owner, repo), int64(number), glOpts,
			gl.WithContext(ctx),
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
			"merging merge request", resp, err,
		)
	}

	slog.Info(
		"merged merge request",
		"platform", a.Tag,
		"repo", pid(owner, repo),
		"number", number,
	)

	return translateMergeRequest(mr), nil
}

// CloseMergeRequest closes a merge request without
// merging.
func (a *Adapter) CloseMergeRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
) (*git.MergeRequest, error) {
	mr, resp, err := a.api().
		MergeRequests.
		UpdateMergeRequest(
			pid(owner, repo), int64(number),
			&gl.UpdateMergeRequestOptions{
				StateEvent: gl.Ptr("close"),
			},
			gl.WithContext(ctx),
		)
	if err != nil {
		return nil, a.apiErr(
			"closing merge request", resp, err,
		)
	}

	return translateMergeRequest(mr), nil
}

// GetFileContent fetches and decodes one file at a ref.
func (a *Adapter) GetFileContent(
	ctx context.Context,
	owner string,
	repo string,
	path string,
	ref string,
) (*git.FileContent, error) {
	if ref == "" {
		ref = "HEAD"
	}

	file, resp, err := a.api().RepositoryFiles.GetFile(
		pid(owner, repo), path,
		&gl.GetFileOptions{Ref: gl.Ptr(ref)},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, a.apiErr(
			"getting file content", resp, err,
		)
	}

	return a.translateFile(file)
}

// CheckConnection verifies reachability with the current
// credential.
func (a *Adapter) CheckConnection(
	ctx context.Context,
) error {
	_, err := a.ValidateAuth(ctx)

	return err
}

// SearchCode and GetRateLimit fall through to
// Unimplemented: blob search needs an instance-level
// search backend and GitLab exposes no rate-limit
// endpoint.

// apiErr converts a client-go failure into a stamped
// domain error. A nil err returns nil.
func (a *Adapter) apiErr(
	op string,
	resp *gl.Response,
	err error,
) error {
	if err == nil {
		return nil
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
		status == http.StatusMethodNotAllowed,
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

// pageInfo normalizes GitLab's numeric pagination
// headers.
func pageInfo(resp *gl.Response) git.Pagination {
	if resp == nil {
		return git.Pagination{}
	}

	return git.Pagination{
		Page:       int(resp.CurrentPage),
		PerPage:    int(resp.ItemsPerPage),
		Total:      int(resp.TotalItems),
		TotalPages: int(resp.TotalPages),
		HasNext:    resp.NextPage > 0,
		HasPrev:    resp.PreviousPage > 0,
	}
}
