package git

import "context"

// Unimplemented satisfies Adapter by returning
// CodeNotImplemented from every operation. Embed it in
// adapters for platforms with partial capability
// coverage, or in test fakes that only need a few
// methods.
type Unimplemented struct {
	Base
}

var _ Adapter = (*Unimplemented)(nil)

func (u Unimplemented) SetAuth(Auth) error {
	return u.NotImplemented("set auth")
}

func (u Unimplemented) ValidateAuth(
	context.Context,
) (*User, error) {
	return nil, u.NotImplemented("validate auth")
}

func (u Unimplemented) ListRepositories(
	context.Context,
	RepositoryListOptions,
) (*Page[Repository], error) {
	return nil, u.NotImplemented("list repositories")
}

func (u Unimplemented) GetRepository(
	_ context.Context,
	_, _ string,
) (*Repository, error) {
	return nil, u.NotImplemented("get repository")
}

func (u Unimplemented) ListBranches(
	_ context.Context,
	_, _ string,
	_ ListOptions,
) (*Page[Branch], error) {
	return nil, u.NotImplemented("list branches")
}

func (u Unimplemented) GetBranch(
	_ context.Context,
	_, _, _ string,
) (*Branch, error) {
	return nil, u.NotImplemented("get branch")
}

func (u Unimplemented) CreateBranch(
	_ context.Context,
	_, _, _, _ string,
) (*Branch, error) {
	return nil, u.NotImplemented("create branch")
}

func (u Unimplemented) DeleteBranch(
	_ context.Context,
	_, _, _ string,
) error {
	return u.NotImplemented("delete branch")
}

func (u Unimplemented) CompareBranches(
	_ context.Context,
	_, _, _, _ string,
) (*Comparison, error) {
	return nil, u.NotImplemented("compare branches")
}

func (u Unimplemented) GetBranchProtection(
	_ context.Context,
	_, _, _ string,
) (*Protection, error) {
	return nil, u.NotImplemented("get branch protection")
}

func (u Unimplemented) ListMergeRequests(
	_ context.Context,
	_, _ string,
	_ MergeRequestListOptions,
) (*Page[MergeRequest], error) {
	return nil, u.NotImplemented("list merge requests")
}

func (u Unimplemented) GetMergeRequest(
	_ context.Context,
	_, _ string,
	_ int,
) (*MergeRequest, error) {
	return nil, u.NotImplemented("get merge request")
}

func (u Unimplemented) CreateMergeRequest(
	_ context.Context,
	_, _ string,
	_ NewMergeRequest,
) (*MergeRequest, error) {
	return nil, u.NotImplemented("create merge request")
}

func (u Unimplemented) UpdateMergeRequest(
	_ context.Context,
	_, _ string,
	_ int,
	_ MergeRequestUpdate,
) (*MergeRequest, error) {
	return nil, u.NotImplemented("update merge request")
}

func (u Unimplemented) MergeMergeRequest(
	_ context.Context,
	_, _ string,
	_ int,
	_ MergeOptions,
) (*MergeRequest, error) {
	return nil, u.NotImplemented("merge merge request")
}

func (u Unimplemented) CloseMergeRequest(
	_ context.Context,
	_, _ string,
	_ int,
) (*MergeRequest, error) {
	return nil, u.NotImplemented("close merge request")
}

func (u Unimplemented) GetFileContent(
	_ context.Context,
	_, _, _, _ string,
) (*FileContent, error) {
	return nil, u.NotImplemented("get file content")
}

func (u Unimplemented) SearchCode(
	_ context.Context,
	_ string,
	_ ListOptions,
) (*Page[CodeMatch], error) {
	return nil, u.NotImplemented("search code")
}

func (u Unimplemented) GetRateLimit(
	context.Context,
) (*RateLimit, error) {
	return nil, u.NotImplemented("get rate limit")
}

func (u Unimplemented) CheckConnection(
	context.Context,
) error {
	return u.NotImplemented("check connection")
}
