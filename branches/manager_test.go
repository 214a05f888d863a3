package branches_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/gitbridge/branches"
	"github.com/byte4ever/gitbridge/git"
)

// fakeGit records calls and fails on demand.
type fakeGit struct {
	branches []git.Branch

	created []string
	deleted []string

	failCreate map[string]*git.Error
	failDelete map[string]*git.Error
}

func (f *fakeGit) ListBranches(
	_ context.Context,
	_ git.Platform,
	_, _ string,
	_ git.ListOptions,
) (*git.Page[git.Branch], error) {
	return &git.Page[git.Branch]{
		Items: f.branches,
	}, nil
}

func (f *fakeGit) GetBranch(
	_ context.Context,
	_ git.Platform,
	_, _, name string,
) (*git.Branch, error) {
	for _, b := range f.branches {
		if b.Name == name {
			return &b, nil
		}
	}

	return nil, git.NewError(
		"", git.CodeNotFound, "no such branch",
	)
}

func (f *fakeGit) CreateBranch(
	_ context.Context,
	_ git.Platform,
	_, _, name, _ string,
) (*git.Branch, error) {
	if err, ok := f.failCreate[name]; ok {
		return nil, err
	}

	f.created = append(f.created, name)

	return &git.Branch{Name: name}, nil
}

func (f *fakeGit) DeleteBranch(
	_ context.Context,
	_ git.Platform,
	_, _, name string,
) error {
	if err, ok := f.failDelete[name]; ok {
		return err
	}

	f.deleted = append(f.deleted, name)

	return nil
}

var scope = branches.Scope{
	Platform: git.PlatformGitHub,
	Owner:    "o",
	Repo:     "r",
}

func TestListBranches_applies_filter(t *testing.T) {
	t.Parallel()

	now := time.Now()

	fake := &fakeGit{branches: []git.Branch{
		{
			Name:      "feature/login",
			Status:    git.BranchActive,
			UpdatedAt: now,
			LastCommit: &git.Commit{
				AuthorName: "ann",
			},
		},
		{
			Name:      "feature/old",
			Status:    git.BranchStale,
			UpdatedAt: now.Add(-100 * 24 * time.Hour),
		},
		{
			Name:      "main",
			Protected: true,
			Default:   true,
			Status:    git.BranchActive,
			UpdatedAt: now,
		},
	}}

	m := branches.NewManager(fake)

	page, err := m.ListBranches(
		context.Background(), scope,
		branches.Filter{Search: "FEATURE"},
		git.ListOptions{},
	)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	page, err = m.ListBranches(
		context.Background(), scope,
		branches.Filter{
			Search: "feature",
			Statuses: []git.BranchStatus{
				git.BranchActive,
			},
		},
		git.ListOptions{},
	)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "feature/login", page.Items[0].Name)

	yes := true
	page, err = m.ListBranches(
		context.Background(), scope,
		branches.Filter{Protected: &yes},
		git.ListOptions{},
	)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "main", page.Items[0].Name)

	page, err = m.ListBranches(
		context.Background(), scope,
		branches.Filter{Authors: []string{"Ann"}},
		git.ListOptions{},
	)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	page, err = m.ListBranches(
		context.Background(), scope,
		branches.Filter{
			UpdatedAfter: now.Add(-time.Hour),
		},
		git.ListOptions{},
	)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

// sharedPageGit serves the same page value on every
// call, the way a response cache does.
type sharedPageGit struct {
	fakeGit

	page *git.Page[git.Branch]
}

func (g *sharedPageGit) ListBranches(
	_ context.Context,
	_ git.Platform,
	_, _ string,
	_ git.ListOptions,
) (*git.Page[git.Branch], error) {
	return g.page, nil
}

func TestListBranches_filter_leaves_source_intact(
	t *testing.T,
) {
	t.Parallel()

	shared := &git.Page[git.Branch]{
		Items: []git.Branch{
			{Name: "feature/a"},
			{Name: "feature/b"},
			{Name: "main"},
		},
	}

	m := branches.NewManager(
		&sharedPageGit{page: shared},
	)

	page, err := m.ListBranches(
		context.Background(), scope,
		branches.Filter{Search: "feature"},
		git.ListOptions{},
	)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	// The value the backend keeps serving is untouched,
	// so a later unfiltered read sees everything.
	assert.Len(t, shared.Items, 3)

	page, err = m.ListBranches(
		context.Background(), scope,
		branches.Filter{},
		git.ListOptions{},
	)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
}

func TestFilter_merged_flag(t *testing.T) {
	t.Parallel()

	yes := true
	f := branches.Filter{Merged: &yes}

	assert.True(t, f.Match(git.Branch{
		Status: git.BranchMerged,
	}))
	assert.False(t, f.Match(git.Branch{
		Status: git.BranchActive,
	}))

	assert.True(t, branches.Filter{}.IsZero())
	assert.False(t, f.IsZero())
}

func TestSortBranches(t *testing.T) {
	t.Parallel()

	now := time.Now()

	items := []git.Branch{
		{Name: "b", UpdatedAt: now.Add(-time.Hour)},
		{Name: "c", UpdatedAt: now},
		{Name: "a", UpdatedAt: now.Add(-2 * time.Hour)},
	}

	branches.SortBranches(
		items, branches.SortByName, false,
	)
	assert.Equal(t, "a", items[0].Name)
	assert.Equal(t, "c", items[2].Name)

	branches.SortBranches(
		items, branches.SortByName, true,
	)
	assert.Equal(t, "c", items[0].Name)

	branches.SortBranches(
		items, branches.SortByUpdated, true,
	)
	assert.Equal(t, "c", items[0].Name)
	assert.Equal(t, "a", items[2].Name)

	ahead := []git.Branch{
		{Name: "x", Ahead: 2},
		{Name: "y", Ahead: 7},
		{Name: "z", Ahead: 1},
	}

	branches.SortBranches(
		ahead, branches.SortByCommits, true,
	)
	assert.Equal(t, "y", ahead[0].Name)
	assert.Equal(t, "z", ahead[2].Name)
}

func TestFilter_search_covers_commit_fields(
	t *testing.T,
) {
	t.Parallel()

	b := git.Branch{
		Name: "feature/x",
		LastCommit: &git.Commit{
			Message:    "Fix login redirect",
			AuthorName: "Ann",
		},
	}

	assert.True(
		t, branches.Filter{Search: "login"}.Match(b),
	)
	assert.True(
		t, branches.Filter{Search: "ann"}.Match(b),
	)
	assert.False(
		t, branches.Filter{Search: "logout"}.Match(b),
	)
}

func TestDeleteBranch_guards_default(t *testing.T) {
	t.Parallel()

	fake := &fakeGit{}
	m := branches.NewManager(fake)

	err := m.DeleteBranch(
		context.Background(), scope,
		git.Branch{Name: "main", Default: true},
	)

	assert.True(t, git.IsCode(
		err, git.CodeCannotDeleteDefaultBranch,
	))
	// Guard fires before any backend call.
	assert.Empty(t, fake.deleted)

	err = m.DeleteBranch(
		context.Background(), scope,
		git.Branch{Name: "feature/x"},
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"feature/x"}, fake.deleted)
}

func TestBatchCreate_continues_past_failure(
	t *testing.T,
) {
	t.Parallel()

	fake := &fakeGit{
		failCreate: map[string]*git.Error{
			"b": git.NewError(
				git.PlatformGitHub,
				git.CodeValidation,
				"branch exists",
			),
		},
	}
	m := branches.NewManager(fake)

	res := m.BatchCreate(
		context.Background(), scope,
		[]string{"a", "b", "c"}, "main",
	)

	assert.False(t, res.AllOK())
	// The item after the failure is still attempted.
	assert.Equal(t, []string{"a", "c"}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "b", res.Failed[0].Branch)
	assert.Equal(
		t, git.CodeValidation, res.Failed[0].Err.Code,
	)

	// A summary entry tops the per-item records.
	ops := m.History()
	require.NotEmpty(t, ops)
	assert.Equal(t, "batch-create", ops[0].Action)
	assert.Equal(
		t, "2 succeeded, 1 failed", ops[0].Message,
	)
	assert.False(t, ops[0].OK)
}

func TestBatchDelete_guards_per_item(t *testing.T) {
	t.Parallel()

	fake := &fakeGit{}
	m := branches.NewManager(fake)

	res := m.BatchDelete(
		context.Background(), scope,
		[]git.Branch{
			{Name: "a"},
			{Name: "main", Default: true},
			{Name: "c"},
		},
	)

	assert.Equal(t, []string{"a", "c"}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(
		t,
		git.CodeCannotDeleteDefaultBranch,
		res.Failed[0].Err.Code,
	)
}

func TestWorkflowBranchName(t *testing.T) {
	t.Parallel()

	name, err := branches.WorkflowBranchName(
		branches.WorkflowFeature, "login-form",
	)
	require.NoError(t, err)
	assert.Equal(t, "feature/login-form", name)

	name, err = branches.WorkflowBranchName(
		branches.WorkflowHotfix, "1.2.1",
	)
	require.NoError(t, err)
	assert.Equal(t, "hotfix/1.2.1", name)

	name, err = branches.WorkflowBranchName(
		branches.WorkflowRelease, "2.0.0",
	)
	require.NoError(t, err)
	assert.Equal(t, "release/2.0.0", name)

	_, err = branches.WorkflowBranchName(
		branches.WorkflowFeature, "has space",
	)
	assert.True(t, git.IsCode(err, git.CodeValidation))

	_, err = branches.WorkflowBranchName("epic", "x")
	assert.True(t, git.IsCode(err, git.CodeValidation))
}

func TestCreateWorkflowBranch_uses_base(t *testing.T) {
	t.Parallel()

	fake := &fakeGit{}
	m := branches.NewManager(fake)

	br, err := m.CreateWorkflowBranch(
		context.Background(), scope,
		branches.WorkflowRelease, "2.0.0",
	)

	require.NoError(t, err)
	assert.Equal(t, "release/2.0.0", br.Name)

	base, err := branches.WorkflowBaseRef(
		branches.WorkflowRelease,
	)
	require.NoError(t, err)
	assert.Equal(t, "develop", base)

	base, err = branches.WorkflowBaseRef(
		branches.WorkflowHotfix,
	)
	require.NoError(t, err)
	assert.Equal(t, "main", base)
}

func TestHistory_bounded_most_recent_first(
	t *testing.T,
) {
	t.Parallel()

	fake := &fakeGit{}
	m := branches.NewManager(
		fake, branches.WithHistoryLimit(3),
	)

	for i := 0; i < 5; i++ {
		_, err := m.CreateBranch(
			context.Background(), scope,
			fmt.Sprintf("b%d", i), "main",
		)
		require.NoError(t, err)
	}

	ops := m.History()
	require.Len(t, ops, 3)

	assert.Equal(t, "b4", ops[0].Branch)
	assert.Equal(t, "b2", ops[2].Branch)
	assert.True(t, ops[0].OK)
}

func TestHistory_records_failures(t *testing.T) {
	t.Parallel()

	fake := &fakeGit{
		failCreate: map[string]*git.Error{
			"x": git.NewError(
				git.PlatformGitLab,
				git.CodeTransport,
				"timeout",
			),
		},
	}
	m := branches.NewManager(fake)

	_, err := m.CreateBranch(
		context.Background(), scope, "x", "main",
	)
	require.Error(t, err)

	ops := m.History()
	require.Len(t, ops, 1)
	assert.False(t, ops[0].OK)
	assert.Contains(t, ops[0].Error, "timeout")
}

func TestExportHistory(t *testing.T) {
	t.Parallel()

	fake := &fakeGit{}
	m := branches.NewManager(fake)

	_, err := m.CreateBranch(
		context.Background(), scope, "a", "main",
	)
	require.NoError(t, err)

	raw, err := m.ExportHistory()
	require.NoError(t, err)

	var ops []branches.Operation
	require.NoError(t, json.Unmarshal(raw, &ops))

	require.Len(t, ops, 1)
	assert.Equal(t, "create", ops[0].Action)
	assert.Equal(t, "a", ops[0].Branch)
	assert.Equal(t, scope, ops[0].Scope)
}
