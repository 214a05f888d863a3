package gitlab_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/gitbridge/git"
	gladapter "github.com/byte4ever/gitbridge/git/gitlab"
)

func newTestAdapter(
	t *testing.T,
	handler http.HandlerFunc,
) *gladapter.Adapter {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	a, err := gladapter.New(git.Config{
		BaseURL:       ts.URL,
		Token:         "tok",
		PageSize:      20,
		MaxPageSize:   100,
		RetryAttempts: 1,
		RetryMinWait:  time.Millisecond,
		RetryMaxWait:  2 * time.Millisecond,
	})
	require.NoError(t, err)

	return a
}

func TestNew_default_host(t *testing.T) {
	t.Parallel()

	a, err := gladapter.New(git.Config{Token: "tok"})

	require.NoError(t, err)
	assert.Equal(t, git.PlatformGitLab, a.Platform())
}

func TestListBranches_translates_and_pages(
	t *testing.T,
) {
	t.Parallel()

	recent := time.Now().
		Add(-time.Hour).
		UTC().
		Format(time.RFC3339)

	a := newTestAdapter(
		t,
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(
				t,
				"/api/v4/projects/o/r/repository/branches",
				r.URL.Path,
			)

			w.Header().Set("X-Page", "1")
			w.Header().Set("X-Per-Page", "20")
			w.Header().Set("X-Total", "42")
			w.Header().Set("X-Total-Pages", "3")
			w.Header().Set("X-Next-Page", "2")

			fmt.Fprintf(w, `[
				{
					"name": "main",
					"default": true,
					"protected": true,
					"merged": false,
					"commit": {
						"id": "abc123",
						"message": "tip",
						"author_name": "ann",
						"author_email": "ann@example.com",
						"committed_date": %q
					}
				},
				{
					"name": "old-work",
					"merged": true,
					"commit": {
						"id": "def456",
						"committed_date": %q
					}
				}
			]`, recent, recent)
		},
	)

	page, err := a.ListBranches(
		context.Background(), "o", "r",
		git.ListOptions{Page: 1},
	)

	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	main := page.Items[0]
	assert.True(t, main.Default)
	assert.True(t, main.Protected)
	assert.Equal(t, "abc123", main.SHA)
	assert.Equal(t, git.BranchActive, main.Status)
	require.NotNil(t, main.LastCommit)
	assert.Equal(t, "ann", main.LastCommit.AuthorName)

	// A merged branch is classified merged regardless
	// of recency.
	assert.Equal(
		t, git.BranchMerged, page.Items[1].Status,
	)

	assert.Equal(t, 42, page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasNext)
	assert.False(t, page.Pagination.HasPrev)
}

func TestGetBranchProtection_404_means_disabled(
	t *testing.T,
) {
	t.Parallel()

	a := newTestAdapter(
		t,
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(
				w, `{"message": "404 Not found"}`,
			)
		},
	)

	prot, err := a.GetBranchProtection(
		context.Background(), "o", "r", "main",
	)

	require.NoError(t, err)
	assert.False(t, prot.Enabled)
}

func TestListMergeRequests_state_derivation(
	t *testing.T,
) {
	t.Parallel()

	a := newTestAdapter(
		t,
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(
				t,
				"/api/v4/projects/o/r/merge_requests",
				r.URL.Path,
			)

			fmt.Fprint(w, `[
				{
					"iid": 7,
					"title": "shipped",
					"state": "merged",
					"draft": true,
					"source_branch": "feature/x",
					"target_branch": "main",
					"author": {"id": 1, "username": "u"},
					"labels": ["bug"],
					"references": {"full": "o/r!7"}
				},
				{
					"iid": 8,
					"title": "Draft: wip",
					"state": "opened",
					"draft": true,
					"source_branch": "feature/y",
					"target_branch": "main"
				}
			]`)
		},
	)

	page, err := a.ListMergeRequests(
		context.Background(), "o", "r",
		git.MergeRequestListOptions{},
	)

	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	merged := page.Items[0]
	assert.Equal(t, git.MergeRequestMerged, merged.State)
	assert.Equal(t, "o/r", merged.TargetRepo)
	assert.Equal(t, []string{"bug"}, merged.Labels)

	wip := page.Items[1]
	assert.Equal(t, git.MergeRequestDraft, wip.State)
	assert.Equal(t, "wip", wip.Title)
}

func TestGetRepository_translates_counts(
	t *testing.T,
) {
	t.Parallel()

	a := newTestAdapter(
		t,
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(
				t, "/api/v4/projects/o/r", r.URL.Path,
			)

			fmt.Fprint(w, `{
				"id": 31,
				"path": "r",
				"path_with_namespace": "o/r",
				"default_branch": "main",
				"forks_count": 4,
				"star_count": 9
			}`)
		},
	)

	repo, err := a.GetRepository(
		context.Background(), "o", "r",
	)

	require.NoError(t, err)
	assert.Equal(t, int64(31), repo.ID)
	assert.Equal(t, "o/r", repo.FullName)
	assert.Equal(t, 4, repo.Forks)
	assert.Equal(t, 9, repo.Stars)
}

func TestGetMergeRequest_changes_count(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(
		t,
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(
				t,
				"/api/v4/projects/o/r/merge_requests/7",
				r.URL.Path,
			)

			fmt.Fprint(w, `{
				"iid": 7,
				"title": "t",
				"state": "opened",
				"changes_count": "100+"
			}`)
		},
	)

	mr, err := a.GetMergeRequest(
		context.Background(), "o", "r", 7,
	)

	require.NoError(t, err)
	assert.Equal(t, 7, mr.Number)
	assert.Equal(t, 100, mr.ChangedFiles)
}

func TestGetFileContent_decodes_base64(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(
		t,
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(
				t, "main", r.URL.Query().Get("ref"),
			)

			fmt.Fprint(w, `{
				"file_path": "docs/a.txt",
				"ref": "main",
				"blob_id": "blob1",
				"size": 5,
				"encoding": "base64",
				"content": "aGVsbG8="
			}`)
		},
	)

	file, err := a.GetFileContent(
		context.Background(), "o", "r", "docs/a.txt",
		"main",
	)

	require.NoError(t, err)
	assert.Equal(t, "hello", file.Content)
	assert.Equal(t, 5, file.Size)
	assert.Equal(t, "blob1", file.SHA)
}

func TestCreateBranch(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(
		t,
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{
				"name": "feature/z",
				"commit": {"id": "basesha"}
			}`)
		},
	)

	br, err := a.CreateBranch(
		context.Background(),
		"o", "r", "feature/z", "main",
	)

	require.NoError(t, err)
	assert.Equal(t, "feature/z", br.Name)
	assert.Equal(t, "basesha", br.SHA)
}

func TestGetBranch_not_found(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(
		t,
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(
				w, `{"message": "404 Branch Not Found"}`,
			)
		},
	)

	_, err := a.GetBranch(
		context.Background(), "o", "r", "gone",
	)

	assert.True(t, git.IsCode(err, git.CodeNotFound))
}

func TestUnsupported_capabilities(t *testing.T) {
	t.Parallel()

	a, err := gladapter.New(git.Config{Token: "tok"})
	require.NoError(t, err)

	_, err = a.SearchCode(
		context.Background(), "q", git.ListOptions{},
	)
	assert.True(
		t, git.IsCode(err, git.CodeNotImplemented),
	)

	_, err = a.GetRateLimit(context.Background())
	assert.True(
		t, git.IsCode(err, git.CodeNotImplemented),
	)
}

func TestSetAuth_requires_token(t *testing.T) {
	t.Parallel()

	a, err := gladapter.New(git.Config{Token: "tok"})
	require.NoError(t, err)

	err = a.SetAuth(git.Auth{})

	assert.True(t, git.IsCode(err, git.CodeAuthFailed))
}
