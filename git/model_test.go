package git_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/byte4ever/gitbridge/git"
)

func TestDeriveMergeRequestState_merged_wins(
	t *testing.T,
) {
	t.Parallel()

	// Merged takes precedence over both closed and
	// draft.
	st := git.DeriveMergeRequestState(true, true, true)

	assert.Equal(t, git.MergeRequestMerged, st)
}

func TestDeriveMergeRequestState_closed_beats_draft(
	t *testing.T,
) {
	t.Parallel()

	st := git.DeriveMergeRequestState(false, true, true)

	assert.Equal(t, git.MergeRequestClosed, st)
}

func TestDeriveMergeRequestState_draft(t *testing.T) {
	t.Parallel()

	st := git.DeriveMergeRequestState(false, false, true)

	assert.Equal(t, git.MergeRequestDraft, st)
}

func TestDeriveMergeRequestState_default_open(
	t *testing.T,
) {
	t.Parallel()

	st := git.DeriveMergeRequestState(false, false, false)

	assert.Equal(t, git.MergeRequestOpen, st)
}

func TestConfig_PageSizeFor(t *testing.T) {
	t.Parallel()

	cfg := git.Config{PageSize: 30, MaxPageSize: 100}

	assert.Equal(t, 30, cfg.PageSizeFor(0))
	assert.Equal(t, 50, cfg.PageSizeFor(50))
	assert.Equal(t, 100, cfg.PageSizeFor(500))
}
