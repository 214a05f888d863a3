package branches

import (
	"context"
	"fmt"

	"github.com/byte4ever/gitbridge/git"
)

// BatchFailure is one failed item of a batch operation.
type BatchFailure struct {
	Branch string
	Err    *git.Error
}

// BatchResult is the per-item outcome of a batch
// operation.
type BatchResult struct {
	Succeeded []string
	Failed    []BatchFailure
}

// AllOK reports whether every item succeeded.
func (r BatchResult) AllOK() bool {
	return len(r.Failed) == 0
}

// BatchCreate creates every named branch from fromRef.
// Items run sequentially and one failure never aborts
// the rest; the caller reads the per-item outcome.
func (m *Manager) BatchCreate(
	ctx context.Context,
	scope Scope,
	names []string,
	fromRef string,
) BatchResult {
	var out BatchResult

	for _, name := range names {
		_, err := m.CreateBranch(
			ctx, scope, name, fromRef,
		)
		if err != nil {
			out.Failed = append(out.Failed, BatchFailure{
				Branch: name,
				Err:    asDomainErr(scope, err),
			})

			continue
		}

		out.Succeeded = append(out.Succeeded, name)
	}

	m.recordBatch(actionBatchCreate, scope, out)

	return out
}

// BatchDelete deletes every branch. The default-branch
// guard applies per item, and a failure never aborts the
// remaining deletions.
func (m *Manager) BatchDelete(
	ctx context.Context,
	scope Scope,
	items []git.Branch,
) BatchResult {
	var out BatchResult

	for _, br := range items {
		if err := m.DeleteBranch(
			ctx, scope, br,
		); err != nil {
			out.Failed = append(out.Failed, BatchFailure{
				Branch: br.Name,
				Err:    asDomainErr(scope, err),
			})

			continue
		}

		out.Succeeded = append(out.Succeeded, br.Name)
	}

	m.recordBatch(actionBatchDelete, scope, out)

	return out
}

// recordBatch appends one summary entry on top of the
// per-item records.
func (m *Manager) recordBatch(
	action string,
	scope Scope,
	res BatchResult,
) {
	m.history.add(Operation{
		Action: action,
		Scope:  scope,
		At:     m.clock(),
		OK:     res.AllOK(),
		Message: fmt.Sprintf(
			"%d succeeded, %d failed",
			len(res.Succeeded), len(res.Failed),
		),
	})
}

func asDomainErr(scope Scope, err error) *git.Error {
	res := git.Wrap[struct{}](struct{}{}, err)
	if res.Err != nil && res.Err.Platform == "" {
		res.Err.Platform = scope.Platform
	}

	return res.Err
}
