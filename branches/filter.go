package branches

import (
	"sort"
	"strings"
	"time"

	"github.com/byte4ever/gitbridge/git"
)

// Filter selects branches. All set predicates must hold
// for a branch to pass; the zero Filter passes
// everything.
type Filter struct {
	// Search is a case-insensitive substring match over
	// branch name, last commit message and author name.
	Search string

	// Statuses keeps branches in any of the listed
	// statuses.
	Statuses []git.BranchStatus

	// Authors keeps branches whose last commit author
	// name or email matches one entry
	// (case-insensitive).
	Authors []string

	// Protected filters on the protection flag when
	// non-nil.
	Protected *bool

	// Merged filters on merged status when non-nil.
	Merged *bool

	// UpdatedAfter and UpdatedBefore bound the last
	// activity time when non-zero.
	UpdatedAfter  time.Time
	UpdatedBefore time.Time
}

// IsZero reports whether the filter passes everything.
func (f Filter) IsZero() bool {
	return f.Search == "" &&
		len(f.Statuses) == 0 &&
		len(f.Authors) == 0 &&
		f.Protected == nil &&
		f.Merged == nil &&
		f.UpdatedAfter.IsZero() &&
		f.UpdatedBefore.IsZero()
}

// Match reports whether b passes every set predicate.
func (f Filter) Match(b git.Branch) bool {
	if f.Search != "" && !matchSearch(f.Search, b) {
		return false
	}

	if len(f.Statuses) > 0 &&
		!containsStatus(f.Statuses, b.Status) {
		return false
	}

	if len(f.Authors) > 0 && !matchAuthor(f.Authors, b) {
		return false
	}

	if f.Protected != nil &&
		b.Protected != *f.Protected {
		return false
	}

	if f.Merged != nil {
		merged := b.Status == git.BranchMerged
		if merged != *f.Merged {
			return false
		}
	}

	if !f.UpdatedAfter.IsZero() &&
		b.UpdatedAt.Before(f.UpdatedAfter) {
		return false
	}

	if !f.UpdatedBefore.IsZero() &&
		b.UpdatedAt.After(f.UpdatedBefore) {
		return false
	}

	return true
}

func matchSearch(needle string, b git.Branch) bool {
	needle = strings.ToLower(needle)

	if strings.Contains(
		strings.ToLower(b.Name), needle,
	) {
		return true
	}

	if b.LastCommit == nil {
		return false
	}

	return strings.Contains(
		strings.ToLower(b.LastCommit.Message), needle,
	) || strings.Contains(
		strings.ToLower(b.LastCommit.AuthorName), needle,
	)
}

func containsStatus(
	statuses []git.BranchStatus,
	status git.BranchStatus,
) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}

	return false
}

func matchAuthor(authors []string, b git.Branch) bool {
	if b.LastCommit == nil {
		return false
	}

	name := strings.ToLower(b.LastCommit.AuthorName)
	email := strings.ToLower(b.LastCommit.AuthorEmail)

	for _, a := range authors {
		a = strings.ToLower(a)
		if a == name || a == email {
			return true
		}
	}

	return false
}

// SortKey selects the branch sort order.
type SortKey string

// Sort keys. Created falls back to the last commit's
// authored time, the closest thing the platforms report
// to a branch creation stamp. Commits orders on the
// ahead count, which is only populated after a compare.
const (
	SortByName    SortKey = "name"
	SortByUpdated SortKey = "updated"
	SortByCreated SortKey = "created"
	SortByCommits SortKey = "commits"
)

// SortBranches orders branches in place. Unknown keys
// fall back to name order.
func SortBranches(
	items []git.Branch,
	key SortKey,
	desc bool,
) {
	less := lessFor(key)

	if desc {
		asc := less
		less = func(a, b git.Branch) bool {
			return asc(b, a)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return less(items[i], items[j])
	})
}

func lessFor(key SortKey) func(a, b git.Branch) bool {
	switch key {
	case SortByUpdated:
		return func(a, b git.Branch) bool {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	case SortByCreated:
		return func(a, b git.Branch) bool {
			return createdAt(a).Before(createdAt(b))
		}
	case SortByCommits:
		return func(a, b git.Branch) bool {
			return a.Ahead < b.Ahead
		}
	default:
		return func(a, b git.Branch) bool {
			return a.Name < b.Name
		}
	}
}

func createdAt(b git.Branch) time.Time {
	if b.LastCommit == nil {
		return time.Time{}
	}

	return b.LastCommit.AuthoredAt
}
