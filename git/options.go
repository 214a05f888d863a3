package git

// ListOptions selects one page of a listing. Zero values
// fall back to the adapter's configured defaults.
type ListOptions struct {
	Page    int
	PerPage int
}

// RepositoryListOptions selects and orders a repository
// listing.
type RepositoryListOptions struct {
	ListOptions

	// Sort is "updated", "created" or "name". Empty
	// means "updated".
	Sort string

	// Direction is "asc" or "desc". Empty means "desc".
	Direction string
}

// MergeRequestListOptions filters a merge request
// listing. An empty State lists all states.
type MergeRequestListOptions struct {
	ListOptions

	State        MergeRequestState
	SourceBranch string
	TargetBranch string
}

// NewMergeRequest holds the fields for creating a merge
// request.
type NewMergeRequest struct {
	Title        string
	Description  string
	SourceBranch string
	TargetBranch string
	Draft        bool
	Labels       []string
}

// MergeRequestUpdate mutates an open merge request. Nil
// fields are left unchanged.
type MergeRequestUpdate struct {
	Title        *string
	Description  *string
	TargetBranch *string
}

// Merge methods accepted by MergeOptions.
const (
	MergeMethodMerge  = "merge"
	MergeMethodSquash = "squash"
	MergeMethodRebase = "rebase"
)

// MergeOptions controls how a merge request is merged.
type MergeOptions struct {
	// Method is one of the MergeMethod constants. Empty
	// means the platform default.
	Method string

	// CommitMessage overrides the merge commit message
	// when non-empty.
	CommitMessage string

	// DeleteSourceBranch removes the source branch after
	// a successful merge on platforms that support it.
	DeleteSourceBranch bool
}
