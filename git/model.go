package git

import "time"

// Platform identifies a supported Git hosting platform.
type Platform string

// Supported platform tags.
const (
	PlatformGitHub    Platform = "github"
	PlatformGitLab    Platform = "gitlab"
	PlatformBitbucket Platform = "bitbucket"
)

// User is an account on a hosting platform.
type User struct {
	ID         int64
	Username   string
	Name       string
	Email      string
	AvatarURL  string
	ProfileURL string
}

// Permissions are the caller's access rights on a
// repository.
type Permissions struct {
	Admin bool
	Push  bool
	Pull  bool
}

// Repository is an immutable snapshot of a code
// repository as reported by one platform.
type Repository struct {
	ID            int64
	Name          string
	FullName      string // "owner/name"
	Platform      Platform
	Owner         *User
	Description   string
	DefaultBranch string
	Private       bool
	Fork          bool
	Permissions   Permissions
	Forks         int
	Stars         int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	WebURL        string
	CloneURL      string
}

// Commit is a single commit produced by translation.
type Commit struct {
	SHA            string
	Message        string
	AuthorName     string
	AuthorEmail    string
	CommitterName  string
	CommitterEmail string
	AuthoredAt     time.Time
	WebURL         string
	Parents        []string
}

// BranchStatus classifies a branch relative to the
// default branch.
type BranchStatus string

// Branch status values.
const (
	BranchActive BranchStatus = "active"
	BranchStale  BranchStatus = "stale"
	BranchMerged BranchStatus = "merged"
)

// StaleAfter is the inactivity window after which a
// branch counts as stale.
const StaleAfter = 90 * 24 * time.Hour

// BranchStatusFor derives a branch status from the
// platform's merged flag and the last activity time.
func BranchStatusFor(
	merged bool,
	updatedAt time.Time,
	now time.Time,
) BranchStatus {
	if merged {
		return BranchMerged
	}

	if !updatedAt.IsZero() &&
		now.Sub(updatedAt) > StaleAfter {
		return BranchStale
	}

	return BranchActive
}

// Branch is a named ref in a repository.
//
// Ahead and Behind need an extra compare round trip on
// every platform; listings leave them zero rather than
// guessing. Use CompareBranches for exact counts.
type Branch struct {
	Name       string
	SHA        string
	Protected  bool
	Default    bool
	LastCommit *Commit
	Ahead      int
	Behind     int
	Status     BranchStatus
	UpdatedAt  time.Time
}

// MergeRequestState is the derived lifecycle state of a
// merge request: DRAFT -> OPEN -> {MERGED | CLOSED},
// with MERGED and CLOSED terminal.
type MergeRequestState string

// Merge request states.
const (
	MergeRequestOpen   MergeRequestState = "open"
	MergeRequestClosed MergeRequestState = "closed"
	MergeRequestMerged MergeRequestState = "merged"
	MergeRequestDraft  MergeRequestState = "draft"
)

// DeriveMergeRequestState resolves the platform flags
// into one state. The merged flag wins over closed,
// which wins over draft, which wins over the default
// open state.
func DeriveMergeRequestState(
	merged bool,
	closed bool,
	draft bool,
) MergeRequestState {
	switch {
	case merged:
		return MergeRequestMerged
	case closed:
		return MergeRequestClosed
	case draft:
		return MergeRequestDraft
	default:
		return MergeRequestOpen
	}
}

// MergeRequest is a cross-branch change proposal.
//
// Diff stats (Additions, Deletions, ChangedFiles) are
// only populated by single-item lookups on platforms
// that omit them from listings.
type MergeRequest struct {
	Number       int
	Title        string
	Description  string
	State        MergeRequestState
	Author       *User
	Assignees    []*User
	Reviewers    []*User
	SourceBranch string
	TargetBranch string
	SourceRepo   string
	TargetRepo   string
	Additions    int
	Deletions    int
	ChangedFiles int
	Mergeable    bool
	HasConflicts bool
	Labels       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MergedAt     *time.Time
	WebURL       string
}

// FileChange is one changed file in a comparison.
type FileChange struct {
	Path      string
	Status    string
	Additions int
	Deletions int
}

// Comparison is a diff summary between two refs,
// computed on demand.
type Comparison struct {
	Base         string
	Head         string
	Ahead        int
	Behind       int
	MergeBaseSHA string
	Mergeable    bool
	Commits      []Commit
	Files        []FileChange
}

// Protection describes branch protection. Absence of
// protection is a valid state, not a fault: adapters
// translate a platform 404 into Enabled false.
type Protection struct {
	Enabled             bool
	RequiredReviews     int
	RequireStatusChecks bool
	EnforceAdmins       bool
	AllowForcePush      bool
}

// FileContent is the decoded content of one file at a
// ref.
type FileContent struct {
	Path    string
	Ref     string
	SHA     string
	Size    int
	Content string
	WebURL  string
}

// CodeMatch is one hit from a code search.
type CodeMatch struct {
	Repository string
	Path       string
	WebURL     string
}

// RateLimit reports the platform API quota for the
// authenticated caller.
type RateLimit struct {
	Limit     int
	Remaining int
	ResetsAt  time.Time
}

// Auth is the credential for one platform. One Auth is
// held per platform; replacing or removing it is the
// orchestration service's job.
type Auth struct {
	Platform Platform
	Token    string
	Type     string // "bearer" or "basic"
	Username string // basic-auth platforms only
	Scopes   []string
	User     *User
}

// Pagination is the normalized paging shape shared by
// all platforms. Fields a platform does not report stay
// zero.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// Page is one page of listed items plus normalized
// paging information.
type Page[T any] struct {
	Items      []T
	Pagination Pagination
}
