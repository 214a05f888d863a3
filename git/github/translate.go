package github

import (
	"time"

	gh "github.com/google/go-github/v68/github"

	"github.com/byte4ever/gitbridge/git"
)

// Translation from go-github types into the domain
// model. No GitHub field name leaks past this file.

// timeNow is swapped in tests for stable branch status
// derivation.
var timeNow = time.Now

func translateUser(u *gh.User) *git.User {
	if u == nil {
		return nil
	}

	return &git.User{
		ID:         u.GetID(),
		Username:   u.GetLogin(),
		Name:       u.GetName(),
		Email:      u.GetEmail(),
		AvatarURL:  u.GetAvatarURL(),
		ProfileURL: u.GetHTMLURL(),
	}
}

func translateUsers(users []*gh.User) []*git.User {
	if len(users) == 0 {
		return nil
	}

	out := make([]*git.User, 0, len(users))
	for _, u := range users {
		out = append(out, translateUser(u))
	}

	return out
}

func translateRepository(
	r *gh.Repository,
) *git.Repository {
	perms := git.Permissions{Pull: true}
	if p := r.GetPermissions(); p != nil {
		perms = git.Permissions{
			Admin: p["admin"],
			Push:  p["push"],
			Pull:  p["pull"],
		}
	}

	return &git.Repository{
		ID:            r.GetID(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Platform:      git.PlatformGitHub,
		Owner:         translateUser(r.GetOwner()),
		Description:   r.GetDescription(),
		DefaultBranch: r.GetDefaultBranch(),
		Private:       r.GetPrivate(),
		Fork:          r.GetFork(),
		Permissions:   perms,
		Forks:         r.GetForksCount(),
		Stars:         r.GetStargazersCount(),
		CreatedAt:     r.GetCreatedAt().Time,
		UpdatedAt:     r.GetUpdatedAt().Time,
		WebURL:        r.GetHTMLURL(),
		CloneURL:      r.GetCloneURL(),
	}
}

func translateCommit(c *gh.RepositoryCommit) *git.Commit {
	if c == nil {
		return nil
	}

	out := &git.Commit{
		SHA:    c.GetSHA(),
		WebURL: c.GetHTMLURL(),
	}

	if inner := c.GetCommit(); inner != nil {
		out.Message = inner.GetMessage()

		if au := inner.GetAuthor(); au != nil {
			out.AuthorName = au.GetName()
			out.AuthorEmail = au.GetEmail()
			out.AuthoredAt = au.GetDate().Time
		}

		if cm := inner.GetCommitter(); cm != nil {
			out.CommitterName = cm.GetName()
			out.CommitterEmail = cm.GetEmail()
		}
	}

	for _, p := range c.Parents {
		out.Parents = append(out.Parents, p.GetSHA())
	}

	return out
}

func translateBranch(
	b *gh.Branch,
	defaultBranch string,
) *git.Branch {
	out := &git.Branch{
		Name:      b.GetName(),
		Protected: b.GetProtected(),
		Default:   b.GetName() == defaultBranch,
	}

	if c := b.GetCommit(); c != nil {
		out.SHA = c.GetSHA()
		out.LastCommit = translateCommit(c)

		if out.LastCommit != nil {
			out.UpdatedAt = out.LastCommit.AuthoredAt
		}
	}

	out.Status = git.BranchStatusFor(
		false, out.UpdatedAt, timeNow(),
	)

	return out
}

func translateMergeRequest(
	pr *gh.PullRequest,
) *git.MergeRequest {
	// Listings omit the merged flag; a set MergedAt
	// carries the same information.
	merged := pr.GetMerged() || pr.MergedAt != nil

	out := &git.MergeRequest{
		Number:      pr.GetNumber(),
		Title:       pr.GetTitle(),
		Description: pr.GetBody(),
		State: git.DeriveMergeRequestState(
			merged,
			pr.GetState() == "closed",
			pr.GetDraft(),
		),
		Author:    translateUser(pr.GetUser()),
		Assignees: translateUsers(pr.Assignees),
		Reviewers: translateUsers(
			pr.RequestedReviewers,
		),
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
		ChangedFiles: pr.GetChangedFiles(),
		Mergeable: pr.Mergeable != nil &&
			*pr.Mergeable,
		HasConflicts: pr.Mergeable != nil &&
			!*pr.Mergeable,
		CreatedAt: pr.GetCreatedAt().Time,
		UpdatedAt: pr.GetUpdatedAt().Time,
		WebURL:    pr.GetHTMLURL(),
	}

	if pr.MergedAt != nil {
		mergedAt := pr.MergedAt.Time
		out.MergedAt = &mergedAt
	}

	if head := pr.GetHead(); head != nil {
		out.SourceBranch = head.GetRef()
		out.SourceRepo = head.GetRepo().GetFullName()
	}

	if base := pr.GetBase(); base != nil {
		out.TargetBranch = base.GetRef()
		out.TargetRepo = base.GetRepo().GetFullName()
	}

	for _, l := range pr.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}

	return out
}

func translateComparison(
	base string,
	head string,
	cmp *gh.CommitsComparison,
) *git.Comparison {
	out := &git.Comparison{
		Base:   base,
		Head:   head,
		Ahead:  cmp.GetAheadBy(),
		Behind: cmp.GetBehindBy(),
		MergeBaseSHA: cmp.GetMergeBaseCommit().
			GetSHA(),
		// A definitive answer needs a test merge;
		// "diverged" is the only status that can
		// conflict.
		Mergeable: cmp.GetStatus() != "diverged",
	}

	for _, c := range cmp.Commits {
		out.Commits = append(
			out.Commits, *translateCommit(c),
		)
	}

	for _, f := range cmp.Files {
		out.Files = append(out.Files, git.FileChange{
			Path:      f.GetFilename(),
			Status:    f.GetStatus(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
		})
	}

	return out
}

func translateProtection(
	prot *gh.Protection,
) *git.Protection {
	out := &git.Protection{Enabled: true}

	if r := prot.GetRequiredPullRequestReviews(); r != nil {
		out.RequiredReviews = r.RequiredApprovingReviewCount
	}

	out.RequireStatusChecks =
		prot.GetRequiredStatusChecks() != nil

	if e := prot.GetEnforceAdmins(); e != nil {
		out.EnforceAdmins = e.Enabled
	}

	if f := prot.GetAllowForcePushes(); f != nil {
		out.AllowForcePush = f.Enabled
	}

	return out
}
