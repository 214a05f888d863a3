package gitlab

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/byte4ever/gitbridge/git"
)

// Translation from client-go types into the domain
// model. No GitLab field name leaks past this file.

// timeNow is swapped in tests for stable branch status
// derivation.
var timeNow = time.Now

func translateUser(u *gl.User) *git.User {
	if u == nil {
		return nil
	}

	return &git.User{
		ID:         int64(u.ID),
		Username:   u.Username,
		Name:       u.Name,
		Email:      u.Email,
		AvatarURL:  u.AvatarURL,
		ProfileURL: u.WebURL,
	}
}

func translateBasicUser(u *gl.BasicUser) *git.User {
	if u == nil {
		return nil
	}

	return &git.User{
		ID:         int64(u.ID),
		Username:   u.Username,
		Name:       u.Name,
		AvatarURL:  u.AvatarURL,
		ProfileURL: u.WebURL,
	}
}

func translateBasicUsers(
	users []*gl.BasicUser,
) []*git.User {
	if len(users) == 0 {
		return nil
	}

	out := make([]*git.User, 0, len(users))
	for _, u := range users {
		out = append(out, translateBasicUser(u))
	}

	return out
}

func translateProject(p *gl.Project) *git.Repository {
	out := &git.Repository{
		ID:            int64(p.ID),
		Name:          p.Path,
		FullName:      p.PathWithNamespace,
		Platform:      git.PlatformGitLab,
		Owner:         translateUser(p.Owner),
		Description:   p.Description,
		DefaultBranch: p.DefaultBranch,
		Private: p.Visibility !=
			gl.PublicVisibility,
		Fork:        p.ForkedFromProject != nil,
		Permissions: translatePermissions(p.Permissions),
		Forks:       int(p.ForksCount),
		Stars:       int(p.StarCount),
		WebURL:      p.WebURL,
		CloneURL:    p.HTTPURLToRepo,
	}

	if p.CreatedAt != nil {
		out.CreatedAt = *p.CreatedAt
	}

	if p.LastActivityAt != nil {
		out.UpdatedAt = *p.LastActivityAt
	}

	// Group-owned projects carry no owner user; fall
	// back to the namespace identity.
	if out.Owner == nil && p.Namespace != nil {
		out.Owner = &git.User{
			Username: p.Namespace.Path,
			Name:     p.Namespace.Name,
		}
	}

	return out
}

func translatePermissions(
	p *gl.Permissions,
) git.Permissions {
	if p == nil {
		return git.Permissions{Pull: true}
	}

	level := gl.AccessLevelValue(0)

	if p.ProjectAccess != nil &&
		p.ProjectAccess.AccessLevel > level {
		level = p.ProjectAccess.AccessLevel
	}

	if p.GroupAccess != nil &&
		p.GroupAccess.AccessLevel > level {
		level = p.GroupAccess.AccessLevel
	}

	return git.Permissions{
		Admin: level >= gl.MaintainerPermissions,
		Push:  level >= gl.DeveloperPermissions,
		Pull:  true,
	}
}

func translateCommit(c *gl.Commit) *git.Commit {
	if c == nil {
		return nil
	}

	out := &git.Commit{
		SHA:            c.ID,
		Message:        c.Message,
		AuthorName:     c.AuthorName,
		AuthorEmail:    c.AuthorEmail,
		CommitterName:  c.CommitterName,
		CommitterEmail: c.CommitterEmail,
		WebURL:         c.WebURL,
		Parents:        c.ParentIDs,
	}

	if c.AuthoredDate != nil {
		out.AuthoredAt = *c.AuthoredDate
	}

	return out
}

func translateBranch(b *gl.Branch) *git.Branch {
	out := &git.Branch{
		Name:       b.Name,
		Protected:  b.Protected,
		Default:    b.Default,
		LastCommit: translateCommit(b.Commit),
	}

	if b.Commit != nil {
		out.SHA = b.Commit.ID

		switch {
		case b.Commit.CommittedDate != nil:
			out.UpdatedAt = *b.Commit.CommittedDate
		case b.Commit.AuthoredDate != nil:
			out.UpdatedAt = *b.Commit.AuthoredDate
		}
	}

	out.Status = git.BranchStatusFor(
		b.Merged, out.UpdatedAt, timeNow(),
	)

	return out
}

func translateBasicMergeRequest(
	mr *gl.BasicMergeRequest,
) *git.MergeRequest {
	// GitLab encodes the draft flag as a title prefix;
	// it is stripped here because the domain carries
	// draft in State. Lossy for a title that genuinely
	// starts with "Draft: ".
	out := &git.MergeRequest{
		Number: int(mr.IID),
		Title: strings.TrimPrefix(
			mr.Title, "Draft: ",
		),
		Description: mr.Description,
		State: git.DeriveMergeRequestState(
			mr.State == "merged",
			mr.State == "closed",
			mr.Draft,
		),
		Author:       translateBasicUser(mr.Author),
		Assignees:    translateBasicUsers(mr.Assignees),
		Reviewers:    translateBasicUsers(mr.Reviewers),
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		Mergeable:    !mr.HasConflicts,
		HasConflicts: mr.HasConflicts,
		Labels:       []string(mr.Labels),
		WebURL:       mr.WebURL,
		MergedAt:     mr.MergedAt,
	}

	if mr.CreatedAt != nil {
		out.CreatedAt = *mr.CreatedAt
	}

	if mr.UpdatedAt != nil {
		out.UpdatedAt = *mr.UpdatedAt
	}

	// The full project path only appears in the
	// cross-reference ("group/project!1").
	if mr.References != nil {
		full := mr.References.Full
		if idx := strings.LastIndex(full, "!"); idx > 0 {
			out.TargetRepo = full[:idx]
			out.SourceRepo = full[:idx]
		}
	}

	return out
}

func translateMergeRequest(
	mr *gl.MergeRequest,
) *git.MergeRequest {
	out := translateBasicMergeRequest(
		&mr.BasicMergeRequest,
	)

	// ChangesCount is a string and may be capped
	// ("100+").
	cc := strings.TrimSuffix(mr.ChangesCount, "+")
	if n, err := strconv.Atoi(cc); err == nil {
		out.ChangedFiles = n
	}

	return out
}

func translateComparison(
	base string,
	head string,
	cmp *gl.Compare,
) *git.Comparison {
	out := &git.Comparison{
		Base:  base,
		Head:  head,
		Ahead: len(cmp.Commits),
		// Behind and the merge base need a reversed
		// compare call; the definitive mergeable state
		// lives on a merge request.
		Mergeable: true,
	}

	for _, c := range cmp.Commits {
		out.Commits = append(
			out.Commits, *translateCommit(c),
		)
	}

	for _, d := range cmp.Diffs {
		out.Files = append(out.Files, git.FileChange{
			Path:   d.NewPath,
			Status: diffStatus(d),
		})
	}

	return out
}

func diffStatus(d *gl.Diff) string {
	switch {
	case d.NewFile:
		return "added"
	case d.DeletedFile:
		return "removed"
	case d.RenamedFile:
		return "renamed"
	default:
		return "modified"
	}
}

func translateProtection(
	prot *gl.ProtectedBranch,
) *git.Protection {
	return &git.Protection{
		Enabled:        true,
		AllowForcePush: prot.AllowForcePush,
	}
}

func (a *Adapter) translateFile(
	file *gl.File,
) (*git.FileContent, error) {
	content := file.Content

	if file.Encoding == "base64" {
		raw, err := base64.StdEncoding.DecodeString(
			file.Content,
		)
		if err != nil {
			return nil, a.Errf(
				git.CodeUnknown,
				"decoding %s: %v", file.FilePath, err,
			)
		}

		content = string(raw)
	}

	return &git.FileContent{
		Path:    file.FilePath,
		Ref:     file.Ref,
		SHA:     file.BlobID,
		Size:    int(file.Size),
		Content: content,
	}, nil
}
