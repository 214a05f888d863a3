package bitbucket

import (
	"strings"
	"time"

	"github.com/byte4ever/gitbridge/git"
)

// Wire types for the REST API 1.0 payloads, plus their
// translation into the domain model. No Bitbucket field
// name leaks past this file.

// bbPage is Bitbucket's start/limit listing envelope.
type bbPage[T any] struct {
	Size          int  `json:"size"`
	Limit         int  `json:"limit"`
	IsLastPage    bool `json:"isLastPage"`
	Start         int  `json:"start"`
	NextPageStart int  `json:"nextPageStart"`
	Values        []T  `json:"values"`
}

type bbLink struct {
	Href string `json:"href"`
	Name string `json:"name,omitempty"`
}

type bbLinks struct {
	Self  []bbLink `json:"self,omitempty"`
	Clone []bbLink `json:"clone,omitempty"`
}

type bbUser struct {
	ID           int     `json:"id,omitempty"`
	Name         string  `json:"name,omitempty"`
	DisplayName  string  `json:"displayName,omitempty"`
	EmailAddress string  `json:"emailAddress,omitempty"`
	Links        bbLinks `json:"links,omitempty"`
}

type bbProject struct {
	Key    string `json:"key,omitempty"`
	Name   string `json:"name,omitempty"`
	Public bool   `json:"public,omitempty"`
}

type bbRepo struct {
	ID          int       `json:"id,omitempty"`
	Slug        string    `json:"slug,omitempty"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Project     bbProject `json:"project,omitempty"`
	Public      bool      `json:"public,omitempty"`
	Forkable    bool      `json:"forkable,omitempty"`
	Origin      *bbRepo   `json:"origin,omitempty"`
	Links       bbLinks   `json:"links,omitempty"`
}

type bbRef struct {
	ID        string `json:"id,omitempty"`
	DisplayID string `json:"displayId,omitempty"`
}

type bbBranch struct {
	ID           string `json:"id,omitempty"`
	DisplayID    string `json:"displayId,omitempty"`
	LatestCommit string `json:"latestCommit,omitempty"`
	IsDefault    bool   `json:"isDefault,omitempty"`
}

type bbCommit struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Author  *struct {
		Name         string `json:"name,omitempty"`
		EmailAddress string `json:"emailAddress,omitempty"`
	} `json:"author,omitempty"`
	AuthorTimestamp int64 `json:"authorTimestamp,omitempty"`
	Parents         []struct {
		ID string `json:"id,omitempty"`
	} `json:"parents,omitempty"`
}

type bbRepoKey struct {
	Slug    string    `json:"slug,omitempty"`
	Project bbProject `json:"project"`
}

type bbRepoRef struct {
	ID         string    `json:"id,omitempty"`
	DisplayID  string    `json:"displayId,omitempty"`
	Repository bbRepoKey `json:"repository,omitempty"`
}

type bbAccount struct {
	User bbUser `json:"user"`
}

type bbPullRequest struct {
	ID          int        `json:"id,omitempty"`
	Version     int        `json:"version,omitempty"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	State       string     `json:"state,omitempty"`
	Open        bool       `json:"open"`
	Closed      bool       `json:"closed"`
	CreatedDate int64      `json:"createdDate,omitempty"`
	UpdatedDate int64      `json:"updatedDate,omitempty"`
	ClosedDate  int64      `json:"closedDate,omitempty"`
	FromRef     *bbRepoRef `json:"fromRef,omitempty"`
	ToRef       *bbRepoRef `json:"toRef,omitempty"`
	Author      *bbAccount `json:"author,omitempty"`
	Reviewers   []bbAccount `json:"reviewers,omitempty"`
	Links       bbLinks    `json:"links,omitempty"`
}

// msTime converts Bitbucket's millisecond epoch stamps.
// Zero stays the zero time.
func msTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms).UTC()
}

func selfLink(links bbLinks) string {
	if len(links.Self) == 0 {
		return ""
	}

	return links.Self[0].Href
}

func cloneLink(links bbLinks) string {
	for _, l := range links.Clone {
		if l.Name == "http" || l.Name == "https" {
			return l.Href
		}
	}

	return ""
}

func translateUser(u *bbUser) *git.User {
	if u == nil {
		return nil
	}

	return &git.User{
		ID:         int64(u.ID),
		Username:   u.Name,
		Name:       u.DisplayName,
		Email:      u.EmailAddress,
		ProfileURL: selfLink(u.Links),
	}
}

// translateRepo maps a repository. The project key plays
// the owner role; Bitbucket reports no counters or
// per-caller permission flags on this payload.
func translateRepo(
	r *bbRepo,
	defaultBranch string,
) *git.Repository {
	return &git.Repository{
		ID:       int64(r.ID),
		Name:     r.Slug,
		FullName: r.Project.Key + "/" + r.Slug,
		Platform: git.PlatformBitbucket,
		Owner: &git.User{
			Username: r.Project.Key,
			Name:     r.Project.Name,
		},
		Description:   r.Description,
		DefaultBranch: defaultBranch,
		Private:       !r.Public,
		Fork:          r.Origin != nil,
		Permissions:   git.Permissions{Pull: true},
		WebURL:        selfLink(r.Links),
		CloneURL:      cloneLink(r.Links),
	}
}

func translateBranch(b *bbBranch) *git.Branch {
	return &git.Branch{
		Name:    b.DisplayID,
		SHA:     b.LatestCommit,
		Default: b.IsDefault,
		Status:  git.BranchActive,
	}
}

func translateCommit(c *bbCommit) git.Commit {
	out := git.Commit{
		SHA:        c.ID,
		Message:    c.Message,
		AuthoredAt: msTime(c.AuthorTimestamp),
	}

	if c.Author != nil {
		out.AuthorName = c.Author.Name
		out.AuthorEmail = c.Author.EmailAddress
	}

	for _, p := range c.Parents {
		out.Parents = append(out.Parents, p.ID)
	}

	return out
}

func translateComparison(
	base string,
	head string,
	ahead []bbCommit,
	behind []bbCommit,
) *git.Comparison {
	out := &git.Comparison{
		Base:   base,
		Head:   head,
		Ahead:  len(ahead),
		Behind: len(behind),
		// Conflict detection only happens on a pull
		// request.
		Mergeable: true,
	}

	for i := range ahead {
		out.Commits = append(
			out.Commits, translateCommit(&ahead[i]),
		)
	}

	return out
}

func refBranch(ref *bbRepoRef) string {
	if ref == nil {
		return ""
	}

	if ref.DisplayID != "" {
		return ref.DisplayID
	}

	return strings.TrimPrefix(ref.ID, "refs/heads/")
}

func refRepo(ref *bbRepoRef) string {
	if ref == nil || ref.Repository.Slug == "" {
		return ""
	}

	return ref.Repository.Project.Key + "/" +
		ref.Repository.Slug
}

// translatePullRequest maps a pull request. Bitbucket
// Server has no draft concept, so the state derives from
// MERGED and DECLINED alone.
func translatePullRequest(
	pr *bbPullRequest,
) *git.MergeRequest {
	out := &git.MergeRequest{
		Number:      pr.ID,
		Title:       pr.Title,
		Description: pr.Description,
		State: git.DeriveMergeRequestState(
			pr.State == "MERGED",
			pr.State == "DECLINED",
			false,
		),
		SourceBranch: refBranch(pr.FromRef),
		TargetBranch: refBranch(pr.ToRef),
		SourceRepo:   refRepo(pr.FromRef),
		TargetRepo:   refRepo(pr.ToRef),
		Mergeable:    true,
		CreatedAt:    msTime(pr.CreatedDate),
		UpdatedAt:    msTime(pr.UpdatedDate),
		WebURL:       selfLink(pr.Links),
	}

	if pr.Author != nil {
		out.Author = translateUser(&pr.Author.User)
	}

	for i := range pr.Reviewers {
		out.Reviewers = append(
			out.Reviewers,
			translateUser(&pr.Reviewers[i].User),
		)
	}

	if pr.State == "MERGED" && pr.ClosedDate != 0 {
		mergedAt := msTime(pr.ClosedDate)
		out.MergedAt = &mergedAt
	}

	return out
}
