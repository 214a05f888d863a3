package branches

import (
	"context"
	"log/slog"
	"time"

	"github.com/byte4ever/gitbridge/git"
)

// Git is the slice of the orchestration service the
// manager consumes. Declared here so any compatible
// implementation (or test fake) plugs in.
type Git interface {
	ListBranches(
		ctx context.Context,
		platform git.Platform,
		owner string,
		repo string,
		opts git.ListOptions,
	) (*git.Page[git.Branch], error)

	GetBranch(
		ctx context.Context,
		platform git.Platform,
		owner string,
		repo string,
		name string,
	) (*git.Branch, error)

	CreateBranch(
		ctx context.Context,
		platform git.Platform,
		owner string,
		repo string,
		name string,
		fromRef string,
	) (*git.Branch, error)

	DeleteBranch(
		ctx context.Context,
		platform git.Platform,
		owner string,
		repo string,
		name string,
	) error
}

// Scope pins an operation to one repository on one
// platform.
type Scope struct {
	Platform git.Platform `json:"platform"`
	Owner    string       `json:"owner"`
	Repo     string       `json:"repo"`
}

func (s Scope) String() string {
	return string(s.Platform) + "/" + s.Owner +
		"/" + s.Repo
}

// Manager applies branch policy over a Git backend and
// records every mutation in a bounded history.
type Manager struct {
	svc     Git
	history *history
	clock   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithHistoryLimit caps how many operations the history
// retains.
func WithHistoryLimit(n int) Option {
	return func(m *Manager) { m.history.limit = n }
}

// WithClock replaces the time source used for history
// stamps.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// NewManager builds a Manager over svc.
func NewManager(svc Git, opts ...Option) *Manager {
	m := &Manager{
		svc:     svc,
		history: newHistory(defaultHistoryLimit),
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// ListBranches fetches one page of branches and applies
// filter to it. Filtering is client-side: no platform
// exposes these predicates natively, so the page may
// come back shorter than requested.
func (m *Manager) ListBranches(
	ctx context.Context,
	scope Scope,
	filter Filter,
	opts git.ListOptions,
) (*git.Page[git.Branch], error) {
	page, err := m.svc.ListBranches(
		ctx, scope.Platform, scope.Owner, scope.Repo,
		opts,
	)
	if err != nil {
		return nil, err
	}

	if filter.IsZero() {
		return page, nil
	}

	kept := make([]git.Branch, 0, len(page.Items))

	for _, b := range page.Items {
		if filter.Match(b) {
			kept = append(kept, b)
		}
	}

	// The backend may hand out a cached page; build a
	// fresh one instead of shrinking the shared value.
	return &git.Page[git.Branch]{
		Items:      kept,
		Pagination: page.Pagination,
	}, nil
}

// GetBranch fetches one branch.
func (m *Manager) GetBranch(
	ctx context.Context,
	scope Scope,
	name string,
) (*git.Branch, error) {
	return m.svc.GetBranch(
		ctx, scope.Platform, scope.Owner, scope.Repo,
		name,
	)
}

// CreateBranch creates one branch and records the
// outcome.
func (m *Manager) CreateBranch(
	ctx context.Context,
	scope Scope,
	name string,
	fromRef string,
) (*git.Branch, error) {
	br, err := m.svc.CreateBranch(
		ctx, scope.Platform, scope.Owner, scope.Repo,
		name, fromRef,
	)

	m.record(actionCreate, scope, name, err)

	if err != nil {
		return nil, err
	}

	return br, nil
}

// DeleteBranch deletes a branch. The caller passes the
// branch value so the default-branch guard fires locally
// before any network call.
func (m *Manager) DeleteBranch(
	ctx context.Context,
	scope Scope,
	br git.Branch,
) error {
	if br.Default {
		err := git.Errorf(
			scope.Platform,
			git.CodeCannotDeleteDefaultBranch,
			"%q is the default branch of %s",
			br.Name, scope,
		)

		m.record(actionDelete, scope, br.Name, err)

		return err
	}

	err := m.svc.DeleteBranch(
		ctx, scope.Platform, scope.Owner, scope.Repo,
		br.Name,
	)

	m.record(actionDelete, scope, br.Name, err)

	return err
}

func (m *Manager) record(
	action string,
	scope Scope,
	branch string,
	err error,
) {
	op := Operation{
		Action: action,
		Scope:  scope,
		Branch: branch,
		At:     m.clock(),
		OK:     err == nil,
	}

	if err != nil {
		op.Error = err.Error()

		slog.Warn(
			"branch operation failed",
			"action", action,
			"scope", scope.String(),
			"branch", branch,
			"error", err,
		)
	}

	m.history.add(op)
}
