package branches

import (
	"context"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/byte4ever/gitbridge/git"
)

// WorkflowType names a git-flow branch kind.
type WorkflowType string

// Workflow branch kinds.
const (
	WorkflowFeature WorkflowType = "feature"
	WorkflowHotfix  WorkflowType = "hotfix"
	WorkflowRelease WorkflowType = "release"
)

type workflowSpec struct {
	nameTemplate string
	baseRef      string
}

// Naming and base-branch conventions per workflow kind.
// Features and hotfixes branch off the mainline;
// releases stabilize from the integration branch.
var workflows = map[WorkflowType]workflowSpec{
	WorkflowFeature: {
		nameTemplate: "feature/{{name}}",
		baseRef:      "main",
	},
	WorkflowHotfix: {
		nameTemplate: "hotfix/{{version}}",
		baseRef:      "main",
	},
	WorkflowRelease: {
		nameTemplate: "release/{{version}}",
		baseRef:      "develop",
	},
}

// WorkflowBranchName renders the branch name for one
// workflow kind.
func WorkflowBranchName(
	kind WorkflowType,
	value string,
) (string, error) {
	spec, ok := workflows[kind]
	if !ok {
		return "", git.Errorf(
			"",
			git.CodeValidation,
			"unknown workflow %q", kind,
		)
	}

	value = strings.TrimSpace(value)
	if value == "" || strings.ContainsAny(value, " ~^:") {
		return "", git.Errorf(
			"",
			git.CodeValidation,
			"invalid workflow branch value %q", value,
		)
	}

	t := fasttemplate.New(
		spec.nameTemplate, "{{", "}}",
	)

	return t.ExecuteString(map[string]any{
		"name":    value,
		"version": value,
	}), nil
}

// WorkflowBaseRef returns the conventional base branch
// for one workflow kind.
func WorkflowBaseRef(
	kind WorkflowType,
) (string, error) {
	spec, ok := workflows[kind]
	if !ok {
		return "", git.Errorf(
			"",
			git.CodeValidation,
			"unknown workflow %q", kind,
		)
	}

	return spec.baseRef, nil
}

// CreateWorkflowBranch names a branch per the workflow
// convention and creates it from the conventional base.
func (m *Manager) CreateWorkflowBranch(
	ctx context.Context,
	scope Scope,
	kind WorkflowType,
	value string,
) (*git.Branch, error) {
	name, err := WorkflowBranchName(kind, value)
	if err != nil {
		return nil, err
	}

	base, err := WorkflowBaseRef(kind)
	if err != nil {
		return nil, err
	}

	return m.CreateBranch(ctx, scope, name, base)
}
