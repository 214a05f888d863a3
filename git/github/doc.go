// Package github adapts the GitHub REST API to the
// platform-neutral git.Adapter contract using
// google/go-github. Pagination is normalized from
// GitHub's Link-header convention.
package github
