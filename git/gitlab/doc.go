// Package gitlab adapts the GitLab REST API to the
// platform-neutral git.Adapter contract using the
// official client-go. Pagination is normalized from
// GitLab's numeric X-Page headers. Code search and rate
// limit inspection are not available on this platform
// and return CodeNotImplemented.
package gitlab
