// Package bitbucket adapts the Bitbucket Server (Data
// Center) REST API 1.0 to the platform-neutral
// git.Adapter contract. Bitbucket Server publishes no Go
// client, so requests are issued directly over HTTP with
// basic auth, the way a personal access token is used on
// that platform.
//
// Pagination is normalized from Bitbucket's start/limit
// envelope; total counts are not reported by the API and
// stay zero. Branch protection inspection, code search
// and rate limit inspection are not available through
// API 1.0 and return CodeNotImplemented.
package bitbucket
