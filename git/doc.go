// Package git defines the platform-neutral domain model
// for multi-platform Git hosting access: value types for
// repositories, branches, merge requests and commits, a
// structured error taxonomy, and the Adapter contract
// that every platform implementation satisfies.
//
// Concrete adapters live in the subpackages github,
// gitlab and bitbucket. The factory subpackage maps a
// platform tag to a configured adapter instance.
package git
