// Package branches implements branch management policy
// on top of the orchestration service: client-side
// filtering and sorting, batch creation and deletion
// with per-item outcomes, workflow branch naming, a
// default-branch deletion guard, and a bounded history
// of mutating operations.
package branches
