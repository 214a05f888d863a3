// Package service is the orchestration layer over the
// platform adapters. It owns one credential and one
// adapter per platform, shields reads behind a TTL cache
// that mutations invalidate, and fans multi-platform
// queries out concurrently with per-platform fault
// isolation.
package service
