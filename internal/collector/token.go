// File: internal/collector/token.go
package collector

import "sync/atomic"

// CancelToken carries a one-way, idempotent "stop requested" flag into the
// collection loop. It is an explicit value rather than ambient process state
// so that concurrent runs (and tests) never interfere with each other.
//
// The loop observes the token once per scroll iteration, after extraction, so
// in-flight work always completes and is preserved. Requesting cancellation
// never aborts the enrichment pass.
type CancelToken struct {
	requested atomic.Bool
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken { return &CancelToken{} }

// Request flips the flag. Repeated calls are no-ops.
func (t *CancelToken) Request() { t.requested.Store(true) }

// Requested reports whether cancellation has been requested.
func (t *CancelToken) Requested() bool { return t.requested.Load() }
