// File: internal/collector/errors.go
package collector

import (
	"errors"
	"fmt"
)

// ErrNoPermalink marks an item node without the one mandatory field. The item
// is skipped; the run continues.
var ErrNoPermalink = errors.New("item has no permalink")

// ErrSessionExpired is returned when the page redirects to the login flow,
// meaning the persisted session is gone or invalid.
var ErrSessionExpired = errors.New("session expired or invalid; run the login command again")

// DriverFault wraps a browser-level failure. Driver faults are fatal to the
// run, but the caller still receives the state collected so far.
type DriverFault struct {
	Op  string
	Err error
}

func (f *DriverFault) Error() string {
	return fmt.Sprintf("driver fault during %s: %v", f.Op, f.Err)
}

func (f *DriverFault) Unwrap() error { return f.Err }
