// Package hosterr defines sentinel errors that callers across the host
// branch on with errors.Is: transient I/O is retried, policy denials
// and timeouts are not.
package hosterr

import "errors"

var (
	// ErrNotFound is returned by store/IPC lookups for a missing record.
	ErrNotFound = errors.New("hosterr: not found")

	// ErrTransient marks an error the caller should retry a bounded
	// number of times before logging and continuing (fs rename races,
	// channel send hiccups, provider 5xx).
	ErrTransient = errors.New("hosterr: transient")

	// ErrDenied marks a security-gate "deny" decision.
	ErrDenied = errors.New("hosterr: denied")

	// ErrTimeout marks an IPC wait or approval wait that expired.
	ErrTimeout = errors.New("hosterr: timeout")

	// ErrAmbiguous marks a short-id lookup that matched more than one
	// pending record.
	ErrAmbiguous = errors.New("hosterr: ambiguous match")

	// ErrWorkerCrashed marks a worker process that exited without an
	// orderly _close handshake.
	ErrWorkerCrashed = errors.New("hosterr: worker crashed")
)
