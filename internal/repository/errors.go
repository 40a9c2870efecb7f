// Package repository defines error types that are reused across
// multiple repositories.  These sentinel values allow higher layers
// such as handlers to distinguish between failure scenarios: for
// example ErrForbidden indicates that the current user tried to
// touch a conversation owned by someone else, while ErrNotFound
// signals that the requested row does not exist.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own.  Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrNotFound is returned when a conversation or ledger row that
// the caller referenced does not exist.  Handlers should translate
// this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned by the user repository when an insert
// collides with the unique email index.
var ErrEmailExists = errors.New("email already exists")
