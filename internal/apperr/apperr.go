// Package apperr defines the error taxonomy shared across seedhook's
// components so the orchestrator can branch on failure kind instead of
// string-matching messages.
package apperr

import "github.com/pkg/errors"

// Sentinel kinds. Wrap these with errors.Wrap/errors.Wrapf to attach context;
// use errors.Is to test for a kind after wrapping.
var (
	// ErrConfig covers a missing, malformed, or invalid configuration file.
	ErrConfig = errors.New("configuration error")
	// ErrAuth is raised for 401/403 RPC responses; never retried.
	ErrAuth = errors.New("authentication error")
	// ErrNotFound is raised when torrentGet for a specific id returns empty.
	ErrNotFound = errors.New("torrent not found")
	// ErrTimeout is raised by ensureTorrentDone. The reannounce wait gives up
	// silently at its ceiling and does not raise it.
	ErrTimeout = errors.New("timeout")
	// ErrInvalidID is raised by RPC id validation.
	ErrInvalidID = errors.New("invalid torrent id")
	// ErrTransport covers an RPC reply whose result is not "success" and a
	// 409 session handshake that did not converge. Exhausted retries surface
	// the last attempt's error, which is not necessarily ErrTransport.
	ErrTransport = errors.New("rpc transport error")
	// ErrInvalidState covers a call shape the state machine forbids, such as
	// applying quota adjustments for a torrent-added event outside seedDir.
	ErrInvalidState = errors.New("invalid call for current state")
)

// Is reports whether err (or any error it wraps) matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap attaches a message to err while preserving errors.Is matching against
// the original sentinel.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf is Wrap with fmt-style formatting.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
