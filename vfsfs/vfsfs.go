// Package vfsfs is the injected "file-system manager" abstraction the lock
// and fail-marker sidecars are resolved and manipulated through. It is
// deliberately narrow — resolve/exists/create/writeAll/readExact/delete/
// close/closeFileSystem — because the lock core never needs anything else
// from a backend.
//
// Concrete implementations live in vfsfs/local, vfsfs/sftp and vfsfs/ftp,
// mirroring the split rclone keeps between backend/local, backend/sftp
// and backend/ftp.
package vfsfs

import (
	"context"
	"errors"
	"fmt"
)

// ErrEOF is returned by Handle.ReadExact when the sidecar has fewer than n
// bytes remaining. The lock-acquire handshake treats it as a lost race (the
// sidecar holds a shorter, foreign token); an appended-to sidecar is caught
// by ReadExact's exact flag instead.
var ErrEOF = errors.New("vfsfs: short read (EOF)")

// BackendError wraps any failure a Manager or Handle implementation
// returns. The lock core never leaks a backend-specific error type past
// its own boundary; everything collapses to BackendError first, and then
// to NotAcquired at the acquire/markFail boundary.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("vfsfs: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Wrap annotates err (if non-nil) as a BackendError for the given
// operation name.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}

// Manager resolves a canonical path to a Handle against one backend
// (local filesystem, SFTP, FTP/FTPS, ...).
type Manager interface {
	// Resolve returns a Handle for path. Resolving never itself touches
	// the backend — no round trip happens until a Handle method is
	// called — so resolving a path that does not exist is always safe.
	Resolve(ctx context.Context, path string) (Handle, error)

	// Scheme is the URI scheme this Manager was built to serve, e.g.
	// "sftp", "ftp", "file".
	Scheme() string
}

// Handle is a resolved reference to a single file on a backend.
type Handle interface {
	// Exists reports whether the file currently exists.
	Exists(ctx context.Context) (bool, error)

	// Create creates an empty file. Callers are expected to check Exists
	// first; Create is only documented idempotent when the file did not
	// already exist.
	Create(ctx context.Context) error

	// WriteAll opens the file for writing, writes data in full, flushes
	// and closes the writer.
	WriteAll(ctx context.Context, data []byte) error

	// ReadExact reads the first n bytes of the file and reports whether
	// exactly n bytes exist in total (i.e. the read immediately after the
	// n-th byte hits EOF). If fewer than n bytes are available at all, it
	// returns ErrEOF (wrapped). The exact flag is what the acquire
	// handshake uses to reject a sidecar a racing writer appended to.
	ReadExact(ctx context.Context, n int) (data []byte, exact bool, err error)

	// Delete removes the file. Deleting a file that does not exist is
	// not an error.
	Delete(ctx context.Context) error

	// Close releases the handle. Safe to call more than once.
	Close() error

	// CloseFileSystem releases the entire backend connection this
	// handle's parent belongs to, to reclaim pooled connections on
	// acquire-error paths. Safe to call more than once.
	CloseFileSystem() error
}
