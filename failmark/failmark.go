// Package failmark implements the fail-marker sidecar store (component
// C6): mark/query/clear a ".fail" sidecar that poison-flags a file after a
// processing failure. Semantics are purely advisory — a fail marker
// signals "do not reprocess" but does not block a caller that chooses to
// ignore it.
package failmark

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/filebridge/vfslock/internal/vfslog"
	"github.com/filebridge/vfslock/vfsfs"
	"github.com/filebridge/vfslock/vfsuri"
)

// Store marks, queries, and clears fail sidecars through a vfsfs.Manager.
// MarkFail calls on one Store are serialized behind the Store's own mutex,
// independent of lock.Coordinator's acquire mutex: the two never need to
// interleave atomically with each other, only markFail-vs-markFail needs
// per-process serialization.
type Store struct {
	mgr vfsfs.Manager

	mu sync.Mutex
}

// New returns a Store that resolves fail sidecars through mgr.
func New(mgr vfsfs.Manager) *Store {
	return &Store{mgr: mgr}
}

// MarkFail writes the current wall-clock time, as decimal milliseconds
// since epoch, into uri's fail sidecar, creating it if missing. IO
// failures are logged with a masked URI and any partial sidecar is
// deleted; MarkFail has no return value because the fail marker is itself
// the error-channel signal, not a call whose success a caller branches on.
func (s *Store) MarkFail(ctx context.Context, uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := vfsuri.Canonical(uri) + ".fail"
	handle, err := s.mgr.Resolve(ctx, path)
	if err != nil {
		vfslog.Errorf(nil, "failmark: resolve %s: %v", vfsuri.MaskPassword(path), err)
		return
	}
	defer func() { _ = handle.Close() }()

	exists, err := handle.Exists(ctx)
	if err != nil {
		vfslog.Errorf(nil, "failmark: stat %s: %v", vfsuri.MaskPassword(path), err)
		return
	}
	if !exists {
		if err := handle.Create(ctx); err != nil {
			vfslog.Errorf(nil, "failmark: create %s: %v", vfsuri.MaskPassword(path), err)
			return
		}
	}
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := handle.WriteAll(ctx, []byte(stamp)); err != nil {
		vfslog.Errorf(nil, "failmark: write %s: %v", vfsuri.MaskPassword(path), err)
		_ = handle.Delete(ctx)
	}
}

// IsFail reports whether uri's fail sidecar exists. Unlike MarkFail and
// ReleaseFail, IsFail re-appends uri's query tail to the sidecar path
// before checking existence: some backends require query-carried
// credentials to answer an existence check at all, even though the
// sidecar's identity never depends on the query string. This is a
// deliberate, documented asymmetry (see the repository's design notes),
// not an accidental inconsistency to "fix". Every vfsfs.Manager strips
// that re-appended tail again in Resolve before it reaches the backend
// (the connection's credentials were already established from the URI's
// query at Manager-construction time, via schemeopt.Assemble), so the
// re-append is harmless rather than pointing IsFail at a different file:
// it exists purely so a future Manager that does need a per-call query
// parameter has one to read.
func (s *Store) IsFail(ctx context.Context, uri string) bool {
	path := vfsuri.Canonical(uri) + ".fail" + vfsuri.QueryTail(uri)
	handle, err := s.mgr.Resolve(ctx, path)
	if err != nil {
		vfslog.Errorf(nil, "failmark: resolve %s: %v", vfsuri.MaskPassword(path), err)
		return false
	}
	defer func() { _ = handle.Close() }()

	exists, err := handle.Exists(ctx)
	if err != nil {
		vfslog.Errorf(nil, "failmark: stat %s: %v", vfsuri.MaskPassword(path), err)
		return false
	}
	return exists
}

// ReleaseFail deletes uri's fail sidecar if present. Deleting a sidecar
// that does not exist is a no-op.
func (s *Store) ReleaseFail(ctx context.Context, uri string) {
	path := vfsuri.Canonical(uri) + ".fail"
	handle, err := s.mgr.Resolve(ctx, path)
	if err != nil {
		vfslog.Errorf(nil, "failmark: resolve %s: %v", vfsuri.MaskPassword(path), err)
		return
	}
	defer func() { _ = handle.Close() }()
	if err := handle.Delete(ctx); err != nil {
		vfslog.Errorf(nil, "failmark: release %s: %v", vfsuri.MaskPassword(path), err)
	}
}
