// Package lock implements the cross-party file-item locking protocol: the
// create-then-verify acquire handshake (C4) and its auto-release policy
// (C5). A Coordinator serializes every Acquire call made through it behind
// a single mutex, narrowing the race window the create-then-verify
// handshake leaves open to callers outside that Coordinator. Separate
// Coordinators do not serialize against each other.
package lock

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/filebridge/vfslock/internal/vfslog"
	"github.com/filebridge/vfslock/locktoken"
	"github.com/filebridge/vfslock/vfsfs"
	"github.com/filebridge/vfslock/vfsuri"
)

// Result is the outcome of an Acquire call.
type Result int

const (
	// NotAcquired is the normal non-success outcome: the caller retries on
	// its next poll tick. Every backend failure collapses to this result;
	// the lock core never surfaces a BackendError to the caller of
	// Acquire.
	NotAcquired Result = iota
	// Acquired means the caller now holds the lock sidecar and may
	// proceed to process the file.
	Acquired
)

func (r Result) String() string {
	if r == Acquired {
		return "Acquired"
	}
	return "NotAcquired"
}

// AutoRelease directs the auto-release policy (C5) to run when Acquire
// finds an existing sidecar. A nil *AutoRelease, or one with Enabled
// false, disables auto-release entirely — Acquire then simply returns
// NotAcquired on any existing sidecar.
type AutoRelease struct {
	Enabled bool
	// SameNodeOnly requires the sidecar's host and IP fields to match the
	// local token's before the sidecar is considered for removal.
	SameNodeOnly bool
	// MaxAgeMillis, when non-nil, is the minimum age (in the local clock's
	// milliseconds) a sidecar must have reached before it is removed. A
	// nil MaxAgeMillis means "unset": any age qualifies.
	MaxAgeMillis *int64
}

// Coordinator owns the mutex serializing Acquire. Fail-marker writes are
// serialized by an independent mutex in failmark.Store, not here, because
// the two never need to interleave atomically with each other.
type Coordinator struct {
	mgr vfsfs.Manager

	mu sync.Mutex
}

// New returns a Coordinator that resolves sidecars through mgr.
func New(mgr vfsfs.Manager) *Coordinator {
	return &Coordinator{mgr: mgr}
}

// Acquire runs the create-then-verify handshake against uri's lock
// sidecar. isListener gates step 4 of the algorithm: a listener refuses to
// create a lock for a canonical file that no longer exists, since a
// directory scan can race a concurrent deletion.
func (c *Coordinator) Acquire(ctx context.Context, uri string, autoRelease *AutoRelease, isListener bool) Result {
	return c.acquireWithToken(ctx, uri, autoRelease, isListener, locktoken.Encode())
}

// acquireWithToken is Acquire with the local token supplied by the caller
// instead of freshly encoded, so tests can drive the auto-release age
// computation deterministically.
func (c *Coordinator) acquireWithToken(ctx context.Context, uri string, autoRelease *AutoRelease, isListener bool, token locktoken.Token) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	tokenBytes := token.Bytes()

	canonical := vfsuri.Canonical(uri)
	lockPath := canonical + ".lock"

	sidecar, err := c.mgr.Resolve(ctx, lockPath)
	if err != nil {
		vfslog.Errorf(nil, "lock: resolve %s: %v", vfsuri.MaskPassword(lockPath), err)
		return NotAcquired
	}

	exists, err := sidecar.Exists(ctx)
	if err != nil {
		c.onBackendError("exists", lockPath, sidecar, err)
		return NotAcquired
	}
	if exists {
		if autoRelease != nil && autoRelease.Enabled {
			c.autoRelease(ctx, sidecar, token, autoRelease)
		} else {
			_ = sidecar.Close()
		}
		return NotAcquired
	}

	if isListener {
		target, err := c.mgr.Resolve(ctx, canonical)
		if err != nil {
			vfslog.Errorf(nil, "lock: resolve target %s: %v", vfsuri.MaskPassword(canonical), err)
			_ = sidecar.Close()
			return NotAcquired
		}
		targetExists, err := target.Exists(ctx)
		_ = target.Close()
		if err != nil {
			vfslog.Errorf(nil, "lock: stat target %s: %v", vfsuri.MaskPassword(canonical), err)
			_ = sidecar.Close()
			return NotAcquired
		}
		if !targetExists {
			_ = sidecar.Close()
			return NotAcquired
		}
	}

	if err := sidecar.Create(ctx); err != nil {
		vfslog.Errorf(nil, "lock: create %s: %v", vfsuri.MaskPassword(lockPath), err)
		_ = sidecar.Close()
		return NotAcquired
	}
	if err := sidecar.WriteAll(ctx, tokenBytes); err != nil {
		vfslog.Errorf(nil, "lock: write %s: %v", vfsuri.MaskPassword(lockPath), err)
		_ = sidecar.Delete(ctx)
		_ = sidecar.Close()
		return NotAcquired
	}
	_ = sidecar.Close()

	return c.verify(ctx, lockPath, tokenBytes)
}

// verify re-resolves the sidecar under a fresh handle and confirms this
// process's token bytes are exactly what landed on the backend: a racing
// writer may have created the same path with different content, or
// appended past the expected length, and verify is what catches either
// case.
func (c *Coordinator) verify(ctx context.Context, lockPath string, want []byte) Result {
	fresh, err := c.mgr.Resolve(ctx, lockPath)
	if err != nil {
		vfslog.Errorf(nil, "lock: resolve for verify %s: %v", vfsuri.MaskPassword(lockPath), err)
		return NotAcquired
	}
	defer func() { _ = fresh.Close() }()

	got, exact, err := fresh.ReadExact(ctx, len(want))
	if err != nil {
		if errors.Is(err, vfsfs.ErrEOF) {
			vfslog.Debugf(nil, "lock: verify %s: sidecar shorter than our token, lost the race", vfsuri.MaskPassword(lockPath))
			return NotAcquired
		}
		c.onBackendError("verify", lockPath, fresh, err)
		return NotAcquired
	}
	if !exact || !bytes.Equal(got, want) {
		vfslog.Debugf(nil, "lock: verify %s: content mismatch, lost the race to another holder", vfsuri.MaskPassword(lockPath))
		return NotAcquired
	}
	return Acquired
}

// autoRelease runs the C5 procedure against an existing sidecar. It never
// returns a lock to the caller: a successful removal only clears the way
// for the caller's next Acquire attempt.
func (c *Coordinator) autoRelease(ctx context.Context, sidecar vfsfs.Handle, local locktoken.Token, policy *AutoRelease) {
	defer func() { _ = sidecar.Close() }()

	localBytes := local.Bytes()
	held, _, err := sidecar.ReadExact(ctx, len(localBytes))
	// A sidecar shorter than the local token is read in full: ReadExact
	// returns no data on a short read, so shrink the request until it fits.
	for n := len(localBytes) - 1; errors.Is(err, vfsfs.ErrEOF) && n > 0; n-- {
		held, _, err = sidecar.ReadExact(ctx, n)
	}
	if err != nil && !errors.Is(err, vfsfs.ErrEOF) {
		vfslog.Debugf(nil, "lock: auto-release: read existing sidecar: %v", err)
		return
	}

	heldFields, err := locktoken.Fields(string(held))
	if err != nil {
		vfslog.Debugf(nil, "lock: auto-release: malformed existing token: %v", err)
		return
	}
	localFields, err := locktoken.Fields(local.String())
	if err != nil {
		// local.String() is always well-formed; this branch cannot occur
		// in practice but is kept so the two decodings are symmetric.
		return
	}

	if policy.SameNodeOnly && (heldFields[1] != localFields[1] || heldFields[2] != localFields[2]) {
		vfslog.Debugf(nil, "lock: auto-release: held by a different node, sameNodeOnly set, skipping")
		return
	}

	heldMillis, err := strconv.ParseInt(heldFields[3], 10, 64)
	var age int64
	if err == nil {
		age = local.MillisAt - heldMillis
	}

	if policy.MaxAgeMillis != nil && *policy.MaxAgeMillis > age {
		vfslog.Debugf(nil, "lock: auto-release: age %dms under threshold %dms, skipping", age, *policy.MaxAgeMillis)
		return
	}

	if err := sidecar.Delete(ctx); err != nil {
		vfslog.Warnf(nil, "lock: auto-release: delete stale sidecar: %v", err)
	}
}

// Release removes uri's lock sidecar. It is idempotent: deleting a
// sidecar that does not exist is a no-op, matching the protocol's
// idempotence rule.
func (c *Coordinator) Release(ctx context.Context, uri string) {
	lockPath := vfsuri.Canonical(uri) + ".lock"
	sidecar, err := c.mgr.Resolve(ctx, lockPath)
	if err != nil {
		vfslog.Errorf(nil, "lock: resolve for release %s: %v", vfsuri.MaskPassword(lockPath), err)
		return
	}
	defer func() { _ = sidecar.Close() }()
	if err := sidecar.Delete(ctx); err != nil {
		vfslog.Errorf(nil, "lock: release %s: %v", vfsuri.MaskPassword(lockPath), err)
	}
}

// onBackendError logs a masked-URI error and releases the sidecar's
// backend connection, the connection-handle leak mitigation the
// protocol's error paths must preserve outside the create phase.
func (c *Coordinator) onBackendError(op, path string, h vfsfs.Handle, err error) {
	vfslog.Errorf(nil, "lock: %s %s: %v", op, vfsuri.MaskPassword(path), err)
	_ = h.Close()
	if err := h.CloseFileSystem(); err != nil {
		vfslog.Warnf(nil, "lock: close filesystem after %s error: %v", op, err)
	}
}
