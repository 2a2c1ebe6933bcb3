// Package vfsfstest provides an in-memory vfsfs.Manager for exercising the
// lock, auto-release and fail-marker protocols without a real backend or
// live server — standing in for SFTP/FTP in tests that only need the
// Manager/Handle contract, not actual network behavior.
package vfsfstest

import (
	"context"
	"sync"

	"github.com/filebridge/vfslock/vfsfs"
	"github.com/filebridge/vfslock/vfsuri"
)

// Manager is an in-memory vfsfs.Manager: a map of path to content, guarded
// by a mutex so it is safe to share across the goroutines a concurrency
// test spins up.
type Manager struct {
	mu       sync.Mutex
	files    map[string][]byte
	closeFSN int
}

// New returns an empty in-memory Manager. Files named in present are
// seeded as already existing (with empty content), letting a test set up
// the "canonical file already there" precondition the listener guard
// checks for.
func New(present ...string) *Manager {
	m := &Manager{files: map[string][]byte{}}
	for _, p := range present {
		m.files[p] = nil
	}
	return m
}

func (m *Manager) Scheme() string { return "fake" }

// CloseFileSystemCalls reports how many times any handle's
// CloseFileSystem was invoked, for asserting the connection-leak
// mitigation fired on an error path.
func (m *Manager) CloseFileSystemCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeFSN
}

// Resolve strips any "?..." query tail the way every real vfsfs.Manager
// must (see vfsfs/local, vfsfs/sftp, vfsfs/ftp): a query string is never
// part of a backend's file identity, only of the connection/option layer
// a Manager is already built from.
func (m *Manager) Resolve(ctx context.Context, path string) (vfsfs.Handle, error) {
	return &handle{m: m, path: vfsuri.Canonical(path)}, nil
}

type handle struct {
	m    *Manager
	path string
}

func (h *handle) Exists(ctx context.Context) (bool, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	_, ok := h.m.files[h.path]
	return ok, nil
}

func (h *handle) Create(ctx context.Context) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if _, ok := h.m.files[h.path]; ok {
		return vfsfs.Wrap("create", errExists{h.path})
	}
	h.m.files[h.path] = []byte{}
	return nil
}

func (h *handle) WriteAll(ctx context.Context, data []byte) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	h.m.files[h.path] = cp
	return nil
}

func (h *handle) ReadExact(ctx context.Context, n int) ([]byte, bool, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	content, ok := h.m.files[h.path]
	if !ok {
		return nil, false, vfsfs.Wrap("read", errNotExist{h.path})
	}
	if len(content) < n {
		return nil, false, vfsfs.Wrap("read", vfsfs.ErrEOF)
	}
	out := make([]byte, n)
	copy(out, content[:n])
	return out, len(content) == n, nil
}

func (h *handle) Delete(ctx context.Context) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	delete(h.m.files, h.path)
	return nil
}

func (h *handle) Close() error { return nil }

func (h *handle) CloseFileSystem() error {
	h.m.mu.Lock()
	h.m.closeFSN++
	h.m.mu.Unlock()
	return nil
}

type errExists struct{ path string }

func (e errExists) Error() string { return "file exists: " + e.path }

type errNotExist struct{ path string }

func (e errNotExist) Error() string { return "no such file: " + e.path }

var _ vfsfs.Manager = (*Manager)(nil)
