// Package local implements vfsfs.Manager against the plain local
// filesystem, mirroring the straight os.* calls backend/local/local.go
// makes for Open/Put/Remove, trimmed to the handful of operations the
// lock core needs.
package local

import (
	"context"
	"io"
	"net/url"
	"os"

	"github.com/filebridge/vfslock/vfsfs"
	"github.com/filebridge/vfslock/vfsuri"
)

// Manager is a vfsfs.Manager backed by os.* calls.
type Manager struct{}

// New returns a local filesystem Manager. There is nothing to configure:
// the local backend has no connection pool to own.
func New() *Manager { return &Manager{} }

func (m *Manager) Scheme() string { return "file" }

// Resolve converts a "file://" URI (or a bare path) into a Handle. It
// performs no I/O. Any "?..." query tail is stripped before the path
// reaches the filesystem: the local backend has no per-request credential
// or option channel, so a query string surviving into a literal path
// would only ever produce a spurious distinct file, never the caller's
// intended one.
func (m *Manager) Resolve(ctx context.Context, path string) (vfsfs.Handle, error) {
	return &handle{path: toOSPath(vfsuri.Canonical(path))}, nil
}

func toOSPath(path string) string {
	if u, err := url.Parse(path); err == nil && u.Scheme == "file" {
		if u.Path != "" {
			return u.Path
		}
	}
	return path
}

type handle struct {
	path string
	f    *os.File
}

func (h *handle) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(h.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, vfsfs.Wrap("stat", err)
}

func (h *handle) Create(ctx context.Context) error {
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return vfsfs.Wrap("create", err)
	}
	return vfsfs.Wrap("create", f.Close())
}

func (h *handle) WriteAll(ctx context.Context, data []byte) error {
	f, err := os.OpenFile(h.path, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return vfsfs.Wrap("write", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(data); err != nil {
		return vfsfs.Wrap("write", err)
	}
	if err := f.Sync(); err != nil {
		return vfsfs.Wrap("write", err)
	}
	return nil
}

func (h *handle) ReadExact(ctx context.Context, n int) ([]byte, bool, error) {
	f, err := os.Open(h.path)
	if err != nil {
		return nil, false, vfsfs.Wrap("read", err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, false, vfsfs.Wrap("read", vfsfs.ErrEOF)
		}
		return nil, false, vfsfs.Wrap("read", err)
	}
	var one [1]byte
	_, err = f.Read(one[:])
	exact := err == io.EOF
	_ = read
	return buf, exact, nil
}

func (h *handle) Delete(ctx context.Context) error {
	err := os.Remove(h.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return vfsfs.Wrap("delete", err)
}

func (h *handle) Close() error {
	if h.f == nil {
		return nil
	}
	err := h.f.Close()
	h.f = nil
	return vfsfs.Wrap("close", err)
}

// CloseFileSystem is a no-op for the local backend: there is no pooled
// connection to tear down, just per-file descriptors already released by
// Close.
func (h *handle) CloseFileSystem() error { return nil }
