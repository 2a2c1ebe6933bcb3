// Package ftp implements vfsfs.Manager over github.com/jlaffaye/ftp,
// pooling *ftp.ServerConn exactly the way backend/ftp/ftp.go's
// getFtpConnection/putFtpConnection pair does: a free list guarded by a
// mutex. A connection whose operation failed is checked with NoOp before
// it is returned to the pool; pooled connections are handed out again
// without a further check.
package ftp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"sync"

	"github.com/jlaffaye/ftp"

	"github.com/filebridge/vfslock/vfsfs"
	"github.com/filebridge/vfslock/vfsuri"
)

// ProtectionLevel is the FTPS data-channel protection level.
type ProtectionLevel string

const (
	ProtectionPrivate  ProtectionLevel = "P"
	ProtectionClear    ProtectionLevel = "C"
	ProtectionSafe     ProtectionLevel = "S"
	ProtectionConfPriv ProtectionLevel = "E"
)

// Options configures the FTP/FTPS backend.
type Options struct {
	Host     string
	Port     string
	User     string
	Pass     string
	Passive  bool
	Implicit bool

	Protection ProtectionLevel

	KeystorePath    string
	TruststorePath  string
	KeystorePass    string
	TruststorePass  string
	KeyPass         string
	NoCheckCertPeer bool
}

// Manager is a vfsfs.Manager backed by a pooled FTP/FTPS connection.
type Manager struct {
	opt Options

	mu   sync.Mutex
	pool []*ftp.ServerConn
}

// New builds a Manager from the given options.
func New(opt Options) (*Manager, error) {
	if opt.Port == "" {
		opt.Port = "21"
	}
	return &Manager{opt: opt}, nil
}

func (m *Manager) Scheme() string { return "ftp" }

// Resolve strips any "?..." query tail from path before treating it as a
// remote FTP path, for the same reason vfsfs/sftp does: the pooled
// connection is already authenticated from the Options it was built with,
// so the literal remote path must name the real file, not a
// query-suffixed lookalike.
func (m *Manager) Resolve(ctx context.Context, path string) (vfsfs.Handle, error) {
	return &handle{m: m, path: vfsuri.Canonical(path)}, nil
}

func (m *Manager) dialAddr() string {
	return fmt.Sprintf("%s:%s", m.opt.Host, m.opt.Port)
}

func (m *Manager) tlsConfig() *tls.Config {
	if !m.opt.Implicit && m.opt.Protection == "" {
		return nil
	}
	return &tls.Config{
		InsecureSkipVerify: m.opt.NoCheckCertPeer,
	}
}

func (m *Manager) dial(ctx context.Context) (*ftp.ServerConn, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if tlsConfig := m.tlsConfig(); tlsConfig != nil {
		if m.opt.Implicit {
			opts = append(opts, ftp.DialWithTLS(tlsConfig))
		} else {
			opts = append(opts, ftp.DialWithExplicitTLS(tlsConfig))
		}
	}
	c, err := ftp.Dial(m.dialAddr(), opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Login(m.opt.User, m.opt.Pass); err != nil {
		_ = c.Quit()
		return nil, err
	}
	return c, nil
}

func (m *Manager) getConn(ctx context.Context) (*ftp.ServerConn, error) {
	m.mu.Lock()
	if len(m.pool) > 0 {
		c := m.pool[len(m.pool)-1]
		m.pool = m.pool[:len(m.pool)-1]
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()
	return m.dial(ctx)
}

func (m *Manager) putConn(c *ftp.ServerConn, err error) {
	if c == nil {
		return
	}
	if err != nil {
		if nopErr := c.NoOp(); nopErr != nil {
			_ = c.Quit()
			return
		}
	}
	m.mu.Lock()
	m.pool = append(m.pool, c)
	m.mu.Unlock()
}

// closeAll quits and drops every pooled connection.
func (m *Manager) closeAll() error {
	m.mu.Lock()
	pool := m.pool
	m.pool = nil
	m.mu.Unlock()
	var firstErr error
	for _, c := range pool {
		if err := c.Quit(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type handle struct {
	m    *Manager
	path string
}

func (h *handle) Exists(ctx context.Context) (bool, error) {
	c, err := h.m.getConn(ctx)
	if err != nil {
		return false, vfsfs.Wrap("stat", err)
	}
	_, sizeErr := c.FileSize(h.path)
	h.m.putConn(c, nil)
	if sizeErr == nil {
		return true, nil
	}
	if isNotExist(sizeErr) {
		return false, nil
	}
	return false, vfsfs.Wrap("stat", sizeErr)
}

func (h *handle) Create(ctx context.Context) error {
	return h.WriteAll(ctx, nil)
}

func (h *handle) WriteAll(ctx context.Context, data []byte) error {
	c, err := h.m.getConn(ctx)
	if err != nil {
		return vfsfs.Wrap("write", err)
	}
	storErr := c.Stor(h.path, newBytesReader(data))
	h.m.putConn(c, storErr)
	return vfsfs.Wrap("write", storErr)
}

func (h *handle) ReadExact(ctx context.Context, n int) ([]byte, bool, error) {
	c, err := h.m.getConn(ctx)
	if err != nil {
		return nil, false, vfsfs.Wrap("read", err)
	}
	resp, retrErr := c.Retr(h.path)
	if retrErr != nil {
		h.m.putConn(c, retrErr)
		return nil, false, vfsfs.Wrap("read", retrErr)
	}
	defer func() { _ = resp.Close() }()

	buf := make([]byte, n)
	_, readErr := io.ReadFull(resp, buf)
	if readErr != nil {
		h.m.putConn(c, nil)
		if readErr == io.ErrUnexpectedEOF || readErr == io.EOF {
			return nil, false, vfsfs.Wrap("read", vfsfs.ErrEOF)
		}
		return nil, false, vfsfs.Wrap("read", readErr)
	}
	var one [1]byte
	_, extraErr := resp.Read(one[:])
	h.m.putConn(c, nil)
	return buf, extraErr == io.EOF, nil
}

func (h *handle) Delete(ctx context.Context) error {
	c, err := h.m.getConn(ctx)
	if err != nil {
		return vfsfs.Wrap("delete", err)
	}
	delErr := c.Delete(h.path)
	if isNotExist(delErr) {
		delErr = nil
	}
	h.m.putConn(c, delErr)
	return vfsfs.Wrap("delete", delErr)
}

func (h *handle) Close() error { return nil }

// CloseFileSystem drops every pooled FTP connection.
func (h *handle) CloseFileSystem() error {
	return vfsfs.Wrap("close_filesystem", h.m.closeAll())
}

// textprotoError unwraps err to the *textproto.Error the FTP control
// connection returned, or nil if err doesn't carry one, mirroring
// backend/ftp/ftp.go's textprotoError helper.
func textprotoError(err error) *textproto.Error {
	var errX *textproto.Error
	if errors.As(err, &errX) {
		return errX
	}
	return nil
}

// isNotExist reports whether err is the FTP "no such file" status, the way
// backend/ftp/ftp.go checks ftp.StatusFileUnavailable on its error paths.
func isNotExist(err error) bool {
	errX := textprotoError(err)
	return errX != nil && errX.Code == ftp.StatusFileUnavailable
}

func newBytesReader(b []byte) io.Reader {
	if b == nil {
		b = []byte{}
	}
	return &byteSliceReader{b: b}
}

type byteSliceReader struct {
	b   []byte
	pos int
}

func (r *byteSliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

var _ fmt.Stringer = (*Manager)(nil)

func (m *Manager) String() string {
	return fmt.Sprintf("ftp://%s@%s:%s", m.opt.User, m.opt.Host, m.opt.Port)
}
