// Package locktoken builds and parses the opaque lock tokens written into
// ".lock" sidecars: "<random-int64>:<hostname>:<ip>:<millis-epoch>". The
// token is both the holder's claim proof (verified byte-for-byte on
// acquire) and the auto-release age oracle (the timestamp field).
package locktoken

import (
	"fmt"
	"math/rand"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/filebridge/vfslock/internal/vfslog"
)

// Token is a decoded lock token: exactly four colon-separated fields.
type Token struct {
	Nonce    int64
	Hostname string
	IP       string
	MillisAt int64
}

// Encode never fails: a hostname or IP resolution failure degrades to an
// empty field plus a debug-level diagnostic, it never aborts the encode.
func Encode() Token {
	return Token{
		Nonce:    rand.Int63(),
		Hostname: localHostname(),
		IP:       localIP(),
		MillisAt: time.Now().UnixMilli(),
	}
}

func localHostname() string {
	name, err := os.Hostname()
	if err != nil {
		vfslog.Debugf(nil, "locktoken: hostname lookup failed: %v", err)
		return ""
	}
	return name
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		vfslog.Debugf(nil, "locktoken: local address lookup failed: %v", err)
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	// An IPv6 address is not used: its colons would break the token's
	// four-field layout.
	return ""
}

// String renders the token in its on-wire form.
func (t Token) String() string {
	return fmt.Sprintf("%d:%s:%s:%d", t.Nonce, t.Hostname, t.IP, t.MillisAt)
}

// Bytes renders the token as the exact bytes written into a lock sidecar.
func (t Token) Bytes() []byte {
	return []byte(t.String())
}

// Fields splits a raw token string into its four colon-separated fields
// without requiring the numeric fields to parse as integers. This is the
// check the auto-release policy applies: arity alone gates whether a
// sidecar's content is even a candidate lock token.
func Fields(s string) (fields [4]string, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return fields, fmt.Errorf("locktoken: malformed token %q: want 4 colon-separated fields, got %d", s, len(parts))
	}
	copy(fields[:], parts)
	return fields, nil
}

// Parse decodes a token string. It tolerates empty host/IP fields but
// rejects any string whose colon-split arity is not 4, or whose nonce or
// timestamp field is not a valid integer.
func Parse(s string) (Token, error) {
	parts, err := Fields(s)
	if err != nil {
		return Token{}, err
	}
	nonce, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("locktoken: malformed nonce in %q: %w", s, err)
	}
	millis, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("locktoken: malformed timestamp in %q: %w", s, err)
	}
	return Token{
		Nonce:    nonce,
		Hostname: parts[1],
		IP:       parts[2],
		MillisAt: millis,
	}, nil
}
