// Package vfsuri normalizes the file URIs the lock protocol rendezvous on:
// splitting off the query string, masking embedded credentials for log
// lines, and extracting the backend scheme. Every function here must be
// pure and deterministic across processes — two listeners looking at the
// same URI must derive the same sidecar path.
package vfsuri

import (
	"regexp"
	"strings"
)

var (
	schemeRe      = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*)://`)
	lowerSchemeRe = regexp.MustCompile(`^[a-z]+://`)
	passwordRe    = regexp.MustCompile(`:[^/]+@`)
)

// Canonical returns the URI with any query string removed. It is
// idempotent: Canonical(Canonical(u)) == Canonical(u).
func Canonical(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i]
	}
	return uri
}

// QueryTail returns the "?"-prefixed remainder of uri, or "" if uri has no
// query string.
func QueryTail(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[i:]
	}
	return ""
}

// MaskPassword replaces the first ":<password>@" occurrence in uri with
// ":***@", for safe logging. It is a no-op on any string that does not
// start with a lowercase "<letters>://" scheme (so "SFTP://..." is left
// unchanged). Never use the result for lock resolution.
func MaskPassword(uri string) string {
	if !lowerSchemeRe.MatchString(uri) {
		return uri
	}
	loc := passwordRe.FindStringIndex(uri)
	if loc == nil {
		return uri
	}
	return uri[:loc[0]] + ":***@" + uri[loc[1]:]
}

// ExtractScheme returns the leading "scheme" of a "scheme://..." URI, and
// false if uri has no such prefix.
func ExtractScheme(uri string) (scheme string, ok bool) {
	m := schemeRe.FindStringSubmatch(uri)
	if m == nil {
		return "", false
	}
	return m[1], true
}
