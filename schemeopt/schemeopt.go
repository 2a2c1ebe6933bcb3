// Package schemeopt assembles scheme-specific backend options (SFTP, FTP,
// FTPS, TLS material, file-transfer type) from a file URI's query string
// overlaid on top of configured properties, and hands the result to the
// vfsfs backend constructors. It is the scheme option assembler (component
// C7 of the locking protocol), built on the generic overlay machinery in
// optconfig (C9).
package schemeopt

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/filebridge/vfslock/optconfig"
	"github.com/filebridge/vfslock/vfsfs/ftp"
	"github.com/filebridge/vfslock/vfsfs/sftp"
	"github.com/filebridge/vfslock/vfsuri"
)

// FileType is the backend file-transfer mode, mirroring the ASCII/BINARY/
// EBCDIC/LOCAL transfer modes exposed by FTP-family backends.
type FileType int

const (
	FileTypeBinary FileType = iota
	FileTypeASCII
	FileTypeEBCDIC
	FileTypeLocal
)

// ParseFileType translates a case-insensitive "ASCII"/"BINARY"/"EBCDIC"/
// "LOCAL" string to its FileType code, defaulting to FileTypeBinary for
// anything else (including the empty string), matching spec step 5's
// "default BINARY" rule.
func ParseFileType(s string) FileType {
	switch strings.ToUpper(s) {
	case "ASCII":
		return FileTypeASCII
	case "EBCDIC":
		return FileTypeEBCDIC
	case "LOCAL":
		return FileTypeLocal
	default:
		return FileTypeBinary
	}
}

// knownSFTPOptions are the SFTP option names the overlay recognizes by
// plain (unprefixed) name; these match the snake_case keys optconfig.Set
// derives from sftp.Options' field names (the struct carries no config
// tags) and form the suffix of "<prefix><TitleCase(opt)>" configured
// property keys.
var knownSFTPOptions = []string{"host", "port", "user", "pass", "key_file", "use_agent"}

// Options is the assembled, scheme-agnostic result: whichever of SFTP/FTP
// is relevant is populated, plus the file-transfer type every scheme
// shares.
type Options struct {
	Scheme   string
	SFTP     sftp.Options
	FTP      ftp.Options
	FileType FileType
}

// Assemble runs the full scheme option assembler: extract scheme, parse
// the query string, overlay configured values, and build the options
// object the relevant vfsfs backend constructor accepts. configSource is
// typically a config file's Simple map; sftpPrefix is the property-name
// prefix SFTP options are configured under (e.g. "sftp" so "host" is
// configured as "sftpHost").
//
// Assemble returns (Options{}, false) when uri has no scheme, matching
// step 1 of the assembler algorithm.
func Assemble(uri string, configSource optconfig.Getter, sftpPrefix string) (Options, bool) {
	scheme, ok := vfsuri.ExtractScheme(uri)
	if !ok {
		return Options{}, false
	}

	opts := optconfig.Simple{"scheme": scheme}
	for key, value := range parseQuery(uri) {
		opts[normalizeKey(key, sftpPrefix)] = value
	}

	for _, name := range knownSFTPOptions {
		if v, present := opts[name]; present && v != "" {
			continue
		}
		key := sftpPrefix + optconfig.ToTitleCase(name)
		if v, found := configSource.Get(key); found && v != "" {
			opts[name] = v
		}
	}

	out := Options{Scheme: scheme}
	_ = optconfig.Set(opts, &out.SFTP)
	_ = optconfig.Set(opts, &out.FTP)

	if v, found := opts.Get("vfs.passive"); found {
		if b, err := strconv.ParseBool(v); err == nil {
			out.FTP.Passive = b
		}
	}
	if v, found := opts.Get("vfs.implicit"); found {
		if b, err := strconv.ParseBool(v); err == nil && b {
			out.FTP.Implicit = true
		}
	}
	if v, found := opts.Get("vfs.protection"); found {
		out.FTP.Protection = parseProtection(v)
	}
	if v, found := opts.Get("vfs.ssl.keystore"); found {
		out.FTP.KeystorePath = v
	}
	if v, found := opts.Get("vfs.ssl.truststore"); found {
		out.FTP.TruststorePath = v
	}
	if v, found := opts.Get("vfs.ssl.kspassword"); found {
		out.FTP.KeystorePass = v
	}
	if v, found := opts.Get("vfs.ssl.tspassword"); found {
		out.FTP.TruststorePass = v
	}
	if v, found := opts.Get("vfs.ssl.keypassword"); found {
		out.FTP.KeyPass = v
	}
	if v, found := opts.Get("fileType"); found {
		out.FileType = ParseFileType(v)
	}

	return out, true
}

// parseProtection maps a case-insensitive FTPS data-channel protection
// value to one of {P,C,S,E}. Unrecognized values leave the backend's
// default (the zero ftp.ProtectionLevel).
func parseProtection(v string) ftp.ProtectionLevel {
	switch strings.ToUpper(v) {
	case "P":
		return ftp.ProtectionPrivate
	case "C":
		return ftp.ProtectionClear
	case "S":
		return ftp.ProtectionSafe
	case "E":
		return ftp.ProtectionConfPriv
	default:
		return ""
	}
}

// parseQuery parses the query tail of uri into a plain string map. Unlike
// net/url's Values, duplicate keys keep only the last occurrence, which is
// all the scheme option assembler needs.
func parseQuery(uri string) map[string]string {
	tail := vfsuri.QueryTail(uri)
	out := map[string]string{}
	if tail == "" {
		return out
	}
	values, err := url.ParseQuery(strings.TrimPrefix(tail, "?"))
	if err != nil {
		return out
	}
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[len(vs)-1]
		}
	}
	return out
}

// normalizeKey strips a leading "<sftpPrefix>" from a query key and
// lower-cases its first rune, turning a prefixed query parameter like
// "sftpKeyFile" into the plain option key "keyFile" -> "key_file" so both
// the URI query and the configured-property overlay land on the same map
// entry. Keys that do not carry the prefix (vfs.* flags, fileType) pass
// through unchanged.
func normalizeKey(key, sftpPrefix string) string {
	if sftpPrefix == "" || !strings.HasPrefix(key, sftpPrefix) {
		return key
	}
	rest := key[len(sftpPrefix):]
	if rest == "" {
		return key
	}
	return optconfig.ToSnakeCase(rest)
}
