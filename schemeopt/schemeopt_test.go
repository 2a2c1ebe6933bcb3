package schemeopt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filebridge/vfslock/optconfig"
	"github.com/filebridge/vfslock/vfsfs/ftp"
)

func TestAssembleNoScheme(t *testing.T) {
	_, ok := Assemble("/data/in/a.csv", optconfig.Simple{}, "sftp")
	assert.False(t, ok)
}

func TestAssembleSFTPQueryOverlay(t *testing.T) {
	// The query value wins even when a configured property exists for the
	// same option: the overlay only fills entries the query left empty.
	cfg := optconfig.Simple{"sftpHost": "configured.example.com"}
	out, ok := Assemble("sftp://box/in/a.csv?sftpHost=fromquery.example.com", cfg, "sftp")
	require.True(t, ok)
	assert.Equal(t, "sftp", out.Scheme)
	assert.Equal(t, "fromquery.example.com", out.SFTP.Host)
}

func TestAssembleSFTPConfigFallback(t *testing.T) {
	cfg := optconfig.Simple{"sftpKeyFile": "/keys/id_rsa"}
	out, ok := Assemble("sftp://box/in/a.csv", cfg, "sftp")
	require.True(t, ok)
	assert.Equal(t, "/keys/id_rsa", out.SFTP.KeyFile)
}

func TestAssembleFTPSFlags(t *testing.T) {
	uri := "ftp://box/out/a.csv?vfs.passive=true&vfs.implicit=true&vfs.protection=c&fileType=ascii"
	out, ok := Assemble(uri, optconfig.Simple{}, "sftp")
	require.True(t, ok)
	assert.True(t, out.FTP.Passive)
	assert.True(t, out.FTP.Implicit)
	assert.Equal(t, ftp.ProtectionClear, out.FTP.Protection)
	assert.Equal(t, FileTypeASCII, out.FileType)
}

func TestAssembleProtectionMapping(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want ftp.ProtectionLevel
	}{
		{"p", ftp.ProtectionPrivate},
		{"C", ftp.ProtectionClear},
		{"bogus", ""},
	} {
		out, ok := Assemble("ftp://box/a?vfs.protection="+tt.in, optconfig.Simple{}, "sftp")
		require.True(t, ok)
		assert.Equal(t, tt.want, out.FTP.Protection, tt.in)
	}
}

func TestParseFileTypeDefaultsBinary(t *testing.T) {
	assert.Equal(t, FileTypeBinary, ParseFileType(""))
	assert.Equal(t, FileTypeBinary, ParseFileType("nonsense"))
	assert.Equal(t, FileTypeEBCDIC, ParseFileType("ebcdic"))
	assert.Equal(t, FileTypeLocal, ParseFileType("LOCAL"))
}
