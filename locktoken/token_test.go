package locktoken_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filebridge/vfslock/locktoken"
)

var tokenPattern = regexp.MustCompile(`^-?\d+:[^:]*:[^:]*:\d+$`)

func TestEncodeMatchesPattern(t *testing.T) {
	tok := locktoken.Encode()
	assert.Regexp(t, tokenPattern, tok.String())
}

func TestEncodeIsFresh(t *testing.T) {
	a := locktoken.Encode()
	b := locktoken.Encode()
	assert.NotEqual(t, a.Nonce, b.Nonce)
}

func TestParseRoundTrip(t *testing.T) {
	tok := locktoken.Encode()
	parsed, err := locktoken.Parse(tok.String())
	require.NoError(t, err)
	assert.Equal(t, tok, parsed)
}

func TestParseRejectsWrongArity(t *testing.T) {
	for _, s := range []string{"1:host:ip", "1:host:ip:1:extra", ""} {
		_, err := locktoken.Parse(s)
		assert.Error(t, err, s)
	}
}

func TestParseToleratesEmptyFields(t *testing.T) {
	parsed, err := locktoken.Parse("1::: 2")
	_ = parsed
	require.Error(t, err) // "2" has a leading space, not a valid int64

	parsed, err = locktoken.Parse("1:::2")
	require.NoError(t, err)
	assert.Equal(t, "", parsed.Hostname)
	assert.Equal(t, "", parsed.IP)
	assert.Equal(t, int64(2), parsed.MillisAt)
}

func TestFieldsArityOnly(t *testing.T) {
	fields, err := locktoken.Fields("not-a-number:host:ip:not-a-number-either")
	require.NoError(t, err)
	assert.Equal(t, [4]string{"not-a-number", "host", "ip", "not-a-number-either"}, fields)

	_, err = locktoken.Fields("too:few:fields")
	assert.Error(t, err)
}
