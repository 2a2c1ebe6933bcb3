package optconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOptions struct {
	Host     string
	Port     string `config:"port"`
	Passive  bool
	MaxRetry int
}

func TestSet(t *testing.T) {
	g := Simple{
		"host":      "example.com",
		"port":      "2222",
		"passive":   "true",
		"max_retry": "3",
	}
	var opt testOptions
	require.NoError(t, Set(g, &opt))
	assert.Equal(t, "example.com", opt.Host)
	assert.Equal(t, "2222", opt.Port)
	assert.True(t, opt.Passive)
	assert.Equal(t, 3, opt.MaxRetry)
}

func TestSetLeavesUnmatchedFields(t *testing.T) {
	opt := testOptions{Host: "preset"}
	require.NoError(t, Set(Simple{}, &opt))
	assert.Equal(t, "preset", opt.Host)
}

func TestSetRejectsNonPointer(t *testing.T) {
	err := Set(Simple{}, testOptions{})
	assert.Error(t, err)
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "host", ToSnakeCase("Host"))
	assert.Equal(t, "max_retry", ToSnakeCase("MaxRetry"))
	assert.Equal(t, "key_file", ToSnakeCase("KeyFile"))
}

func TestToTitleCase(t *testing.T) {
	assert.Equal(t, "KeyFile", ToTitleCase("key_file"))
	assert.Equal(t, "Host", ToTitleCase("host"))
}
