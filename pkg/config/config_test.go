package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func writeConfig(t *testing.T, content string) string {
	dir, err := ioutil.TempDir("", "deet-config")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "deet.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "(deet) ", c.Prompt)
	assert.Equal(t, 64, c.MaxFrames)
	assert.Equal(t, []string{"main", "main.main"}, c.RootFunctions)
	assert.Equal(t, "gnu", c.DisassSyntax)
	assert.Equal(t, ".deet_history", filepath.Base(c.HistoryFile))
}

func TestInit_readsFile(t *testing.T) {
	path := writeConfig(t, `
prompt: "dbg> "
max-frames: 8
root-functions: ["start"]
disass-syntax: intel
`)
	v := viper.New()
	require.NoError(t, Init(v, path))

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "dbg> ", c.Prompt)
	assert.Equal(t, 8, c.MaxFrames)
	assert.Equal(t, []string{"start"}, c.RootFunctions)
	assert.Equal(t, "intel", c.DisassSyntax)
	assert.Equal(t, 10, c.DisassCount)
}

func TestInit_missingExplicitFile(t *testing.T) {
	v := viper.New()
	err := Init(v, filepath.Join(os.TempDir(), "deet-does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoad_rejectsInvalidValues(t *testing.T) {
	for _, tc := range []struct {
		key string
		val interface{}
	}{
		{KeyMaxFrames, 0},
		{KeyDisassSyntax, "att"},
		{KeyDisassCount, -1},
	} {
		v := viper.New()
		SetDefaults(v)
		v.Set(tc.key, tc.val)
		_, err := Load(v)
		assert.Error(t, err, tc.key)
	}
}

func TestConfig_YAML(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	c, err := Load(v)
	require.NoError(t, err)

	out, err := c.YAML()
	require.NoError(t, err)

	var back map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, "gnu", back[KeyDisassSyntax])
	assert.Equal(t, 64, back[KeyMaxFrames])
}
