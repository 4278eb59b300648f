package cmd

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCmd(t *testing.T) {
	dir, err := ioutil.TempDir("", "deet-cmd")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "deet.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("disass-syntax: intel\n"), 0644))

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs([]string{"config", "--config", path})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "disass-syntax: intel")
	assert.Contains(t, out.String(), "max-frames: 64")
}

func TestExecCmd_missingProgram(t *testing.T) {
	rootCmd.SetOut(ioutil.Discard)
	rootCmd.SetErr(ioutil.Discard)
	rootCmd.SetArgs([]string{"exec", filepath.Join(os.TempDir(), "deet-no-such-prog")})
	assert.Error(t, rootCmd.Execute())
	assert.Equal(t, 0, RunningPid())
}
