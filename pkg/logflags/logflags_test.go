package logflags

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_logstrWithoutLog(t *testing.T) {
	defer Reset()
	err := Setup(false, "proc")
	require.Equal(t, errLogstrWithoutLog, err)
	assert.False(t, Proc())
}

func TestSetup_defaultsToDebugger(t *testing.T) {
	defer Reset()
	require.NoError(t, Setup(true, ""))
	assert.True(t, Debugger())
	assert.False(t, Proc())
	assert.False(t, Symbols())
}

func TestSetup_multipleLayers(t *testing.T) {
	defer Reset()
	require.NoError(t, Setup(true, "proc, symbols"))
	assert.False(t, Debugger())
	assert.True(t, Proc())
	assert.True(t, Symbols())
}

func TestMakeLogger_disabledLayerIsSilent(t *testing.T) {
	buf := &bytes.Buffer{}
	saved := logOut
	logOut = buf
	defer func() { logOut = saved }()

	entry := makeLogger(false, logrus.Fields{"layer": "proc"})
	assert.Equal(t, logrus.PanicLevel, entry.Logger.Level)
	entry.Debugf("hidden")
	assert.Empty(t, buf.String())

	entry = makeLogger(true, logrus.Fields{"layer": "proc"})
	entry.Debugf("shown %d", 1)
	assert.Contains(t, buf.String(), "shown 1")
	assert.Contains(t, buf.String(), "layer=proc")
}
