package debug

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/deet/pkg/config"
	"github.com/hitzhangjie/deet/pkg/debugger"
	"github.com/hitzhangjie/deet/pkg/target"
	"github.com/hitzhangjie/deet/pkg/target/targettest"
)

const (
	startAddr = 0x401000
	mainAddr  = 0x401100
)

var program = []uint64{startAddr, mainAddr, mainAddr + 1, startAddr + 4}

var errNoSym = errors.New("no symbol")

type symbols struct{}

func (symbols) PCToFunction(pc uint64) (string, error) {
	switch pc &^ 0xff {
	case startAddr:
		return "_start", nil
	case mainAddr:
		return "main", nil
	}
	return "", errNoSym
}

func (symbols) PCToFileLine(pc uint64) (string, int, error) {
	if pc&^0xff == mainAddr {
		return "main.c", 3 + int(pc&0xff), nil
	}
	return "", 0, errNoSym
}

func (s symbols) FunctionEntry(pc uint64) (uint64, error) {
	if _, err := s.PCToFunction(pc); err != nil {
		return 0, err
	}
	return pc &^ 0xff, nil
}

func (symbols) LineToPC(line int) (uint64, error) {
	if line == 3 || line == 4 {
		return mainAddr + uint64(line-3), nil
	}
	return 0, errNoSym
}

func (s symbols) FileLineToPC(file string, line int) (uint64, error) {
	if file != "main.c" {
		return 0, errNoSym
	}
	return s.LineToPC(line)
}

func (symbols) FunctionToPC(name string) (uint64, error) {
	if name == "main" {
		return mainAddr, nil
	}
	return 0, errNoSym
}

type launcher struct {
	procs []*targettest.Process
	args  [][]string
}

func (l *launcher) Launch(path string, args []string) (debugger.Process, error) {
	p := targettest.New(200+len(l.procs), program, 0)
	p.Map(mainAddr, 0x40)
	l.procs = append(l.procs, p)
	l.args = append(l.args, args)
	return p, nil
}

func newTestSession(t *testing.T) (*DebugSession, *launcher, *bytes.Buffer) {
	out := &bytes.Buffer{}
	l := &launcher{}
	dbg := debugger.New(debugger.Config{
		Target:   "/tmp/prog",
		Launcher: l,
		Unwind:   target.DefaultUnwindOptions,
		Out:      out,
	}, symbols{})
	cfg := &config.Config{Prompt: "(deet) ", DisassCount: 3}
	s := newDebugSession(dbg, cfg, out, false)
	t.Cleanup(func() { CurrentSession = nil })
	return s, l, out
}

// exec runs line and returns what it printed.
func exec(t *testing.T, s *DebugSession, out *bytes.Buffer, line string) string {
	out.Reset()
	require.NoError(t, s.Execute(line), line)
	return out.String()
}

func TestDebugSession_breakRunBacktraceContinue(t *testing.T) {
	s, l, out := newTestSession(t)

	assert.Equal(t, "Breakpoint 1 at 0x401100: main main.c:3\n", exec(t, s, out, "b main"))
	assert.Contains(t, exec(t, s, out, "breakpoints"), "pending")

	assert.Equal(t, "Breakpoint 1, main main.c:3\n", exec(t, s, out, "run"))
	assert.Contains(t, exec(t, s, out, "bs"), "installed")

	bt := exec(t, s, out, "bt")
	assert.Contains(t, bt, "#0")
	assert.Contains(t, bt, "main (main.c:3)")
	assert.Equal(t, bt, exec(t, s, out, ""), "empty line repeats the last command")

	assert.Equal(t, "Child exited (status 0)\n", exec(t, s, out, "c"))
	assert.Equal(t, 1, l.procs[0].Executed[mainAddr])

	err := s.Execute("continue")
	assert.Equal(t, debugger.ErrNotRunning, err)
}

func TestDebugSession_runArguments(t *testing.T) {
	s, l, out := newTestSession(t)

	exec(t, s, out, `run -v "a b"`)
	require.Len(t, l.args, 1)
	assert.Equal(t, []string{"-v", "a b"}, l.args[0])
}

func TestDebugSession_stepAndDisass(t *testing.T) {
	s, _, out := newTestSession(t)
	exec(t, s, out, "break 3")
	exec(t, s, out, "run")

	assert.Equal(t, "Stopped at main main.c:4 (0x401101)\n", exec(t, s, out, "si"))

	lines := strings.Split(strings.TrimSpace(exec(t, s, out, "dis -n 1 -s intel")), "\n")
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], "nop")

	// flags of the previous execution are reset
	lines = strings.Split(strings.TrimSpace(exec(t, s, out, "dis")), "\n")
	assert.Len(t, lines, 3)

	assert.Error(t, s.Execute("dis -s att"))
}

func TestDebugSession_regsAndSet(t *testing.T) {
	s, l, out := newTestSession(t)
	exec(t, s, out, "b main")
	exec(t, s, out, "run")

	assert.Equal(t, "rax = 0x2a\n", exec(t, s, out, "setreg rax 0x2a"))
	assert.Contains(t, exec(t, s, out, "regs"), target.Register{Name: "rax", Value: 0x2a}.String())
	assert.Error(t, s.Execute("setreg rax"))

	assert.Equal(t, "0x401102: 0x90 -> 0xc3\n", exec(t, s, out, "setmem 0x401102 0xc3"))
	assert.Equal(t, byte(0xc3), l.procs[0].Byte(mainAddr+2))
	assert.Error(t, s.Execute("setmem 0x401100 0x90"), "byte under a breakpoint")
	assert.Error(t, s.Execute("setmem 0x401102 0x100"))
}

func TestDebugSession_errors(t *testing.T) {
	s, _, out := newTestSession(t)

	assert.Error(t, s.Execute("break nosuchfunc"))
	assert.Equal(t, "No breakpoints.\n", exec(t, s, out, "bs"))
	assert.Error(t, s.Execute("break"))
	assert.Error(t, s.Execute("bt"))
	assert.Error(t, s.Execute("nosuchcmd"))
	assert.Error(t, s.Execute("run `ls`"))
}

func TestDebugSession_quit(t *testing.T) {
	s, l, out := newTestSession(t)
	exec(t, s, out, "b main")
	exec(t, s, out, "r")

	assert.Contains(t, exec(t, s, out, "q"), "Killing running inferior prog (pid 200)")
	assert.True(t, s.Done())
	assert.Equal(t, 1, l.procs[0].Killed)
}

func TestSplitArgs(t *testing.T) {
	args, err := splitArgs(`run 'a b' "c d" e`)
	require.NoError(t, err)
	assert.Equal(t, []string{"run", "a b", "c d", "e"}, args)

	_, err = splitArgs("b main | bt")
	assert.Error(t, err)
}

func TestCompleter(t *testing.T) {
	assert.Equal(t, []string{"break", "breakpoint", "breakpoints", "breaks"}, completer("br"))
	assert.Empty(t, completer("break ma"))
}

func TestPrintStatus(t *testing.T) {
	s, _, _ := newTestSession(t)
	buf := &bytes.Buffer{}

	s.printStatus(buf, target.Signaled(9))
	assert.Equal(t, "Child exited due to signal SIGKILL\n", buf.String())

	buf.Reset()
	s.printStatus(buf, target.Stopped(2, mainAddr))
	assert.Equal(t, "Child stopped (signal SIGINT) at main main.c:3\n", buf.String())

	buf.Reset()
	s.color = true
	s.printStatus(buf, target.Exited(3))
	assert.Equal(t, colorYellow+"Child exited (status 3)"+colorReset+"\n", buf.String())
}

func TestHelpMessageByGroups(t *testing.T) {
	msg := helpMessageByGroups(debugRootCmd)
	assert.Contains(t, msg, "- [breaks]")
	assert.Contains(t, msg, "- [execute]")
	assert.True(t, strings.Index(msg, "[breaks]") < strings.Index(msg, "[execute]"))
}
