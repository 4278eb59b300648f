package target_test

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/deet/pkg/target"
	"github.com/hitzhangjie/deet/pkg/target/targettest"
)

// funcTable resolves every pc inside [lo, lo+0x100) to name.
type funcTable map[uint64]string

func (t funcTable) PCToFunction(pc uint64) (string, error) {
	if fn, ok := t[pc&^0xff]; ok {
		return fn, nil
	}
	return "", errors.Errorf("no function at %#x", pc)
}

func (t funcTable) PCToFileLine(pc uint64) (string, int, error) {
	if _, ok := t[pc&^0xff]; !ok {
		return "", 0, errors.Errorf("no line at %#x", pc)
	}
	return "main.go", int(pc & 0xff), nil
}

func (t funcTable) FunctionEntry(pc uint64) (uint64, error) {
	if _, ok := t[pc&^0xff]; !ok {
		return 0, errors.Errorf("no function at %#x", pc)
	}
	return pc &^ 0xff, nil
}

// buildChain lays out a frame pointer chain above sp, one 0x40 byte frame per
// caller base, innermost first. The return address into a caller is base+0x10.
// The outermost frame saves last as frame pointer and returns into 0x401010.
func buildChain(p *targettest.Process, sp uint64, bases []uint64, last uint64) *target.Registers {
	fp := sp + 0x20
	regs := &target.Registers{}
	regs.Rsp = sp
	regs.Rbp = fp
	for _, base := range bases {
		next := fp + 0x40
		p.SetWord(fp, next)
		p.SetWord(fp+8, base+0x10)
		fp = next
	}
	p.SetWord(fp, last)
	p.SetWord(fp+8, 0x401010)
	return regs
}

func TestBacktrace_reachesRoot(t *testing.T) {
	table := funcTable{0x401000: "main.c", 0x401100: "main.b", 0x401200: "main.a", 0x401300: "main.main"}
	for n := 1; n <= 4; n++ {
		t.Run(fmt.Sprintf("%d frames", n), func(t *testing.T) {
			p := targettest.New(1, nil, 0)
			callers := []uint64{0x401100, 0x401200, 0x401300}
			start := []uint64{0x401000, 0x401100, 0x401200, 0x401300}[4-n]
			regs := buildChain(p, 0x7ff000, callers[4-n:], 0)
			regs.SetPC(start + 4)

			frames, err := target.Backtrace(p, regs, table, target.DefaultUnwindOptions)
			require.NoError(t, err)
			require.Len(t, frames, n)
			assert.Equal(t, table[start], frames[0].Function)
			assert.Equal(t, 4, frames[0].Line)
			assert.Equal(t, "main.main", frames[n-1].Function)
			for i := 1; i < n; i++ {
				assert.Equal(t, 0xf, frames[i].Line, "return address resolved at ret-1")
			}
		})
	}
}

func TestBacktrace_functionEntry(t *testing.T) {
	table := funcTable{0x401000: "main.c", 0x401100: "main.b", 0x401200: "main.a", 0x401300: "main.main"}
	p := targettest.New(1, nil, 0)

	// main.c was just called by main.b: the return address is on top of the
	// stack and rbp is still main.b's frame
	regs := buildChain(p, 0x7ff000, []uint64{0x401200, 0x401300}, 0)
	regs.Rsp = 0x7fefe8
	p.SetWord(0x7fefe8, 0x401110)
	regs.SetPC(0x401000)

	frames, err := target.Backtrace(p, regs, table, target.DefaultUnwindOptions)
	require.NoError(t, err)
	require.Len(t, frames, 4)
	assert.Equal(t, "main.c", frames[0].Function)
	assert.Equal(t, "main.b", frames[1].Function)
	assert.Equal(t, 0xf, frames[1].Line)
	assert.Equal(t, "main.a", frames[2].Function)
	assert.Equal(t, "main.main", frames[3].Function)

	// past the entry the frame pointer chain is used again
	regs.SetPC(0x401001)
	frames, err = target.Backtrace(p, regs, table, target.DefaultUnwindOptions)
	require.NoError(t, err)
	assert.Len(t, frames, 3)
	assert.Equal(t, "main.a", frames[1].Function)
}

func TestBacktrace_rootWithoutFramePointer(t *testing.T) {
	p := targettest.New(1, nil, 0)
	regs := &target.Registers{}
	regs.SetPC(0x401300)

	frames, err := target.Backtrace(p, regs, funcTable{0x401300: "main"}, target.DefaultUnwindOptions)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "main (main.go:0)", frames[0].String())
}

func TestBacktrace_invalidFramePointer(t *testing.T) {
	table := funcTable{0x401000: "main.c", 0x401100: "main.b"}

	cases := map[string]func(p *targettest.Process) *target.Registers{
		"null": func(p *targettest.Process) *target.Registers {
			return buildChain(p, 0x7ff000, []uint64{0x401100}, 0)
		},
		"decreasing": func(p *targettest.Process) *target.Registers {
			return buildChain(p, 0x7ff000, []uint64{0x401100}, 0x7ff000)
		},
		"unaligned": func(p *targettest.Process) *target.Registers {
			return buildChain(p, 0x7ff000, []uint64{0x401100}, 0x7ff0a3)
		},
		"too far": func(p *targettest.Process) *target.Registers {
			return buildChain(p, 0x7ff000, []uint64{0x401100}, 0x7ff060+(16<<20))
		},
		"below sp": func(p *targettest.Process) *target.Registers {
			regs := &target.Registers{}
			regs.Rsp = 0x7ff000
			regs.Rbp = 0x7fe000
			return regs
		},
		"unmapped": func(p *targettest.Process) *target.Registers {
			regs := &target.Registers{}
			regs.Rsp = 0x7ff000
			regs.Rbp = 0x7ff100
			return regs
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			p := targettest.New(1, nil, 0)
			regs := setup(p)
			regs.SetPC(0x401004)

			frames, err := target.Backtrace(p, regs, table, target.DefaultUnwindOptions)
			require.Error(t, err)
			assert.Equal(t, target.ErrUnwind, errors.Cause(err))
			require.NotEmpty(t, frames)
			assert.Equal(t, "main.c", frames[0].Function)
		})
	}
}

func TestBacktrace_cycle(t *testing.T) {
	p := targettest.New(1, nil, 0)
	regs := &target.Registers{}
	regs.Rsp = 0x7ff000
	regs.Rbp = 0x7ff020
	regs.SetPC(0x401004)
	p.SetWord(0x7ff020, 0x7ff020)
	p.SetWord(0x7ff028, 0x401010)

	frames, err := target.Backtrace(p, regs, funcTable{0x401000: "main.loop"}, target.DefaultUnwindOptions)
	require.Error(t, err)
	assert.Equal(t, target.ErrUnwind, errors.Cause(err))
	assert.Len(t, frames, 2)
}

func TestBacktrace_maxFrames(t *testing.T) {
	p := targettest.New(1, nil, 0)
	callers := make([]uint64, 20)
	for i := range callers {
		callers[i] = 0x401000
	}
	regs := buildChain(p, 0x7ff000, callers, 0)
	regs.SetPC(0x401004)

	opts := target.DefaultUnwindOptions
	opts.MaxFrames = 5
	frames, err := target.Backtrace(p, regs, funcTable{0x401000: "main.rec"}, opts)
	require.Error(t, err)
	assert.Equal(t, target.ErrUnwind, errors.Cause(err))
	assert.Len(t, frames, 5)
}
