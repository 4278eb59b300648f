package target_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/deet/pkg/target"
	"github.com/hitzhangjie/deet/pkg/target/targettest"
)

func TestDisassemble(t *testing.T) {
	p := targettest.New(1, []uint64{0x401000}, 0)
	p.Map(0x401000, 0x40)
	// push %rbp; mov %rsp,%rbp; nop...
	p.SetWord(0x401000, 0x90909090e5894855)

	m := target.NewBreakpointManager()
	bp, _ := m.Add(0x401000, "")
	require.NoError(t, m.Install(p, 1, bp))

	insts, err := target.Disassemble(p, m, 1, 0x401000, 3, "gnu")
	require.NoError(t, err)
	require.Len(t, insts, 3)
	assert.Equal(t, uint64(0x401000), insts[0].Addr)
	assert.Equal(t, []byte{0x55}, insts[0].Bytes, "trap shadowed")
	assert.Equal(t, "push %rbp", insts[0].Text)
	assert.Equal(t, uint64(0x401001), insts[1].Addr)
	assert.Equal(t, "mov %rsp,%rbp", insts[1].Text)
	assert.Equal(t, uint64(0x401004), insts[2].Addr)
	assert.Equal(t, "nop", insts[2].Text)

	_, err = target.Disassemble(p, m, 1, 0x401000, 3, "att")
	assert.Error(t, err)
}
