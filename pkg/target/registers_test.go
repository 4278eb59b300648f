package target_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/deet/pkg/target"
)

func TestRegisters_Set(t *testing.T) {
	var regs target.Registers
	require.NoError(t, regs.Set("RIP", 0x401000))
	require.NoError(t, regs.Set("fs_base", 0x7f00))
	assert.Equal(t, uint64(0x401000), regs.PC())
	assert.Equal(t, uint64(0x7f00), regs.Fs_base)
	assert.Error(t, regs.Set("xmm0", 1))

	list := regs.List()
	assert.Equal(t, "rax", list[0].Name)
	assert.Equal(t, target.Register{Name: "rip", Value: 0x401000}, list[16])
}
