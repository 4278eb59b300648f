package target

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

// maxInstLen is the longest x86-64 instruction.
const maxInstLen = 15

// Instruction is one decoded machine instruction.
type Instruction struct {
	Addr  uint64
	Bytes []byte
	Text  string
}

func (i Instruction) String() string {
	return fmt.Sprintf("%#x:\t% x\t%s", i.Addr, i.Bytes, i.Text)
}

// Disassemble decodes count instructions starting at addr. Trap opcodes of
// breakpoints armed in epoch are replaced by the original bytes first, so
// the listing shows the program as compiled. Bytes that do not decode are
// emitted one at a time as "(bad)".
func Disassemble(mem Memory, bps *BreakpointManager, epoch uint64, addr uint64, count int, syntax string) ([]Instruction, error) {
	switch syntax {
	case "go", "gnu", "intel":
	default:
		return nil, errors.Errorf("invalid asm syntax %q, want one of go, gnu, intel", syntax)
	}

	buf := make([]byte, count*maxInstLen)
	if err := ReadMemory(mem, addr, buf); err != nil {
		return nil, err
	}
	if bps != nil {
		bps.Shadow(epoch, addr, buf)
	}

	var (
		insts  []Instruction
		offset int
	)
	for len(insts) < count && offset < len(buf) {
		pc := addr + uint64(offset)
		inst, err := x86asm.Decode(buf[offset:], 64)
		if err != nil {
			insts = append(insts, Instruction{Addr: pc, Bytes: buf[offset : offset+1], Text: "(bad)"})
			offset++
			continue
		}
		text := instSyntax(inst, pc, syntax)
		end := offset + inst.Len
		insts = append(insts, Instruction{Addr: pc, Bytes: buf[offset:end], Text: text})
		offset = end
	}
	return insts, nil
}

func instSyntax(inst x86asm.Inst, pc uint64, syntax string) string {
	switch syntax {
	case "go":
		return x86asm.GoSyntax(inst, pc, nil)
	case "intel":
		return x86asm.IntelSyntax(inst, pc, nil)
	default:
		return x86asm.GNUSyntax(inst, pc, nil)
	}
}
