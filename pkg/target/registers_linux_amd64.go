package target

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// WordSize is the width of a PEEKDATA/POKEDATA transfer and of a saved
// frame pointer or return address.
const WordSize = 8

// trapOpcode is int3.
const trapOpcode byte = 0xCC

// Registers is a snapshot of the general purpose registers of a tracee.
type Registers struct {
	unix.PtraceRegs
}

// PC returns the instruction pointer.
func (r *Registers) PC() uint64 { return r.Rip }

// SetPC sets the instruction pointer.
func (r *Registers) SetPC(pc uint64) { r.Rip = pc }

// SP returns the stack pointer.
func (r *Registers) SP() uint64 { return r.Rsp }

// BP returns the frame pointer.
func (r *Registers) BP() uint64 { return r.Rbp }

// Register is a named register value, see Registers.List.
type Register struct {
	Name  string
	Value uint64
}

func (r Register) String() string {
	return fmt.Sprintf("%-8s%#016x", r.Name, r.Value)
}

// List returns the registers in the order gdb prints them.
func (r *Registers) List() []Register {
	return []Register{
		{"rax", r.Rax}, {"rbx", r.Rbx}, {"rcx", r.Rcx}, {"rdx", r.Rdx},
		{"rsi", r.Rsi}, {"rdi", r.Rdi}, {"rbp", r.Rbp}, {"rsp", r.Rsp},
		{"r8", r.R8}, {"r9", r.R9}, {"r10", r.R10}, {"r11", r.R11},
		{"r12", r.R12}, {"r13", r.R13}, {"r14", r.R14}, {"r15", r.R15},
		{"rip", r.Rip}, {"eflags", r.Eflags},
		{"cs", r.Cs}, {"ss", r.Ss}, {"ds", r.Ds}, {"es", r.Es},
		{"fs", r.Fs}, {"gs", r.Gs}, {"fs_base", r.Fs_base}, {"gs_base", r.Gs_base},
	}
}

// Set assigns value to the register called name, like "rax" or "fs_base".
func (r *Registers) Set(name string, value uint64) error {
	name = strings.ToLower(name)

	rv := reflect.ValueOf(&r.PtraceRegs).Elem()
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		if strings.ToLower(rt.Field(i).Name) == name {
			rv.Field(i).SetUint(value)
			return nil
		}
	}
	return errors.Errorf("invalid register name: %s", name)
}
