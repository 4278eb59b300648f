// Package targettest provides an in-memory tracee for testing code built on
// package target without ptrace.
package targettest

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/hitzhangjie/deet/pkg/target"
)

// Nop is the filler byte of mapped memory.
const Nop byte = 0x90

// Process is a fake tracee. Its program is a fixed sequence of instruction
// addresses executed in order; the byte found at an address decides whether
// it runs or traps. Memory is a sparse map of words, unmapped words fault.
type Process struct {
	PID      int
	Name     string
	Mem      map[uint64]uint64
	Regs     target.Registers
	Program  []uint64
	ExitCode int

	// Executed counts how often each program address really ran.
	Executed map[uint64]int
	// Killed counts Kill calls.
	Killed int
	// WriteHook, when set, runs before every word write and may fail it.
	WriteHook func(addr, word uint64) error

	pos    int
	exited bool
}

// New returns a process stopped before the first instruction of program.
// Every word that holds a program address is mapped and filled with Nop.
func New(pid int, program []uint64, exitCode int) *Process {
	p := &Process{
		PID:      pid,
		Name:     "prog",
		Mem:      map[uint64]uint64{},
		Program:  program,
		ExitCode: exitCode,
		Executed: map[uint64]int{},
	}
	for _, a := range program {
		p.Map(a, 1)
	}
	if len(program) > 0 {
		p.Regs.SetPC(program[0])
	}
	return p
}

// Map maps the words covering [addr, addr+n), filling new words with Nop.
func (p *Process) Map(addr uint64, n uint64) {
	var fill uint64
	for i := 0; i < target.WordSize; i++ {
		fill = fill<<8 | uint64(Nop)
	}
	for w := addr &^ (target.WordSize - 1); w < addr+n; w += target.WordSize {
		if _, ok := p.Mem[w]; !ok {
			p.Mem[w] = fill
		}
	}
}

// SetWord maps and stores a word.
func (p *Process) SetWord(addr, word uint64) {
	p.Mem[addr] = word
}

// Byte returns the byte at addr, or 0 when unmapped.
func (p *Process) Byte(addr uint64) byte {
	word := p.Mem[addr&^(target.WordSize-1)]
	return byte(word >> ((addr % target.WordSize) * 8))
}

// Exited reports whether the process ran to completion or was killed.
func (p *Process) Exited() bool { return p.exited }

func (p *Process) Pid() int { return p.PID }

func (p *Process) Comm() string { return p.Name }

func (p *Process) ReadWord(addr uint64) (uint64, error) {
	if p.exited {
		return 0, target.ErrProcessExited
	}
	if addr%target.WordSize != 0 {
		return 0, errors.Errorf("unaligned word address %#x", addr)
	}
	word, ok := p.Mem[addr]
	if !ok {
		return 0, errors.Errorf("peek %#x: %v", addr, unix.EIO)
	}
	return word, nil
}

func (p *Process) WriteWord(addr, word uint64) error {
	if p.exited {
		return target.ErrProcessExited
	}
	if addr%target.WordSize != 0 {
		return errors.Errorf("unaligned word address %#x", addr)
	}
	if _, ok := p.Mem[addr]; !ok {
		return errors.Errorf("poke %#x: %v", addr, unix.EIO)
	}
	if p.WriteHook != nil {
		if err := p.WriteHook(addr, word); err != nil {
			return err
		}
	}
	p.Mem[addr] = word
	return nil
}

func (p *Process) ReadRegisters() (*target.Registers, error) {
	if p.exited {
		return nil, target.ErrProcessExited
	}
	regs := p.Regs
	return &regs, nil
}

func (p *Process) WriteRegisters(regs *target.Registers) error {
	if p.exited {
		return target.ErrProcessExited
	}
	p.Regs = *regs
	return nil
}

// Continue runs the program until a trap opcode or the end of the program.
func (p *Process) Continue() (target.Status, error) {
	if err := p.checkPC(); err != nil {
		return target.Status{}, err
	}
	for p.pos < len(p.Program) {
		if st, trapped := p.exec(); trapped {
			return st, nil
		}
	}
	return p.exit(), nil
}

// SingleStep runs exactly one instruction.
func (p *Process) SingleStep() (target.Status, error) {
	if err := p.checkPC(); err != nil {
		return target.Status{}, err
	}
	if st, trapped := p.exec(); trapped {
		return st, nil
	}
	if p.pos == len(p.Program) {
		return p.exit(), nil
	}
	return target.Stopped(unix.SIGTRAP, p.Regs.PC()), nil
}

// Kill terminates the process.
func (p *Process) Kill() error {
	p.Killed++
	p.exited = true
	return nil
}

// checkPC fails when pc does not point at the next instruction of the
// program, as happens when a trap is resumed without rewinding.
func (p *Process) checkPC() error {
	if p.exited {
		return target.ErrProcessExited
	}
	if p.pos >= len(p.Program) || p.Regs.PC() != p.Program[p.pos] {
		return errors.Errorf("pc %#x is off the program", p.Regs.PC())
	}
	return nil
}

// exec runs the instruction at pos, or traps on it.
func (p *Process) exec() (target.Status, bool) {
	a := p.Program[p.pos]
	if p.Byte(a) == 0xCC {
		p.Regs.SetPC(a + 1)
		return target.Stopped(unix.SIGTRAP, a+1), true
	}
	p.Executed[a]++
	p.pos++
	if p.pos < len(p.Program) {
		p.Regs.SetPC(p.Program[p.pos])
	}
	return target.Status{}, false
}

func (p *Process) exit() target.Status {
	p.exited = true
	return target.Exited(p.ExitCode)
}
