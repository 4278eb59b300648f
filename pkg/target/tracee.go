package target

// Memory is word granular access to the address space of a stopped tracee.
// Addresses passed to ReadWord and WriteWord must be word aligned.
type Memory interface {
	ReadWord(addr uint64) (uint64, error)
	WriteWord(addr, word uint64) error
}

// Tracee is a stopped process that can be inspected and resumed.
// Continue and SingleStep block until the tracee stops again or terminates.
type Tracee interface {
	Memory

	ReadRegisters() (*Registers, error)
	WriteRegisters(regs *Registers) error

	Continue() (Status, error)
	SingleStep() (Status, error)
}
