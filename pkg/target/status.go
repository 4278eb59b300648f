package target

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// StatusKind tells why a tracee stopped reporting.
type StatusKind int

const (
	StatusStopped StatusKind = iota
	StatusExited
	StatusSignaled
)

// Status is the state of a tracee after a wait.
type Status struct {
	Kind     StatusKind
	Signal   unix.Signal // stop signal, or the signal that killed the process
	PC       uint64      // instruction pointer, only valid when stopped
	ExitCode int         // only valid when exited

	// Breakpoint is set when the stop is a trap on a known breakpoint.
	Breakpoint *Breakpoint
}

// Stopped returns the status of a tracee stopped by sig at pc.
func Stopped(sig unix.Signal, pc uint64) Status {
	return Status{Kind: StatusStopped, Signal: sig, PC: pc}
}

// Exited returns the status of a tracee that exited with code.
func Exited(code int) Status {
	return Status{Kind: StatusExited, ExitCode: code}
}

// Signaled returns the status of a tracee killed by sig.
func Signaled(sig unix.Signal) Status {
	return Status{Kind: StatusSignaled, Signal: sig}
}

// Terminated reports whether the tracee is gone.
func (s Status) Terminated() bool {
	return s.Kind == StatusExited || s.Kind == StatusSignaled
}

// Trapped reports whether the tracee stopped on SIGTRAP.
func (s Status) Trapped() bool {
	return s.Kind == StatusStopped && s.Signal == unix.SIGTRAP
}

func (s Status) String() string {
	switch s.Kind {
	case StatusStopped:
		return fmt.Sprintf("stopped: %s at %#x", unix.SignalName(s.Signal), s.PC)
	case StatusExited:
		return fmt.Sprintf("exited: %d", s.ExitCode)
	case StatusSignaled:
		return fmt.Sprintf("signaled: %s", unix.SignalName(s.Signal))
	default:
		return fmt.Sprintf("unknown status %d", s.Kind)
	}
}
