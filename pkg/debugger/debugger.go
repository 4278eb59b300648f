// Package debugger implements the debugging session: it owns the traced
// process and the breakpoints and turns operator intents into process
// control.
package debugger

import (
	"fmt"
	"io"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/hitzhangjie/deet/pkg/locspec"
	"github.com/hitzhangjie/deet/pkg/logflags"
	"github.com/hitzhangjie/deet/pkg/target"
)

// ErrNotRunning is returned by operations that need a live process.
var ErrNotRunning = errors.New("the program is not being run")

// Process is a traced process as seen by the session.
type Process interface {
	target.Tracee
	Pid() int
	Comm() string
	Kill() error
}

// Launcher starts the target program stopped before its first instruction.
type Launcher interface {
	Launch(path string, args []string) (Process, error)
}

type nativeLauncher struct{}

func (nativeLauncher) Launch(path string, args []string) (Process, error) {
	p, err := target.Spawn(path, args)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NativeLauncher spawns real processes under ptrace.
var NativeLauncher Launcher = nativeLauncher{}

// Symbols resolves locations and frames of the target program.
type Symbols interface {
	locspec.Resolver
	target.FrameResolver
}

// Config describes a session.
type Config struct {
	Target string   // path of the program to debug
	Args   []string // arguments of run when none are given

	Launcher     Launcher // defaults to NativeLauncher
	Unwind       target.UnwindOptions
	DisassSyntax string    // go, gnu or intel
	Out          io.Writer // warnings, discarded when nil
}

// active is the state of a session that owns a live process.
type active struct {
	proc  Process
	epoch uint64

	// parked is the breakpoint whose trap stopped the process; its
	// instruction has not executed yet.
	parked *target.Breakpoint
}

// Debugger is a debugging session. It is idle until Run starts the target
// and goes back to idle when the target terminates or is killed.
//
// A Debugger is not safe for concurrent use, except for RunningPid.
type Debugger struct {
	cfg  Config
	syms Symbols
	bps  *target.BreakpointManager

	state *active // nil when idle
	epoch uint64

	runningPid atomic.Int64
	log        *logrus.Entry
}

// New returns an idle session for the program described by cfg.
func New(cfg Config, syms Symbols) *Debugger {
	if cfg.Launcher == nil {
		cfg.Launcher = NativeLauncher
	}
	if cfg.Out == nil {
		cfg.Out = ioutil.Discard
	}
	if cfg.DisassSyntax == "" {
		cfg.DisassSyntax = "gnu"
	}
	return &Debugger{
		cfg:  cfg,
		syms: syms,
		bps:  target.NewBreakpointManager(),
		log:  logflags.DebuggerLogger(),
	}
}

// Target returns the path of the debugged program.
func (d *Debugger) Target() string { return d.cfg.Target }

// Running reports whether the session owns a live process.
func (d *Debugger) Running() bool { return d.state != nil }

// RunningPid returns the pid of the live process, or 0 when idle. It may be
// called from any goroutine.
func (d *Debugger) RunningPid() int {
	return int(d.runningPid.Load())
}

// Run starts the target with args, or with the arguments of the previous
// run when args is empty. A live process is killed and reaped first. Every
// registered breakpoint is installed before the target runs; install
// failures are reported as warnings and leave those breakpoints pending.
// A breakpoint at the entry address traps on the first continue.
func (d *Debugger) Run(args []string) (target.Status, error) {
	if len(args) > 0 {
		d.cfg.Args = args
	}
	if err := d.terminate(); err != nil {
		return target.Status{}, err
	}

	proc, err := d.cfg.Launcher.Launch(d.cfg.Target, d.cfg.Args)
	if err != nil {
		return target.Status{}, errors.Wrapf(err, "run %s", d.cfg.Target)
	}
	d.epoch++
	a := &active{proc: proc, epoch: d.epoch}
	d.state = a
	d.runningPid.Store(int64(proc.Pid()))
	d.log.Debugf("started process %d, epoch %d", proc.Pid(), a.epoch)

	if err := d.bps.InstallAll(proc, a.epoch); err != nil {
		fmt.Fprintf(d.cfg.Out, "warning: %v\n", err)
	}
	st, err := proc.Continue()
	if err != nil {
		return target.Status{}, err
	}
	return d.settle(a, st, true), nil
}

// Continue resumes the process until the next breakpoint, signal or exit.
// A process stopped on a breakpoint first executes the instruction under it.
func (d *Debugger) Continue() (target.Status, error) {
	a, err := d.current()
	if err != nil {
		return target.Status{}, err
	}
	return d.resume(a)
}

func (d *Debugger) resume(a *active) (target.Status, error) {
	bp, err := d.parkedAt(a)
	if err != nil {
		return target.Status{}, err
	}
	if bp != nil {
		st, err := d.bps.StepOver(a.proc, bp)
		if err != nil {
			unpark(a, bp)
			return target.Status{}, err
		}
		if !st.Trapped() {
			return d.settle(a, st, false), nil
		}
	}

	st, err := a.proc.Continue()
	if err != nil {
		return target.Status{}, err
	}
	return d.settle(a, st, true), nil
}

// Step executes one machine instruction.
func (d *Debugger) Step() (target.Status, error) {
	a, err := d.current()
	if err != nil {
		return target.Status{}, err
	}
	bp, err := d.parkedAt(a)
	if err != nil {
		return target.Status{}, err
	}

	var st target.Status
	if bp != nil {
		st, err = d.bps.StepOver(a.proc, bp)
		if err != nil {
			unpark(a, bp)
		}
	} else {
		st, err = a.proc.SingleStep()
	}
	if err != nil {
		return target.Status{}, err
	}
	return d.settle(a, st, false), nil
}

// parkedAt returns the breakpoint the process is stopped at: the one whose
// trap stopped it, or one armed at the current pc that has not trapped yet.
func (d *Debugger) parkedAt(a *active) (*target.Breakpoint, error) {
	if a.parked != nil {
		return a.parked, nil
	}
	regs, err := a.proc.ReadRegisters()
	if err != nil {
		return nil, err
	}
	bp, _ := d.bps.At(a.epoch, regs.PC())
	return bp, nil
}

// unpark forgets a parked breakpoint whose original byte was restored by a
// step over that failed afterwards; the trap is gone, so the process is no
// longer parked on it.
func unpark(a *active, bp *target.Breakpoint) {
	if bp.State != target.Installed {
		a.parked = nil
	}
}

// settle records st. Only a SIGTRAP seen after a continue is a breakpoint
// hit; after a single step pc-1 may be a breakpoint by coincidence.
func (d *Debugger) settle(a *active, st target.Status, continued bool) target.Status {
	a.parked = nil
	if st.Terminated() {
		d.log.Debugf("process %d %s", a.proc.Pid(), st)
		d.state = nil
		d.runningPid.Store(0)
		return st
	}
	if !continued {
		return st
	}
	if bp, ok := d.bps.HitBy(a.epoch, st); ok {
		bp.Hits++
		a.parked = bp
		st.Breakpoint = bp
		st.PC = bp.Addr
	}
	return st
}

// Backtrace returns the call stack of the stopped process, innermost frame
// first. On a breakpoint stop the innermost frame is the breakpoint address.
func (d *Debugger) Backtrace() ([]target.Frame, error) {
	a, err := d.current()
	if err != nil {
		return nil, err
	}
	regs, err := a.proc.ReadRegisters()
	if err != nil {
		return nil, err
	}
	if a.parked != nil {
		regs.SetPC(a.parked.Addr)
	}
	return target.Backtrace(a.proc, regs, d.syms, d.cfg.Unwind)
}

// Break registers a breakpoint at spec and installs it right away when a
// process is live. A spec that resolves to nothing registers nothing. An
// install failure is returned along with the breakpoint, which stays
// pending for the next run.
func (d *Debugger) Break(spec string) (*target.Breakpoint, error) {
	loc, err := locspec.Resolve(spec, d.syms)
	if err != nil {
		return nil, err
	}
	bp, err := d.bps.Add(loc.Addr, d.Location(loc.Addr))
	if err != nil {
		return bp, err
	}
	d.log.Debugf("breakpoint %d at %s", bp.ID, loc)

	if d.state != nil {
		if err := d.bps.Install(d.state.proc, d.state.epoch, bp); err != nil {
			return bp, err
		}
	}
	return bp, nil
}

// Breakpoints returns the registered breakpoints sorted by id.
func (d *Debugger) Breakpoints() target.Breakpoints {
	return d.bps.List()
}

// Disassemble decodes count instructions at the current pc. An empty syntax
// means the configured one.
func (d *Debugger) Disassemble(count int, syntax string) ([]target.Instruction, error) {
	a, err := d.current()
	if err != nil {
		return nil, err
	}
	if syntax == "" {
		syntax = d.cfg.DisassSyntax
	}

	addr := uint64(0)
	if a.parked != nil {
		addr = a.parked.Addr
	} else {
		regs, err := a.proc.ReadRegisters()
		if err != nil {
			return nil, err
		}
		addr = regs.PC()
	}
	return target.Disassemble(a.proc, d.bps, a.epoch, addr, count, syntax)
}

// Registers returns the registers of the stopped process.
func (d *Debugger) Registers() (*target.Registers, error) {
	a, err := d.current()
	if err != nil {
		return nil, err
	}
	return a.proc.ReadRegisters()
}

// SetRegister assigns value to one register of the stopped process.
func (d *Debugger) SetRegister(name string, value uint64) error {
	a, err := d.current()
	if err != nil {
		return err
	}
	regs, err := a.proc.ReadRegisters()
	if err != nil {
		return err
	}
	if err := regs.Set(name, value); err != nil {
		return err
	}
	if err := a.proc.WriteRegisters(regs); err != nil {
		return err
	}
	if a.parked != nil && regs.PC() != a.parked.Addr+1 {
		// moved away from the trap
		a.parked = nil
	}
	return nil
}

// SetMemory writes one byte of the stopped process and returns the byte it
// replaced. Bytes under an installed breakpoint are refused.
func (d *Debugger) SetMemory(addr uint64, b byte) (byte, error) {
	a, err := d.current()
	if err != nil {
		return 0, err
	}
	if bp, ok := d.bps.At(a.epoch, addr); ok {
		return 0, errors.Errorf("%#x is under breakpoint %d", addr, bp.ID)
	}
	return target.WriteByteAt(a.proc, addr, b)
}

// FileLine returns the source position the stopped process is at.
func (d *Debugger) FileLine() (string, int, error) {
	a, err := d.current()
	if err != nil {
		return "", 0, err
	}
	pc := uint64(0)
	if a.parked != nil {
		pc = a.parked.Addr
	} else {
		regs, err := a.proc.ReadRegisters()
		if err != nil {
			return "", 0, err
		}
		pc = regs.PC()
	}
	return d.syms.PCToFileLine(pc)
}

// Location describes pc as "function file:line", as far as it resolves.
func (d *Debugger) Location(pc uint64) string {
	fn, ferr := d.syms.PCToFunction(pc)
	file, line, lerr := d.syms.PCToFileLine(pc)
	switch {
	case ferr == nil && lerr == nil:
		return fmt.Sprintf("%s %s:%d", fn, file, line)
	case ferr == nil:
		return fn
	case lerr == nil:
		return fmt.Sprintf("%s:%d", file, line)
	default:
		return fmt.Sprintf("%#x", pc)
	}
}

// Quit ends the session, killing the live process if there is one.
func (d *Debugger) Quit() error {
	return d.terminate()
}

func (d *Debugger) terminate() error {
	a := d.state
	if a == nil {
		return nil
	}
	pid := a.proc.Pid()
	fmt.Fprintf(d.cfg.Out, "Killing running inferior %s (pid %d)\n", a.proc.Comm(), pid)
	if err := a.proc.Kill(); err != nil {
		return errors.Wrapf(err, "kill process %d", pid)
	}
	d.log.Debugf("killed process %d", pid)
	d.state = nil
	d.runningPid.Store(0)
	return nil
}

func (d *Debugger) current() (*active, error) {
	if d.state == nil {
		return nil, ErrNotRunning
	}
	return d.state, nil
}
