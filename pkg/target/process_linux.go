package target

import (
	"encoding/binary"
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/hitzhangjie/deet/pkg/logflags"
)

var (
	// ErrSpawn is returned when the child terminates before its initial stop.
	ErrSpawn = errors.New("process did not reach its initial stop")
	// ErrProcessExited is returned by requests against a terminated process.
	ErrProcessExited = errors.New("process exited")
	// ErrNotStopped is returned by memory and register requests while the
	// tracee is not in a ptrace stop.
	ErrNotStopped = errors.New("process is not stopped")
)

// Process is a child process started under ptrace.
type Process struct {
	Command string   // path of the executable
	Args    []string // arguments, without argv[0]

	pid     int
	comm    string
	ptrace  *ptraceThread
	exited  bool
	stopped bool
	status  Status

	// pendingSig is delivered to the tracee on the next Continue.
	pendingSig unix.Signal

	log *logrus.Entry
}

// Spawn starts path with args. The child requests tracing on itself before
// exec, so it stops before running any instruction of the target; Spawn
// returns once that stop has been observed.
func Spawn(path string, args []string) (*Process, error) {
	p := &Process{
		Command: path,
		Args:    args,
		ptrace:  newPtraceThread(),
		log:     logflags.ProcLogger(),
	}

	var (
		cmd *exec.Cmd
		err error
	)
	p.execPtrace(func() {
		cmd = exec.Command(path, args...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Ptrace: true, // implies PTRACE_TRACEME
		}
		cmd.Env = append(os.Environ(), "GODEBUG=asyncpreemptoff=1")
		err = cmd.Start()
	})
	if err != nil {
		p.ptrace.stop()
		return nil, errors.Wrapf(err, "start %s", path)
	}
	p.pid = cmd.Process.Pid

	status, err := p.wait()
	if err != nil {
		p.Kill()
		return nil, errors.Wrapf(err, "wait for %s to start", path)
	}
	if status.Terminated() {
		return nil, errors.Wrapf(ErrSpawn, "%s %s", path, status)
	}

	// the tracee must not outlive the debugger
	p.execPtrace(func() {
		err = unix.PtraceSetOptions(p.pid, unix.PTRACE_O_EXITKILL)
	})
	if err != nil {
		p.Kill()
		return nil, errors.Wrapf(err, "set ptrace options on %d", p.pid)
	}

	p.comm, _ = readProcComm(p.pid)
	p.log.Debugf("process %d (%s) stopped at %#x", p.pid, p.comm, status.PC)
	return p, nil
}

func (p *Process) execPtrace(fn func()) {
	p.ptrace.exec(fn)
}

// Pid returns the process id.
func (p *Process) Pid() int { return p.pid }

// Comm returns the command name the kernel reports for the process.
func (p *Process) Comm() string { return p.comm }

// Exited reports whether the process has terminated and been reaped.
func (p *Process) Exited() bool { return p.exited }

// Status returns the status of the last wait.
func (p *Process) Status() Status { return p.status }

// TraceStopped asks procfs whether the kernel has the process in a trace stop.
func (p *Process) TraceStopped() bool {
	st, err := readProcStat(p.pid)
	if err != nil {
		return false
	}
	switch st.state {
	case statusTraceStop, statusTraceStopT:
		return true
	}
	return false
}

// checkStopped fails unless the process sits in a trace stop, which a
// SIGKILL sent by someone else ends behind our back.
func (p *Process) checkStopped() error {
	if p.exited {
		return ErrProcessExited
	}
	if !p.stopped || !p.TraceStopped() {
		return ErrNotStopped
	}
	return nil
}

// Continue resumes the process and blocks until it stops or terminates.
// A signal that stopped the process, other than SIGTRAP and SIGINT, is
// delivered to it.
func (p *Process) Continue() (Status, error) {
	if err := p.checkStopped(); err != nil {
		return Status{}, err
	}

	sig := p.pendingSig
	p.pendingSig = 0

	var err error
	p.execPtrace(func() {
		err = unix.PtraceCont(p.pid, int(sig))
	})
	if err != nil {
		return Status{}, errors.Wrapf(err, "ptrace cont %d", p.pid)
	}
	p.stopped = false
	return p.wait()
}

// SingleStep executes exactly one instruction and blocks for the resulting stop.
func (p *Process) SingleStep() (Status, error) {
	if err := p.checkStopped(); err != nil {
		return Status{}, err
	}

	var err error
	p.execPtrace(func() {
		err = unix.PtraceSingleStep(p.pid)
	})
	if err != nil {
		return Status{}, errors.Wrapf(err, "ptrace singlestep %d", p.pid)
	}
	p.stopped = false
	return p.wait()
}

// wait blocks until the process changes state. The process is reaped when
// it exited or was killed.
func (p *Process) wait() (Status, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(p.pid, &ws, unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Status{}, errors.Wrapf(err, "wait %d", p.pid)
		}
		if wpid == p.pid {
			break
		}
	}

	var status Status
	switch {
	case ws.Exited():
		status = Exited(ws.ExitStatus())
		p.postExit()
	case ws.Signaled():
		status = Signaled(ws.Signal())
		p.postExit()
	case ws.Stopped():
		p.stopped = true
		var pc uint64
		if regs, err := p.ReadRegisters(); err == nil {
			pc = regs.PC()
		} else {
			p.log.Debugf("process %d stopped but registers are unavailable: %v", p.pid, err)
		}
		sig := ws.StopSignal()
		switch sig {
		case unix.SIGTRAP, unix.SIGINT, unix.SIGSTOP:
		default:
			p.pendingSig = sig
		}
		status = Stopped(sig, pc)
	default:
		return Status{}, errors.Errorf("unexpected wait status %#x for %d", uint32(ws), p.pid)
	}

	p.status = status
	p.log.Debugf("process %d %s", p.pid, status)
	return status, nil
}

func (p *Process) postExit() {
	p.exited = true
	p.stopped = false
	p.ptrace.stop()
}

// Kill sends SIGKILL and blocks until the process is reaped. Killing a
// process that already terminated is a no-op.
func (p *Process) Kill() error {
	if p.exited {
		return nil
	}
	if err := unix.Kill(p.pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return errors.Wrapf(err, "kill %d", p.pid)
	}
	for {
		status, err := p.wait()
		if err != nil {
			if errors.Cause(err) == unix.ECHILD {
				p.postExit()
				return nil
			}
			return err
		}
		if status.Terminated() {
			return nil
		}
	}
}

// ReadWord reads the word at the word aligned address addr.
func (p *Process) ReadWord(addr uint64) (uint64, error) {
	if addr%WordSize != 0 {
		return 0, errors.Errorf("unaligned word address %#x", addr)
	}
	if err := p.checkStopped(); err != nil {
		return 0, err
	}

	var (
		buf = make([]byte, WordSize)
		n   int
		err error
	)
	p.execPtrace(func() {
		n, err = unix.PtracePeekData(p.pid, uintptr(addr), buf)
	})
	if err != nil {
		return 0, errors.Wrapf(err, "peek %#x", addr)
	}
	if n != WordSize {
		return 0, errors.Errorf("peek %#x: short read of %d bytes", addr, n)
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// WriteWord writes word at the word aligned address addr.
func (p *Process) WriteWord(addr, word uint64) error {
	if addr%WordSize != 0 {
		return errors.Errorf("unaligned word address %#x", addr)
	}
	if err := p.checkStopped(); err != nil {
		return err
	}

	var (
		buf = make([]byte, WordSize)
		n   int
		err error
	)
	binary.LittleEndian.PutUint64(buf, word)
	p.execPtrace(func() {
		n, err = unix.PtracePokeData(p.pid, uintptr(addr), buf)
	})
	if err != nil {
		return errors.Wrapf(err, "poke %#x", addr)
	}
	if n != WordSize {
		return errors.Errorf("poke %#x: short write of %d bytes", addr, n)
	}
	return nil
}

// ReadRegisters returns a snapshot of the general purpose registers.
func (p *Process) ReadRegisters() (*Registers, error) {
	if err := p.checkStopped(); err != nil {
		return nil, err
	}

	var (
		regs Registers
		err  error
	)
	p.execPtrace(func() {
		err = unix.PtraceGetRegs(p.pid, &regs.PtraceRegs)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get regs of %d", p.pid)
	}
	return &regs, nil
}

// WriteRegisters restores a register snapshot.
func (p *Process) WriteRegisters(regs *Registers) error {
	if err := p.checkStopped(); err != nil {
		return err
	}

	var err error
	p.execPtrace(func() {
		err = unix.PtraceSetRegs(p.pid, &regs.PtraceRegs)
	})
	if err != nil {
		return errors.Wrapf(err, "set regs of %d", p.pid)
	}
	return nil
}
