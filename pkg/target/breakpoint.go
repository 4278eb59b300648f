package target

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/hitzhangjie/deet/pkg/logflags"
)

// ErrBreakpointExists is returned by Add when the address already has a breakpoint.
var ErrBreakpointExists = errors.New("breakpoint already exists")

// BreakpointState tells whether the trap opcode is in the tracee memory.
type BreakpointState int

const (
	// Pending breakpoints are registered but not written into a live process.
	Pending BreakpointState = iota
	// Installed breakpoints have 0xCC at Addr and their original byte in Orig.
	Installed
)

func (s BreakpointState) String() string {
	if s == Installed {
		return "installed"
	}
	return "pending"
}

// Breakpoint 断点信息
type Breakpoint struct {
	ID    uint64          // 断点编号
	Addr  uint64          // 断点地址
	Pos   string          // 源文件位置
	State BreakpointState // 是否已写入0xCC
	Orig  byte            // 原内存数据，仅Installed时有效
	Hits  uint64          // 命中次数

	// epoch of the process the trap was written into
	epoch uint64
}

func (b *Breakpoint) String() string {
	return fmt.Sprintf("breakpoint %d at %#x %s", b.ID, b.Addr, b.Pos)
}

// installedIn reports whether bp is armed in the process generation epoch.
func (b *Breakpoint) installedIn(epoch uint64) bool {
	return b.State == Installed && b.epoch == epoch
}

// Breakpoints 所有的断点信息
type Breakpoints []*Breakpoint

// Len 返回长度
func (b Breakpoints) Len() int {
	return len(b)
}

// Less 检查b[i]是否小于b[j]
func (b Breakpoints) Less(i, j int) bool {
	return b[i].ID < b[j].ID
}

// Swap 交换b[i]和b[j]
func (b Breakpoints) Swap(i, j int) {
	b[i], b[j] = b[j], b[i]
}

// BreakpointManager owns every breakpoint of a session, keyed by address.
// Breakpoints outlive processes: each new process gets a new epoch, and
// InstallAll writes the whole set into it.
type BreakpointManager struct {
	bps   map[uint64]*Breakpoint
	seqNo atomic.Uint64 // 断点编号，从1开始
	log   *logrus.Entry
}

// NewBreakpointManager returns an empty manager.
func NewBreakpointManager() *BreakpointManager {
	return &BreakpointManager{
		bps: map[uint64]*Breakpoint{},
		log: logflags.DebuggerLogger(),
	}
}

// Add registers a pending breakpoint at addr. When addr already has one, the
// existing breakpoint is returned with ErrBreakpointExists.
func (m *BreakpointManager) Add(addr uint64, pos string) (*Breakpoint, error) {
	if bp, ok := m.bps[addr]; ok {
		return bp, ErrBreakpointExists
	}
	bp := &Breakpoint{
		ID:   m.seqNo.Add(1),
		Addr: addr,
		Pos:  pos,
	}
	m.bps[addr] = bp
	return bp, nil
}

// Get returns the breakpoint registered at addr.
func (m *BreakpointManager) Get(addr uint64) (*Breakpoint, bool) {
	bp, ok := m.bps[addr]
	return bp, ok
}

// Len returns the number of registered breakpoints.
func (m *BreakpointManager) Len() int {
	return len(m.bps)
}

// List returns the breakpoints sorted by id.
func (m *BreakpointManager) List() Breakpoints {
	bps := make(Breakpoints, 0, len(m.bps))
	for _, bp := range m.bps {
		bps = append(bps, bp)
	}
	sort.Sort(bps)
	return bps
}

// Install writes the trap opcode at bp.Addr of the process generation epoch
// and records the byte it replaced. Installing twice into the same epoch is
// a no-op, so the recorded byte is never a trap written by us.
func (m *BreakpointManager) Install(mem Memory, epoch uint64, bp *Breakpoint) error {
	if bp.installedIn(epoch) {
		return nil
	}
	bp.State = Pending

	orig, err := WriteByteAt(mem, bp.Addr, trapOpcode)
	if err != nil {
		return errors.Wrapf(err, "install breakpoint %d at %#x", bp.ID, bp.Addr)
	}
	bp.Orig = orig
	bp.State = Installed
	bp.epoch = epoch
	m.log.Debugf("installed breakpoint %d at %#x, orig %#02x", bp.ID, bp.Addr, orig)
	return nil
}

// InstallAll installs every registered breakpoint into the process generation
// epoch. A failure does not stop the remaining installs; all failures are
// returned together.
func (m *BreakpointManager) InstallAll(mem Memory, epoch uint64) error {
	var result *multierror.Error
	for _, bp := range m.List() {
		if err := m.Install(mem, epoch, bp); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// At returns the breakpoint armed at pc in the process generation epoch.
func (m *BreakpointManager) At(epoch uint64, pc uint64) (*Breakpoint, bool) {
	bp, ok := m.bps[pc]
	if !ok || !bp.installedIn(epoch) {
		return nil, false
	}
	return bp, true
}

// HitBy returns the breakpoint whose trap produced st. After int3 executes,
// pc points one byte past the breakpoint address.
func (m *BreakpointManager) HitBy(epoch uint64, st Status) (*Breakpoint, bool) {
	if !st.Trapped() || st.PC == 0 {
		return nil, false
	}
	return m.At(epoch, st.PC-1)
}

// StepOver executes the original instruction under bp exactly once and
// re-arms the trap. The tracee is left stopped after that instruction; the
// caller decides how to resume it.
//
// If the tracee terminates during the step the trap is not rewritten and bp
// goes back to Pending.
func (m *BreakpointManager) StepOver(t Tracee, bp *Breakpoint) (Status, error) {
	if bp.State != Installed {
		return Status{}, errors.Errorf("breakpoint %d at %#x is not installed", bp.ID, bp.Addr)
	}

	// restore original instruction
	if _, err := WriteByteAt(t, bp.Addr, bp.Orig); err != nil {
		return Status{}, errors.Wrapf(err, "restore breakpoint %d at %#x", bp.ID, bp.Addr)
	}
	bp.State = Pending

	regs, err := t.ReadRegisters()
	if err != nil {
		return Status{}, err
	}
	// rewind 1 byte
	if regs.PC() == bp.Addr+1 {
		regs.SetPC(bp.Addr)
		if err := t.WriteRegisters(regs); err != nil {
			return Status{}, err
		}
	}

	st, err := t.SingleStep()
	if err != nil {
		return Status{}, errors.Wrapf(err, "step over breakpoint %d", bp.ID)
	}
	if st.Terminated() {
		m.log.Debugf("process terminated while stepping over breakpoint %d: %s", bp.ID, st)
		return st, nil
	}

	// re-arm
	if _, err := WriteByteAt(t, bp.Addr, trapOpcode); err != nil {
		return st, errors.Wrapf(err, "re-arm breakpoint %d at %#x", bp.ID, bp.Addr)
	}
	bp.State = Installed
	return st, nil
}

// Shadow replaces the trap opcodes of breakpoints armed in epoch inside buf,
// a dump of tracee memory starting at addr, with the original bytes.
func (m *BreakpointManager) Shadow(epoch uint64, addr uint64, buf []byte) {
	end := addr + uint64(len(buf))
	for _, bp := range m.bps {
		if !bp.installedIn(epoch) || bp.Addr < addr || bp.Addr >= end {
			continue
		}
		if buf[bp.Addr-addr] == trapOpcode {
			buf[bp.Addr-addr] = bp.Orig
		}
	}
}
