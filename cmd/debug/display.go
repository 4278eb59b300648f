package debug

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/hitzhangjie/deet/pkg/target"
)

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorBlue   = "\x1b[34m"
)

func (s *DebugSession) paint(color, txt string) string {
	if !s.color {
		return txt
	}
	return color + txt + colorReset
}

// printStatus reports where the target is after a run, continue or step.
func (s *DebugSession) printStatus(w io.Writer, st target.Status) {
	switch {
	case st.Kind == target.StatusExited:
		fmt.Fprintln(w, s.paint(colorYellow, fmt.Sprintf("Child exited (status %d)", st.ExitCode)))
	case st.Kind == target.StatusSignaled:
		fmt.Fprintln(w, s.paint(colorRed, fmt.Sprintf("Child exited due to signal %s", unix.SignalName(st.Signal))))
	case st.Breakpoint != nil:
		fmt.Fprintf(w, "%s, %s\n",
			s.paint(colorGreen, fmt.Sprintf("Breakpoint %d", st.Breakpoint.ID)),
			s.dbg.Location(st.PC))
	case st.Signal != unix.SIGTRAP:
		fmt.Fprintf(w, "%s at %s\n",
			s.paint(colorRed, fmt.Sprintf("Child stopped (signal %s)", unix.SignalName(st.Signal))),
			s.dbg.Location(st.PC))
	default:
		fmt.Fprintf(w, "Stopped at %s (%#x)\n", s.dbg.Location(st.PC), st.PC)
	}
}

func (s *DebugSession) printFrames(w io.Writer, frames []target.Frame) {
	for i, f := range frames {
		fmt.Fprintf(w, "#%-2d %s %s\n", i, s.paint(colorBlue, fmt.Sprintf("%#016x", f.PC)), f)
	}
}
