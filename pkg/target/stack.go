package target

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnwind is wrapped by every Backtrace failure.
var ErrUnwind = errors.New("unwind error")

// Frame is one entry of a call stack.
type Frame struct {
	Function string
	File     string
	Line     int
	PC       uint64
}

func (f Frame) String() string {
	if f.File == "" {
		return fmt.Sprintf("%s (%#x)", f.Function, f.PC)
	}
	return fmt.Sprintf("%s (%s:%d)", f.Function, f.File, f.Line)
}

// FrameResolver maps instruction addresses to source positions.
type FrameResolver interface {
	PCToFunction(pc uint64) (string, error)
	PCToFileLine(pc uint64) (string, int, error)
	// FunctionEntry returns the first instruction of the function covering pc.
	FunctionEntry(pc uint64) (uint64, error)
}

// UnwindOptions bound a frame pointer walk.
type UnwindOptions struct {
	MaxFrames     int      // frames emitted before giving up
	MaxFrameSize  uint64   // largest accepted distance between two frame pointers
	RootFunctions []string // the walk ends after a frame of one of these
}

// DefaultUnwindOptions fit a program built with frame pointers and a stack of
// ordinary depth.
var DefaultUnwindOptions = UnwindOptions{
	MaxFrames:     64,
	MaxFrameSize:  8 << 20,
	RootFunctions: []string{"main", "main.main"},
}

func (o UnwindOptions) isRoot(fn string) bool {
	for _, r := range o.RootFunctions {
		if fn == r {
			return true
		}
	}
	return false
}

// Backtrace walks the saved frame pointer chain starting at regs, callee
// first. The return address of a frame lives at fp+8 and the caller's frame
// pointer at fp, except for an innermost frame stopped on the first
// instruction of its function, whose return address is at sp. The walk ends after a root function; a chain that is broken,
// not growing toward higher addresses or longer than MaxFrames is reported as
// an error wrapping ErrUnwind, together with the frames found so far.
func Backtrace(mem Memory, regs *Registers, r FrameResolver, opts UnwindOptions) ([]Frame, error) {
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = DefaultUnwindOptions.MaxFrames
	}
	if opts.MaxFrameSize == 0 {
		opts.MaxFrameSize = DefaultUnwindOptions.MaxFrameSize
	}

	var (
		frames []Frame
		pc     = regs.PC()
		fp     = regs.BP()
		low    = regs.SP() // the first frame pointer lies at or above sp
	)

	for i := 0; i < opts.MaxFrames; i++ {
		// return addresses point after the call, resolve the call itself
		lookup := pc
		if i > 0 {
			lookup = pc - 1
		}
		frame := resolveFrame(r, pc, lookup)
		frames = append(frames, frame)

		if opts.isRoot(frame.Function) {
			return frames, nil
		}

		var ret, retAt uint64
		if i == 0 && atEntry(r, pc) {
			// the frame is not set up yet: the return address is on top of
			// the stack and fp still belongs to the caller
			retAt = regs.SP()
			w, err := mem.ReadWord(retAt)
			if err != nil {
				return frames, errors.Wrapf(ErrUnwind, "read return address at %#x: %v", retAt, err)
			}
			ret = w
			low = retAt + WordSize
		} else {
			if err := checkFramePointer(fp, low, opts.MaxFrameSize); err != nil {
				return frames, errors.Wrapf(err, "frame %d", i)
			}
			retAt = fp + WordSize
			w, err := mem.ReadWord(retAt)
			if err != nil {
				return frames, errors.Wrapf(ErrUnwind, "read return address at %#x: %v", retAt, err)
			}
			next, err := mem.ReadWord(fp)
			if err != nil {
				return frames, errors.Wrapf(ErrUnwind, "read saved frame pointer at %#x: %v", fp, err)
			}
			ret = w
			low = fp + 1 // strictly increasing
			fp = next
		}
		if ret == 0 {
			return frames, errors.Wrapf(ErrUnwind, "null return address at %#x before reaching a root function", retAt)
		}
		pc = ret
	}
	return frames, errors.Wrapf(ErrUnwind, "no root function within %d frames", opts.MaxFrames)
}

// atEntry reports whether pc is the first instruction of its function.
func atEntry(r FrameResolver, pc uint64) bool {
	entry, err := r.FunctionEntry(pc)
	return err == nil && entry == pc
}

func checkFramePointer(fp, low, maxFrameSize uint64) error {
	switch {
	case fp == 0:
		return errors.Wrap(ErrUnwind, "null frame pointer")
	case fp%WordSize != 0:
		return errors.Wrapf(ErrUnwind, "unaligned frame pointer %#x", fp)
	case fp < low:
		return errors.Wrapf(ErrUnwind, "frame pointer %#x below %#x", fp, low)
	case fp-low > maxFrameSize:
		return errors.Wrapf(ErrUnwind, "frame pointer %#x too far from %#x", fp, low)
	}
	return nil
}

func resolveFrame(r FrameResolver, pc, lookup uint64) Frame {
	frame := Frame{Function: "??", PC: pc}
	if fn, err := r.PCToFunction(lookup); err == nil {
		frame.Function = fn
	}
	if file, line, err := r.PCToFileLine(lookup); err == nil {
		frame.File, frame.Line = file, line
	}
	return frame
}
