package symbol

import (
	"debug/dwarf"

	"github.com/pkg/errors"
)

// Function function
//
// see DWARFv4 3.3 subroutine and entry point entries
type Function struct {
	name     string
	lowpc    uint64
	highpc   uint64
	ranges   [][2]uint64
	declFile int64
	external bool

	cu *CompileUnit
}

// Name returns the symbol name, package qualified for Go code.
func (f *Function) Name() string {
	return f.name
}

// Entry returns the address of the first instruction.
func (f *Function) Entry() uint64 {
	return f.lowpc
}

// Contains reports whether pc is inside one of the function ranges.
func (f *Function) Contains(pc uint64) bool {
	for _, r := range f.ranges {
		if r[0] <= pc && pc < r[1] {
			return true
		}
	}
	return false
}

// parseFrom fills f from a TagSubprogram entry. Out of line instances of
// inlined functions carry no name, it is taken from their abstract origin.
// Declarations without code report ok == false.
func (f *Function) parseFrom(data *dwarf.Data, entry *dwarf.Entry) (ok bool, err error) {
	for _, field := range entry.Field {
		switch field.Attr {
		case dwarf.AttrName:
			if val, ok := field.Val.(string); ok {
				f.name = val
			}
		case dwarf.AttrDeclFile:
			if val, ok := field.Val.(int64); ok {
				f.declFile = val
			}
		case dwarf.AttrExternal:
			if val, ok := field.Val.(bool); ok {
				f.external = val
			}
		}
	}

	if f.name == "" {
		if off, ok := entry.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset); ok {
			name, err := originName(data, off)
			if err != nil {
				return false, err
			}
			f.name = name
		}
	}

	f.ranges, err = data.Ranges(entry)
	if err != nil {
		return false, errors.Wrapf(err, "ranges of %s", f.name)
	}
	if len(f.ranges) == 0 || f.name == "" {
		return false, nil
	}
	f.lowpc, f.highpc = f.ranges[0][0], f.ranges[0][1]
	for _, r := range f.ranges[1:] {
		if r[0] < f.lowpc {
			f.lowpc = r[0]
		}
		if r[1] > f.highpc {
			f.highpc = r[1]
		}
	}
	return true, nil
}

func originName(data *dwarf.Data, off dwarf.Offset) (string, error) {
	rd := data.Reader()
	rd.Seek(off)
	entry, err := rd.Next()
	if err != nil {
		return "", errors.Wrapf(err, "abstract origin at %#x", off)
	}
	if entry == nil {
		return "", nil
	}
	name, _ := entry.Val(dwarf.AttrName).(string)
	return name, nil
}
