package symbol

import (
	"debug/dwarf"
	"io"

	"github.com/pkg/errors"
)

// CompileUnit compilation unit
//
// see DWARFv4 3.1.1 normal and partial compilation unit entries
type CompileUnit struct {
	name      string
	producer  string
	functions []*Function
	bi        *BinaryInfo
}

func newCompileUnit(bi *BinaryInfo, entry *dwarf.Entry) *CompileUnit {
	cu := &CompileUnit{bi: bi}
	cu.name, _ = entry.Val(dwarf.AttrName).(string)
	cu.producer, _ = entry.Val(dwarf.AttrProducer).(string)
	return cu
}

// Name returns the unit name, the package path for Go code.
func (c *CompileUnit) Name() string {
	return c.name
}

// parseLineSection parse .(z)debug_line of this unit into the binary line
// rows and the per file index.
//
// note: one compile unit may contains more than one source files.
func (c *CompileUnit) parseLineSection(lineReader *dwarf.LineReader) error {
	var entry dwarf.LineEntry

	for {
		// scan next entry
		err := lineReader.Next(&entry)
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "line table of %s", c.name)
		}

		if entry.EndSequence {
			c.bi.rows = append(c.bi.rows, lineRow{addr: entry.Address, endSeq: true})
			continue
		}
		if entry.File == nil {
			continue
		}

		file := entry.File.Name
		c.bi.rows = append(c.bi.rows, lineRow{addr: entry.Address, file: file, line: entry.Line})

		// append line entries
		entries, ok := c.bi.Sources[file]
		if !ok {
			entries = make(map[int][]*dwarf.LineEntry)
			c.bi.Sources[file] = entries
		}
		dup := entry
		entries[entry.Line] = append(entries[entry.Line], &dup)
	}

	return nil
}
