package symbol

import (
	"debug/dwarf"
	"debug/elf"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hitzhangjie/deet/pkg/logflags"
)

// ErrNoSymbol is wrapped by every failed lookup.
var ErrNoSymbol = errors.New("no symbol")

// entryFunctions are tried in order by EntryFunction.
var entryFunctions = []string{"main.main", "main"}

const pcCacheSize = 1024

// BinaryInfo binary info
type BinaryInfo struct {
	Path         string
	Sources      map[string]map[int][]*dwarf.LineEntry // key=filename, val=map[lineno]lineEntries
	Functions    []*Function                           // sorted by entry address
	CompileUnits []*CompileUnit

	byName map[string]*Function
	rows   []lineRow // sorted by address

	pcCache *lru.Cache // pc -> fileLine
	log     *logrus.Entry
}

type lineRow struct {
	addr   uint64
	file   string
	line   int
	endSeq bool
}

type fileLine struct {
	file string
	line int
}

// Analyze Analyze executable `execFile` and return the binary info
func Analyze(execFile string) (*BinaryInfo, error) {
	file, err := elf.Open(execFile)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", execFile)
	}
	defer file.Close()

	log := logflags.SymbolsLogger().WithField("binary", execFile)
	if file.Machine != elf.EM_X86_64 {
		return nil, errors.Errorf("%s: unsupported machine %s", execFile, file.Machine)
	}
	if file.Type == elf.ET_DYN {
		log.Warnf("%s is position independent, addresses are not relocated", execFile)
	}

	// parse dwarf
	dwarfData, err := file.DWARF()
	if err != nil {
		return nil, errors.Wrapf(err, "read DWARF of %s", execFile)
	}

	cache, err := lru.New(pcCacheSize)
	if err != nil {
		return nil, err
	}
	bi := &BinaryInfo{
		Path:    execFile,
		Sources: make(map[string]map[int][]*dwarf.LineEntry),
		byName:  make(map[string]*Function),
		pcCache: cache,
		log:     log,
	}

	// parse .(z)debug_line and .(z)debug_info
	if err = bi.ParseLineAndInfo(dwarfData); err != nil {
		return nil, errors.Wrapf(err, "parse DWARF of %s", execFile)
	}
	log.Debugf("%d compile units, %d functions, %d line rows",
		len(bi.CompileUnits), len(bi.Functions), len(bi.rows))
	return bi, nil
}

// ParseLineAndInfo parseFrom .(z)debug_line and .(z)debug_info sections
//
// unit entries: see DWARF v4 chapter 3.3.1 normal and partial compilation unit entries
func (bi *BinaryInfo) ParseLineAndInfo(dwarfData *dwarf.Data) error {
	var cu *CompileUnit

	reader := dwarfData.Reader()
	for {
		entry, err := reader.Next()
		if err != nil {
			return err
		}
		if entry == nil { // reaches the end
			break
		}

		switch entry.Tag {
		// parse compile unit and line table
		case dwarf.TagCompileUnit, dwarf.TagPartialUnit:
			cu = newCompileUnit(bi, entry)
			bi.CompileUnits = append(bi.CompileUnits, cu)

			rd, err := dwarfData.LineReader(entry)
			if err != nil {
				return err
			}
			if rd == nil {
				continue
			}
			if err := cu.parseLineSection(rd); err != nil {
				return err
			}

		// parse subprogram
		case dwarf.TagSubprogram:
			fn := &Function{cu: cu}
			ok, err := fn.parseFrom(dwarfData, entry)
			if err != nil {
				return err
			}
			if entry.Children {
				reader.SkipChildren()
			}
			if !ok {
				continue
			}
			bi.Functions = append(bi.Functions, fn)
			if cu != nil {
				cu.functions = append(cu.functions, fn)
			}
			if _, dup := bi.byName[fn.name]; !dup {
				bi.byName[fn.name] = fn
			}
		}
	}

	sort.Slice(bi.Functions, func(i, j int) bool {
		return bi.Functions[i].lowpc < bi.Functions[j].lowpc
	})
	// an end of sequence shares its address with the start of the next one
	sort.SliceStable(bi.rows, func(i, j int) bool {
		if bi.rows[i].addr != bi.rows[j].addr {
			return bi.rows[i].addr < bi.rows[j].addr
		}
		return bi.rows[i].endSeq && !bi.rows[j].endSeq
	})
	return nil
}

// Function returns the function whose range covers PC
//
// note: not considered inline function
func (bi *BinaryInfo) Function(pc uint64) (*Function, error) {
	i := sort.Search(len(bi.Functions), func(i int) bool {
		return bi.Functions[i].lowpc > pc
	})
	for i--; i >= 0; i-- {
		f := bi.Functions[i]
		if f.Contains(pc) {
			return f, nil
		}
		if pc-f.lowpc > 1<<24 {
			break
		}
	}
	return nil, errors.Wrapf(ErrNoSymbol, "no function at %#x", pc)
}

// PCToFunction returns the name of the function whose range covers PC
func (bi *BinaryInfo) PCToFunction(pc uint64) (string, error) {
	f, err := bi.Function(pc)
	if err != nil {
		return "", err
	}
	return f.name, nil
}

// FunctionEntry returns the entry address of the function covering PC
func (bi *BinaryInfo) FunctionEntry(pc uint64) (uint64, error) {
	f, err := bi.Function(pc)
	if err != nil {
		return 0, err
	}
	return f.Entry(), nil
}

// PCToFileLine returns the source position of the line table row covering PC.
func (bi *BinaryInfo) PCToFileLine(pc uint64) (string, int, error) {
	if v, ok := bi.pcCache.Get(pc); ok {
		fl := v.(fileLine)
		return fl.file, fl.line, nil
	}

	i := sort.Search(len(bi.rows), func(i int) bool {
		return bi.rows[i].addr > pc
	})
	if i == 0 || bi.rows[i-1].endSeq {
		return "", 0, errors.Wrapf(ErrNoSymbol, "no line info at %#x", pc)
	}
	row := bi.rows[i-1]
	bi.pcCache.Add(pc, fileLine{file: row.file, line: row.line})
	return row.file, row.line, nil
}

// FunctionToPC returns the entry address of the function name. A name that
// is not a full symbol may still match the unqualified name of exactly one
// function, like "add" for "main.add".
func (bi *BinaryInfo) FunctionToPC(name string) (uint64, error) {
	if f, ok := bi.byName[name]; ok {
		return f.lowpc, nil
	}

	var found *Function
	for _, f := range bi.Functions {
		if !strings.HasSuffix(f.name, "."+name) {
			continue
		}
		if found != nil && found.name != f.name {
			return 0, errors.Wrapf(ErrNoSymbol, "function %s is ambiguous: %s, %s", name, found.name, f.name)
		}
		found = f
	}
	if found == nil {
		return 0, errors.Wrapf(ErrNoSymbol, "no function %s", name)
	}
	return found.lowpc, nil
}

// FileLineToPC convert location `filename:lineno` to PC, used for breakpoint
// address. filename is either a path known to the line table or a suffix of
// exactly one such path.
func (bi *BinaryInfo) FileLineToPC(filename string, lineno int) (uint64, error) {
	file, err := bi.resolveFile(filename)
	if err != nil {
		return 0, err
	}
	lineEntries := bi.Sources[file][lineno]
	if len(lineEntries) == 0 {
		return 0, errors.Wrapf(ErrNoSymbol, "no code at %s:%d", file, lineno)
	}

	// skip prologue
	for _, v := range lineEntries {
		if v.PrologueEnd {
			return v.Address, nil
		}
	}
	// lowest statement, or lowest address when no row is a statement
	var addr, stmt uint64
	for _, v := range lineEntries {
		if addr == 0 || v.Address < addr {
			addr = v.Address
		}
		if v.IsStmt && (stmt == 0 || v.Address < stmt) {
			stmt = v.Address
		}
	}
	if stmt != 0 {
		return stmt, nil
	}
	return addr, nil
}

// LineToPC resolves lineno in the primary source file, the file holding the
// entry function.
func (bi *BinaryInfo) LineToPC(lineno int) (uint64, error) {
	file, err := bi.PrimaryFile()
	if err != nil {
		return 0, err
	}
	return bi.FileLineToPC(file, lineno)
}

// EntryFunction returns the name of the program's main function.
func (bi *BinaryInfo) EntryFunction() (string, error) {
	for _, name := range entryFunctions {
		if _, ok := bi.byName[name]; ok {
			return name, nil
		}
	}
	return "", errors.Wrap(ErrNoSymbol, "no main function")
}

// PrimaryFile returns the source file of the entry function.
func (bi *BinaryInfo) PrimaryFile() (string, error) {
	name, err := bi.EntryFunction()
	if err != nil {
		return "", err
	}
	file, _, err := bi.PCToFileLine(bi.byName[name].lowpc)
	return file, err
}

func (bi *BinaryInfo) resolveFile(filename string) (string, error) {
	if _, ok := bi.Sources[filename]; ok {
		return filename, nil
	}

	suffix := "/" + filepath.ToSlash(strings.TrimPrefix(filename, "./"))
	var found []string
	for file := range bi.Sources {
		if strings.HasSuffix(file, suffix) {
			found = append(found, file)
		}
	}
	switch len(found) {
	case 0:
		return "", errors.Wrapf(ErrNoSymbol, "no source file %s", filename)
	case 1:
		return found[0], nil
	default:
		sort.Strings(found)
		return "", errors.Wrapf(ErrNoSymbol, "source file %s is ambiguous: %s", filename, strings.Join(found, ", "))
	}
}
