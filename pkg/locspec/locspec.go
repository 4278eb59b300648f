// Package locspec turns the location argument of the break command into an
// instruction address.
//
// Supported forms:
//
//	*0x401000    instruction address
//	42           line in the primary source file
//	main.go:42   line in a source file
//	main.add     function entry
package locspec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidLocation is wrapped by every resolution failure.
var ErrInvalidLocation = errors.New("invalid location")

// Kind tells how a location was resolved.
type Kind int

const (
	Address  Kind = iota // like *0x401000
	Line                 // like 42
	FileLine             // like main.go:42
	Function             // like main.add
)

func (k Kind) String() string {
	switch k {
	case Address:
		return "address"
	case Line:
		return "line"
	case FileLine:
		return "file:line"
	case Function:
		return "function"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Location is a resolved location spec.
type Location struct {
	Kind Kind
	Spec string
	Addr uint64
}

func (l Location) String() string {
	if l.Kind == Address {
		return fmt.Sprintf("%#x", l.Addr)
	}
	return fmt.Sprintf("%s (%#x)", l.Spec, l.Addr)
}

// Resolver answers the symbol queries a location spec needs.
type Resolver interface {
	LineToPC(line int) (uint64, error)
	FileLineToPC(file string, line int) (uint64, error)
	FunctionToPC(name string) (uint64, error)
}

// Resolve resolves spec. A "*" prefix always means an address. A plain
// integer is a line, then a function name, then a hex address without its
// prefix. "file:line" is a source position. Anything else names a function,
// or an address when it carries a 0x prefix.
func Resolve(spec string, r Resolver) (Location, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Location{}, errors.Wrap(ErrInvalidLocation, "empty location")
	}

	// try parse as address
	if strings.HasPrefix(spec, "*") {
		addr, err := parseAddress(spec[1:])
		if err != nil {
			return Location{}, errors.Wrapf(ErrInvalidLocation, "%s: %v", spec, err)
		}
		return Location{Kind: Address, Spec: spec, Addr: addr}, nil
	}

	// try parse as lineno
	if line, err := strconv.Atoi(spec); err == nil {
		if addr, err := r.LineToPC(line); err == nil {
			return Location{Kind: Line, Spec: spec, Addr: addr}, nil
		}
		if addr, err := r.FunctionToPC(spec); err == nil {
			return Location{Kind: Function, Spec: spec, Addr: addr}, nil
		}
		if addr, err := strconv.ParseUint(spec, 16, 64); err == nil {
			return Location{Kind: Address, Spec: spec, Addr: addr}, nil
		}
		return Location{}, errors.Wrapf(ErrInvalidLocation, "%s: no code at line %d", spec, line)
	}

	// try parse as file:lineno
	if i := strings.LastIndex(spec, ":"); i > 0 {
		if line, err := strconv.Atoi(spec[i+1:]); err == nil {
			addr, err := r.FileLineToPC(spec[:i], line)
			if err != nil {
				return Location{}, errors.Wrapf(ErrInvalidLocation, "%s: %v", spec, err)
			}
			return Location{Kind: FileLine, Spec: spec, Addr: addr}, nil
		}
	}

	// function name
	addr, err := r.FunctionToPC(spec)
	if err == nil {
		return Location{Kind: Function, Spec: spec, Addr: addr}, nil
	}
	if hasHexPrefix(spec) {
		if addr, perr := parseAddress(spec); perr == nil {
			return Location{Kind: Address, Spec: spec, Addr: addr}, nil
		}
	}
	return Location{}, errors.Wrapf(ErrInvalidLocation, "%s: %v", spec, err)
}

func hasHexPrefix(s string) bool {
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}

// parseAddress parses a hex address, the 0x prefix is optional.
func parseAddress(s string) (uint64, error) {
	if hasHexPrefix(s) {
		s = s[2:]
	}
	if s == "" {
		return 0, errors.New("missing address")
	}
	return strconv.ParseUint(s, 16, 64)
}
