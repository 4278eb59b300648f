package locspec

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	lines     map[int]uint64
	fileLines map[string]uint64
	funcs     map[string]uint64
}

var errMissing = errors.New("missing")

func (f fakeResolver) LineToPC(line int) (uint64, error) {
	if addr, ok := f.lines[line]; ok {
		return addr, nil
	}
	return 0, errMissing
}

func (f fakeResolver) FileLineToPC(file string, line int) (uint64, error) {
	if addr, ok := f.fileLines[fmt.Sprintf("%s:%d", file, line)]; ok {
		return addr, nil
	}
	return 0, errMissing
}

func (f fakeResolver) FunctionToPC(name string) (uint64, error) {
	if addr, ok := f.funcs[name]; ok {
		return addr, nil
	}
	return 0, errMissing
}

func TestResolve(t *testing.T) {
	r := fakeResolver{
		lines:     map[int]uint64{42: 0x401100, 7: 0x401700},
		fileLines: map[string]uint64{"util.c:3": 0x402030},
		funcs:     map[string]uint64{"main": 0x401000, "42": 0x409999, "17": 0x401717},
	}

	cases := []struct {
		spec string
		want Location
	}{
		{"*0x1040", Location{Kind: Address, Spec: "*0x1040", Addr: 0x1040}},
		{"*1040", Location{Kind: Address, Spec: "*1040", Addr: 0x1040}},
		{"42", Location{Kind: Line, Spec: "42", Addr: 0x401100}},
		{"17", Location{Kind: Function, Spec: "17", Addr: 0x401717}},
		{"1040", Location{Kind: Address, Spec: "1040", Addr: 0x1040}},
		{"util.c:3", Location{Kind: FileLine, Spec: "util.c:3", Addr: 0x402030}},
		{"main", Location{Kind: Function, Spec: "main", Addr: 0x401000}},
		{" main ", Location{Kind: Function, Spec: "main", Addr: 0x401000}},
		{"0x401000", Location{Kind: Address, Spec: "0x401000", Addr: 0x401000}},
	}
	for _, c := range cases {
		got, err := Resolve(c.spec, r)
		require.NoError(t, err, c.spec)
		assert.Equal(t, c.want, got, c.spec)
	}
}

func TestResolve_failures(t *testing.T) {
	r := fakeResolver{}
	for _, spec := range []string{"", "*", "*0xzz", "util.c:3", "nosuchfunc", "abc", "-1"} {
		_, err := Resolve(spec, r)
		require.Error(t, err, spec)
		assert.Equal(t, ErrInvalidLocation, errors.Cause(err), spec)
	}
}

func TestLocation_String(t *testing.T) {
	assert.Equal(t, "0x1040", Location{Kind: Address, Spec: "*0x1040", Addr: 0x1040}.String())
	assert.Equal(t, "main (0x401000)", Location{Kind: Function, Spec: "main", Addr: 0x401000}.String())
	assert.Equal(t, "file:line", FileLine.String())
}
