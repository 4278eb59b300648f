package target

import (
	"bytes"
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
)

// Process states as found in the third field of /proc/pid/stat.
const (
	statusTraceStop = 't'

	// Kernel 2.6 has TraceStop as T
	statusTraceStopT = 'T'
)

// procStat holds the fields of /proc/pid/stat the debugger cares about.
type procStat struct {
	comm  string
	state byte
}

// readProcStat parses /proc/pid/stat. The command name sits between the
// first '(' and the last ')', it may contain both parenthesis and spaces.
func readProcStat(pid int) (procStat, error) {
	b, err := ioutil.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return procStat{}, errors.Wrapf(err, "read stat of process %d", pid)
	}
	open := bytes.IndexByte(b, '(')
	end := bytes.LastIndexByte(b, ')')
	if open < 0 || end < open || end+2 >= len(b) {
		return procStat{}, errors.Errorf("malformed stat of process %d: %q", pid, b)
	}
	return procStat{comm: string(b[open+1 : end]), state: b[end+2]}, nil
}

// readProcComm returns the command name of pid. /proc/pid/comm is preferred,
// older kernels only have it in /proc/pid/stat.
func readProcComm(pid int) (string, error) {
	b, err := ioutil.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if comm := bytes.TrimSuffix(b, []byte("\n")); err == nil && len(comm) != 0 {
		return string(comm), nil
	}
	st, err := readProcStat(pid)
	if err != nil {
		return "", err
	}
	return st.comm, nil
}
