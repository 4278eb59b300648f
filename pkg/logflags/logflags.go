// Package logflags controls which layers of the debugger write diagnostic
// logs, following the --log and --log-output command line flags.
package logflags

import (
	"errors"
	"io"
	"io/ioutil"
	"log"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	debugger = false
	proc     = false
	symbols  = false

	logOut io.Writer = os.Stderr
)

var textFormatter = &logrus.TextFormatter{
	DisableTimestamp: false,
	FullTimestamp:    true,
}

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New()
	logger.Out = logOut
	logger.Formatter = textFormatter
	logger.Level = logrus.DebugLevel
	if !flag {
		logger.Level = logrus.PanicLevel
	}
	return logger.WithFields(fields)
}

// Debugger returns true if the session layer should log.
func Debugger() bool {
	return debugger
}

// DebuggerLogger returns a logger for the debugger package.
func DebuggerLogger() *logrus.Entry {
	return makeLogger(debugger, logrus.Fields{"layer": "debugger"})
}

// Proc returns true if process control (ptrace requests, waits,
// breakpoint patching) should be logged.
func Proc() bool {
	return proc
}

// ProcLogger returns a logger for the target package.
func ProcLogger() *logrus.Entry {
	return makeLogger(proc, logrus.Fields{"layer": "proc"})
}

// Symbols returns true if the symbol loader should log.
func Symbols() bool {
	return symbols
}

// SymbolsLogger returns a logger for the symbol package.
func SymbolsLogger() *logrus.Entry {
	return makeLogger(symbols, logrus.Fields{"layer": "symbols"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets debugger flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "debugger"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch strings.TrimSpace(logcmd) {
		case "debugger":
			debugger = true
		case "proc":
			proc = true
		case "symbols":
			symbols = true
		}
	}
	return nil
}

// Reset turns every layer off again.
func Reset() {
	debugger, proc, symbols = false, false, false
}
