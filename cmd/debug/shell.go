package debug

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cosiner/argv"
	"github.com/derekparker/trie"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hitzhangjie/deet/pkg/config"
	"github.com/hitzhangjie/deet/pkg/debugger"
	"github.com/hitzhangjie/deet/pkg/logflags"
)

const (
	cmdGroupAnnotation = "cmd_group_annotation"

	cmdGroupBreakpoints = "1-breaks"
	cmdGroupSource      = "2-source"
	cmdGroupCtrlFlow    = "3-execute"
	cmdGroupInfo        = "4-info"
	cmdGroupOthers      = "5-other"
	cmdGroupCobra       = "other"

	cmdGroupDelimiter = "-"

	descShort = "deet interactive debugging commands"
)

var debugRootCmd = &cobra.Command{
	Use:           "help [command]",
	Short:         descShort,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	CurrentSession *DebugSession
)

// DebugSession 调试会话
type DebugSession struct {
	done        chan bool
	prefix      string
	root        *cobra.Command
	liner       *liner.State
	last        string
	historyFile string

	dbg         *debugger.Debugger
	out         io.Writer
	color       bool
	disassCount int

	defers []func()
}

// NewDebugSession 创建一个debug专用的交互管理器
func NewDebugSession(dbg *debugger.Debugger, cfg *config.Config) *DebugSession {
	fn := func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()

		// 描述信息
		fmt.Fprintln(out, cmd.Short)
		fmt.Fprintln(out)

		// 使用信息
		fmt.Fprintln(out, cmd.Use)
		fmt.Fprintln(out, cmd.Flags().FlagUsages())

		// 命令分组
		if cmd == debugRootCmd {
			fmt.Fprintln(out, helpMessageByGroups(cmd))
		}
	}
	debugRootCmd.SetHelpFunc(fn)

	out := colorable.NewColorableStdout()
	return newDebugSession(dbg, cfg, out, isatty.IsTerminal(os.Stdout.Fd()))
}

func newDebugSession(dbg *debugger.Debugger, cfg *config.Config, out io.Writer, color bool) *DebugSession {
	s := &DebugSession{
		done:        make(chan bool),
		prefix:      cfg.Prompt,
		root:        debugRootCmd,
		historyFile: cfg.HistoryFile,
		disassCount: cfg.DisassCount,
		dbg:         dbg,
		out:         out,
		color:       color,
	}
	s.root.SetOut(s.out)
	s.root.SetErr(s.out)
	CurrentSession = s
	return s
}

// Start runs the prompt loop until the session is stopped by quit or ^D.
func (s *DebugSession) Start() {
	s.liner = liner.NewLiner()
	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(completer)
	s.liner.SetTabCompletionStyle(liner.TabPrints)
	s.loadHistory()

	defer func() {
		for idx := len(s.defers) - 1; idx >= 0; idx-- {
			s.defers[idx]()
		}
	}()
	defer func() {
		s.saveHistory()
		s.liner.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		txt, err := s.liner.Prompt(s.prefix)
		if err == liner.ErrPromptAborted {
			fmt.Fprintln(s.out, `Type "quit" to exit`)
			continue
		}
		if err == io.EOF {
			fmt.Fprintln(s.out)
			s.quit()
			continue
		}
		if err != nil {
			fmt.Fprintf(s.out, "read command: %v\n", err)
			s.quit()
			continue
		}

		if strings.TrimSpace(txt) != "" {
			s.liner.AppendHistory(strings.TrimSpace(txt))
		}
		if err := s.Execute(txt); err != nil {
			fmt.Fprintln(s.out, err)
		}
	}
}

// Execute runs one command line. An empty line repeats the previous one.
func (s *DebugSession) Execute(txt string) error {
	txt = strings.TrimSpace(txt)
	if len(txt) != 0 {
		s.last = txt
	} else {
		txt = s.last
	}
	if txt == "" {
		return nil
	}

	args, err := splitArgs(txt)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	logflags.DebuggerLogger().Debugf("execute %q", args)

	resetFlags(s.root)
	s.root.SetArgs(args)
	return s.root.Execute()
}

// splitArgs tokenizes a command line the way a shell does, honoring quotes.
func splitArgs(txt string) ([]string, error) {
	v, err := argv.Argv(txt,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal command line '%s'", txt)
	}
	return v[0], nil
}

// resetFlags restores flag defaults, cobra keeps parsed values between
// executions of the same command tree.
func resetFlags(root *cobra.Command) {
	for _, c := range root.Commands() {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				f.Value.Set(f.DefValue)
				f.Changed = false
			}
		})
	}
}

func (s *DebugSession) AtExit(fn func()) *DebugSession {
	s.defers = append(s.defers, fn)
	return s
}

func (s *DebugSession) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// quit kills the running target and stops the session.
func (s *DebugSession) quit() {
	if err := s.dbg.Quit(); err != nil {
		fmt.Fprintln(s.out, err)
	}
	s.Stop()
}

func (s *DebugSession) loadHistory() {
	if s.historyFile == "" {
		return
	}
	f, err := os.Open(s.historyFile)
	if err != nil {
		return
	}
	defer f.Close()
	s.liner.ReadHistory(f)
}

func (s *DebugSession) saveHistory() {
	if s.historyFile == "" {
		return
	}
	f, err := os.Create(s.historyFile)
	if err != nil {
		fmt.Fprintf(s.out, "Warning: failed to save history file at %s: %v\n", s.historyFile, err)
		return
	}
	defer f.Close()
	if _, err := s.liner.WriteHistory(f); err != nil {
		fmt.Fprintf(s.out, "Warning: failed to save history file at %s: %v\n", s.historyFile, err)
	}
}

// session returns the session commands run in.
func session() (*DebugSession, error) {
	if CurrentSession == nil {
		return nil, errors.New("no debug session")
	}
	return CurrentSession, nil
}

// Done reports whether the session has been stopped.
func (s *DebugSession) Done() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

var cmdTrie *trie.Trie

func buildTrie() *trie.Trie {
	t := trie.New()
	for _, c := range debugRootCmd.Commands() {
		name := c.Name()
		t.Add(name, name)
		// complete cmd's aliases
		for _, alias := range c.Aliases {
			t.Add(alias, name)
		}
	}
	return t
}

func completer(line string) []string {
	if cmdTrie == nil {
		cmdTrie = buildTrie()
	}
	if strings.ContainsAny(line, " \t") {
		return nil
	}
	cmds := cmdTrie.PrefixSearch(line)
	sort.Strings(cmds)
	return cmds
}

// helpMessageByGroups 将各个命令按照分组归类，再展示帮助信息
func helpMessageByGroups(cmd *cobra.Command) string {

	// key:group, val:sorted commands in same group
	groups := map[string][]string{}
	for _, c := range cmd.Commands() {
		// 如果没有指定命令分组，放入other组
		var groupName string
		v, ok := c.Annotations[cmdGroupAnnotation]
		if !ok {
			groupName = cmdGroupCobra
		} else {
			groupName = v
		}

		groupCmds := groups[groupName]
		groupCmds = append(groupCmds, fmt.Sprintf("  %-16s:%s", c.Name(), c.Short))
		sort.Strings(groupCmds)

		groups[groupName] = groupCmds
	}

	if len(groups[cmdGroupCobra]) != 0 {
		groups[cmdGroupOthers] = append(groups[cmdGroupOthers], groups[cmdGroupCobra]...)
	}
	delete(groups, cmdGroupCobra)

	// 按照分组名进行排序
	groupNames := []string{}
	for k := range groups {
		groupNames = append(groupNames, k)
	}
	sort.Strings(groupNames)

	// 按照group分组，并对组内命令进行排序
	buf := bytes.Buffer{}
	for _, groupName := range groupNames {
		commands := groups[groupName]

		group := strings.Split(groupName, cmdGroupDelimiter)[1]
		buf.WriteString(fmt.Sprintf("- [%s]\n", group))

		for _, cmd := range commands {
			buf.WriteString(fmt.Sprintf("%s\n", cmd))
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
