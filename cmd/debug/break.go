package debug

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var breakCmd = &cobra.Command{
	Use:   "break <locspec>",
	Short: "在源码中添加断点",
	Long: `在源码中添加断点，源码位置可以通过locspec格式指定。

当前支持的locspec格式，包括:
- *指令地址，如 *0x401000
- 行号，主编译单元中的源码行，如 42
- 文件名:行号，如 main.c:42
- 函数名，如 main`,
	Aliases: []string{"b", "breakpoint"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("usage: break <locspec>")
		}
		s, err := session()
		if err != nil {
			return err
		}

		bp, err := s.dbg.Break(args[0])
		if bp == nil {
			return err
		}
		if err != nil {
			// 已注册，但暂时无法写入当前进程
			fmt.Fprintf(cmd.OutOrStdout(), "Breakpoint %d at %#x: %s (pending: %v)\n", bp.ID, bp.Addr, bp.Pos, err)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Breakpoint %d at %#x: %s\n", bp.ID, bp.Addr, bp.Pos)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(breakCmd)
}
