package debug

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backtraceCmd = &cobra.Command{
	Use:     "backtrace",
	Short:   "打印调用栈信息",
	Aliases: []string{"bt"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInfo,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := session()
		if err != nil {
			return err
		}
		frames, err := s.dbg.Backtrace()
		// 栈帧链断裂时，也打印已经回溯到的栈帧
		s.printFrames(cmd.OutOrStdout(), frames)
		if err != nil {
			return fmt.Errorf("backtrace stopped: %v", err)
		}
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(backtraceCmd)
}
