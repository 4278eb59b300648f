package debug

import (
	"github.com/spf13/cobra"
)

var stepCmd = &cobra.Command{
	Use:     "step",
	Short:   "执行一条指令",
	Aliases: []string{"s", "si"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := session()
		if err != nil {
			return err
		}
		// 停在断点处时，先执行断点处的原指令
		st, err := s.dbg.Step()
		if err != nil {
			return err
		}
		s.printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(stepCmd)
}
