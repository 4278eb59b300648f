package debug

import (
	"github.com/spf13/cobra"
)

var continueCmd = &cobra.Command{
	Use:   "continue",
	Short: "运行到下个断点",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
	Aliases: []string{"c"},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := session()
		if err != nil {
			return err
		}
		st, err := s.dbg.Continue()
		if err != nil {
			return err
		}
		s.printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(continueCmd)
}
