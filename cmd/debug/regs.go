package debug

import (
	"fmt"

	"github.com/spf13/cobra"
)

var regsCmd = &cobra.Command{
	Use:   "regs",
	Short: "打印寄存器信息",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInfo,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := session()
		if err != nil {
			return err
		}
		regs, err := s.dbg.Registers()
		if err != nil {
			return err
		}
		for _, r := range regs.List() {
			fmt.Fprintln(cmd.OutOrStdout(), r)
		}
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(regsCmd)
}
