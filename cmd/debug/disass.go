package debug

import (
	"fmt"

	"github.com/spf13/cobra"
)

var disassCmd = &cobra.Command{
	Use:   "disass",
	Short: "反汇编机器指令",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSource,
	},
	Aliases: []string{"dis", "disassemble"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			max, _    = cmd.Flags().GetInt("max")
			syntax, _ = cmd.Flags().GetString("syntax")
		)
		s, err := session()
		if err != nil {
			return err
		}
		if max <= 0 {
			max = s.disassCount
		}

		// 断点处的0xCC会被替换回原指令
		insts, err := s.dbg.Disassemble(max, syntax)
		for _, inst := range insts {
			fmt.Fprintln(cmd.OutOrStdout(), inst)
		}
		return err
	},
}

func init() {
	debugRootCmd.AddCommand(disassCmd)

	disassCmd.Flags().IntP("max", "n", 0, "反汇编指令数量，默认取配置disass-count")
	disassCmd.Flags().StringP("syntax", "s", "", "反汇编指令语法，支持：go, gnu, intel")
}
