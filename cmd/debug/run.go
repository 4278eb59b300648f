package debug

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [args...]",
	Short: "启动被调试程序，已在运行则重新启动",
	Long: `启动被调试程序，已在运行则先杀死再重新启动。

不指定参数时沿用上次运行的参数，断点会在程序执行第一条指令前全部写入。`,
	Aliases: []string{"r"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
	// program arguments may look like flags
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := session()
		if err != nil {
			return err
		}
		st, err := s.dbg.Run(args)
		if err != nil {
			return err
		}
		s.printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(runCmd)
}
