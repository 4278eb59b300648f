package debug

import (
	"github.com/spf13/cobra"
)

var exitCmd = &cobra.Command{
	Use:     "quit",
	Short:   "结束调试会话",
	Aliases: []string{"q", "exit"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupOthers,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := session()
		if err != nil {
			return err
		}
		s.quit()
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(exitCmd)
}
