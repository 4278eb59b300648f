package debug

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var breaksCmd = &cobra.Command{
	Use:     "breakpoints",
	Short:   "列出所有断点",
	Long:    "列出所有断点",
	Aliases: []string{"bs", "breaks"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := session()
		if err != nil {
			return err
		}

		bps := s.dbg.Breakpoints()
		if len(bps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No breakpoints.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "Num\tAddress\tState\tHits\tWhat")
		for _, bp := range bps {
			fmt.Fprintf(tw, "%d\t%#x\t%s\t%d\t%s\n", bp.ID, bp.Addr, bp.State, bp.Hits, bp.Pos)
		}
		return tw.Flush()
	},
}

func init() {
	debugRootCmd.AddCommand(breaksCmd)
}
