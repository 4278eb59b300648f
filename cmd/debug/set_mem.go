package debug

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var setMemCmd = &cobra.Command{
	Use:   "setmem <addr> <value>",
	Short: "设置指定内存位置的值",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInfo,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// 检查参数数量
		if len(args) != 2 {
			return errors.New("usage: setmem <addr> <value>")
		}
		s, err := session()
		if err != nil {
			return err
		}

		// 解析地址参数
		addr, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return fmt.Errorf("invalid address format: %s", args[0])
		}

		// 解析值参数，一次只写一个字节
		value, err := strconv.ParseUint(args[1], 0, 8)
		if err != nil {
			return fmt.Errorf("invalid value format: %s", args[1])
		}

		old, err := s.dbg.SetMemory(addr, byte(value))
		if err != nil {
			return fmt.Errorf("failed to write memory at address %#x: %v", addr, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%#x: %#02x -> %#02x\n", addr, old, value)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(setMemCmd)
}
