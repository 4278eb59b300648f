/*
Copyright © 2020 hit.zhangjie@gmail.com

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/deet/cmd/debug"
	"github.com/hitzhangjie/deet/pkg/debugger"
	"github.com/hitzhangjie/deet/pkg/symbol"
	"github.com/hitzhangjie/deet/pkg/target"
)

// execCmd represents the exec command
var execCmd = &cobra.Command{
	Use:   "exec <prog> [args...]",
	Short: "调试可执行程序",
	Long: `调试可执行程序。

程序参数作为run命令的默认参数，程序在执行run命令后才会启动。`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return debugProgram(args[0], args[1:])
	},
}

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().SetInterspersed(false)
}

// debugProgram loads the symbols of prog and runs an interactive session on
// it until the operator quits.
func debugProgram(prog string, args []string) error {
	bi, err := symbol.Analyze(prog)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Reading symbols from %s...done.\n", prog)

	dbg := debugger.New(debugger.Config{
		Target: prog,
		Args:   args,
		Unwind: target.UnwindOptions{
			MaxFrames:     conf.MaxFrames,
			MaxFrameSize:  conf.MaxFrameSize,
			RootFunctions: conf.RootFunctions,
		},
		DisassSyntax: conf.DisassSyntax,
		Out:          os.Stdout,
	}, bi)
	session.Store(dbg)

	debug.NewDebugSession(dbg, conf).Start()

	// after debugger session finished, kill the tracee because it's started by debugger
	return dbg.Quit()
}
