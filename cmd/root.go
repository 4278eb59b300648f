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
	"github.com/spf13/viper"
	"go.uber.org/atomic"

	"github.com/hitzhangjie/deet/pkg/config"
	"github.com/hitzhangjie/deet/pkg/debugger"
	"github.com/hitzhangjie/deet/pkg/logflags"
)

var (
	cfgFile   string
	logFlag   bool
	logOutput string

	// conf is loaded before any sub-command runs.
	conf *config.Config

	// session is the *debugger.Debugger of the running debug session.
	session atomic.Value
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "deet [prog] [args...]",
	Short: "deet是一个面向linux/amd64的符号级调试器",
	Long: `deet是一个面向linux/amd64的符号级调试器，支持断点、单步、调用栈回溯、反汇编等操作。

直接执行 deet <prog> 等同于 deet exec <prog>。`,
	SilenceUsage: true,
	Args:         cobra.ArbitraryArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logflags.Setup(logFlag, logOutput); err != nil {
			return err
		}
		v := viper.GetViper()
		if err := config.Init(v, cfgFile); err != nil {
			return err
		}
		c, err := config.Load(v)
		if err != nil {
			return err
		}
		conf = c
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return debugProgram(args[0], args[1:])
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// RunningPid returns the pid of the process being debugged, or 0. It may be
// called from any goroutine.
func RunningPid() int {
	dbg, ok := session.Load().(*debugger.Debugger)
	if !ok {
		return 0
	}
	return dbg.RunningPid()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.deet.yaml)")
	rootCmd.PersistentFlags().BoolVar(&logFlag, "log", false, "enable debugging server logging")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "", "comma separated list of components that should produce debug output: debugger, proc, symbols")

	// flags after the program belong to the program
	rootCmd.Flags().SetInterspersed(false)
}
