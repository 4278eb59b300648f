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
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/hitzhangjie/deet/cmd"
	"github.com/hitzhangjie/deet/pkg/logflags"
)

func main() {
	go processSignals()
	cmd.Execute()
}

func processSignals() {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	for sig := range ch {
		logflags.DebuggerLogger().Debugf("received signal %v", sig)

		switch sig {
		case syscall.SIGINT:
			// tracee和调试器同属一个进程组，终端上的^C会让tracee停下来并报告SIGINT，
			// 调试器自身不退出。这里不用signal.Ignore，忽略的信号会被tracee继承
			break
		case syscall.SIGTERM, syscall.SIGQUIT:
			os.RemoveAll(cmd.BuildExecName)
			if pid := cmd.RunningPid(); pid > 0 {
				syscall.Kill(pid, syscall.SIGKILL)
			}
			os.Exit(0)
		}
	}
}
