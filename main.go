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
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hitzhangjie/dwarfy/cmd"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go processSignals(cancel)
	cmd.Execute(ctx)
}

// processSignals cancels the running command on the first signal and exits
// on the second.
func processSignals(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGURG)

	stopping := false
	for sig := range ch {

		switch sig {
		case syscall.SIGURG:
			// non-cooperative preemption, ignore
			break
		case syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT:
			if stopping {
				os.Exit(1)
			}
			stopping = true
			cancel()
		}
	}
}
