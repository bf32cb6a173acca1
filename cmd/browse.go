/*
Copyright © 2021 NAME HERE <EMAIL ADDRESS>

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
	"github.com/spf13/cobra"

	"github.com/hitzhangjie/dwarfy/cmd/browse"
	"github.com/hitzhangjie/dwarfy/pkg/target"
)

// browseCmd represents the browse command
var browseCmd = &cobra.Command{
	Use:   "browse <file>",
	Short: "browse the debug information interactively",
	Long: `browse opens the file once and starts a shell. Type "help" for the
commands, grouped by what they show.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBinary(args[0])
		if err != nil {
			return err
		}
		target.Current = b

		browse.NewSession(cfg, cmd.OutOrStdout()).
			AtExit(func() {
				target.Current = nil
				b.Close()
			}).
			Start()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
}
