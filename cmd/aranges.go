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

	"github.com/hitzhangjie/dwarfy/internal/dump"
	"github.com/hitzhangjie/dwarfy/pkg/target"
)

// arangesCmd represents the aranges command
var arangesCmd = &cobra.Command{
	Use:   "aranges <file>",
	Short: "list the address ranges of .debug_aranges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBinary(args, func(b *target.Binary) error {
			sets, err := b.Data.Aranges()
			if err != nil {
				return err
			}
			return dump.Aranges(cmd.OutOrStdout(), sets)
		})
	},
}

func init() {
	rootCmd.AddCommand(arangesCmd)
}
