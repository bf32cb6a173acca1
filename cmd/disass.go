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
	"github.com/spf13/viper"

	"github.com/hitzhangjie/dwarfy/pkg/config"
	"github.com/hitzhangjie/dwarfy/pkg/target"
)

// disassCmd represents the disass command
var disassCmd = &cobra.Command{
	Use:     "disass <file> <address|function>",
	Short:   "disassemble the machine code at a location",
	Aliases: []string{"dis", "disassemble"},
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		max, _ := cmd.Flags().GetUint64("max")

		return withBinary(args, func(b *target.Binary) error {
			bi, err := b.Symbols()
			if err != nil {
				return err
			}
			addr, err := bi.LocToPC(args[1])
			if err != nil {
				return err
			}
			return b.Disassemble(cmd.OutOrStdout(), addr, max, cfg.Disass.Syntax)
		})
	},
}

func init() {
	rootCmd.AddCommand(disassCmd)

	disassCmd.Flags().Uint64P("max", "n", 10, "number of instructions")
	disassCmd.Flags().StringP("syntax", "s", "gnu", "assembler syntax: go, gnu or intel")
	viper.BindPFlag(config.KeyDisassSyntax, disassCmd.Flags().Lookup("syntax"))
}
