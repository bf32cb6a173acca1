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
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hitzhangjie/dwarfy/internal/dump"
	"github.com/hitzhangjie/dwarfy/pkg/config"
	"github.com/hitzhangjie/dwarfy/pkg/target"
)

// diesCmd represents the dies command
var diesCmd = &cobra.Command{
	Use:   "dies <file> [unit-offset]",
	Short: "print the debugging information entries of every unit, or of one",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			one    bool
			offset uint64
		)
		if len(args) == 2 {
			v, err := strconv.ParseUint(args[1], 0, 64)
			if err != nil {
				return errors.Wrap(err, "unit offset")
			}
			one, offset = true, v
		}

		return withBinary(args, func(b *target.Binary) error {
			units, err := b.Data.AllUnits()
			if err != nil {
				return err
			}
			for _, u := range units {
				if one && u.Offset != offset {
					continue
				}
				if err := dump.Entries(cmd.OutOrStdout(), b.Data, u, cfg.Dump.MaxDepth); err != nil {
					return err
				}
				if one {
					return nil
				}
			}
			if one {
				return errors.Errorf("no unit at offset %#x", offset)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(diesCmd)

	diesCmd.Flags().IntP("max-depth", "d", -1, "do not print entries nested deeper than this, -1 for no limit")
	viper.BindPFlag(config.KeyDumpMaxDepth, diesCmd.Flags().Lookup("max-depth"))
}
