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

	"github.com/hitzhangjie/dwarfy/internal/dump"
	"github.com/hitzhangjie/dwarfy/pkg/target"
)

// abbrevCmd represents the abbrev command
var abbrevCmd = &cobra.Command{
	Use:   "abbrev <file> [offset]",
	Short: "list the abbreviation table at a .debug_abbrev offset",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var offset uint64
		if len(args) == 2 {
			v, err := strconv.ParseUint(args[1], 0, 64)
			if err != nil {
				return errors.Wrap(err, "offset")
			}
			offset = v
		}
		return withBinary(args, func(b *target.Binary) error {
			return dump.Abbrevs(cmd.OutOrStdout(), b.Data, offset)
		})
	},
}

func init() {
	rootCmd.AddCommand(abbrevCmd)
}
