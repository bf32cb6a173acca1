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
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hitzhangjie/dwarfy/internal/dump"
	"github.com/hitzhangjie/dwarfy/pkg/config"
	"github.com/hitzhangjie/dwarfy/pkg/target"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats <file>",
	Short: "decode every entry in parallel and print totals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBinary(args, func(b *target.Binary) error {
			start := time.Now()
			stats, err := b.Data.Scan(cmd.Context(), cfg.Scan.Workers, nil)
			if err != nil {
				return err
			}
			logger.Info("scan finished", zap.Duration("took", time.Since(start)))
			return dump.Stats(cmd.OutOrStdout(), stats, b.Data.Abbrevs().Builds())
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().IntP("workers", "j", 0, "units decoded in parallel, 0 for one per CPU")
	viper.BindPFlag(config.KeyScanWorkers, statsCmd.Flags().Lookup("workers"))
}
