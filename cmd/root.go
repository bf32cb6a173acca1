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
	"context"
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hitzhangjie/dwarfy/internal/logging"
	"github.com/hitzhangjie/dwarfy/pkg/config"
	"github.com/hitzhangjie/dwarfy/pkg/target"
)

var (
	cfgFile string

	cfg    *config.Config
	logger = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dwarfy",
	Short: "inspect the DWARF debugging information of ELF binaries",
	Long: `dwarfy decodes the DWARF sections of an ELF file: unit headers,
abbreviation tables, debugging information entries, address ranges and
call frame information. Run "dwarfy browse <file>" for an interactive shell.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(viper.GetViper()); err != nil {
			return err
		}
		if logger, err = logging.New(cfg.Log.Level, cfg.Log.Development); err != nil {
			return err
		}
		if f := viper.ConfigFileUsed(); f != "" {
			logger.Debug("using config file", zap.String("path", f))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dwarfy.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Bool("log-dev", false, "human readable log output")
	flags.String("byte-order", "auto", "byte order of the debug sections: auto, sniff, little or big")

	viper.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	viper.BindPFlag(config.KeyLogDevelopment, flags.Lookup("log-dev"))
	viper.BindPFlag(config.KeyScanByteOrder, flags.Lookup("byte-order"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".dwarfy" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".dwarfy")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "read config %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}

// openBinary opens path with the byte order settings of the config.
func openBinary(path string) (*target.Binary, error) {
	return target.Open(path, target.Options{
		Logger: logger,
		Order:  cfg.ByteOrder(),
		Sniff:  cfg.Scan.ByteOrder == "sniff",
	})
}

// withBinary opens args[0] for the duration of fn.
func withBinary(args []string, fn func(b *target.Binary) error) error {
	b, err := openBinary(args[0])
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b)
}
