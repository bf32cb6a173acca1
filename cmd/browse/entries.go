package browse

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hitzhangjie/dwarfy/internal/dump"
	"github.com/hitzhangjie/dwarfy/pkg/target"
)

var diesCmd = &cobra.Command{
	Use:   "dies <unit-offset>",
	Short: "print the entries of a unit",
	Args:  cobra.ExactArgs(1),
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupEntries,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, err := parseOffset(args[0])
		if err != nil {
			return err
		}
		depth, _ := cmd.Flags().GetInt("max-depth")
		if !cmd.Flags().Changed("max-depth") {
			depth = CurrentSession.cfg.Dump.MaxDepth
		}

		d := target.Current.Data
		units, err := d.AllUnits()
		if err != nil {
			return err
		}
		for _, u := range units {
			if u.Offset == offset {
				return dump.Entries(cmd.OutOrStdout(), d, u, depth)
			}
		}
		return errors.Errorf("no unit at offset %#x", offset)
	},
}

var funcsCmd = &cobra.Command{
	Use:     "funcs",
	Short:   "list compile units, functions and frames",
	Aliases: []string{"f"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupEntries,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		bi, err := target.Current.Symbols()
		if err != nil {
			return err
		}
		bi.Dump(cmd.OutOrStdout())
		return nil
	},
}

var pcCmd = &cobra.Command{
	Use:   "pc <address|function>",
	Short: "show the compile unit, function and frame covering a location",
	Args:  cobra.ExactArgs(1),
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupEntries,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		bi, err := target.Current.Symbols()
		if err != nil {
			return err
		}
		pc, err := bi.LocToPC(args[0])
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "pc: %#x\n", pc)
		if cu, err := bi.PCToCompileUnit(pc); err == nil {
			fmt.Fprintf(w, "compile unit: %s (unit %#x)\n", cu.Name(), cu.Unit().Offset)
		} else {
			fmt.Fprintf(w, "compile unit: %v\n", err)
		}
		if fn, err := bi.PCToFunction(pc); err == nil {
			fmt.Fprintf(w, "function: %s [%#x, %#x)\n", fn.Name(), fn.LowPC(), fn.HighPC())
		} else {
			fmt.Fprintf(w, "function: %v\n", err)
		}
		if fde, err := bi.PCToFDE(pc); err == nil {
			fmt.Fprintf(w, "frame: %s\n", fde)
		} else {
			fmt.Fprintf(w, "frame: %v\n", err)
		}
		return nil
	},
}

func init() {
	browseRootCmd.AddCommand(diesCmd)
	browseRootCmd.AddCommand(funcsCmd)
	browseRootCmd.AddCommand(pcCmd)

	diesCmd.Flags().IntP("max-depth", "d", -1, "do not print entries nested deeper than this, -1 for no limit")
}
