package browse

import (
	"github.com/spf13/cobra"

	"github.com/hitzhangjie/dwarfy/internal/dump"
	"github.com/hitzhangjie/dwarfy/pkg/target"
)

var disassCmd = &cobra.Command{
	Use:   "disass <address|function>",
	Short: "disassemble machine instructions",
	Args:  cobra.ExactArgs(1),
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCode,
	},
	Aliases: []string{"dis", "disassemble"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			max, _    = cmd.Flags().GetUint64("max")
			syntax, _ = cmd.Flags().GetString("syntax")
		)
		if !cmd.Flags().Changed("syntax") {
			syntax = CurrentSession.cfg.Disass.Syntax
		}

		bi, err := target.Current.Symbols()
		if err != nil {
			return err
		}
		addr, err := bi.LocToPC(args[0])
		if err != nil {
			return err
		}
		return target.Current.Disassemble(cmd.OutOrStdout(), addr, max, syntax)
	},
}

var framesCmd = &cobra.Command{
	Use:   "frames",
	Short: "list the frame description entries",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCode,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		program, _ := cmd.Flags().GetBool("program")

		bi, err := target.Current.Symbols()
		if err != nil {
			return err
		}
		return dump.Frames(cmd.OutOrStdout(), bi.FdeEntries, program)
	},
}

var exitCmd = &cobra.Command{
	Use:     "exit",
	Short:   "leave the browse session",
	Aliases: []string{"quit", "q"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupOthers,
	},
	Run: func(cmd *cobra.Command, args []string) {
		CurrentSession.Stop()
	},
}

func init() {
	browseRootCmd.AddCommand(disassCmd)
	browseRootCmd.AddCommand(framesCmd)
	browseRootCmd.AddCommand(exitCmd)

	disassCmd.Flags().Uint64P("max", "n", 10, "number of instructions")
	disassCmd.Flags().StringP("syntax", "s", "gnu", "assembler syntax: go, gnu or intel")
	framesCmd.Flags().BoolP("program", "p", false, "decode the call frame instructions")
}
