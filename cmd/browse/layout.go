package browse

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hitzhangjie/dwarfy/internal/dump"
	"github.com/hitzhangjie/dwarfy/pkg/target"
)

var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "list the ELF section headers",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupLayout,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return dump.Sections(cmd.OutOrStdout(), target.Current.ELF)
	},
}

var unitsCmd = &cobra.Command{
	Use:     "units",
	Short:   "list the unit headers",
	Aliases: []string{"u"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupLayout,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return dump.Units(cmd.OutOrStdout(), target.Current.Data)
	},
}

var abbrevCmd = &cobra.Command{
	Use:   "abbrev [offset]",
	Short: "list an abbreviation table",
	Args:  cobra.MaximumNArgs(1),
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupLayout,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var offset uint64
		if len(args) != 0 {
			v, err := parseOffset(args[0])
			if err != nil {
				return err
			}
			offset = v
		}
		return dump.Abbrevs(cmd.OutOrStdout(), target.Current.Data, offset)
	},
}

func parseOffset(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.Errorf("invalid offset: %s, must be like 0x2d or 45", s)
	}
	return v, nil
}

func init() {
	browseRootCmd.AddCommand(sectionsCmd)
	browseRootCmd.AddCommand(unitsCmd)
	browseRootCmd.AddCommand(abbrevCmd)
}
