package browse

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hitzhangjie/dwarfy/pkg/config"
)

const (
	cmdGroupAnnotation = "cmd_group_annotation"

	cmdGroupLayout  = "1-layout"
	cmdGroupEntries = "2-entries"
	cmdGroupCode    = "3-code"
	cmdGroupOthers  = "4-other"
	cmdGroupCobra   = "other"

	cmdGroupDelimiter = "-"

	prefix    = "dwarfy> "
	descShort = "dwarfy interactive browsing commands"
)

var browseRootCmd = &cobra.Command{
	Use:           "help [command]",
	Short:         descShort,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	CurrentSession *Session
)

// Session an interactive browsing session over target.Current
type Session struct {
	done   chan bool
	prefix string
	root   *cobra.Command
	liner  *liner.State
	last   string
	cfg    *config.Config
	out    io.Writer
	stop   sync.Once

	defers []func()
}

// NewSession creates the interactive session. Commands print to out and
// take their defaults from cfg.
func NewSession(cfg *config.Config, out io.Writer) *Session {

	fn := func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, cmd.Short)
		fmt.Fprintln(w)

		fmt.Fprintln(w, cmd.Use)
		fmt.Fprintln(w, cmd.Flags().FlagUsages())

		fmt.Fprintln(w, helpMessageByGroups(cmd))
	}
	browseRootCmd.SetHelpFunc(fn)
	browseRootCmd.SetOut(out)
	browseRootCmd.SetErr(out)

	CurrentSession = &Session{
		done:   make(chan bool),
		prefix: prefix,
		root:   browseRootCmd,
		last:   "",
		cfg:    cfg,
		out:    out,
	}
	return CurrentSession
}

// Start reads and runs commands until exit or end of input.
func (s *Session) Start() {
	s.liner = liner.NewLiner()
	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(completer)
	s.liner.SetTabCompletionStyle(liner.TabPrints)

	defer func() {
		s.liner.Close()
		for idx := len(s.defers) - 1; idx >= 0; idx-- {
			s.defers[idx]()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		txt, err := s.liner.Prompt(s.prefix)
		if err == liner.ErrPromptAborted || err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintf(s.out, "read command: %v\n", err)
			return
		}

		txt = strings.TrimSpace(txt)
		if len(txt) != 0 {
			s.last = txt
			s.liner.AppendHistory(txt)
		} else {
			txt = s.last
		}
		if txt == "" {
			continue
		}
		s.Run(txt)
	}
}

// Run executes one command line.
func (s *Session) Run(line string) {
	for _, c := range s.root.Commands() {
		resetFlags(c)
	}
	s.root.SetArgs(strings.Fields(line))
	if err := s.root.Execute(); err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
}

// resetFlags restores flag defaults, the commands are reused for every line.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})
}

func (s *Session) AtExit(fn func()) *Session {
	s.defers = append(s.defers, fn)
	return s
}

// Stop ends Start after the running command.
func (s *Session) Stop() {
	s.stop.Do(func() { close(s.done) })
}

// Stopped reports whether exit was requested.
func (s *Session) Stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func completer(line string) []string {
	cmds := []string{}
	for _, c := range browseRootCmd.Commands() {
		// complete cmd
		if strings.HasPrefix(c.Use, line) {
			cmds = append(cmds, strings.Split(c.Use, " ")[0])
		}
		// complete cmd's aliases
		for _, alias := range c.Aliases {
			if strings.HasPrefix(alias, line) {
				cmds = append(cmds, alias)
			}
		}
	}
	return cmds
}

// helpMessageByGroups lists the commands by group, groups and the commands
// within a group sorted by name
func helpMessageByGroups(cmd *cobra.Command) string {

	// key:group, val:sorted commands in same group
	groups := map[string][]string{}
	for _, c := range cmd.Commands() {
		// commands without a group go to other
		var groupName string
		v, ok := c.Annotations[cmdGroupAnnotation]
		if !ok {
			groupName = cmdGroupCobra
		} else {
			groupName = v
		}

		groupCmds := groups[groupName]
		groupCmds = append(groupCmds, fmt.Sprintf("  %-16s:%s", c.Name(), c.Short))
		sort.Strings(groupCmds)

		groups[groupName] = groupCmds
	}

	if len(groups[cmdGroupCobra]) != 0 {
		groups[cmdGroupOthers] = append(groups[cmdGroupOthers], groups[cmdGroupCobra]...)
	}
	delete(groups, cmdGroupCobra)

	groupNames := []string{}
	for k := range groups {
		groupNames = append(groupNames, k)
	}
	sort.Strings(groupNames)

	buf := bytes.Buffer{}
	for _, groupName := range groupNames {
		commands := groups[groupName]

		group := strings.Split(groupName, cmdGroupDelimiter)[1]
		buf.WriteString(fmt.Sprintf("- [%s]\n", group))

		for _, cmd := range commands {
			buf.WriteString(fmt.Sprintf("%s\n", cmd))
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
