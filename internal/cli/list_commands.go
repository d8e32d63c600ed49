// internal/cli/list_commands.go
package sweepwatch

import (
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// commandsCmd implements 'list commands', a table of every command with its
// description and local flags.
var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List all commands with their flags",
	Run: func(cmd *cobra.Command, args []string) {
		runListCommands(cmd.OutOrStdout(), rootCmd)
	},
}

func init() {
	listCmd.AddCommand(commandsCmd)
}

func runListCommands(w io.Writer, root *cobra.Command) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Command", "Description", "Flags"})
	walkCommands(root, 0, func(c *cobra.Command, depth int) {
		path := strings.TrimSpace(strings.TrimPrefix(c.CommandPath(), root.Name()))
		if path == "" {
			return
		}
		t.AppendRow(table.Row{strings.Repeat("  ", depth-1) + path, c.Short, localFlags(c)})
	})
	t.Render()
}

func walkCommands(c *cobra.Command, depth int, fn func(*cobra.Command, int)) {
	if c.Hidden || c.Name() == "help" || c.Name() == "completion" {
		return
	}
	fn(c, depth)
	for _, sub := range c.Commands() {
		walkCommands(sub, depth+1, fn)
	}
}

func localFlags(c *cobra.Command) string {
	var names []string
	c.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		if !f.Hidden {
			names = append(names, "--"+f.Name)
		}
	})
	sort.Strings(names)
	return strings.Join(names, " ")
}
