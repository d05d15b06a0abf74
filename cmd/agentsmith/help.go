package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/agentsmith/internal/ui"
)

// helpStyle holds the renderers applied to usage text.
type helpStyle struct {
	heading func(string) string
	command func(string) string
	muted   func(string) string
}

var terminalHelpStyle = helpStyle{
	heading: ui.RenderAccent,
	command: ui.RenderCommand,
	muted:   ui.RenderMuted,
}

// printHelp writes cmd's usage to stdout, styled when stdout is a color
// terminal.
func printHelp(cmd *cobra.Command, _ []string) {
	out := cmd.OutOrStdout()
	cmd.SetOut(out)
	if !ui.ShouldUseColor(os.Stdout) {
		_ = cmd.Usage()
		return
	}

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	_ = cmd.Usage()
	cmd.SetOut(out)
	fmt.Fprint(out, terminalHelpStyle.apply(buf.String(), subcommandNames(cmd)))
}

func subcommandNames(cmd *cobra.Command) map[string]bool {
	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		if c.IsAvailableCommand() || c.Name() == "help" {
			names[c.Name()] = true
		}
	}
	return names
}

// apply styles usage text line by line. Section headings are unindented
// lines ending in a colon; command rows start with a name from commands;
// flag rows have their default muted.
func (st helpStyle) apply(text string, commands map[string]bool) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
		case !strings.HasPrefix(line, " ") && strings.HasSuffix(trimmed, ":"):
			lines[i] = st.heading(trimmed)
		case strings.HasPrefix(trimmed, "-"):
			if j := strings.Index(line, "(default "); j >= 0 {
				lines[i] = line[:j] + st.muted(line[j:])
			}
		case strings.HasPrefix(line, "  "):
			name, _, _ := strings.Cut(trimmed, " ")
			if commands[name] {
				indent := len(line) - len(strings.TrimLeft(line, " "))
				lines[i] = line[:indent] + st.command(name) + line[indent+len(name):]
			}
		}
	}
	return strings.Join(lines, "\n")
}
