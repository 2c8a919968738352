// Package schema describes the cobra command tree as data, so scripts can
// discover commands and flags without parsing help text.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Long        string          `json:"long,omitempty"`
	Aliases     []string        `json:"aliases,omitempty"`
	Runnable    bool            `json:"runnable"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name       string `json:"name"`
	Shorthand  string `json:"shorthand,omitempty"`
	Type       string `json:"type"`
	Usage      string `json:"usage"`
	Default    string `json:"default,omitempty"`
	Persistent bool   `json:"persistent,omitempty"`
	Required   bool   `json:"required,omitempty"`
}

// Build returns the schema of the command at path below root ("" for root).
func Build(root *cobra.Command, path string) (CommandSchema, error) {
	cmd := root
	if fields := strings.Fields(path); len(fields) > 0 {
		found, rest, err := root.Find(fields)
		if err != nil || found == nil || len(rest) > 0 || found == root {
			return CommandSchema{}, fmt.Errorf("command not found: %s", strings.Join(fields, " "))
		}
		cmd = found
	}
	return describe(cmd), nil
}

func describe(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:     strings.TrimSpace(cmd.CommandPath()),
		Use:      cmd.Use,
		Short:    cmd.Short,
		Long:     cmd.Long,
		Aliases:  cmd.Aliases,
		Runnable: cmd.Runnable(),
		Flags:    flags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, describe(sub))
	}
	return s
}

func flags(cmd *cobra.Command) []FlagSchema {
	persistent := map[string]bool{}
	cmd.PersistentFlags().VisitAll(func(f *pflag.Flag) { persistent[f.Name] = true })

	items := []FlagSchema{}
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
		items = append(items, FlagSchema{
			Name:       f.Name,
			Shorthand:  f.Shorthand,
			Type:       f.Value.Type(),
			Usage:      f.Usage,
			Default:    f.DefValue,
			Persistent: persistent[f.Name],
			Required:   required,
		})
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}
