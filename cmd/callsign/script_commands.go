package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"callsign/internal/config"
	"callsign/internal/script"
)

func newScriptCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Inspect mission scripts",
	}
	cmd.AddCommand(newScriptValidateCommand(loadConfig), newScriptShowCommand(loadConfig))
	return cmd
}

func newScriptValidateCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a mission script for errors",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, source, err := resolveScript(loadConfig, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %q is valid (%d steps)\n", source, s.Name, s.Len())
			return nil
		},
	}
}

func newScriptShowCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "show [path]",
		Short: "Print the steps of a mission script",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := resolveScript(loadConfig, args)
			if err != nil {
				return err
			}

			t := newTableWriter(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Step", "Trigger", "Role", "Expected", "Effects"})
			for i := 0; i < s.Len(); i++ {
				step, ok := s.StepAt(i)
				if !ok {
					break
				}
				t.AppendRow(table.Row{
					step.Index,
					string(step.Trigger),
					step.Role,
					step.Expected,
					formatEffects(step.Effects),
				})
			}
			t.Render()
			return nil
		},
	}
}

// resolveScript loads, in order of preference, the path argument, the
// configured script, or the embedded sample mission.
func resolveScript(loadConfig func() (*config.Config, error), args []string) (*script.Script, string, error) {
	if len(args) == 1 {
		s, err := script.Load(args[0])
		return s, args[0], err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	if cfg.Mission.ScriptPath != "" {
		s, err := script.Load(cfg.Mission.ScriptPath)
		return s, cfg.Mission.ScriptPath, err
	}
	s, err := script.Embedded()
	return s, "embedded", err
}

func formatEffects(effects []script.Effect) string {
	if len(effects) == 0 {
		return "-"
	}
	out := ""
	for i, effect := range effects {
		if i > 0 {
			out += ", "
		}
		out += string(effect.Kind)
	}
	return out
}
