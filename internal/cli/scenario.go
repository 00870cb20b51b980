package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/g960059/ehrsim/internal/api"
	"github.com/g960059/ehrsim/internal/model"
	"github.com/g960059/ehrsim/internal/scenario"
)

func newScenarioCmd(rt *env) *cobra.Command {
	scenarioCmd := &cobra.Command{
		Use:     "scenario",
		Aliases: []string{"scenarios"},
		Short:   "Browse, import, export, update and delete scenarios",
	}
	scenarioCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the scenario catalog",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				list, err := rt.api().ListScenarios(cmd.Context())
				if err != nil {
					return err
				}
				if rt.jsonOut {
					return writeJSON(cmd.OutOrStdout(), list)
				}
				for _, sc := range list {
					target := "-"
					if sc.HasTarget {
						target = "target"
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%d meds\t%s\n",
						sc.ID, sc.Name, sc.Diagnosis, sc.Medications, target)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <scenario-id>",
			Short: "Print a scenario definition",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0], "scenario id")
				if err != nil {
					return err
				}
				sc, err := rt.api().GetScenario(cmd.Context(), id)
				if err != nil {
					return err
				}
				if rt.jsonOut {
					return writeJSON(cmd.OutOrStdout(), sc)
				}
				data, err := scenario.Encode(documentFor(sc), scenario.FormatYAML)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "import <file>",
			Short: "Add a scenario from a .yaml, .toml or .json file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				doc, err := scenario.ReadFile(args[0])
				if err != nil {
					return err
				}
				sc, err := rt.api().CreateScenario(cmd.Context(), api.CreateScenarioRequest{
					Name:       doc.Name,
					Definition: doc.Definition(),
				})
				if err != nil {
					return err
				}
				if rt.jsonOut {
					return writeJSON(cmd.OutOrStdout(), sc)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported scenario %d %s\n", sc.ID, sc.Name)
				return err
			},
		},
		&cobra.Command{
			Use:   "update <scenario-id> <file>",
			Short: "Replace a scenario with the contents of a file",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0], "scenario id")
				if err != nil {
					return err
				}
				doc, err := scenario.ReadFile(args[1])
				if err != nil {
					return err
				}
				sc, err := rt.api().UpdateScenario(cmd.Context(), id, api.CreateScenarioRequest{
					Name:       doc.Name,
					Definition: doc.Definition(),
				})
				if err != nil {
					return err
				}
				if rt.jsonOut {
					return writeJSON(cmd.OutOrStdout(), sc)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "updated scenario %d %s\n", sc.ID, sc.Name)
				return err
			},
		},
		&cobra.Command{
			Use:   "delete <scenario-id>",
			Short: "Delete a scenario no recorded session uses",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0], "scenario id")
				if err != nil {
					return err
				}
				if err := rt.api().DeleteScenario(cmd.Context(), id); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted scenario %d\n", id)
				return err
			},
		},
		&cobra.Command{
			Use:   "export <scenario-id> <file>",
			Short: "Write a scenario to a file; the extension picks the format",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0], "scenario id")
				if err != nil {
					return err
				}
				sc, err := rt.api().GetScenario(cmd.Context(), id)
				if err != nil {
					return err
				}
				if err := scenario.WriteFile(args[1], documentFor(sc)); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported scenario %d to %s\n", sc.ID, args[1])
				return err
			},
		},
	)
	return scenarioCmd
}

func documentFor(sc api.ScenarioResponse) scenario.Document {
	return scenario.FromScenario(model.Scenario{ID: sc.ID, Name: sc.Name, Definition: sc.Definition})
}
