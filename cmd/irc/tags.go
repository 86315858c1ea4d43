package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTagsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List the registered executor tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ev, err := opts.evaluator()
			if err != nil {
				return err
			}
			reg := ev.Registries()
			groups := []struct {
				name string
				tags []string
			}{
				{"injectors", reg.Injectors.List()},
				{"operators", reg.Operators.List()},
				{"comparators", reg.Comparators.List()},
				{"actions", reg.Actions.List()},
				{"events", reg.Events.List()},
				{"policies", reg.Policies.List()},
			}
			out := cmd.OutOrStdout()
			for _, g := range groups {
				fmt.Fprintf(out, "%s:\n", g.name)
				for _, tag := range g.tags {
					fmt.Fprintf(out, "  %s\n", tag)
				}
			}
			return nil
		},
	}
}
