package main

import (
	"encoding/json"
	"fmt"

	"github.com/effectus/irkit/lint"
	"github.com/spf13/cobra"
)

func newLintCmd(opts *globalOptions) *cobra.Command {
	var (
		unsafe string
		format string
	)

	cmd := &cobra.Command{
		Use:   "lint <document>...",
		Short: "Check documents for unknown tags, dead branches and unsafe markup",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := lint.ParseUnsafeMode(unsafe)
			if err != nil {
				return err
			}
			ev, err := opts.evaluator()
			if err != nil {
				return err
			}

			var issues []lint.Issue
			for _, path := range args {
				doc, err := readDocument(path)
				if err != nil {
					issues = append(issues, lint.Issue{
						File:     path,
						Severity: lint.SeverityError,
						Code:     "parse",
						Message:  err.Error(),
					})
					continue
				}
				issues = append(issues, lint.LintDocumentWithOptions(doc, path, ev.Registries(), lint.LintOptions{UnsafeMode: mode})...)
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if issues == nil {
					issues = []lint.Issue{}
				}
				if err := enc.Encode(issues); err != nil {
					return err
				}
			case "text":
				for _, issue := range issues {
					fmt.Fprintln(out, issue.String())
				}
			default:
				return fmt.Errorf("unknown format %q", format)
			}

			if lint.HasErrors(issues) {
				return fmt.Errorf("lint found errors")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&unsafe, "unsafe", "warn", "Unsafe expression handling (ignore, warn, error)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text or json)")
	return cmd
}
