package main

import (
	"fmt"

	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/guard"
	"github.com/spf13/cobra"
)

func newGuardCmd(opts *globalOptions) *cobra.Command {
	var (
		policy   string
		args     string
		locals   string
		redirect string
		status   int
	)

	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Evaluate a policy against local values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if policy == "" {
				return fmt.Errorf("--policy is required")
			}
			config, err := parseValue(args)
			if err != nil {
				return fmt.Errorf("--args: %w", err)
			}
			values, err := parseLocals(locals)
			if err != nil {
				return fmt.Errorf("--locals: %w", err)
			}
			ev, err := opts.evaluator()
			if err != nil {
				return err
			}

			var onFail *guard.OnFail
			if redirect != "" || status != 0 {
				onFail = &guard.OnFail{Redirect: redirect, Status: status}
			}
			ec := eval.NewContext(eval.Server, values)
			decision := guard.Authorized(cmd.Context(), ev, ec, guard.Policy{Tag: policy, Args: config}, onFail)

			out := cmd.OutOrStdout()
			switch {
			case decision.Allow:
				fmt.Fprintln(out, "allow")
			case decision.Redirect != "":
				fmt.Fprintf(out, "redirect %s\n", decision.Redirect)
			default:
				fmt.Fprintf(out, "deny %d\n", decision.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "", "Policy or comparator tag")
	cmd.Flags().StringVar(&args, "args", "", "Policy configuration as JSON/YAML, or @file")
	cmd.Flags().StringVar(&locals, "locals", "", "Local values as JSON/YAML, or @file")
	cmd.Flags().StringVar(&redirect, "redirect", "", "Redirect target on denial")
	cmd.Flags().IntVar(&status, "status", 0, "Status on denial (default 403)")
	return cmd
}
