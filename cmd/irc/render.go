package main

import (
	"fmt"

	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/render"
	"github.com/spf13/cobra"
)

func newRenderCmd(opts *globalOptions) *cobra.Command {
	var (
		locals  string
		env     string
		page    bool
		title   string
		payload bool
	)

	cmd := &cobra.Command{
		Use:   "render <document>",
		Short: "Render a document to HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			values, err := parseLocals(locals)
			if err != nil {
				return fmt.Errorf("--locals: %w", err)
			}
			environment, err := eval.ParseEnvironment(env)
			if err != nil {
				return err
			}
			ev, err := opts.evaluator()
			if err != nil {
				return err
			}

			r := render.New(ev, render.WithLogger(ev.Logger()))
			ec := eval.NewContext(environment, values)
			out := cmd.OutOrStdout()
			if !page {
				_, err = fmt.Fprintln(out, r.Render(cmd.Context(), doc.Root, ec))
				return err
			}
			html, err := r.Page(cmd.Context(), doc, ec, render.WithTitle(title), render.WithPayload(payload))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, html)
			return err
		},
	}

	cmd.Flags().StringVar(&locals, "locals", "", "Local values as JSON/YAML, or @file")
	cmd.Flags().StringVar(&env, "env", "server", "Evaluation environment (server or client)")
	cmd.Flags().BoolVar(&page, "page", false, "Render a complete HTML page")
	cmd.Flags().StringVar(&title, "title", "", "Page title (with --page)")
	cmd.Flags().BoolVar(&payload, "payload", true, "Embed the IR payload (with --page)")
	return cmd
}
