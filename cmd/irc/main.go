// Command irc renders, lints and checks IR documents from the command line.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/effectus/irkit/defaults"
	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/internal/logging"
	"github.com/effectus/irkit/ir"
	"github.com/effectus/irkit/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type globalOptions struct {
	logLevel  string
	logFormat string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "irc",
		Short: "IR document toolkit",
		Long: `irc works with declarative UI IR documents (JSON or YAML).

Examples:
  # Render a document to HTML
  irc render pages/home.yaml --locals '{"user":{"name":"Ada"}}'

  # Check documents for problems
  irc lint pages/*.json

  # Evaluate a policy against locals
  irc guard --policy Policy.HasRole --args '"admin"' --locals @session.json`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "Log format (json or console)")

	root.AddCommand(
		newRenderCmd(opts),
		newLintCmd(opts),
		newGuardCmd(opts),
		newTagsCmd(opts),
		newMigrateCmd(),
	)
	return root
}

func (o *globalOptions) logger() (*zap.Logger, error) {
	return logging.New(o.logLevel, o.logFormat)
}

func (o *globalOptions) evaluator() (*eval.Evaluator, error) {
	logger, err := o.logger()
	if err != nil {
		return nil, err
	}
	return defaults.NewEvaluator(logger), nil
}

func readDocument(path string) (*ir.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := store.ParseFile(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// parseValue decodes a JSON or YAML value given inline or, with a leading
// "@", from a file.
func parseValue(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	data := []byte(raw)
	if strings.HasPrefix(raw, "@") {
		var err error
		if data, err = os.ReadFile(raw[1:]); err != nil {
			return nil, err
		}
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing value: %w", err)
	}
	return v, nil
}

func parseLocals(raw string) (map[string]any, error) {
	v, err := parseValue(raw)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return map[string]any{}, nil
	}
	locals, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("locals must be a mapping, got %T", v)
	}
	return locals, nil
}
