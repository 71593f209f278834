package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/liamcoop/decisioncentral/decision"
	"github.com/liamcoop/decisioncentral/registry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"json", "text"}

// NewRootCommand creates the root command for the dcctl CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dcctl",
		Short: "Decision Central command line",
		Long:  "Run decisions and generate OpenAPI documents from workbook and DMN files without a server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "json", "output format (json|text)")

	cmd.AddCommand(NewDecideCommand(opts))
	cmd.AddCommand(NewOpenAPICommand(opts))

	return cmd
}

// loadService builds the service described by file, picking the loader from
// the file extension.
func loadService(file string) (decision.Service, error) {
	format, ok := registry.FormatForFile(file)
	if !ok {
		return nil, fmt.Errorf("unsupported file extension for %s", file)
	}
	source, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	svc, status := registry.Build(format, source)
	if !status.OK() {
		return nil, &registry.ValidationError{Name: registry.NameFromFile(file), Errors: status.Errors}
	}
	return svc, nil
}
