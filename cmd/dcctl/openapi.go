package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/decisioncentral/openapi"
	"github.com/liamcoop/decisioncentral/registry"
)

type openAPIOptions struct {
	file   string
	name   string
	table  string
	server string
}

// NewOpenAPICommand creates the openapi command.
func NewOpenAPICommand(rootOpts *RootOptions) *cobra.Command {
	opts := &openAPIOptions{}

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI document of a service file",
		Long: `Print the OpenAPI 3.0 YAML document describing the decide endpoint of a
service file, or of one of its tables with --table. The service name
defaults to the file name without its extension.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "decision service file")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "service name used in paths and titles")
	cmd.Flags().StringVarP(&opts.table, "table", "t", "", "describe a single decision table")
	cmd.Flags().StringVar(&opts.server, "server", "", "server URL advertised in the document")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runOpenAPI(opts *openAPIOptions, cmd *cobra.Command) error {
	svc, err := loadService(opts.file)
	if err != nil {
		return err
	}
	name := opts.name
	if name == "" {
		name = registry.NameFromFile(opts.file)
	}

	glossary := svc.Glossary()
	if opts.table != "" {
		g, ok := svc.TableGlossary(opts.table)
		if !ok {
			return fmt.Errorf("no decision table named %s", opts.table)
		}
		glossary = g
	}

	doc, err := openapi.Decide(glossary, name, opts.table, opts.server)
	if err != nil {
		return fmt.Errorf("failed to generate OpenAPI document: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(doc)
	return err
}
