package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liamcoop/decisioncentral/codec"
	"github.com/liamcoop/decisioncentral/decision"
	"github.com/liamcoop/decisioncentral/feel"
)

// ErrDecisionFailed is returned after printing a decision whose status
// carries errors.
var ErrDecisionFailed = errors.New("decision returned errors")

type decideOptions struct {
	file   string
	tables []string
	data   string
}

// NewDecideCommand creates the decide command.
func NewDecideCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &decideOptions{}

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Run a decision against a service file",
		Long: `Load a workbook (.yaml, .yml, .json) or DMN file (.xml, .dmn) and run a
decision with the given input data. With --table only the named tables run.

The data is a JSON object, read from stdin when --data is "-".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecide(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "decision service file")
	cmd.Flags().StringSliceVarP(&opts.tables, "table", "t", nil, "decision table to run (repeatable)")
	cmd.Flags().StringVarP(&opts.data, "data", "d", "{}", `input data as a JSON object, or "-" for stdin`)
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runDecide(rootOpts *RootOptions, opts *decideOptions, cmd *cobra.Command) error {
	svc, err := loadService(opts.file)
	if err != nil {
		return err
	}

	var in io.Reader = strings.NewReader(opts.data)
	if opts.data == "-" {
		in = cmd.InOrStdin()
	}
	data, err := readData(in)
	if err != nil {
		return err
	}

	var (
		status  decision.Status
		outcome decision.Outcome
	)
	if len(opts.tables) > 0 {
		status, outcome = svc.DecideTables(data, opts.tables)
	} else {
		status, outcome = svc.Decide(data)
	}

	out := cmd.OutOrStdout()
	if rootOpts.Format == "text" {
		writeReport(out, decision.NewReport(status, outcome))
	} else {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(decision.Normalize(status, outcome)); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}

	if !status.OK() {
		return ErrDecisionFailed
	}
	return nil
}

func readData(r io.Reader) (map[string]feel.Value, error) {
	v, err := codec.DecodeJSON(r)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(feel.Map)
	if !ok {
		return nil, errors.New("input data must be a JSON object")
	}
	return map[string]feel.Value(obj), nil
}

func writeReport(w io.Writer, rep decision.Report) {
	if len(rep.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, e := range rep.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return
	}

	fmt.Fprintln(w, "Decision:")
	for _, row := range rep.Rows {
		fmt.Fprintf(w, "  %s = %s\n", row.Variable, row.Value)
	}
	fmt.Fprintln(w, "Executed rules:")
	for _, rule := range rep.Rules {
		fmt.Fprintf(w, "  %s / %s / %s\n", rule.Decision, rule.Table, rule.RuleID)
	}
}
