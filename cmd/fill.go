package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-fields/internal/fill"
	"github.com/xkilldash9x/scalpel-fields/internal/humanoid"
	"github.com/xkilldash9x/scalpel-fields/internal/observability"
)

func readMappings(path string) ([]fill.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mappings: %w", err)
	}
	var mappings []fill.Mapping
	if err := json.Unmarshal(data, &mappings); err != nil {
		return nil, fmt.Errorf("failed to decode mappings: %w", err)
	}
	for i, m := range mappings {
		if m.Field.LocalSelector == "" {
			return nil, fmt.Errorf("mapping %d has an empty selector", i)
		}
	}
	return mappings, nil
}

func newFillCmd() *cobra.Command {
	var (
		pf      pageFlags
		format  string
		instant bool
		strict  bool
	)

	fillCmd := &cobra.Command{
		Use:   "fill <file|url> <mappings.json>",
		Short: "Types values into captured fields at a human pace and reports each field",
		Long: `Reads a JSON array of {"field": <descriptor>, "value": "..."} objects, fills
them in order and prints the pass report. Failures are reported per field and
do not stop the pass.`,
		Args: cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return validFormat(format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if instant {
				cfg.SetFillHumanoidEnabled(false)
			}
			mappings, err := readMappings(args[1])
			if err != nil {
				return err
			}
			page, err := loadPage(ctx, cfg, args[0], pf, logger)
			if err != nil {
				return err
			}

			typist := humanoid.New(cfg.Fill().Humanoid, logger)
			report, err := fill.NewFiller(page, typist, fill.Options{Logger: logger}).Fill(ctx, mappings)
			if report != nil {
				if encErr := encode(cmd.OutOrStdout(), format, report.Event()); encErr != nil {
					return encErr
				}
			}
			if err != nil {
				return err
			}
			if strict {
				return report.Err()
			}
			return nil
		},
	}
	pf.register(fillCmd)
	fillCmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format (json, yaml)")
	fillCmd.Flags().BoolVar(&instant, "instant", false, "disable human pacing")
	fillCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any field fails")
	return fillCmd
}
