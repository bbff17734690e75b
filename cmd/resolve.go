package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-fields/internal/observability"
)

// resolveOutcome is printed for every descriptor.
type resolveOutcome struct {
	Descriptor string      `json:"descriptor" yaml:"descriptor"`
	Status     string      `json:"status" yaml:"status"`
	Error      string      `json:"error,omitempty" yaml:"error,omitempty"`
	Match      *queryMatch `json:"match,omitempty" yaml:"match,omitempty"`
}

// outcomeStatus names the sentinel behind a resolution failure.
func outcomeStatus(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, locator.ErrInaccessible):
		return "inaccessible"
	case errors.Is(err, locator.ErrNotFound):
		return "not_found"
	case errors.Is(err, locator.ErrAmbiguous):
		return "ambiguous"
	case errors.Is(err, locator.ErrAborted):
		return "aborted"
	default:
		return "error"
	}
}

func newResolveCmd() *cobra.Command {
	var (
		pf     pageFlags
		format string
		strict bool
	)

	resolveCmd := &cobra.Command{
		Use:   "resolve <file|url> <descriptors.json>",
		Short: "Re-locates previously captured field descriptors on a page",
		Args:  cobra.ExactArgs(2),
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
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read descriptors: %w", err)
			}
			descriptors, err := locator.DecodeDescriptors(data)
			if err != nil {
				return err
			}
			page, err := loadPage(ctx, cfg, args[0], pf, logger)
			if err != nil {
				return err
			}

			results := locator.NewResolver(page, logger).ResolveAll(ctx, descriptors)
			out := make([]resolveOutcome, len(results))
			unresolved := 0
			for i, r := range results {
				out[i] = resolveOutcome{Descriptor: r.Descriptor.String(), Status: outcomeStatus(r.Err)}
				if r.Err != nil {
					unresolved++
					out[i].Error = r.Err.Error()
					continue
				}
				m := describeHandle(r.Handle)
				out[i].Match = &m
			}
			logger.Info("Descriptors resolved.",
				zap.Int("total", len(results)),
				zap.Int("unresolved", unresolved))

			if err := encode(cmd.OutOrStdout(), format, out); err != nil {
				return err
			}
			if strict && unresolved > 0 {
				return fmt.Errorf("%d of %d descriptors did not resolve", unresolved, len(results))
			}
			return nil
		},
	}
	pf.register(resolveCmd)
	resolveCmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format (json, yaml)")
	resolveCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any descriptor fails to resolve")
	return resolveCmd
}
