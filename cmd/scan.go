package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-fields/internal/observability"
)

// newScanCmd creates and configures the `scan` command.
func newScanCmd() *cobra.Command {
	var (
		pf        pageFlags
		format    string
		output    string
		depth     int
		noShadow  bool
		noFrames  bool
		fieldOnly bool
	)

	scanCmd := &cobra.Command{
		Use:   "scan <file|url>",
		Short: "Lists every form field on a page with a descriptor that can find it again",
		Args:  cobra.ExactArgs(1),
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
			// Flags override the config file.
			if cmd.Flags().Changed("depth") {
				cfg.SetScanMaxDepth(depth)
			}
			if noShadow {
				cfg.SetScanIncludeShadowDOM(false)
			}
			if noFrames {
				cfg.SetScanIframeTraversal(false)
			}

			page, err := loadPage(ctx, cfg, args[0], pf, logger)
			if err != nil {
				return err
			}

			res, err := locator.NewScanner(cfg.Scan().Options(), logger).Scan(ctx, page)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			logger.Info("Scan complete.",
				zap.String("target", args[0]),
				zap.Int("fields", len(res.Fields)),
				zap.Errors("warnings", res.Warnings()))

			if fieldOnly {
				fields := res.Fields
				if fields == nil {
					fields = []locator.FieldDescriptor{}
				}
				return writeOutput(cmd.OutOrStdout(), output, format, fields)
			}
			return writeOutput(cmd.OutOrStdout(), output, format, res)
		},
	}

	pf.register(scanCmd)
	scanCmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format (json, yaml)")
	scanCmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	scanCmd.Flags().IntVarP(&depth, "depth", "d", 0, "maximum boundary crossings (overrides scan.max_depth)")
	scanCmd.Flags().BoolVar(&noShadow, "no-shadow", false, "do not enter shadow roots")
	scanCmd.Flags().BoolVar(&noFrames, "no-frames", false, "do not enter frames")
	scanCmd.Flags().BoolVar(&fieldOnly, "fields-only", false, "print only the descriptor list")
	return scanCmd
}
