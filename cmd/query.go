package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-fields/internal/observability"
)

// queryMatch is one element matched by a deep query.
type queryMatch struct {
	Tag     string `json:"tag" yaml:"tag"`
	XPath   string `json:"xpath" yaml:"xpath"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Value   string `json:"value" yaml:"value"`
	Checked bool   `json:"checked,omitempty" yaml:"checked,omitempty"`
}

func describeHandle(h *dom.ElementHandle) queryMatch {
	m := queryMatch{Tag: h.TagName(), XPath: h.XPath(), Value: h.Value()}
	if m.Tag == "input" {
		m.Type = h.InputType()
		m.Checked = h.Checked()
	}
	return m
}

func newQueryCmd() *cobra.Command {
	var (
		pf     pageFlags
		format string
	)

	queryCmd := &cobra.Command{
		Use:   "query <file|url> <deep-selector>",
		Short: "Evaluates a '>>>' separated selector across shadow roots and frames",
		Example: `  scalpel-fields query page.html 'x-login >>> form input[name=user]'
  scalpel-fields query page.html 'iframe#pay >>> select'`,
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
			sel, err := locator.ParseDeepSelector(args[1])
			if err != nil {
				return err
			}
			page, err := loadPage(ctx, cfg, args[0], pf, logger)
			if err != nil {
				return err
			}

			handles, err := sel.Query(ctx, page)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			logger.Debug("Deep query evaluated.", zap.Stringer("selector", sel), zap.Int("matches", len(handles)))

			matches := make([]queryMatch, 0, len(handles))
			for _, h := range handles {
				matches = append(matches, describeHandle(h))
			}
			return encode(cmd.OutOrStdout(), format, matches)
		},
	}
	pf.register(queryCmd)
	queryCmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format (json, yaml)")
	return queryCmd
}
