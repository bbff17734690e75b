package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-fields/api/schemas"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-fields/internal/events"
	"github.com/xkilldash9x/scalpel-fields/internal/monitor"
	"github.com/xkilldash9x/scalpel-fields/internal/observability"
)

func newWatchCmd() *cobra.Command {
	var (
		pf       pageFlags
		duration time.Duration
		interval time.Duration
	)

	watchCmd := &cobra.Command{
		Use:   "watch <file|url>",
		Short: "Keeps the field list current and prints every completed scan as a JSON line",
		Long: `Starts the change monitor on a page and prints one line per completed scan
until interrupted. --interval forces manual rescans on a schedule.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			page, err := loadPage(ctx, cfg, args[0], pf, logger)
			if err != nil {
				return err
			}
			return watch(ctx, cmd.OutOrStdout(), cfg.Scan().Options(), cfg.Monitor().Options(), page, interval, logger)
		},
	}
	pf.register(watchCmd)
	watchCmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (default: until interrupted)")
	watchCmd.Flags().DurationVar(&interval, "interval", 0, "force a rescan on this interval")
	return watchCmd
}

// watch runs a monitor on page and streams its scan events to w until ctx
// ends.
func watch(ctx context.Context, w io.Writer, scanOpts locator.ScanOptions, monOpts monitor.Options, page *dom.Page, interval time.Duration, logger *zap.Logger) error {
	bus := events.NewBus(logger, 16)
	enc := json.NewEncoder(w)
	bus.Subscribe(func(msg events.Message) {
		if err := enc.Encode(msg.Event); err != nil {
			logger.Warn("Failed to write scan event.", zap.Error(err))
		}
	}, schemas.EventScanCompleted)

	monOpts.Publisher = bus
	monOpts.Logger = logger
	mon := monitor.New(page, locator.NewScanner(scanOpts, logger), monOpts)
	if err := mon.Start(ctx); err != nil {
		bus.Shutdown()
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-tick:
			if _, err := mon.Rescan(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Manual rescan failed.", zap.Error(err))
			}
		}
	}

	mon.Stop()
	bus.Shutdown()
	logger.Info("Watch stopped.", zap.Int64("scans", mon.ScanCount()))
	return nil
}
