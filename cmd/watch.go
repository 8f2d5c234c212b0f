package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/conneroisu/sitepipe/internal/dev"
	"github.com/conneroisu/sitepipe/internal/metrics"
	"github.com/conneroisu/sitepipe/internal/server"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"serve", "dev", "w"},
	Short:   "Build, rebuild on change and serve with live reload",
	Long: `Run the full build, then watch every task's source glob and re-run the
matching task when a file changes. The output directory is served with a
live reload client injected into every page: stylesheets are swapped in
place, everything else reloads the page, and build errors are shown as an
overlay until they are fixed.

Task errors never stop the watcher.

Examples:
  sitepipe watch                       # Serve on localhost:3000
  sitepipe watch -p 8080 --open        # Different port, open a browser
  sitepipe watch --skip-initial-build  # Serve what is already built`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchSkipInitialBuild bool
	watchNoMetrics        bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	addBuildFlags(watchCmd)
	addServerFlags(watchCmd)
	watchCmd.Flags().BoolVar(&watchSkipInitialBuild, "skip-initial-build", false, "Do not build before watching")
	watchCmd.Flags().BoolVar(&watchNoMetrics, "no-metrics", false, "Do not expose "+server.MetricsPath)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServerFlags(cmd, cfg); err != nil {
		return err
	}
	if err := checkSource(cfg); err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if !watchNoMetrics {
		recorder = metrics.NewPrometheusRecorder(prometheus.NewRegistry())
	}

	session, err := dev.NewSession(cfg, dev.Options{
		SkipInitialBuild: watchSkipInitialBuild,
		Recorder:         recorder,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	go func() {
		select {
		case <-session.Server().Ready():
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at %s\n", cfg.Server.BaseDir, session.Server().URL())
		case <-ctx.Done():
		}
	}()

	return session.Run(ctx)
}
