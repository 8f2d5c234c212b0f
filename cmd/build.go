package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conneroisu/sitepipe/internal/build"
	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Clean the output directory and run every task",
	Long: `Remove the output directory, then run every task in parallel:
styles, css, templates, scripts, images, files and fonts.

A task that fails on one file keeps going with the rest. The command exits
non-zero when any file failed, after every task has finished.

Examples:
  sitepipe build              # Clean and build
  sitepipe build --minify     # Minify styles, css, scripts and pages
  sitepipe build -j 2         # Process at most two files per task at once`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

var runCmd = &cobra.Command{
	Use:   "run <task>...",
	Short: "Run individual tasks without cleaning",
	Long: `Run the named tasks in parallel. The output directory is not cleaned.

Tasks: styles, css, templates (alias minify), scripts, images, files, fonts.

Examples:
  sitepipe run styles
  sitepipe run templates scripts
  sitepipe run -t styles,css`,
	ValidArgsFunction: completeTasks,
	RunE:              runTasks,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the output directory",
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

var runTaskFlag taskList

func init() {
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanCmd)

	addBuildFlags(buildCmd)
	addBuildFlags(runCmd)
	runCmd.Flags().VarP(&runTaskFlag, "tasks", "t", "Comma separated tasks to run")
}

// signalContext is canceled on interrupt or termination.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newPipeline(cmd *cobra.Command) (*config.Config, *build.Pipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	p, err := build.New(afero.NewOsFs(), cfg, build.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return cfg, p, nil
}

func checkSource(cfg *config.Config) error {
	if _, err := os.Stat(filepath.FromSlash(cfg.Source)); err != nil {
		if os.IsNotExist(err) {
			return errors.NewEnhancedError(fmt.Sprintf("Source directory %s does not exist", cfg.Source), nil,
				errors.MissingSourceError(&errors.SuggestionContext{SourceDir: cfg.Source}))
		}
		return err
	}
	return nil
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, p, err := newPipeline(cmd)
	if err != nil {
		return err
	}
	if err := checkSource(cfg); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	report, err := p.Build(ctx)
	printReport(cmd, report)
	if err != nil {
		if n := report.Errors().Len(); n > 0 {
			return fmt.Errorf("build failed with %d error(s)", n)
		}
		return err
	}
	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	names := append(append([]string(nil), args...), runTaskFlag...)
	if len(names) == 0 {
		return fmt.Errorf("no task named; choose from %v", taskNames())
	}

	_, p, err := newPipeline(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	report, err := p.Run(ctx, names...)
	if report == nil {
		return err
	}
	printReport(cmd, report)
	if err != nil {
		if n := report.Errors().Len(); n > 0 {
			return fmt.Errorf("%d task error(s)", n)
		}
		return err
	}
	return nil
}

func runClean(cmd *cobra.Command, _ []string) error {
	cfg, p, err := newPipeline(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd)
	defer stop()
	if err := p.Clean(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", cfg.Output)
	return nil
}

func printReport(cmd *cobra.Command, report *pipeline.Report) {
	if report == nil {
		return
	}
	out := cmd.OutOrStdout()
	for _, line := range build.Summary(report) {
		fmt.Fprintln(out, line)
	}
	for _, e := range report.Errors().Errors() {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", e.Error())
	}
}
