// Package cmd provides the command-line interface for sitepipe.
//
// Configuration is read from, in order of precedence:
//  1. command-line flags (--config, --log-level, --port, ...)
//  2. SITEPIPE_* environment variables, including ones set in .env
//  3. the configuration file (.sitepipe.yml, or SITEPIPE_CONFIG_FILE)
//  4. built-in defaults
//
// Nested keys map to environment variables with dots replaced by
// underscores, so server.port is SITEPIPE_SERVER_PORT.
package cmd

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

var cfgFile string

// rootCmd builds the site when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "sitepipe",
	Short: "Static site asset pipeline with a live reload dev server",
	Long: `sitepipe turns a source tree of page templates, stylesheets, scripts,
images, files and fonts into a publishable site.

Each asset category maps a source glob to a destination directory:

  templates  app/templates/**/*.+(html|tmpl|md)  -> public
  styles     app/sass/**/*.+(sass|scss)          -> public/css
  css        app/css/**/*.css                    -> public/css
  scripts    app/js/**/*                         -> public/js
  images     app/images/**/*.+(png|jpeg|jpg|gif|svg) -> public/images
  files      app/files/**/*.+(png|jpeg|jpg|gif|svg)  -> public/files
  fonts      app/fonts/*                         -> public/fonts

Quick Start:
  sitepipe init          Write .sitepipe.yml and the source skeleton
  sitepipe               Clean and build everything (same as sitepipe build)
  sitepipe watch         Build, then rebuild on change and serve with live reload
  sitepipe run styles    Run individual tasks`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBuild,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .sitepipe.yml, can also use SITEPIPE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	addBuildFlags(rootCmd)
}

// initConfig points viper at the configuration file and the environment.
// A .env file in the working directory is loaded first so it can carry
// SITEPIPE_* overrides, including SITEPIPE_CONFIG_FILE.
func initConfig() {
	if err := config.LoadDotEnv("."); err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SITEPIPE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(strings.TrimSuffix(config.DefaultFileName, ".yml"))
	}

	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) && (cfgFile != "" || !os.IsNotExist(err)) {
			fmt.Fprintln(os.Stderr, "Warning: reading config:", err)
		}
	}
}

// loadConfig loads and validates the configuration, attaching suggestions
// to validation failures.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		var ve *config.ValidationError
		if stderrors.As(err, &ve) {
			return nil, errors.NewEnhancedError("Invalid configuration", err,
				errors.ConfigurationError(ve.Message, &errors.SuggestionContext{ConfigPath: viper.ConfigFileUsed()}))
		}
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger creates the command's logger from the configuration.
func newLogger(cmd *cobra.Command, cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	}), nil
}
