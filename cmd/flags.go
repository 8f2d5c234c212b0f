package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/sitepipe/internal/build"
	"github.com/conneroisu/sitepipe/internal/config"
)

// taskList is a comma separated list of task names, validated as it is
// parsed. Repeating the flag appends.
type taskList []string

var _ pflag.Value = (*taskList)(nil)

func (t *taskList) String() string { return strings.Join(*t, ",") }

func (t *taskList) Type() string { return "tasks" }

func (t *taskList) Set(value string) error {
	for _, name := range strings.Split(value, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := build.ResolveTask(name); !ok {
			return fmt.Errorf("unknown task %q (known: %s)", name, strings.Join(taskNames(), ", "))
		}
		*t = append(*t, name)
	}
	return nil
}

func taskNames() []string {
	names := make([]string, 0, len(config.Categories()))
	for _, c := range config.Categories() {
		names = append(names, string(c))
	}
	return names
}

// completeTasks offers task names for shell completion.
func completeTasks(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	used := make(map[string]bool, len(args))
	for _, a := range args {
		used[a] = true
	}
	var out []string
	for _, name := range taskNames() {
		if !used[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, cobra.ShellCompDirectiveNoFileComp
}

// addBuildFlags adds the flags shared by every command that runs tasks.
func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("minify", false, "Minify styles, css, scripts and pages")
	cmd.Flags().IntP("concurrency", "j", 0, "Files processed at once per task (default from config)")
	cmd.PreRunE = chainPreRun(cmd.PreRunE, func(cmd *cobra.Command, _ []string) error {
		if err := viper.BindPFlag("build.minify", cmd.Flags().Lookup("minify")); err != nil {
			return err
		}
		return viper.BindPFlag("build.concurrency", cmd.Flags().Lookup("concurrency"))
	})
}

// addServerFlags adds the dev server flags. They override the configuration
// only when given.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 3000, "Port to serve on (0 picks a free port)")
	cmd.Flags().String("host", "localhost", "Host to bind to")
	cmd.Flags().Bool("open", false, "Open the site in a browser")
}

// applyServerFlags copies explicitly set server flags onto cfg.
func applyServerFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		port, _ := flags.GetInt("port")
		cfg.Server.Port = port
	}
	if flags.Changed("host") {
		host, _ := flags.GetString("host")
		cfg.Server.Host = host
	}
	if flags.Changed("open") {
		open, _ := flags.GetBool("open")
		cfg.Server.Open = open
	}
	return cfg.Validate()
}

func chainPreRun(first, second func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	if first == nil {
		return second
	}
	return func(cmd *cobra.Command, args []string) error {
		if err := first(cmd, args); err != nil {
			return err
		}
		return second(cmd, args)
	}
}
