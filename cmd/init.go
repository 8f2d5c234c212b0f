package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/sitepipe/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Write a default configuration and the source skeleton",
	Long: `Write .sitepipe.yml with every asset category filled in and create one
source directory per category. Unless --minimal is given, a layout, an
index page, a stylesheet and a script are added so the first build has
something to show.

Examples:
  sitepipe init              # In the current directory
  sitepipe init my-site      # In a new directory
  sitepipe init --force      # Overwrite an existing .sitepipe.yml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initForce   bool
	initMinimal bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
	initCmd.Flags().BoolVar(&initMinimal, "minimal", false, "Only create directories, no starter files")
}

var starterFiles = map[string]string{
	"templates/_layout.html": `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{ .Title }}</title>
  <link rel="stylesheet" href="{{ .Root }}css/main.css">
</head>
<body>
  {{ .Content }}
  <script src="{{ .Root }}js/main.js"></script>
</body>
</html>
`,
	"templates/index.md": `---
title: Home
---
# It works

Edit app/templates/index.md and the page reloads.
`,
	"sass/main.scss": `$text: #222;
$accent: #0366d6;

body {
  color: $text;
  font-family: system-ui, sans-serif;

  a {
    color: $accent;
    &:hover { text-decoration: underline; }
  }
}
`,
	"js/main.js": "console.log(\"sitepipe\");\n",
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create project directory: %w", err)
		}
	}

	cfg := config.Default()
	out := cmd.OutOrStdout()

	path := filepath.Join(dir, config.DefaultFileName)
	if err := cfg.WriteFile(path, initForce); err != nil {
		return fmt.Errorf("%w (use --force to overwrite)", err)
	}
	fmt.Fprintln(out, "Wrote", path)

	created, err := cfg.Scaffold(dir)
	if err != nil {
		return err
	}
	for _, d := range created {
		fmt.Fprintln(out, "Created", d)
	}

	if initMinimal {
		return nil
	}
	for rel, content := range starterFiles {
		name := filepath.Join(dir, filepath.FromSlash(cfg.Source), filepath.FromSlash(rel))
		if _, err := os.Stat(name); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		fmt.Fprintln(out, "Wrote", name)
	}
	return nil
}
