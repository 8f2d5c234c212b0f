package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/sitepipe/internal/config"
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"ls"},
	Short:   "List the asset tasks with their globs and destinations",
	Args:    cobra.NoArgs,
	RunE:    runTasksList,
}

var tasksFormat string

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.Flags().StringVarP(&tasksFormat, "format", "f", "table", "Output format (table, json)")
}

type taskInfo struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Dest   string `json:"dest"`
	Reload string `json:"reload"`
}

func taskInfos(cfg *config.Config) []taskInfo {
	infos := make([]taskInfo, 0, len(config.Categories()))
	for _, cat := range config.Categories() {
		m := cfg.Mapping(cat)
		infos = append(infos, taskInfo{Name: string(cat), Source: m.Src, Dest: m.Dest, Reload: m.Reload})
	}
	return infos
}

func runTasksList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	infos := taskInfos(cfg)
	out := cmd.OutOrStdout()

	switch tasksFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "table":
		title := cases.Title(language.English)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tSOURCE\tDESTINATION\tRELOAD")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", title.String(info.Name), info.Source, info.Dest, info.Reload)
		}
		fmt.Fprintf(w, "Server\t%s\t\t\n", cfg.Server.BaseDir)
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json)", tasksFormat)
	}
}
