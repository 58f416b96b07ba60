package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/viresathorn804-oss/discord-bot5/internal/config"
	"github.com/viresathorn804-oss/discord-bot5/internal/schedule"
)

var (
	listStatePath string
	listJSON      bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect the durable lift schedule",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print pending lifts from the state file",
	Long: `Print the pending lifts recorded in the state file, earliest first.

The file is only read. It is safe to run while the bot is up, but the
output reflects the last successful save.

Examples:
  tempbot schedule list --state ./data/tempbans.json
  tempbot schedule list --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fs, err := schedule.NewFileStore(listStatePath)
		if err != nil {
			return err
		}
		actions, err := fs.Load()
		if err != nil {
			return err
		}
		return printSchedule(cmd.OutOrStdout(), actions, listJSON, time.Now())
	},
}

func init() {
	scheduleListCmd.Flags().StringVar(&listStatePath, "state", config.DefaultStatePath, "schedule state file")
	scheduleListCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON instead of a table")
	scheduleCmd.AddCommand(scheduleListCmd)
}

type listedAction struct {
	ScopeID   string    `json:"scope_id"`
	SubjectID string    `json:"subject_id"`
	Kind      string    `json:"kind"`
	DueAt     time.Time `json:"due_at"`
	Overdue   bool      `json:"overdue"`
}

func printSchedule(w io.Writer, actions []schedule.ScheduledAction, asJSON bool, now time.Time) error {
	schedule.SortByDue(actions)
	if asJSON {
		out := make([]listedAction, 0, len(actions))
		for _, a := range actions {
			out = append(out, listedAction{
				ScopeID:   a.ScopeID,
				SubjectID: a.SubjectID,
				Kind:      string(a.Kind),
				DueAt:     a.DueAt.UTC(),
				Overdue:   !a.DueAt.After(now),
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(actions) == 0 {
		_, err := fmt.Fprintln(w, "no pending lifts")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCOPE\tSUBJECT\tKIND\tDUE\tIN")
	for _, a := range actions {
		in := "overdue"
		if left := a.DueAt.Sub(now); left > 0 {
			in = left.Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ScopeID, a.SubjectID, a.Kind, a.DueAt.UTC().Format(time.RFC3339), in)
	}
	return tw.Flush()
}
