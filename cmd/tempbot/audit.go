package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/viresathorn804-oss/discord-bot5/internal/config"
	"github.com/viresathorn804-oss/discord-bot5/internal/storage"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read the moderation audit log",
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the newest audit entries",
	Long: `Print the newest audit entries from the storage configured in --config,
newest first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.NewConfigManager(cfgPath).Load()
		if err != nil {
			return err
		}
		if cfg.StorageDriver() == "none" {
			return fmt.Errorf("audit storage is disabled in %s", cfgPath)
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, config.DefaultBusyTimeout)
		if err != nil {
			return err
		}
		st, err := storage.Open(storage.Config{
			Driver:      cfg.StorageDriver(),
			Path:        strings.TrimSpace(cfg.Storage.Path),
			BusyTimeout: busy,
			ReadOnly:    true,
		}, logx.Nop())
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.RecentAudit(cmd.Context(), auditLimit)
		if err != nil {
			return err
		}
		return printAudit(cmd.OutOrStdout(), entries)
	},
}

func init() {
	auditTailCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "number of entries")
	auditCmd.AddCommand(auditTailCmd)
}

func printAudit(w io.Writer, entries []storage.AuditEntry) error {
	for _, e := range entries {
		status := "ok"
		if !e.OK {
			status = "FAILED"
			if e.Error != "" {
				status += ": " + e.Error
			}
		}
		line := fmt.Sprintf("%s %-20s %s/%s", e.At.UTC().Format(time.RFC3339), e.Event, e.ScopeID, e.SubjectID)
		if e.ActorID != "" {
			line += " by " + e.ActorID
		}
		if !e.DueAt.IsZero() {
			line += " due " + e.DueAt.UTC().Format(time.RFC3339)
		}
		if _, err := fmt.Fprintf(w, "%s [%s]\n", line, status); err != nil {
			return err
		}
	}
	return nil
}
