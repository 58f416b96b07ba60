package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tempbot",
	Short: "Moderation bot with durable temporary bans",
	Long: `tempbot bans chat members on Discord or Telegram and lifts temporary bans
automatically, even across restarts.

Running tempbot without a subcommand is the same as "tempbot run".`,
	SilenceUsage: true,
	RunE:         runBot,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	rootCmd.AddCommand(runCmd, scheduleCmd, auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
