package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gritsync/internal/common/config"
	"gritsync/internal/common/database"
	"gritsync/internal/common/logger"
	"gritsync/internal/session"
	"gritsync/internal/store"
)

var showCmd = &cobra.Command{
	Use:   "show <application-id>",
	Short: "Print the step tree of one application",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var (
	showJSON    bool
	showTimeout time.Duration
)

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the full view as JSON")
	showCmd.Flags().DurationVar(&showTimeout, "timeout", 10*time.Second, "Database timeout")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	defer pg.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), showTimeout)
	defer cancel()

	log := logger.NewZapAdapter(logger.New("warn", "console"))
	sess := session.New(args[0], store.New(pg.DB), log)
	if err := sess.Load(ctx); err != nil && !sess.Loaded() {
		if sess.Missing() {
			return fmt.Errorf("application %s not found", args[0])
		}
		return fmt.Errorf("failed to load application: %w", err)
	}

	view := sess.View()
	out := cmd.OutOrStdout()
	if showJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	writeView(out, view)
	return nil
}
