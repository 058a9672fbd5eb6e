package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"notecore/internal/config"
	"notecore/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

var createTablesCmd = &cobra.Command{
	Use:   "create-tables",
	Short: "Create the database and apply all migrations",
	RunE:  runMigrate,
}

var dropTablesCmd = &cobra.Command{
	Use:   "drop-tables",
	Short: "Drop every table this service owns",
	RunE:  runDropTables,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	db, err := storage.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	fmt.Println("migrations applied")
	return nil
}

func runDropTables(cmd *cobra.Command, args []string) error {
	if !confirm("Are you sure to drop all tables?") {
		fmt.Println("aborted")
		return nil
	}

	cfg, err := config.Load(envFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	db, err := storage.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	if err := storage.Reset(ctx, db); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	fmt.Println("tables dropped")
	return nil
}

// confirm mirrors click.confirm's default-false y/N prompt.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
