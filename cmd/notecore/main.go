// Command notecore runs the note service: an HTTP API over a
// SQLite-backed store of posts, hierarchical hashtags, and a bilingual
// full-text index.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envFlag string

var rootCmd = &cobra.Command{
	Use:   "notecore",
	Short: "Bilingual note service: search, tags, and post storage",
	Long: `notecore serves a personal note-taking API: hierarchical hashtags,
TF-IDF full-text search over Chinese and English content, and a post
tree with soft delete and retention.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFlag, "env", "", "environment to load (development, production, test); defaults to NOTECORE_ENV")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(createTablesCmd)
	rootCmd.AddCommand(dropTablesCmd)
	rootCmd.AddCommand(userCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
