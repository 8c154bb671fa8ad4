// Package cli implements the spikectl commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spikely/platform/internal/store"
)

var (
	dbPath     string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "spikectl",
	Short: "Inspect and replay viewer spike insights",
	Long:  "Replays scripted streams through the correlator and reads the local insight history.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $DB_PATH or spikely.db)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("DB_PATH"); env != "" {
		return env
	}
	return "spikely.db"
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath())
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
