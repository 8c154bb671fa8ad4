package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-topic insight statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.TopicStats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	if formatFlag == "text" {
		printTopicStats(os.Stdout, stats)
		return
	}
	printJSON(os.Stdout, stats)
}
