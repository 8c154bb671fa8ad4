package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/spikely/platform/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored insights, newest first",
		Run:   runHistory,
	}

	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	insights, err := s.ListInsights(cmd.Context(), limit)
	if err != nil {
		exitErr("history", err)
	}

	if formatFlag == "text" {
		printInsights(os.Stdout, insights)
		return
	}
	if insights == nil {
		insights = []model.Insight{}
	}
	printJSON(os.Stdout, insights)
}
