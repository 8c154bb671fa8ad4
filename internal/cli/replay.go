package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spikely/platform/internal/clients"
	"github.com/spikely/platform/internal/replay"
)

func init() {
	cmd := &cobra.Command{
		Use:   "replay [scenario.yaml]",
		Short: "Replay a scripted stream through the correlator",
		Long: "Feeds the scenario's transcript lines and viewer counts into a fresh session and prints the insights. " +
			"Without --scoring-url every insight comes from the fallback templates.",
		Args: cobra.ExactArgs(1),
		Run:  runReplay,
	}

	cmd.Flags().String("scoring-url", "", "Scoring and tone service base URL")
	cmd.Flags().Bool("save", false, "Persist emitted insights to the database")
	cmd.Flags().Int("min-delta", 0, "Override the scenario's minDelta")

	RootCmd.AddCommand(cmd)
}

func runReplay(cmd *cobra.Command, args []string) {
	scoringURL, _ := cmd.Flags().GetString("scoring-url")
	save, _ := cmd.Flags().GetBool("save")
	minDelta, _ := cmd.Flags().GetInt("min-delta")

	sc, err := replay.Load(args[0])
	if err != nil {
		exitErr("load scenario", err)
	}
	if minDelta > 0 {
		sc.MinDelta = minDelta
	}

	var opts replay.Options
	if scoringURL != "" {
		c := clients.NewHTTP(scoringURL, scoringURL)
		opts.Scorer = c
		opts.Classifier = c
	}
	if save {
		s, err := openStore()
		if err != nil {
			exitErr("open store", err)
		}
		defer s.Close()
		opts.History = s
	}

	res, err := replay.Run(cmd.Context(), sc, opts)
	if err != nil {
		exitErr("replay", err)
	}

	if formatFlag == "text" {
		fmt.Printf("scenario %q: %d insights\n", res.Scenario, len(res.Insights))
		printInsights(os.Stdout, res.Insights)
		return
	}
	printJSON(os.Stdout, res)
}
