package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stitts-dev/pick-research/internal/app"
	"github.com/stitts-dev/pick-research/internal/pipeline"
	"github.com/stitts-dev/pick-research/pkg/config"
	"github.com/stitts-dev/pick-research/pkg/logger"
	"github.com/stitts-dev/pick-research/pkg/utils"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitSetup   = 2
)

var (
	date        string
	sport       string
	picks       int
	generator   string
	jsonSummary bool
)

var rootCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one pick generation pass end to end",
	Long: `Loads the candidate catalog for a date, plans and runs research,
synthesizes picks with the LLM, validates them against the catalog and
persists the accepted rows.

A date with no games, or a run that produces zero picks, exits 0.

Example:
  generate --date 2025-01-14 --sport NBA --picks 8 --generator props`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runGenerate,
}

func init() {
	rootCmd.Flags().StringVar(&date, "date", "", "game date YYYY-MM-DD (default today in TIMEZONE)")
	rootCmd.Flags().StringVar(&sport, "sport", "", "restrict candidates to one sport, e.g. NBA")
	rootCmd.Flags().IntVar(&picks, "picks", 0, "target number of picks (default from the generator)")
	rootCmd.Flags().StringVar(&generator, "generator", "props", "generator to run")
	rootCmd.Flags().BoolVar(&jsonSummary, "json", false, "print the run summary as JSON")
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps a run error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var setupErr *config.SetupError
	if errors.As(err, &setupErr) {
		return exitSetup
	}
	return exitFailure
}

func runGenerate(cmd *cobra.Command, args []string) error {
	// 2025-02-30 passes and ends as a run with no games
	if date != "" && !utils.IsDateShape(date) {
		return &config.SetupError{Field: "--date", Reason: "must be YYYY-MM-DD"}
	}
	if picks < 0 {
		return &config.SetupError{Field: "--picks", Reason: "must be positive"}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return &config.SetupError{Field: "config", Reason: err.Error()}
	}
	log := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())

	application, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := application.Runner.Run(ctx, pipeline.RunRequest{
		Date:        date,
		Sport:       sport,
		Generator:   generator,
		TargetCount: picks,
	})
	if summary != nil {
		printSummary(cmd, summary)
	}
	return err
}

func printSummary(cmd *cobra.Command, summary *pipeline.RunSummary) {
	out := cmd.OutOrStdout()
	if jsonSummary {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
		return
	}

	fmt.Fprintln(out, summary.String())
	for _, p := range summary.Picks {
		market := p.BetType
		if p.PlayerName != "" {
			market = p.PlayerName + " " + p.PropType
		}
		fmt.Fprintf(out, "  %-28s %-34s %-6s %7s %+5d  %5.1f%%  %s\n",
			p.AwayTeam+" @ "+p.HomeTeam, market, p.Side, lineText(p.Line), p.Odds, p.Confidence, p.Bookmaker)
	}
	for _, t := range summary.Trends {
		fmt.Fprintf(out, "  %-24s %-40s %5.1f%%\n", t.Subject, t.Title, t.Confidence)
	}
}

func lineText(line *float64) string {
	if line == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *line)
}
