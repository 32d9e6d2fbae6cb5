package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	appconfig "github.com/slack-gardener/gardener/internal/config"
	"github.com/slack-gardener/gardener/internal/gardener"
	"github.com/slack-gardener/gardener/internal/metrics"
	"github.com/slack-gardener/gardener/internal/slackapi"
)

var (
	channelsDryRun      bool
	channelsConcurrency int
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Warn and archive idle channels",
	Long: `
The channels command classifies every public channel as active, stale or
stale-and-warned by scanning its history against the configured idle
period. Stale channels receive a warning message; channels whose warning
has outlived the grace period are archived.
`,
	RunE: runChannels,
}

func init() {
	channelsCmd.Flags().BoolVar(&channelsDryRun, "dry-run", false, "Log actions without posting or archiving")
	channelsCmd.Flags().IntVarP(&channelsConcurrency, "concurrency", "c", 0, "Number of channels processed at once (0 = config default)")
}

func runChannels(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := appconfig.LoadSecrets(cmd.Context(), cfg); err != nil {
		return err
	}
	if err := cfg.RequireTokens(); err != nil {
		return err
	}
	if channelsDryRun {
		cfg.DryRun = true
	}
	if channelsConcurrency > 0 {
		cfg.Concurrency = channelsConcurrency
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	client := slackapi.NewClient(slack.New(cfg.BotToken), slackapi.WithLogger(logger))

	bot, err := client.BotIdentity(cmd.Context())
	if err != nil {
		return err
	}

	calculator := gardener.NewStateCalculator(
		client,
		cfg.IdlePeriod(),
		cfg.LongIdleChannels,
		cfg.LongIdlePeriod(),
		cfg.WarningMessage,
		gardener.WithCalculatorLogger(logger),
	)
	g := gardener.NewGardener(
		client,
		calculator,
		bot,
		cfg.WarningMessage,
		cfg.WarningGracePeriod(),
		cfg.DryRun,
		gardener.WithConcurrency(cfg.Concurrency),
		gardener.WithLogger(logger),
	)

	summary, err := g.Process(cmd.Context())
	if err != nil {
		return err
	}

	recordRun(logger, metrics.RunRecord{
		Mode:     metrics.ModeChannels,
		Scanned:  summary.Channels,
		Warned:   summary.Warned,
		Archived: summary.Archived,
		Failed:   summary.Failed,
		DryRun:   cfg.DryRun,
		Elapsed:  summary.Elapsed,
	})

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d channels failed", summary.Failed, summary.Channels)
	}
	return nil
}
