package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	appconfig "github.com/slack-gardener/gardener/internal/config"
	"github.com/slack-gardener/gardener/internal/metrics"
	"github.com/slack-gardener/gardener/internal/profile"
	"github.com/slack-gardener/gardener/internal/slackapi"
)

var (
	profilesDryRun      bool
	profilesConcurrency int
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Nudge users with incomplete profiles",
	Long: `
The profiles command checks every active user's profile against the
required-field rules (real name, display name, title, home base, profile
picture) and sends a direct-message reminder to users with missing
fields, at most once per re-warn period.
`,
	RunE: runProfiles,
}

func init() {
	profilesCmd.Flags().BoolVar(&profilesDryRun, "dry-run", false, "Log reminders without sending them")
	profilesCmd.Flags().IntVarP(&profilesConcurrency, "concurrency", "c", 0, "Number of users processed at once (0 = config default)")
}

func runProfiles(cmd *cobra.Command, args []string) error {
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
	if profilesDryRun {
		cfg.DryRun = true
	}
	if profilesConcurrency > 0 {
		cfg.Concurrency = profilesConcurrency
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	client := slackapi.NewClient(slack.New(cfg.BotToken), slackapi.WithLogger(logger))

	logger.Println("collecting default avatar hashes...")
	hashes, err := profile.DefaultAvatarHashes(cmd.Context(), client, nil, logger)
	if err != nil {
		return err
	}
	logger.Printf("%d default avatar hashes found", len(hashes))

	checker := profile.NewChecker(
		client,
		profile.DefaultRules(hashes),
		cfg.ProfileWarningMessage,
		cfg.ProfileRewarnPeriod(),
		cfg.DryRun,
		profile.WithCheckerConcurrency(cfg.Concurrency),
		profile.WithCheckerLogger(logger),
	)

	start := time.Now()
	summary, err := checker.Process(cmd.Context())
	if err != nil {
		return err
	}

	recordRun(logger, metrics.RunRecord{
		Mode:    metrics.ModeProfiles,
		Started: start,
		Scanned: summary.Users,
		Warned:  summary.Warned,
		Failed:  summary.Failed,
		DryRun:  cfg.DryRun,
		Elapsed: summary.Elapsed,
	})

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d users failed", summary.Failed, summary.Users)
	}
	return nil
}
