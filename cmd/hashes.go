package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	appconfig "github.com/slack-gardener/gardener/internal/config"
	"github.com/slack-gardener/gardener/internal/profile"
	"github.com/slack-gardener/gardener/internal/slackapi"
)

var hashesCmd = &cobra.Command{
	Use:   "hashes",
	Short: "Print the MD5 hashes of the workspace's default avatars",
	Long: `
The hashes command downloads every active user's 24px avatar, hashes it,
and prints the hashes shared by more than three accounts. These identify
Slack's generated default avatars and feed the profile picture rule.
`,
	RunE: runHashes,
}

func runHashes(cmd *cobra.Command, args []string) error {
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

	logger := log.New(os.Stderr, "", log.LstdFlags)
	client := slackapi.NewClient(slack.New(cfg.BotToken), slackapi.WithLogger(logger))

	hashes, err := profile.DefaultAvatarHashes(cmd.Context(), client, nil, logger)
	if err != nil {
		return err
	}
	for sum := range hashes {
		fmt.Println(sum)
	}
	return nil
}
