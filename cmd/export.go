package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	appconfig "github.com/slack-gardener/gardener/internal/config"
	"github.com/slack-gardener/gardener/internal/export"
	"github.com/slack-gardener/gardener/internal/slackapi"
)

var (
	exportOutput   string
	exportChannels []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export channel members as CSV",
	Long: `
The export command writes a CSV report of channel memberships: one row
per member with the channel name, the member's real name and email.
`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "members.csv", "Path of the CSV file to write")
	exportCmd.Flags().StringSliceVar(&exportChannels, "channels", nil, "Channel names to export (default: all)")
}

func runExport(cmd *cobra.Command, args []string) error {
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

	logger := log.New(os.Stdout, "", log.LstdFlags)
	client := slackapi.NewClient(slack.New(cfg.BotToken), slackapi.WithLogger(logger))

	out, err := os.Create(exportOutput)
	if err != nil {
		return fmt.Errorf("create %s: %w", exportOutput, err)
	}
	defer func() { _ = out.Close() }()

	exporter := export.NewMemberExporter(client, logger)
	if err := exporter.Export(cmd.Context(), out, exportChannels); err != nil {
		return err
	}
	logger.Printf("wrote %s", exportOutput)
	return nil
}
