// Package export writes channel membership reports as CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"

	"github.com/slack-gardener/gardener/internal/gardener"
)

const memberFetchConcurrency = 4

// MembershipAPI is the slice of the Slack collaborator the exporter needs.
type MembershipAPI interface {
	ListChannels(ctx context.Context) ([]gardener.Channel, error)
	ChannelMembers(ctx context.Context, channelID string) ([]string, error)
	ListUsers(ctx context.Context) ([]slack.User, error)
}

// MemberExporter writes one CSV row per (channel, member) pair with the
// member's real name and email.
type MemberExporter struct {
	api    MembershipAPI
	logger *log.Logger
}

// NewMemberExporter constructs an exporter.
func NewMemberExporter(api MembershipAPI, logger *log.Logger) *MemberExporter {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &MemberExporter{api: api, logger: logger}
}

// Export writes the report for the named channels to w. An empty channels
// slice exports every channel.
func (e *MemberExporter) Export(ctx context.Context, w io.Writer, channelNames []string) error {
	channels, err := e.api.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	channels = filterChannels(channels, channelNames)

	users, err := e.api.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	byID := make(map[string]slack.User, len(users))
	for _, user := range users {
		byID[user.ID] = user
	}

	// Member lists fetch concurrently; rows still write in roster order.
	memberLists := make([][]string, len(channels))
	sem := make(chan struct{}, memberFetchConcurrency)
	eg, egCtx := errgroup.WithContext(ctx)
	for i, channel := range channels {
		sem <- struct{}{}
		eg.Go(func() error {
			defer func() { <-sem }()
			members, err := e.api.ChannelMembers(egCtx, channel.ID)
			if err != nil {
				return fmt.Errorf("members of %s: %w", channel.Name, err)
			}
			memberLists[i] = members
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"channel", "member", "email"}); err != nil {
		return err
	}

	for i, channel := range channels {
		members := memberLists[i]
		e.logger.Printf("%s: %d members", channel.Name, len(members))

		rows := make([][]string, 0, len(members))
		for _, id := range members {
			user, ok := byID[id]
			if !ok {
				// Deactivated accounts still appear in member lists.
				rows = append(rows, []string{channel.Name, id, ""})
				continue
			}
			rows = append(rows, []string{channel.Name, user.Profile.RealName, user.Profile.Email})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i][1] < rows[j][1] })

		for _, row := range rows {
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func filterChannels(channels []gardener.Channel, names []string) []gardener.Channel {
	if len(names) == 0 {
		return channels
	}
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}
	filtered := channels[:0]
	for _, channel := range channels {
		if _, ok := wanted[channel.Name]; ok {
			filtered = append(filtered, channel)
		}
	}
	return filtered
}
