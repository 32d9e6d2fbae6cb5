// Package slackapi wraps the Slack Web API behind the narrow contracts the
// gardener core consumes: cursor-paged listing, bounded-window history pages
// and the write calls. Rate limiting and 429 retries live here so the core
// never sees them.
package slackapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"github.com/slack-gardener/gardener/internal/gardener"
)

// SlackAPI is the subset of the Slack Web API client used by the gardener.
type SlackAPI interface {
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	ArchiveConversationContext(ctx context.Context, channelID string) error
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
	GetUserProfileContext(ctx context.Context, params *slack.GetUserProfileParameters) (*slack.UserProfile, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	GetUsersInConversationContext(ctx context.Context, params *slack.GetUsersInConversationParameters) ([]string, string, error)
}

// Client implements the collaborator contracts over a SlackAPI.
type Client struct {
	api     SlackAPI
	limiter *rate.Limiter
	sleep   func(time.Duration)
	logger  *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimiter overrides the default request limiter.
func WithRateLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithSleeper overrides the sleep used between 429 retries, used by tests.
func WithSleeper(sleep func(time.Duration)) ClientOption {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient wraps api with rate limiting and retry handling.
func NewClient(api SlackAPI, opts ...ClientOption) *Client {
	c := &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		sleep:   time.Sleep,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListChannels returns the full unarchived channel roster, following the
// server's cursor until it comes back empty.
func (c *Client) ListChannels(ctx context.Context) ([]gardener.Channel, error) {
	var (
		channels []gardener.Channel
		cursor   string
	)
	for {
		params := &slack.GetConversationsParameters{
			Cursor:          cursor,
			ExcludeArchived: true,
			Limit:           200,
			Types:           []string{"public_channel"},
		}
		var (
			page []slack.Channel
			next string
		)
		err := c.call(ctx, "conversations.list", func() error {
			var err error
			page, next, err = c.api.GetConversationsContext(ctx, params)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		for _, ch := range page {
			channels = append(channels, toChannel(ch))
		}
		if next == "" {
			return channels, nil
		}
		cursor = next
	}
}

// History fetches one page of channel history between oldest and latest,
// both inclusive. A missing channel reads as an empty page rather than an
// error so deleted channels can be re-queried safely.
func (c *Client) History(ctx context.Context, channel gardener.Channel, oldest, latest gardener.Timestamp) ([]gardener.Message, bool, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channel.ID,
		Oldest:    oldest.String(),
		Latest:    latest.String(),
		Inclusive: true,
		Limit:     200,
	}
	var resp *slack.GetConversationHistoryResponse
	err := c.call(ctx, "conversations.history", func() error {
		var err error
		resp, err = c.api.GetConversationHistoryContext(ctx, params)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("conversation history channel=%s: %w", channel.ID, err)
	}

	messages := make([]gardener.Message, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		messages = append(messages, toMessage(msg))
	}
	return messages, resp.HasMore, nil
}

// PostMessage posts text to a channel as the bot.
func (c *Client) PostMessage(ctx context.Context, channelID, text string) error {
	err := c.call(ctx, "chat.postMessage", func() error {
		_, _, err := c.api.PostMessageContext(ctx, channelID,
			slack.MsgOptionText(text, false))
		return err
	})
	if err != nil {
		return fmt.Errorf("post message channel=%s: %w", channelID, err)
	}
	return nil
}

// ArchiveChannel archives a channel. Archiving a channel that is already
// archived or gone is treated as success.
func (c *Client) ArchiveChannel(ctx context.Context, channelID string) error {
	err := c.call(ctx, "conversations.archive", func() error {
		return c.api.ArchiveConversationContext(ctx, channelID)
	})
	if err != nil {
		if isNotFound(err) || strings.Contains(err.Error(), "already_archived") {
			return nil
		}
		return fmt.Errorf("archive channel=%s: %w", channelID, err)
	}
	return nil
}

// BotIdentity resolves the authenticated bot's user and bot ids. A missing
// bot id is a hard failure: without it warning messages cannot be matched.
func (c *Client) BotIdentity(ctx context.Context) (gardener.BotIdentity, error) {
	var auth *slack.AuthTestResponse
	err := c.call(ctx, "auth.test", func() error {
		var err error
		auth, err = c.api.AuthTestContext(ctx)
		return err
	})
	if err != nil {
		return gardener.BotIdentity{}, fmt.Errorf("auth test: %w", err)
	}

	var user *slack.User
	err = c.call(ctx, "users.info", func() error {
		var err error
		user, err = c.api.GetUserInfoContext(ctx, auth.UserID)
		return err
	})
	if err != nil {
		return gardener.BotIdentity{}, fmt.Errorf("get bot user %s: %w", auth.UserID, err)
	}
	if user.Profile.BotID == "" {
		return gardener.BotIdentity{}, fmt.Errorf("user %s has no bot id", auth.UserID)
	}
	return gardener.BotIdentity{UserID: auth.UserID, BotID: user.Profile.BotID}, nil
}

// ListUsers returns the full user roster.
func (c *Client) ListUsers(ctx context.Context) ([]slack.User, error) {
	var users []slack.User
	err := c.call(ctx, "users.list", func() error {
		var err error
		users, err = c.api.GetUsersContext(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UserProfile fetches a user's profile with custom field labels resolved.
func (c *Client) UserProfile(ctx context.Context, userID string) (*slack.UserProfile, error) {
	var profile *slack.UserProfile
	err := c.call(ctx, "users.profile.get", func() error {
		var err error
		profile, err = c.api.GetUserProfileContext(ctx, &slack.GetUserProfileParameters{
			UserID:        userID,
			IncludeLabels: true,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get profile user=%s: %w", userID, err)
	}
	return profile, nil
}

// OpenDirectMessage opens (or resumes) a DM with a user and returns its
// channel id.
func (c *Client) OpenDirectMessage(ctx context.Context, userID string) (string, error) {
	var channel *slack.Channel
	err := c.call(ctx, "conversations.open", func() error {
		var err error
		channel, _, _, err = c.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
			Users: []string{userID},
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("open conversation user=%s: %w", userID, err)
	}
	return channel.ID, nil
}

// ChannelMembers returns the user ids of a channel's members, following the
// cursor until the server returns an empty one.
func (c *Client) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	var (
		members []string
		cursor  string
	)
	for {
		params := &slack.GetUsersInConversationParameters{
			ChannelID: channelID,
			Cursor:    cursor,
			Limit:     1000,
		}
		var (
			page []string
			next string
		)
		err := c.call(ctx, "conversations.members", func() error {
			var err error
			page, next, err = c.api.GetUsersInConversationContext(ctx, params)
			return err
		})
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("channel members channel=%s: %w", channelID, err)
		}
		members = append(members, page...)
		if next == "" {
			return members, nil
		}
		cursor = next
	}
}

// call waits for the rate limiter, runs fn and handles the Slack 429
// contract: sleep the server-suggested wait plus one second, then repeat the
// identical request. Every other error propagates to the caller.
func (c *Client) call(ctx context.Context, operation string, fn func() error) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}

		var rle *slack.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}

		wait := rle.RetryAfter + time.Second
		c.logger.Printf("rate limited op=%s retrying in %s", operation, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.sleep(wait)
	}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var serr slack.SlackErrorResponse
	if errors.As(err, &serr) {
		return strings.HasSuffix(serr.Err, "_not_found")
	}
	return strings.HasSuffix(err.Error(), "_not_found")
}

func toChannel(ch slack.Channel) gardener.Channel {
	name := ch.NameNormalized
	if name == "" {
		name = ch.Name
	}
	return gardener.Channel{
		ID:      ch.ID,
		Name:    name,
		Created: ch.Created.Time().UTC(),
		Members: ch.NumMembers,
	}
}

func toMessage(msg slack.Message) gardener.Message {
	return gardener.Message{
		Type:      msg.Type,
		SubType:   msg.SubType,
		User:      msg.User,
		BotID:     msg.BotID,
		Text:      msg.Text,
		Timestamp: gardener.NewTimestamp(msg.Timestamp),
	}
}
