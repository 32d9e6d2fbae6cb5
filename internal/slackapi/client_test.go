package slackapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/slack-gardener/gardener/internal/gardener"
)

type mockSlackAPI struct {
	getConversationsFunc       func(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	getConversationHistoryFunc func(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	postMessageFunc            func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	archiveConversationFunc    func(ctx context.Context, channelID string) error
	authTestFunc               func(ctx context.Context) (*slack.AuthTestResponse, error)
	getUserInfoFunc            func(ctx context.Context, user string) (*slack.User, error)
	getUsersFunc               func(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
	getUserProfileFunc         func(ctx context.Context, params *slack.GetUserProfileParameters) (*slack.UserProfile, error)
	openConversationFunc       func(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	getUsersInConversationFunc func(ctx context.Context, params *slack.GetUsersInConversationParameters) ([]string, string, error)
}

func (m *mockSlackAPI) GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error) {
	return m.getConversationsFunc(ctx, params)
}

func (m *mockSlackAPI) GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	return m.getConversationHistoryFunc(ctx, params)
}

func (m *mockSlackAPI) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	return m.postMessageFunc(ctx, channelID, options...)
}

func (m *mockSlackAPI) ArchiveConversationContext(ctx context.Context, channelID string) error {
	return m.archiveConversationFunc(ctx, channelID)
}

func (m *mockSlackAPI) AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error) {
	return m.authTestFunc(ctx)
}

func (m *mockSlackAPI) GetUserInfoContext(ctx context.Context, user string) (*slack.User, error) {
	return m.getUserInfoFunc(ctx, user)
}

func (m *mockSlackAPI) GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error) {
	return m.getUsersFunc(ctx, options...)
}

func (m *mockSlackAPI) GetUserProfileContext(ctx context.Context, params *slack.GetUserProfileParameters) (*slack.UserProfile, error) {
	return m.getUserProfileFunc(ctx, params)
}

func (m *mockSlackAPI) OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	return m.openConversationFunc(ctx, params)
}

func (m *mockSlackAPI) GetUsersInConversationContext(ctx context.Context, params *slack.GetUsersInConversationParameters) ([]string, string, error) {
	return m.getUsersInConversationFunc(ctx, params)
}

func newTestClient(api SlackAPI, opts ...ClientOption) *Client {
	opts = append([]ClientOption{WithRateLimiter(rate.NewLimiter(rate.Inf, 1))}, opts...)
	return NewClient(api, opts...)
}

func apiChannel(id, name string, created int64) slack.Channel {
	ch := slack.Channel{}
	ch.ID = id
	ch.Name = name
	ch.NameNormalized = name
	ch.Created = slack.JSONTime(created)
	ch.NumMembers = 3
	return ch
}

func TestListChannelsFollowsCursor(t *testing.T) {
	var cursors []string
	api := &mockSlackAPI{
		getConversationsFunc: func(_ context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error) {
			cursors = append(cursors, params.Cursor)
			assert.True(t, params.ExcludeArchived)
			assert.Equal(t, []string{"public_channel"}, params.Types)
			if params.Cursor == "" {
				return []slack.Channel{apiChannel("C1", "general", 1700000000)}, "NEXT", nil
			}
			return []slack.Channel{apiChannel("C2", "random", 1700000100)}, "", nil
		},
	}

	channels, err := newTestClient(api).ListChannels(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"", "NEXT"}, cursors)
	require.Len(t, channels, 2)
	assert.Equal(t, "C1", channels[0].ID)
	assert.Equal(t, "general", channels[0].Name)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), channels[0].Created)
	assert.Equal(t, 3, channels[0].Members)
	assert.Equal(t, "C2", channels[1].ID)
}

func TestHistoryMapsWindowParameters(t *testing.T) {
	var got *slack.GetConversationHistoryParameters
	api := &mockSlackAPI{
		getConversationHistoryFunc: func(_ context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
			got = params
			resp := &slack.GetConversationHistoryResponse{HasMore: true}
			resp.Messages = []slack.Message{
				{Msg: slack.Msg{Type: "message", User: "U1", Text: "hi", Timestamp: "1700000050.000200"}},
			}
			return resp, nil
		},
	}

	channel := gardener.Channel{ID: "C1", Name: "general"}
	messages, hasMore, err := newTestClient(api).History(context.Background(),
		channel, gardener.NewTimestamp("1700000000.000000"), gardener.NewTimestamp("1700000100.000000"))

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "C1", got.ChannelID)
	assert.Equal(t, "1700000000.000000", got.Oldest)
	assert.Equal(t, "1700000100.000000", got.Latest)
	assert.True(t, got.Inclusive)
	assert.True(t, hasMore)
	require.Len(t, messages, 1)
	assert.Equal(t, "U1", messages[0].User)
	assert.Equal(t, "1700000050.000200", messages[0].Timestamp.String())
}

func TestHistoryMissingChannelIsEmptyPage(t *testing.T) {
	api := &mockSlackAPI{
		getConversationHistoryFunc: func(context.Context, *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
			return nil, slack.SlackErrorResponse{Err: "channel_not_found"}
		},
	}

	messages, hasMore, err := newTestClient(api).History(context.Background(),
		gardener.Channel{ID: "C_GONE"}, gardener.Timestamp{}, gardener.Timestamp{})

	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.False(t, hasMore)
}

func TestCallRetriesAfterRateLimit(t *testing.T) {
	var calls int
	var slept []time.Duration
	api := &mockSlackAPI{
		postMessageFunc: func(context.Context, string, ...slack.MsgOption) (string, string, error) {
			calls++
			if calls < 3 {
				return "", "", &slack.RateLimitedError{RetryAfter: 3 * time.Second}
			}
			return "C1", "1700000000.000100", nil
		},
	}
	client := newTestClient(api, WithSleeper(func(d time.Duration) { slept = append(slept, d) }))

	err := client.PostMessage(context.Background(), "C1", "hello")

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{4 * time.Second, 4 * time.Second}, slept,
		"each retry must wait the server's hint plus one second")
}

func TestCallPropagatesOtherErrors(t *testing.T) {
	api := &mockSlackAPI{
		postMessageFunc: func(context.Context, string, ...slack.MsgOption) (string, string, error) {
			return "", "", errors.New("invalid_auth")
		},
	}

	err := newTestClient(api).PostMessage(context.Background(), "C1", "hello")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_auth")
}

func TestCallStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	api := &mockSlackAPI{
		postMessageFunc: func(context.Context, string, ...slack.MsgOption) (string, string, error) {
			cancel()
			return "", "", &slack.RateLimitedError{RetryAfter: time.Second}
		},
	}
	client := newTestClient(api, WithSleeper(func(time.Duration) {}))

	err := client.PostMessage(ctx, "C1", "hello")

	require.ErrorIs(t, err, context.Canceled)
}

func TestArchiveChannelTolerantOfAlreadyGone(t *testing.T) {
	for _, apiErr := range []error{
		slack.SlackErrorResponse{Err: "channel_not_found"},
		errors.New("already_archived"),
	} {
		api := &mockSlackAPI{
			archiveConversationFunc: func(context.Context, string) error { return apiErr },
		}
		assert.NoError(t, newTestClient(api).ArchiveChannel(context.Background(), "C1"))
	}
}

func TestArchiveChannelPropagatesRealErrors(t *testing.T) {
	api := &mockSlackAPI{
		archiveConversationFunc: func(context.Context, string) error {
			return errors.New("restricted_action")
		},
	}

	err := newTestClient(api).ArchiveChannel(context.Background(), "C1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "restricted_action")
}

func TestBotIdentity(t *testing.T) {
	api := &mockSlackAPI{
		authTestFunc: func(context.Context) (*slack.AuthTestResponse, error) {
			return &slack.AuthTestResponse{UserID: "U_BOT"}, nil
		},
		getUserInfoFunc: func(_ context.Context, user string) (*slack.User, error) {
			assert.Equal(t, "U_BOT", user)
			return &slack.User{ID: "U_BOT", Profile: slack.UserProfile{BotID: "B_BOT"}}, nil
		},
	}

	identity, err := newTestClient(api).BotIdentity(context.Background())

	require.NoError(t, err)
	assert.Equal(t, gardener.BotIdentity{UserID: "U_BOT", BotID: "B_BOT"}, identity)
}

func TestBotIdentityRequiresBotID(t *testing.T) {
	api := &mockSlackAPI{
		authTestFunc: func(context.Context) (*slack.AuthTestResponse, error) {
			return &slack.AuthTestResponse{UserID: "U_HUMAN"}, nil
		},
		getUserInfoFunc: func(context.Context, string) (*slack.User, error) {
			return &slack.User{ID: "U_HUMAN"}, nil
		},
	}

	_, err := newTestClient(api).BotIdentity(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bot id")
}

func TestChannelMembersFollowsCursor(t *testing.T) {
	api := &mockSlackAPI{
		getUsersInConversationFunc: func(_ context.Context, params *slack.GetUsersInConversationParameters) ([]string, string, error) {
			if params.Cursor == "" {
				return []string{"U1", "U2"}, "NEXT", nil
			}
			return []string{"U3"}, "", nil
		},
	}

	members, err := newTestClient(api).ChannelMembers(context.Background(), "C1")

	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2", "U3"}, members)
}

func TestChannelMembersMissingChannelIsEmpty(t *testing.T) {
	api := &mockSlackAPI{
		getUsersInConversationFunc: func(context.Context, *slack.GetUsersInConversationParameters) ([]string, string, error) {
			return nil, "", slack.SlackErrorResponse{Err: "channel_not_found"}
		},
	}

	members, err := newTestClient(api).ChannelMembers(context.Background(), "C1")

	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestUserProfileRequestsLabels(t *testing.T) {
	api := &mockSlackAPI{
		getUserProfileFunc: func(_ context.Context, params *slack.GetUserProfileParameters) (*slack.UserProfile, error) {
			assert.Equal(t, "U1", params.UserID)
			assert.True(t, params.IncludeLabels)
			return &slack.UserProfile{RealName: "Ada Lovelace"}, nil
		},
	}

	profile, err := newTestClient(api).UserProfile(context.Background(), "U1")

	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", profile.RealName)
}

func TestOpenDirectMessage(t *testing.T) {
	api := &mockSlackAPI{
		openConversationFunc: func(_ context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
			assert.Equal(t, []string{"U1"}, params.Users)
			ch := &slack.Channel{}
			ch.ID = "D123"
			return ch, false, false, nil
		},
	}

	id, err := newTestClient(api).OpenDirectMessage(context.Background(), "U1")

	require.NoError(t, err)
	assert.Equal(t, "D123", id)
}
