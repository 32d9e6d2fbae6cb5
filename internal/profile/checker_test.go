package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slack-gardener/gardener/internal/gardener"
)

var checkerNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const rewarn = 7 * 24 * time.Hour

type mockDirectoryAPI struct {
	users       []slack.User
	dmHistories map[string][]gardener.Message
	postErrs    map[string]error

	mu     sync.Mutex
	opened []string
	posted map[string]string
}

func (m *mockDirectoryAPI) ListUsers(context.Context) ([]slack.User, error) {
	return m.users, nil
}

func (m *mockDirectoryAPI) UserProfile(_ context.Context, userID string) (*slack.UserProfile, error) {
	for _, user := range m.users {
		if user.ID == userID {
			profile := user.Profile
			return &profile, nil
		}
	}
	return nil, fmt.Errorf("users_not_found")
}

func (m *mockDirectoryAPI) OpenDirectMessage(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = append(m.opened, userID)
	return "D_" + userID, nil
}

func (m *mockDirectoryAPI) PostMessage(_ context.Context, channelID, text string) error {
	if err := m.postErrs[channelID]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.posted == nil {
		m.posted = make(map[string]string)
	}
	m.posted[channelID] = text
	return nil
}

func (m *mockDirectoryAPI) History(_ context.Context, channel gardener.Channel, _, _ gardener.Timestamp) ([]gardener.Message, bool, error) {
	return m.dmHistories[channel.ID], false, nil
}

func completeUser(id, name string) slack.User {
	return slack.User{
		ID:   id,
		Name: name,
		Profile: slack.UserProfile{
			RealName:    name + " in full",
			DisplayName: name,
			Title:       "Engineer",
		},
	}
}

func incompleteUser(id, name string) slack.User {
	user := completeUser(id, name)
	user.Profile.Title = ""
	return user
}

// The HTTP-free subset keeps checker tests independent of avatar fetching.
var basicRules = []FieldRule{RealNameRule{}, DisplayNameRule{}, TitleRule{}}

func newTestChecker(api DirectoryAPI, dryRun bool) *Checker {
	return NewChecker(api, basicRules, "Hi <@%s> please fill in your profile", rewarn, dryRun,
		WithCheckerClock(func() time.Time { return checkerNow }))
}

func TestProcessCompleteProfilesAreLeftAlone(t *testing.T) {
	api := &mockDirectoryAPI{users: []slack.User{completeUser("U1", "ada")}}

	summary, err := newTestChecker(api, false).Process(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Users)
	assert.Zero(t, summary.Incomplete)
	assert.Empty(t, api.opened)
	assert.Empty(t, api.posted)
}

func TestProcessIncompleteProfileGetsDM(t *testing.T) {
	api := &mockDirectoryAPI{users: []slack.User{incompleteUser("U1", "ada")}}

	summary, err := newTestChecker(api, false).Process(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Incomplete)
	assert.Equal(t, 1, summary.Warned)
	assert.Equal(t, []string{"U1"}, api.opened)
	assert.Equal(t, "Hi <@U1> please fill in your profile", api.posted["D_U1"])
}

func TestProcessRecentlyWarnedUserIsSkipped(t *testing.T) {
	api := &mockDirectoryAPI{
		users: []slack.User{incompleteUser("U1", "ada")},
		dmHistories: map[string][]gardener.Message{
			"D_U1": {{Type: gardener.MsgTypeMessage, Timestamp: gardener.TimestampFromTime(checkerNow.Add(-24 * time.Hour))}},
		},
	}

	summary, err := newTestChecker(api, false).Process(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Incomplete)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Warned)
	assert.Empty(t, api.posted)
}

func TestProcessDryRunSendsNothing(t *testing.T) {
	api := &mockDirectoryAPI{users: []slack.User{incompleteUser("U1", "ada")}}

	summary, err := newTestChecker(api, true).Process(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Warned)
	assert.Empty(t, api.posted)
}

func TestProcessIgnoresBotsDeletedAndSlackbot(t *testing.T) {
	api := &mockDirectoryAPI{users: []slack.User{
		{ID: "U_BOT", Name: "reminder-bot", IsBot: true},
		{ID: "U_GONE", Name: "leaver", Deleted: true},
		{ID: "USLACKBOT", Name: "slackbot"},
		completeUser("U1", "ada"),
	}}

	summary, err := newTestChecker(api, false).Process(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Users)
}

func TestProcessIsolatesPerUserFailures(t *testing.T) {
	api := &mockDirectoryAPI{
		users:    []slack.User{incompleteUser("U1", "ada"), incompleteUser("U2", "grace")},
		postErrs: map[string]error{"D_U1": errors.New("cannot_dm_bot")},
	}

	summary, err := newTestChecker(api, false).Process(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "ada", summary.Errors[0].UserName)
	assert.Equal(t, 1, summary.Warned, "the other user must still be messaged")
}

func TestDefaultAvatarHashes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/shared.png":
			_, _ = w.Write([]byte("shared default avatar"))
		case "/unique.png":
			_, _ = w.Write([]byte("a personal photo"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	withAvatar := func(id, path string) slack.User {
		return slack.User{ID: id, Name: id, Profile: slack.UserProfile{Image24: server.URL + path}}
	}

	users := []slack.User{
		withAvatar("U1", "/shared.png"),
		withAvatar("U2", "/shared.png"),
		withAvatar("U3", "/shared.png"),
		withAvatar("U4", "/shared.png"),
		withAvatar("U5", "/unique.png"),
		{ID: "U_BOT", Name: "bot", IsBot: true, Profile: slack.UserProfile{Image24: server.URL + "/shared.png"}},
	}
	api := &mockDirectoryAPI{users: users}

	hashes, err := DefaultAvatarHashes(context.Background(), api, server.Client(), nil)

	require.NoError(t, err)
	require.Len(t, hashes, 1, "only a hash shared by more than three accounts counts as a default")
}
