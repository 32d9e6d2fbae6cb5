package gardener

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"
)

// HistorySource fetches one page of channel history bounded by [oldest,
// latest], both inclusive. It returns the page's messages in API order and
// whether more pages remain. Implementations must not mutate their inputs
// and must surface transport failures unchanged.
type HistorySource interface {
	History(ctx context.Context, channel Channel, oldest, latest Timestamp) (messages []Message, hasMore bool, err error)
}

// StateCalculator classifies a channel as Active, Stale or StaleAndWarned by
// walking its history forward from the idle threshold toward now.
type StateCalculator struct {
	history          HistorySource
	defaultIdle      time.Duration
	longIdle         time.Duration
	longIdleChannels map[string]struct{}
	warningMessage   string
	now              func() time.Time
	logger           *log.Logger
}

// CalculatorOption configures a StateCalculator.
type CalculatorOption func(*StateCalculator)

// WithCalculatorClock overrides the wall clock, used by tests.
func WithCalculatorClock(now func() time.Time) CalculatorOption {
	return func(c *StateCalculator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCalculatorLogger overrides the default logger.
func WithCalculatorLogger(l *log.Logger) CalculatorOption {
	return func(c *StateCalculator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewStateCalculator constructs a classifier. longIdleChannels lists channel
// names that get longIdle instead of defaultIdle as their idle period.
func NewStateCalculator(history HistorySource, defaultIdle time.Duration, longIdleChannels []string, longIdle time.Duration, warningMessage string, opts ...CalculatorOption) *StateCalculator {
	names := make(map[string]struct{}, len(longIdleChannels))
	for _, name := range longIdleChannels {
		names[name] = struct{}{}
	}
	c := &StateCalculator{
		history:          history,
		defaultIdle:      defaultIdle,
		longIdle:         longIdle,
		longIdleChannels: names,
		warningMessage:   warningMessage,
		now:              time.Now,
		logger:           log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *StateCalculator) idlePeriod(channel Channel) time.Duration {
	if _, ok := c.longIdleChannels[channel.Name]; ok {
		return c.longIdle
	}
	return c.defaultIdle
}

// Classify determines the lifecycle state of channel. The scan stops at the
// first disqualifying message; otherwise the whole window between the idle
// threshold and now is paged through, remembering the most recent message
// posted by the bot itself as the warning candidate.
func (c *StateCalculator) Classify(ctx context.Context, channel Channel, bot BotIdentity) (ChannelState, error) {
	now := c.now()
	timeLimit := now.Add(-c.idlePeriod(channel))

	// A channel younger than its idle period is never stale, whatever its
	// history holds.
	if !channel.Created.Before(timeLimit) {
		return Active{}, nil
	}

	var lastWarning Timestamp
	oldest := TimestampFromTime(timeLimit)
	latest := TimestampFromTime(now)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c.logger.Printf("scanning channel=%s from=%s", channel.Name, oldest)
		messages, hasMore, err := c.history.History(ctx, channel, oldest, latest)
		if err != nil {
			return nil, fmt.Errorf("history channel=%s: %w", channel.ID, err)
		}

		// No messages since the threshold: nothing left to learn.
		if len(messages) == 0 {
			break
		}

		for _, m := range messages {
			if c.disqualifies(m, bot) {
				return Active{}, nil
			}
		}

		// The page holds only our own warnings and join/leave noise. Keep
		// the page's last own-bot message as the warning candidate; later
		// pages overwrite it, so the final candidate is the most recent
		// warning in the window.
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].SubType == MsgSubTypeBot && messages[i].BotID == bot.BotID {
				lastWarning = messages[i].Timestamp
				break
			}
		}

		oldest = messages[len(messages)-1].Timestamp
		if !hasMore {
			break
		}
	}

	if !lastWarning.IsZero() {
		return StaleAndWarned{LastWarning: lastWarning.Time()}, nil
	}
	return Stale{}, nil
}

// disqualifies reports whether m proves the channel is in real use: a human
// message, another bot's message, or an old post of our own that isn't the
// current warning text.
func (c *StateCalculator) disqualifies(m Message, bot BotIdentity) bool {
	if m.IsHuman() {
		return true
	}
	if m.IsBot() && m.BotID != bot.BotID {
		return true
	}
	if m.IsBot() && m.BotID == bot.BotID && m.Text != c.warningMessage {
		return true
	}
	return false
}
