package profile

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/slack-gardener/gardener/internal/gardener"
)

// DirectoryAPI is the slice of the Slack collaborator the checker needs.
type DirectoryAPI interface {
	ListUsers(ctx context.Context) ([]slack.User, error)
	UserProfile(ctx context.Context, userID string) (*slack.UserProfile, error)
	OpenDirectMessage(ctx context.Context, userID string) (string, error)
	PostMessage(ctx context.Context, channelID, text string) error
	History(ctx context.Context, channel gardener.Channel, oldest, latest gardener.Timestamp) ([]gardener.Message, bool, error)
}

// UserError records a per-user failure captured during a run.
type UserError struct {
	UserName string
	Err      error
}

func (e UserError) Error() string {
	return fmt.Sprintf("user %s: %v", e.UserName, e.Err)
}

func (e UserError) Unwrap() error { return e.Err }

// Summary aggregates the outcome of one profile-checking run.
type Summary struct {
	Users      int
	Incomplete int
	Warned     int
	Skipped    int
	Failed     int
	Errors     []UserError
	Elapsed    time.Duration
}

// Checker finds users with incomplete profiles and nudges them over DM, at
// most once per re-warn period.
type Checker struct {
	api            DirectoryAPI
	rules          []FieldRule
	warningMessage string
	rewarnPeriod   time.Duration
	dryRun         bool
	concurrency    int
	now            func() time.Time
	logger         *log.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCheckerConcurrency bounds the number of users processed at once.
func WithCheckerConcurrency(n int) CheckerOption {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithCheckerClock overrides the wall clock, used by tests.
func WithCheckerClock(now func() time.Time) CheckerOption {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCheckerLogger overrides the default logger.
func WithCheckerLogger(l *log.Logger) CheckerOption {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChecker constructs a profile checker. warningMessage may contain one
// %s verb which receives the user's id for an @-mention.
func NewChecker(api DirectoryAPI, rules []FieldRule, warningMessage string, rewarnPeriod time.Duration, dryRun bool, opts ...CheckerOption) *Checker {
	c := &Checker{
		api:            api,
		rules:          rules,
		warningMessage: warningMessage,
		rewarnPeriod:   rewarnPeriod,
		dryRun:         dryRun,
		concurrency:    4,
		now:            time.Now,
		logger:         log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process checks every active human user. Profiles are enriched one at a
// time (the detailed-profile endpoint is the tightest rate limit); rule
// evaluation and messaging then fan out.
func (c *Checker) Process(ctx context.Context) (*Summary, error) {
	start := c.now()

	users, err := c.activeHumans(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("%d active users found", len(users))

	enriched := make([]slack.User, 0, len(users))
	for _, user := range users {
		detailed, err := c.api.UserProfile(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("enrich profile %s: %w", user.Name, err)
		}
		user.Profile = *detailed
		enriched = append(enriched, user)
	}

	summary := &Summary{Users: len(enriched)}
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, c.concurrency)
	)

	for _, user := range enriched {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(user slack.User) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := c.processUser(ctx, user)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, UserError{UserName: user.Name, Err: err})
				return
			}
			switch outcome {
			case outcomeWarned:
				summary.Incomplete++
				summary.Warned++
			case outcomeSkipped:
				summary.Incomplete++
				summary.Skipped++
			}
		}(user)
	}
	wg.Wait()

	summary.Elapsed = c.now().Sub(start)
	c.logger.Printf("%d users, %d incomplete (%d warned, %d recently warned), %d failed, done in %d ms",
		summary.Users, summary.Incomplete, summary.Warned, summary.Skipped, summary.Failed, summary.Elapsed.Milliseconds())
	return summary, nil
}

type outcome int

const (
	outcomeComplete outcome = iota
	outcomeWarned
	outcomeSkipped
)

func (c *Checker) processUser(ctx context.Context, user slack.User) (outcome, error) {
	missing, err := c.missingFields(ctx, user)
	if err != nil {
		return outcomeComplete, err
	}
	if len(missing) == 0 {
		return outcomeComplete, nil
	}

	dm, err := c.api.OpenDirectMessage(ctx, user.ID)
	if err != nil {
		return outcomeComplete, err
	}

	recentlyWarned, err := c.warnedSince(ctx, dm, c.now().Add(-c.rewarnPeriod))
	if err != nil {
		return outcomeComplete, err
	}
	if recentlyWarned {
		c.logger.Printf("already messaged %s recently about %v", user.Name, missing)
		return outcomeSkipped, nil
	}

	if c.dryRun {
		c.logger.Printf("would have messaged %s about %v", user.Name, missing)
		return outcomeWarned, nil
	}
	if err := c.api.PostMessage(ctx, dm, fmt.Sprintf(c.warningMessage, user.ID)); err != nil {
		return outcomeComplete, err
	}
	c.logger.Printf("messaged %s about %v", user.Name, missing)
	return outcomeWarned, nil
}

func (c *Checker) missingFields(ctx context.Context, user slack.User) ([]string, error) {
	var missing []string
	for _, rule := range c.rules {
		result, err := rule.Check(ctx, user)
		if err != nil {
			return nil, err
		}
		if !result.OK {
			missing = append(missing, result.Field)
		}
	}
	return missing, nil
}

// warnedSince reports whether the DM already holds any message newer than
// threshold. The gardener is the only author in these DMs, so any message in
// the window counts as a recent warning.
func (c *Checker) warnedSince(ctx context.Context, dmChannelID string, threshold time.Time) (bool, error) {
	dm := gardener.Channel{ID: dmChannelID}
	messages, _, err := c.api.History(ctx, dm,
		gardener.TimestampFromTime(threshold), gardener.TimestampFromTime(c.now()))
	if err != nil {
		return false, err
	}
	return len(messages) > 0, nil
}

func (c *Checker) activeHumans(ctx context.Context) ([]slack.User, error) {
	users, err := c.api.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	humans := make([]slack.User, 0, len(users))
	for _, user := range users {
		if user.IsBot || user.Deleted || user.Name == "slackbot" {
			continue
		}
		humans = append(humans, user)
	}
	return humans, nil
}

// DefaultAvatarHashes hashes every active user's 24px avatar and returns the
// hashes shared by more than three accounts. Slack serves the same generated
// image for everyone who never uploaded a picture, so heavily shared hashes
// identify the default avatars.
func DefaultAvatarHashes(ctx context.Context, api DirectoryAPI, httpClient *http.Client, logger *log.Logger) (map[string]struct{}, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	users, err := api.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, user := range users {
		if user.IsBot || user.Deleted || user.Profile.Image24 == "" {
			continue
		}
		sum, err := fetchImageHash(ctx, httpClient, user.Profile.Image24)
		if err != nil {
			logger.Printf("could not hash avatar for %s: %v", user.Name, err)
			continue
		}
		counts[sum]++
	}

	const sharedAccountThreshold = 3
	hashes := make(map[string]struct{})
	for sum, n := range counts {
		if n > sharedAccountThreshold {
			hashes[sum] = struct{}{}
		}
	}
	return hashes, nil
}
