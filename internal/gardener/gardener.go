package gardener

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// ChannelAPI is the slice of the Slack collaborator the batch runner needs.
type ChannelAPI interface {
	ListChannels(ctx context.Context) ([]Channel, error)
	PostMessage(ctx context.Context, channelID, text string) error
	ArchiveChannel(ctx context.Context, channelID string) error
}

// ChannelError records a per-channel failure captured during a run.
type ChannelError struct {
	Channel Channel
	Err     error
}

func (e ChannelError) Error() string {
	return fmt.Sprintf("channel %s (%s): %v", e.Channel.Name, e.Channel.ID, e.Err)
}

func (e ChannelError) Unwrap() error { return e.Err }

// RunSummary aggregates the outcome of one gardening run. Channels that fail
// to classify are counted in Failed and listed in Errors; they never abort
// the rest of the batch.
type RunSummary struct {
	Channels       int
	Active         int
	Stale          int
	StaleAndWarned int
	Empty          int
	Warned         int
	Archived       int
	Failed         int
	Errors         []ChannelError
	Elapsed        time.Duration
}

// Gardener turns channel classifications into warnings and archivals. In
// dry-run mode every write becomes a log line.
type Gardener struct {
	api            ChannelAPI
	calculator     *StateCalculator
	bot            BotIdentity
	warningMessage string
	warningGrace   time.Duration
	dryRun         bool
	concurrency    int
	now            func() time.Time
	logger         *log.Logger
}

// GardenerOption configures a Gardener.
type GardenerOption func(*Gardener)

// WithConcurrency bounds the number of channels classified at once.
func WithConcurrency(n int) GardenerOption {
	return func(g *Gardener) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithClock overrides the wall clock, used by tests.
func WithClock(now func() time.Time) GardenerOption {
	return func(g *Gardener) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) GardenerOption {
	return func(g *Gardener) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGardener constructs the batch runner.
func NewGardener(api ChannelAPI, calculator *StateCalculator, bot BotIdentity, warningMessage string, warningGrace time.Duration, dryRun bool, opts ...GardenerOption) *Gardener {
	g := &Gardener{
		api:            api,
		calculator:     calculator,
		bot:            bot,
		warningMessage: warningMessage,
		warningGrace:   warningGrace,
		dryRun:         dryRun,
		concurrency:    4,
		now:            time.Now,
		logger:         log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Process classifies every channel and applies the resulting action. Channels
// are processed concurrently up to the configured bound; each channel's page
// loop stays sequential because every page depends on the previous one.
func (g *Gardener) Process(ctx context.Context) (*RunSummary, error) {
	start := g.now()

	channels, err := g.api.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	g.logger.Printf("%d channels found", len(channels))

	summary := &RunSummary{Channels: len(channels)}
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, g.concurrency)
	)

	for _, channel := range channels {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(channel Channel) {
			defer wg.Done()
			defer func() { <-sem }()

			state, err := g.processChannel(ctx, channel)

			mu.Lock()
			defer mu.Unlock()
			if channel.Members == 0 {
				summary.Empty++
			}
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, ChannelError{Channel: channel, Err: err})
				return
			}
			switch state.(type) {
			case Active:
				summary.Active++
			case Stale:
				summary.Stale++
				summary.Warned++
			case StaleAndWarned:
				summary.StaleAndWarned++
				if g.shouldArchive(state.(StaleAndWarned)) {
					summary.Archived++
				}
			}
		}(channel)
	}
	wg.Wait()

	summary.Elapsed = g.now().Sub(start)
	g.logSummary(summary)
	return summary, nil
}

func (g *Gardener) processChannel(ctx context.Context, channel Channel) (ChannelState, error) {
	state, err := g.calculator.Classify(ctx, channel, g.bot)
	if err != nil {
		g.logger.Printf("classify failed channel=%s err=%v", channel.Name, err)
		return nil, err
	}

	g.logger.Printf("\t%s(id: %s, created %s, %s, %d members)",
		channel.Name, channel.ID, channel.Created.Format(time.RFC3339), state, channel.Members)

	if err := g.postWarning(ctx, channel, state); err != nil {
		return nil, err
	}
	if err := g.archive(ctx, channel, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (g *Gardener) postWarning(ctx context.Context, channel Channel, state ChannelState) error {
	if _, ok := state.(Stale); !ok {
		return nil
	}

	if g.dryRun {
		g.logger.Printf("would have warned %s", channel.Name)
		return nil
	}
	if err := g.api.PostMessage(ctx, channel.ID, g.warningMessage); err != nil {
		return fmt.Errorf("post warning: %w", err)
	}
	g.logger.Printf("warned %s", channel.Name)
	return nil
}

func (g *Gardener) archive(ctx context.Context, channel Channel, state ChannelState) error {
	warned, ok := state.(StaleAndWarned)
	if !ok {
		return nil
	}
	if !g.shouldArchive(warned) {
		// The warning is still inside the grace period.
		return nil
	}

	if g.dryRun {
		g.logger.Printf("would have archived %s", channel.Name)
		return nil
	}
	if err := g.api.ArchiveChannel(ctx, channel.ID); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	g.logger.Printf("archived %s", channel.Name)
	return nil
}

// shouldArchive reports whether the recorded warning is at least a full
// grace period old.
func (g *Gardener) shouldArchive(state StaleAndWarned) bool {
	threshold := g.now().Add(-g.warningGrace)
	return !state.LastWarning.After(threshold)
}

func (g *Gardener) logSummary(s *RunSummary) {
	g.logger.Printf("%d channels", s.Channels)
	g.logger.Printf("%d active channels", s.Active)
	g.logger.Printf("%d stale channels (%d warned)", s.Stale+s.StaleAndWarned, s.StaleAndWarned)
	g.logger.Printf("%d empty channels", s.Empty)
	if s.Failed > 0 {
		g.logger.Printf("%d channels failed", s.Failed)
		for _, cerr := range s.Errors {
			g.logger.Printf("\t%v", cerr)
		}
	}
	g.logger.Printf("done in %d ms", s.Elapsed.Milliseconds())
}
