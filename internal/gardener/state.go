package gardener

import (
	"fmt"
	"time"
)

// ChannelState is the outcome of classifying one channel. Exactly three
// implementations exist: Active, Stale and StaleAndWarned. The unexported
// method keeps the set closed.
type ChannelState interface {
	fmt.Stringer
	channelState()
}

// Active marks a channel with at least one qualifying message during the
// idle period, or a channel younger than the idle period.
type Active struct{}

func (Active) channelState() {}

func (Active) String() string { return "active" }

// Stale marks a channel with no qualifying messages and no warning from this
// bot during the idle period.
type Stale struct{}

func (Stale) channelState() {}

func (Stale) String() string { return "stale" }

// StaleAndWarned marks a stale channel that already carries a warning from
// this bot. LastWarning is the most recent warning found in the scan window.
type StaleAndWarned struct {
	LastWarning time.Time
}

func (StaleAndWarned) channelState() {}

func (s StaleAndWarned) String() string {
	return fmt.Sprintf("stale and warned %s", fromNow(s.LastWarning, time.Now()))
}

// fromNow renders a rough relative-time phrase for log lines.
func fromNow(t, now time.Time) string {
	days := int(now.Sub(t).Hours() / 24)
	switch {
	case days <= 0:
		return "less than a day ago"
	case days == 1:
		return "1 day ago"
	default:
		return fmt.Sprintf("%d days ago", days)
	}
}
