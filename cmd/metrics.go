package cmd

import (
	"log"
	"time"

	"github.com/slack-gardener/gardener/internal/metrics"
)

// recordRun appends the run to the local history database. Failures are
// logged and swallowed: losing a stats row must not fail the run itself.
func recordRun(logger *log.Logger, rec metrics.RunRecord) {
	if rec.Started.IsZero() {
		rec.Started = time.Now().Add(-rec.Elapsed)
	}

	store, err := metrics.NewStore()
	if err != nil {
		logger.Printf("stats: %v", err)
		return
	}
	defer func() { _ = store.Close() }()

	if err := store.Record(rec); err != nil {
		logger.Printf("stats: %v", err)
	}
}
