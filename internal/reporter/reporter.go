package reporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AI2HU/chatstats/internal/db"
	"github.com/AI2HU/chatstats/internal/logger"
	"github.com/AI2HU/chatstats/internal/models"
)

// DefaultCronExpr fires at midnight UTC, right after the previous day's
// buckets stop receiving events.
const DefaultCronExpr = "0 0 * * *"

// Reporter logs a per-entity summary of the previous day's usage on a cron
// schedule. It is read-only over the store and independent of the
// aggregation path.
type Reporter struct {
	store    db.Store
	cron     *cron.Cron
	cronExpr string
	running  bool
	mu       sync.Mutex
}

// New creates a new reporter
func New(store db.Store, cronExpr string) *Reporter {
	if cronExpr == "" {
		cronExpr = DefaultCronExpr
	}
	return &Reporter{
		store:    store,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		cronExpr: cronExpr,
	}
}

// Start registers the summary job and starts the cron loop
func (r *Reporter) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("reporter already running")
	}

	if _, err := r.cron.AddFunc(r.cronExpr, r.runSummary); err != nil {
		return fmt.Errorf("failed to register summary job: %w", err)
	}

	r.cron.Start()
	r.running = true

	logger.Info("Daily summary reporter started (cron: %s)", r.cronExpr)
	return nil
}

// Stop stops the cron loop
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.cron.Stop()
	r.running = false

	logger.Info("Daily summary reporter stopped")
}

func (r *Reporter) runSummary() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format(models.DateFormat)
	if err := r.Summarize(ctx, yesterday); err != nil {
		logger.Error("Daily summary for %s failed: %v", yesterday, err)
	}
}

// Summarize logs the usage totals of every entity active on the given date.
func (r *Reporter) Summarize(ctx context.Context, date string) error {
	all, err := r.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read usage store: %w", err)
	}

	active := 0
	for _, stats := range all {
		bucket, ok := stats.DailyData[date]
		if !ok || bucket == nil {
			continue
		}
		active++
		logger.Info("Usage %s | %s: %d user msg (%d tk), %d ai msg (%d tk), %d prompt tk",
			date,
			stats.EntityName,
			bucket.UserMessages,
			bucket.UserTokens,
			bucket.AIMessages,
			bucket.AITokens,
			bucket.CumulativeTokens,
		)
	}

	if active == 0 {
		logger.Info("Usage %s | no activity recorded", date)
	}
	return nil
}
