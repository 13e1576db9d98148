package feature

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BTreeMap/MindMate/internal/models"
)

// DefaultWindowDays is the history window used when the caller passes zero.
const DefaultWindowDays = 30

// DefaultCallTimeout bounds each store or classifier call an extractor makes.
const DefaultCallTimeout = 10 * time.Second

// RecordSource is the read side of the interaction store.
type RecordSource interface {
	QueryRecords(ctx context.Context, userID string, kind models.RecordKind, tr models.TimeRange) ([]models.InteractionRecord, error)
}

// Opts holds configuration shared by the extractors.
type Opts struct {
	Timeout  time.Duration
	Location *time.Location
	Now      func() time.Time
}

// Option defines a configuration option for an extractor.
type Option func(*Opts)

// WithTimeout bounds every external call made by the extractor.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithLocation sets the time zone used for day boundaries, day-of-week and hour-of-day.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

func buildOpts(opts []Option) Opts {
	cfg := Opts{Timeout: DefaultCallTimeout, Location: time.UTC, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// fetch reads all records of the given kinds in the trailing window, sorted
// ascending by timestamp. Each kind is read under its own timeout.
func fetch(ctx context.Context, src RecordSource, cfg Opts, userID string, windowDays int, kinds ...models.RecordKind) ([]models.InteractionRecord, models.TimeRange, error) {
	tr := models.LastDays(cfg.Now(), windowDays)
	var all []models.InteractionRecord
	for _, kind := range kinds {
		callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		recs, err := src.QueryRecords(callCtx, userID, kind, tr)
		cancel()
		if err != nil {
			return nil, tr, fmt.Errorf("failed to query %s records: %w", kind, err)
		}
		all = append(all, recs...)
	}
	sortRecords(all)
	return all, tr, nil
}

func sortRecords(recs []models.InteractionRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp.Before(recs[j].Timestamp)
	})
}

func normalizeWindow(windowDays int) int {
	if windowDays <= 0 {
		return DefaultWindowDays
	}
	return windowDays
}

// guard converts a panic inside an extractor into the all-default value and a
// failed outcome, so one extractor's fault degrades rather than blocks the
// assessment. It must be deferred directly.
func guard[T any](name, userID string, f *T, def T, out *models.Outcome) {
	if r := recover(); r != nil {
		slog.Error("feature."+name+": extractor panicked, using defaults", "userID", userID, "panic", r)
		*f = def
		*out = models.Failed(fmt.Sprintf("%s extractor fault: %v", name, r))
	}
}

func isWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
