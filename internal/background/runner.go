// Package background runs full-text index mutations off the request
// path and sweeps soft-deleted posts past their retention window. It is
// built on a goqite-backed job runner, using a fixed set of per-id
// shards instead of one shared queue so that index, reindex, and
// deindex operations on the same post id always execute in submission
// order.
package background

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"maragu.dev/goqite"
	"maragu.dev/goqite/jobs"

	"notecore/internal/fulltext"
	"notecore/internal/posts"
)

const (
	jobIndex   = "index"
	jobReindex = "reindex"
	jobDeindex = "deindex"
)

type payload struct {
	ID   int64  `json:"id"`
	Text string `json:"text,omitempty"`
}

type shard struct {
	queue  *goqite.Queue
	runner *jobs.Runner
}

// Runner fans index/reindex/deindex mutations out across a fixed
// number of shard queues, and runs the daily retention sweep.
type Runner struct {
	shards        []*shard
	index         *fulltext.Index
	posts         *posts.Store
	retentionDays int
	log           *slog.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
}

// Config configures a Runner.
type Config struct {
	// Shards is the number of independent per-id queues. Each shard
	// runs exactly one worker so that jobs for the same post id are
	// processed strictly in submission order.
	Shards int
	// RetentionDays is how long a soft-deleted post survives before
	// the nightly sweep purges it permanently. Zero disables the sweep.
	RetentionDays int
	// PollInterval is how often each shard worker polls for new jobs.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	return c
}

// New builds a Runner backed by sqlDB's goqite table, operating on
// index and postStore.
func New(sqlDB *sql.DB, index *fulltext.Index, postStore *posts.Store, log *slog.Logger, cfg Config) *Runner {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}

	r := &Runner{
		index:         index,
		posts:         postStore,
		retentionDays: cfg.RetentionDays,
		log:           log,
		cron:          cron.New(),
	}

	for i := 0; i < cfg.Shards; i++ {
		q := goqite.New(goqite.NewOpts{
			DB:   sqlDB,
			Name: fmt.Sprintf("index-shard-%d", i),
		})
		runner := jobs.NewRunner(jobs.NewRunnerOpts{
			Limit:        1,
			Log:          log,
			PollInterval: cfg.PollInterval,
			Queue:        q,
		})
		r.registerHandlers(runner)
		r.shards = append(r.shards, &shard{queue: q, runner: runner})
	}

	return r
}

func (r *Runner) registerHandlers(runner *jobs.Runner) {
	runner.Register(jobIndex, r.handle(func(ctx context.Context, p payload) error {
		return r.index.Index(ctx, p.ID, p.Text)
	}))
	runner.Register(jobReindex, r.handle(func(ctx context.Context, p payload) error {
		return r.index.Reindex(ctx, p.ID, p.Text)
	}))
	runner.Register(jobDeindex, r.handle(func(ctx context.Context, p payload) error {
		return r.index.Deindex(ctx, p.ID)
	}))
}

func (r *Runner) handle(fn func(context.Context, payload) error) func(context.Context, []byte) error {
	return func(ctx context.Context, msg []byte) error {
		var p payload
		if err := json.Unmarshal(msg, &p); err != nil {
			r.log.Error("discarding malformed index job payload", "error", err)
			return nil
		}
		if err := fn(ctx, p); err != nil {
			r.log.Error("index job failed", "id", p.ID, "error", err)
			return err
		}
		return nil
	}
}

func (r *Runner) shardFor(id int64) *shard {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d", id)
	return r.shards[int(h.Sum32())%len(r.shards)]
}

func (r *Runner) submit(ctx context.Context, jobType string, id int64, text string) error {
	p := payload{ID: id, Text: text}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	return jobs.Create(ctx, r.shardFor(id).queue, jobType, body)
}

// Index enqueues an index job for id.
func (r *Runner) Index(ctx context.Context, id int64, text string) error {
	return r.submit(ctx, jobIndex, id, text)
}

// Reindex enqueues a reindex job for id.
func (r *Runner) Reindex(ctx context.Context, id int64, text string) error {
	return r.submit(ctx, jobReindex, id, text)
}

// Deindex enqueues a deindex job for id.
func (r *Runner) Deindex(ctx context.Context, id int64) error {
	return r.submit(ctx, jobDeindex, id, "")
}

// Start launches every shard's worker loop and, if retention is
// enabled, schedules the daily 03:00 local sweep. It returns
// immediately; workers run until the context passed to Start is
// cancelled.
func (r *Runner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, s := range r.shards {
		go s.runner.Start(ctx)
	}

	if r.retentionDays > 0 {
		runID := uuid.NewString()
		_, err := r.cron.AddFunc("0 3 * * *", func() {
			if err := r.RunRetentionSweep(ctx); err != nil {
				r.log.Error("retention sweep failed", "run_id", runID, "error", err)
			}
		})
		if err != nil {
			cancel()
			return fmt.Errorf("schedule retention sweep: %w", err)
		}
		r.cron.Start()
	}

	return nil
}

// Stop cancels every shard worker and the retention scheduler.
func (r *Runner) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	if r.cancel != nil {
		r.cancel()
	}
}

// RunRetentionSweep permanently deletes every post that has been
// soft-deleted for longer than retentionDays and removes it from the
// full-text index. Safe to call directly (e.g. from a CLI command) in
// addition to its scheduled invocation.
func (r *Runner) RunRetentionSweep(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -r.retentionDays).UnixMilli()
	ids, err := r.posts.PurgeDeletedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge expired posts: %w", err)
	}
	for _, id := range ids {
		if err := r.index.Deindex(ctx, id); err != nil {
			r.log.Error("deindex during retention sweep", "id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		r.log.Info("retention sweep purged posts", "count", len(ids))
	}
	return nil
}
