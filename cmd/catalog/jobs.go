package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/catalog/pkg/config"
	"github.com/platinummonkey/catalog/pkg/observability"
)

// startJobs schedules cache warmup and, for SQL storage, replica pruning
// and pool statistics.
func startJobs(ctx context.Context, cfg *config.Config, b *backend, metrics *observability.Metrics, logger *observability.Logger) (*cron.Cron, error) {
	c := cron.New()

	if b.cache != nil {
		log := logger.WithField("job", "cache-warmup")
		warm := func() {
			defer observability.RecoverPanic(log, "cache warmup")
			jobCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			n, err := b.warmAll(jobCtx)
			if err != nil {
				log.WithError(err).Error("cache warmup failed")
				return
			}
			log.WithField("entries", n).Info("cache warmed")
		}
		if _, err := c.AddFunc(cfg.Taxonomy.WarmupSchedule, warm); err != nil {
			return nil, err
		}
		go warm()
	}

	if b.sql != nil {
		log := logger.WithField("job", "replica-check")
		interval := cfg.Taxonomy.ReplicaCheckInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		c.Schedule(cron.Every(interval), cron.FuncJob(func() {
			defer observability.RecoverPanic(log, "replica check")
			jobCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			conns := b.sql.Connections()
			if removed := conns.RemoveUnhealthyReplicas(jobCtx); removed > 0 {
				log.WithField("removed", removed).Warn("removed unhealthy replicas")
			}
			stats := conns.Stats()
			metrics.RecordDBStats("primary", stats.Primary)
			for i, s := range stats.Replicas {
				metrics.RecordDBStats(fmt.Sprintf("replica-%d", i), s)
			}
		}))
	}

	c.Start()
	logger.WithField("jobs", len(c.Entries())).Info("scheduler started")
	return c, nil
}
