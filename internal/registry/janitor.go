package registry

import (
	"context"
	"time"

	"github.com/bloxmod/modbridge/internal/metrics"
	"github.com/bloxmod/modbridge/internal/pool"
	"github.com/bloxmod/modbridge/internal/storage"
	"github.com/rs/zerolog"
)

// Janitor performs periodic housekeeping: sweeping expired bans, pruning
// stale rate-gate entries, updating gauges. Sweeping here is compaction
// only; reads stay correct between ticks because the registry re-checks
// timestamps itself.
type Janitor struct {
	registry   *Registry
	store      storage.Store
	workerPool *pool.Pool
	interval   time.Duration
	rateWindow time.Duration
	log        zerolog.Logger
}

// NewJanitor creates a Janitor.
func NewJanitor(registry *Registry, store storage.Store, workerPool *pool.Pool, interval, rateWindow time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{
		registry:   registry,
		store:      store,
		workerPool: workerPool,
		interval:   interval,
		rateWindow: rateWindow,
		log:        log,
	}
}

// Run executes the janitor loop until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	j.tick()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.tick()
		}
	}
}

func (j *Janitor) tick() {
	// Sweep expired bans
	swept, err := j.registry.Sweep()
	if err != nil {
		j.log.Warn().Err(err).Msg("janitor: sweep failed")
	} else if swept > 0 {
		j.log.Info().Int("count", swept).Msg("janitor: swept expired bans")
	}

	// Prune expired rate entries
	if _, err := j.store.PruneExpiredRateEntries(j.rateWindow); err != nil {
		j.log.Warn().Err(err).Msg("janitor: prune expired rate entries failed")
	}

	// Update DB size gauge
	size, err := j.store.SizeBytes()
	if err != nil {
		j.log.Warn().Err(err).Msg("janitor: read db size failed")
	} else {
		metrics.DBSizeBytes.Set(float64(size))
	}

	// Update queue depth gauge
	if j.workerPool != nil {
		metrics.WorkerQueueDepth.Set(float64(j.workerPool.Depth()))
	}

	j.log.Debug().Msg("janitor: tick complete")
}
