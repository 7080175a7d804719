// Package scheduler runs periodic maintenance of the dual layer
// architecture: mapping score decay and cache sweeps.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/core/architecture"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/logging"
)

const jobTimeout = 5 * time.Minute

type Scheduler struct {
	arch *architecture.Architecture
	cron *cron.Cron
	log  *zap.Logger
}

// New schedules the decay and sweep jobs. An empty spec disables its job.
func New(arch *architecture.Architecture, cfg config.SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		arch: arch,
		cron: cron.New(),
		log:  logging.OrNop(logger).Named("scheduler"),
	}
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"mapping_decay", cfg.DecaySpec, func() { _, _ = s.Decay() }},
		{"cache_sweep", cfg.CacheSweepSpec, func() { s.SweepCaches() }},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		sched, err := cron.ParseStandard(j.spec)
		if err != nil {
			return nil, errs.Config(fmt.Sprintf("invalid schedule for %s: %q", j.name, j.spec), err)
		}
		s.cron.Schedule(sched, cron.FuncJob(j.run))
		s.log.Info("job scheduled", zap.String("job", j.name), zap.String("spec", j.spec))
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stopped with jobs still running")
	}
}

// Decay applies one decay step to every mapping.
func (s *Scheduler) Decay() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.arch.Mapper.UpdateMappingScores(ctx)
	if err != nil {
		s.log.Error("mapping decay failed", zap.Int("updated", n), zap.Error(err))
		return n, err
	}
	s.log.Info("mapping decay finished", zap.Int("updated", n))
	return n, nil
}

// SweepCaches purges expired entries of the event and pattern caches.
func (s *Scheduler) SweepCaches() int {
	n := s.arch.Events.OptimizeCache() + s.arch.Patterns.OptimizeCache()
	s.log.Debug("cache sweep finished", zap.Int("purged", n))
	return n
}
