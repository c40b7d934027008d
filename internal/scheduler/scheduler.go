package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/novahub/nova-gateway/internal/cache"
	"github.com/novahub/nova-gateway/internal/logging"
	"github.com/novahub/nova-gateway/internal/router"
)

// Scheduler runs the periodic housekeeping jobs: conversation-context GC,
// cache sweeping and rate-limit window cleanup.
type Scheduler struct {
	cron          *cron.Cron
	contexts      *router.ContextStore
	limiter       *router.RateLimiter
	cache         *cache.Cache
	inactiveAfter time.Duration
	logger        *slog.Logger
}

// New creates a scheduler with all jobs registered but not started.
func New(contexts *router.ContextStore, limiter *router.RateLimiter, c *cache.Cache, inactiveAfter time.Duration) (*Scheduler, error) {
	s := &Scheduler{
		cron:          cron.New(),
		contexts:      contexts,
		limiter:       limiter,
		cache:         c,
		inactiveAfter: inactiveAfter,
		logger:        logging.WithComponent("scheduler"),
	}
	if err := s.register(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) register() error {
	// hourly: drop conversations idle past the inactivity window
	if _, err := s.cron.AddFunc("0 * * * *", s.cleanupContexts); err != nil {
		return err
	}
	// every 10 minutes: evict expired cache entries
	if _, err := s.cron.AddFunc("*/10 * * * *", s.sweepCache); err != nil {
		return err
	}
	// every 10 minutes: drop empty rate-limit windows
	if _, err := s.cron.AddFunc("*/10 * * * *", s.cleanupLimiter); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) cleanupContexts() {
	removed := s.contexts.Cleanup(s.inactiveAfter)
	if removed > 0 {
		s.logger.Info("cleaned inactive contexts", "removed", removed, "remaining", s.contexts.Len())
	}
}

func (s *Scheduler) sweepCache() {
	removed := s.cache.Sweep()
	if removed > 0 {
		s.logger.Info("swept expired cache entries", "removed", removed, "remaining", s.cache.Len())
	}
}

func (s *Scheduler) cleanupLimiter() {
	s.limiter.Cleanup()
}
