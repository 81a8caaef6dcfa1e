package indengine

import (
	"context"
	"fmt"
	"time"

	"chartengine/internal/indicator"
	"chartengine/internal/logger"
	redisstore "chartengine/internal/store/redis"

	goredis "github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
)

// RunSelections applies selection commands from a Redis subscription until
// ctx is cancelled or the subscription closes. Bad commands are logged and
// skipped.
func (svc *Service) RunSelections(ctx context.Context, ps *goredis.PubSub) {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := svc.HandleCommand(ctx, msg.Payload); err != nil {
				svc.log.Warn("selection command failed", "payload", msg.Payload, "error", err)
			}
		}
	}
}

// HandleCommand applies one selection command payload.
func (svc *Service) HandleCommand(ctx context.Context, payload string) error {
	cmd, sel, err := redisstore.ParseSelectionCommand(payload)
	if err != nil {
		return err
	}
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(cmd.Chart, time.Now()))
	svc.log.Info("selection command", append([]any{"chart", cmd.Chart, "indicator", sel.Name()}, logger.LogWithTrace(ctx)...)...)
	if sel.Kind == indicator.KindNone {
		return svc.Clear(ctx, cmd.Chart)
	}
	return svc.Select(ctx, cmd.Chart, sel)
}

// Scheduler runs the periodic chart refresh.
type Scheduler struct {
	cron *cron.Cron
	svc  *Service
}

// NewScheduler registers RefreshAll under spec, a standard cron spec or
// descriptor such as "@every 30s".
func NewScheduler(ctx context.Context, svc *Service, spec string) (*Scheduler, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { svc.RefreshAll(ctx) }); err != nil {
		return nil, fmt.Errorf("register refresh %q: %w", spec, err)
	}
	return &Scheduler{cron: c, svc: svc}, nil
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.svc.log.Info("refresh scheduler started")
}

// Stop stops the scheduler and waits for a running refresh.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.svc.log.Info("refresh scheduler stopped")
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
