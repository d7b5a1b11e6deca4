package reservation

import (
    "context"
    "log"
    "time"

    "github.com/robfig/cron/v3"
)

// Sweeper periodically expires reservations whose window has elapsed
// without consumption.  It runs independently of the request path and
// relies on the service's compare-and-set transitions, so a sweep that
// races an API cancel or an event-driven consume simply loses the race
// and moves on.
type Sweeper struct {
    cron *cron.Cron
    svc  *Service
}

// NewSweeper returns a sweeper bound to the given service.
func NewSweeper(svc *Service) *Sweeper {
    return &Sweeper{cron: cron.New(), svc: svc}
}

// Start schedules the expiry sweep at the given interval and starts
// the cron runner.  Each run is bounded by its own timeout so a slow
// repository cannot pile up overlapping sweeps.
func (s *Sweeper) Start(every time.Duration) error {
    _, err := s.cron.AddFunc("@every "+every.String(), func() {
        ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
        defer cancel()
        n, err := s.svc.ExpireDue(ctx)
        if err != nil {
            log.Printf("sweeper: expiry sweep failed: %v", err)
            return
        }
        if n > 0 {
            log.Printf("sweeper: expired %d reservations", n)
        }
    })
    if err != nil {
        return err
    }
    s.cron.Start()
    return nil
}

// Stop halts the cron runner and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
    ctx := s.cron.Stop()
    <-ctx.Done()
}
