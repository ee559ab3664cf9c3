package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"quizbattle-service/internal/app"
)

// Sweeper periodically forfeits overdue battles and drops expired queued
// invites so abandoned state does not linger.
type Sweeper struct {
	battles  *app.BattleService
	invites  *app.InviteService
	interval time.Duration
	sched    gocron.Scheduler
}

func New(battles *app.BattleService, invites *app.InviteService, interval time.Duration) *Sweeper {
	return &Sweeper{battles: battles, invites: invites, interval: interval}
}

// Start schedules the sweep jobs and runs them until Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.sched = sched

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			swept, err := s.battles.SweepOverdue(ctx)
			if err != nil {
				log.Printf("battle sweep failed: %v", err)
				return
			}
			if swept > 0 {
				log.Printf("forfeited %d overdue battles", swept)
			}
		}),
	)
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			dropped, err := s.invites.SweepExpired(ctx)
			if err != nil {
				log.Printf("invite sweep failed: %v", err)
				return
			}
			if dropped > 0 {
				log.Printf("dropped %d expired invites", dropped)
			}
		}),
	)
	if err != nil {
		return err
	}

	sched.Start()
	return nil
}

func (s *Sweeper) Stop() {
	if s.sched != nil {
		_ = s.sched.Shutdown()
	}
}
