// Package cron schedules the recurring jobs that are not event-driven,
// currently just the end-of-day portfolio report.
package cron

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/polysentry/polysentry/internal/alert"
	"github.com/polysentry/polysentry/internal/paper"
)

// Runner owns the cron scheduler.
type Runner struct {
	cron      *cron.Cron
	engine    *paper.Engine
	transport alert.Transport
}

func NewRunner(engine *paper.Engine, transport alert.Transport) *Runner {
	return &Runner{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		engine:    engine,
		transport: transport,
	}
}

// Start registers the jobs and launches the scheduler.
func (r *Runner) Start() error {
	// Daily report just before UTC midnight so "today" covers the full day.
	if _, err := r.cron.AddFunc("55 23 * * *", r.sendDailyReport); err != nil {
		return err
	}
	r.cron.Start()
	log.Info().Msg("⏰ Cron scheduler started")
	return nil
}

func (r *Runner) Stop() {
	r.cron.Stop()
}

func (r *Runner) sendDailyReport() {
	report := r.engine.GetDailyReport()
	if err := r.transport.Send(report.Format()); err != nil {
		log.Warn().Err(err).Msg("Failed to send daily report")
	}
}
