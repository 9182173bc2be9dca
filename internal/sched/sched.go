// Package sched is the daily batch job. Steps run in a fixed order
// because later steps depend on earlier ones: interest must be accrued
// before a same-day completion freezes statistics, and payouts only
// run after completions. A failure in one item never aborts the rest
// of its step, and a failed step never aborts the run.
package sched

import (
	"context"
	"time"

	"wekeza.org/internal/goal"
	"wekeza.org/internal/obs"
	"wekeza.org/internal/round"
)

// Runner executes the daily batch.
type Runner struct {
	rounds *round.Service
	goals  *goal.Service
	now    func() time.Time
}

func NewRunner(rounds *round.Service, goals *goal.Service) *Runner {
	return &Runner{
		rounds: rounds,
		goals:  goals,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the runner clock. Test use only.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Summary reports what one batch run did.
type Summary struct {
	ContributionsProcessed int `json:"contributions_processed"`
	ContributionsFailed    int `json:"contributions_failed"`
	MarkedMissed           int `json:"marked_missed"`
	RoundsCompleted        int `json:"rounds_completed"`
	PayoutsProcessed       int `json:"payouts_processed"`
	RemindersSent          int `json:"reminders_sent"`
}

// Run executes all steps once. Safe to re-run: every step checks
// current status before transitioning.
func (r *Runner) Run(ctx context.Context) Summary {
	asOf := r.now()
	var sum Summary

	r.step("process_due_contributions", func() {
		due, err := r.rounds.DueContributions(ctx, asOf)
		if err != nil {
			r.logStepError("process_due_contributions", err)
			return
		}
		for _, c := range due {
			if _, err := r.rounds.ProcessContribution(ctx, c.ID); err != nil {
				sum.ContributionsFailed++
				r.logItemError("process_due_contributions", c.ID, err)
				continue
			}
			sum.ContributionsProcessed++
		}
	})

	r.step("mark_overdue_missed", func() {
		n, err := r.rounds.MarkOverdueMissed(ctx, asOf)
		if err != nil {
			r.logStepError("mark_overdue_missed", err)
			return
		}
		sum.MarkedMissed = n
	})

	r.step("accrue_interest", func() {
		if err := r.rounds.AccrueInterest(ctx, asOf); err != nil {
			r.logStepError("accrue_interest", err)
		}
		if err := r.goals.AccrueInterest(ctx, asOf); err != nil {
			r.logStepError("accrue_interest", err)
		}
	})

	r.step("complete_exhausted_rounds", func() {
		n, err := r.rounds.CompleteExhaustedRounds(ctx, asOf)
		if err != nil {
			r.logStepError("complete_exhausted_rounds", err)
			return
		}
		sum.RoundsCompleted = n
	})

	r.step("process_due_payouts", func() {
		n, err := r.rounds.ProcessDuePayouts(ctx, asOf)
		if err != nil {
			r.logStepError("process_due_payouts", err)
			return
		}
		sum.PayoutsProcessed = n
	})

	r.step("send_reminders", func() {
		n, err := r.rounds.RemindUpcoming(ctx, asOf)
		if err != nil {
			r.logStepError("send_reminders", err)
			return
		}
		sum.RemindersSent = n
	})

	obs.LogJSON(map[string]any{
		"ts":                      time.Now().UTC().Format(time.RFC3339Nano),
		"type":                    "batch",
		"event":                   "run_finished",
		"as_of":                   asOf.Format(time.RFC3339),
		"contributions_processed": sum.ContributionsProcessed,
		"contributions_failed":    sum.ContributionsFailed,
		"marked_missed":           sum.MarkedMissed,
		"rounds_completed":        sum.RoundsCompleted,
		"payouts_processed":       sum.PayoutsProcessed,
		"reminders_sent":          sum.RemindersSent,
	})
	return sum
}

func (r *Runner) step(name string, fn func()) {
	start := time.Now()
	fn()
	obs.ObserveBatchStep(name, time.Since(start))
}

func (r *Runner) logStepError(step string, err error) {
	obs.LogJSON(map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "batch",
		"event": "step_error",
		"step":  step,
		"error": err.Error(),
	})
}

func (r *Runner) logItemError(step, itemID string, err error) {
	obs.LogJSON(map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "batch",
		"event": "item_error",
		"step":  step,
		"item":  itemID,
		"error": err.Error(),
	})
}
