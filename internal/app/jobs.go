/**
 * @description
 * This file contains the background maintenance jobs for the settlement
 * service and the cron scheduler that drives them:
 * - Purging expired connection tokens from the store.
 * - Reporting lock records that were never confirmed, so operators can chase
 *   stalled settlements.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - github.com/robfig/cron/v3: Cron-style job scheduling.
 * - internal/store: Data access.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/dfcbank/settlement-service/internal/store"
	"github.com/robfig/cron/v3"
)

const jobTimeout = 30 * time.Second

// Jobs bundles the periodic maintenance work of the settlement service.
type Jobs struct {
	repo         store.Repository
	staleLockAge time.Duration
}

// NewJobs creates the maintenance job set. staleLockAge is how old an
// unconfirmed lock must be before it is reported.
func NewJobs(repo store.Repository, staleLockAge time.Duration) *Jobs {
	return &Jobs{repo: repo, staleLockAge: staleLockAge}
}

// PurgeExpiredConnectionTokens deletes connection tokens past their expiry.
func (j *Jobs) PurgeExpiredConnectionTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	deleted, err := j.repo.DeleteExpiredConnectionTokens(ctx, time.Now())
	if err != nil {
		log.Printf("level=error component=jobs job=token_purge err=%v", err)
		return
	}
	log.Printf("level=info component=jobs job=token_purge deleted=%d", deleted)
}

// ReportStaleLocks counts lock records older than the configured age that were
// never followed by a debit. Locks are non-binding, so the job only reports.
func (j *Jobs) ReportStaleLocks() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cutoff := time.Now().Add(-j.staleLockAge)
	count, err := j.repo.CountStaleLocks(ctx, cutoff)
	if err != nil {
		log.Printf("level=error component=jobs job=stale_locks err=%v", err)
		return
	}
	if count > 0 {
		log.Printf("level=warn component=jobs job=stale_locks msg=\"unconfirmed locks found\" count=%d older_than=%s", count, j.staleLockAge)
		return
	}
	log.Printf("level=info component=jobs job=stale_locks count=0")
}

// StartScheduler registers the maintenance jobs against the given cron
// expressions and starts the scheduler. Callers stop it via the returned cron.
func StartScheduler(jobs *Jobs, tokenPurgeSchedule, staleLockSchedule string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(log.Default())),
	))

	if _, err := c.AddFunc(tokenPurgeSchedule, jobs.PurgeExpiredConnectionTokens); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(staleLockSchedule, jobs.ReportStaleLocks); err != nil {
		return nil, err
	}

	c.Start()
	log.Printf("level=info component=jobs msg=\"scheduler started\" token_purge=%q stale_locks=%q", tokenPurgeSchedule, staleLockSchedule)
	return c, nil
}
