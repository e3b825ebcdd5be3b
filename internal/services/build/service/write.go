package service

import (
	"context"
	"sync"
	"time"

	"visawh/internal/adapters/parquetfs"
	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/logger"
	"visawh/internal/services/build/domain"
	"visawh/internal/services/build/guardrails"
	emprepo "visawh/internal/services/employer/repo"
	empsvc "visawh/internal/services/employer/service"
	factsdom "visawh/internal/services/facts/domain"
	vdom "visawh/internal/services/validate/domain"

	"github.com/cenkalti/backoff/v4"
)

// job is one partition write
type job struct {
	table string
	part  string
	rows  int
	write func(ctx context.Context) (parquetfs.Written, error)
}

// buildFacts runs every domain through precedence and returns its partitions as jobs
func (r *run) buildFacts(ctx context.Context, ins map[string][]factsdom.Input) []job {
	var jobs []job
	conflicts := map[string]int{}
	for _, dom := range factsdom.Domains {
		out, err := r.s.Facts.Build(ctx, dom, ins[dom])
		if err != nil {
			r.finding(vdom.StatusFail, factsdom.TableOf(dom), err)
			continue
		}
		for _, rj := range out.Rejects {
			r.reject(rj)
		}
		for _, c := range out.Conflicts {
			if err := r.conflicts.Write(c); err != nil {
				r.finding(vdom.StatusFail, out.Table, err)
				break
			}
		}
		if n := out.LosingRows(); n > 0 {
			conflicts[out.Table] = n
			r.s.Metrics.AddConflicts(out.Table, n)
		}
		for _, p := range out.Partitions {
			jobs = append(jobs, job{
				table: p.Table,
				part:  p.Key,
				rows:  p.Rows,
				write: func(ctx context.Context) (parquetfs.Written, error) { return p.Write(ctx, r.version) },
			})
		}
	}
	r.mu.Lock()
	r.report.Ingest.Conflicts = conflicts
	r.mu.Unlock()
	return jobs
}

// dimJob writes dim_employer as one unpartitioned job
func (r *run) dimJob(reg *empsvc.Registry) job {
	rows := reg.Snapshot()
	return job{
		table: emprepo.Table,
		rows:  len(rows),
		write: func(ctx context.Context) (parquetfs.Written, error) {
			return emprepo.NewDim(r.version).Write(ctx, rows)
		},
	}
}

// writeAll runs jobs on a bounded pool; a failed partition is reported and never blocks the others
func (r *run) writeAll(ctx context.Context, jobs []job) {
	w := max(r.s.Cfg.Workers, 1)
	var wg sync.WaitGroup
	sem := make(chan struct{}, w)

launch:
	for _, j := range jobs {
		select {
		case <-ctx.Done():
			break launch
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func() {
			defer func() { <-sem; wg.Done() }()
			if err := r.writeWithRetry(ctx, j); err != nil {
				logger.C(ctx).Error().Str("table", j.table).Str("partition", j.part).Err(err).Msg("build: partition failed")
				r.mu.Lock()
				r.failed++
				r.mu.Unlock()
				r.finding(vdom.StatusFail, j.table, err)
			}
		}()
	}
	wg.Wait()
}

// cleanStaging drops what interrupted attempts left under each table's staging dir,
// so the version holds only promoted partitions before it is validated
func (r *run) cleanStaging(ctx context.Context, jobs []job) {
	seen := map[string]bool{}
	for _, j := range jobs {
		if seen[j.table] {
			continue
		}
		seen[j.table] = true
		if err := parquetfs.NewTable(r.version, j.table).CleanStaging(); err != nil {
			logger.C(ctx).Warn().Err(err).Str("table", j.table).Msg("build: staging cleanup failed")
			r.finding(vdom.StatusWarn, j.table, perr.Wrap(err, perr.ErrorCodeIO, "clean staging"))
		}
	}
}

// writeWithRetry retries transient failures with jittered exponential backoff capped at 30s
func (r *run) writeWithRetry(ctx context.Context, j job) error {
	base := r.s.Cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.MaxInterval = 30 * time.Second
	eb.RandomizationFactor = 0.5
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(r.s.Cfg.MaxRetries, 1)-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := r.writeOnce(ctx, j, attempt)
		if err != nil && !perr.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		r.s.Metrics.IncRetry()
		logger.C(ctx).Warn().Err(err).Str("table", j.table).Str("partition", j.part).
			Int("attempt", attempt).Dur("wait", wait).Msg("build: partition retry")
	})
}

func (r *run) writeOnce(ctx context.Context, j job, attempt int) (retErr error) {
	partCtx, partCancel := r.tos.Bound(logger.WithPartition(ctx, j.table+"/"+j.part), guardrails.StagePartition)
	defer partCancel()

	startWall := time.Now()
	var written parquetfs.Written

	// Start (best-effort, DB-bounded)
	r.s.ledger(partCtx, r.tos, func(ctx context.Context, l domain.LedgerRepo) error {
		return l.StartPartition(ctx, r.id, j.table, j.part)
	})

	// Ensure Finish even on error
	defer func() {
		elapsed := time.Since(startWall)
		outcome := map[bool]string{true: domain.StatusError, false: domain.StatusOK}[retErr != nil]
		r.s.Metrics.ObservePartition(j.table, outcome, written.Rows, elapsed)
		var errText string
		if retErr != nil {
			errText = retErr.Error()
		}
		r.s.ledger(context.WithoutCancel(ctx), r.tos, func(ctx context.Context, l domain.LedgerRepo) error {
			return l.FinishPartition(ctx, r.id, j.table, j.part, domain.PartitionFinish{
				Status:    outcome,
				Rows:      written.Rows,
				Bytes:     written.Bytes,
				Attempt:   attempt,
				ElapsedMS: int(elapsed.Milliseconds()),
				ErrText:   errText,
			})
		})
	}()

	w, err := j.write(partCtx)
	if err != nil {
		return err
	}
	written = w
	r.mu.Lock()
	r.written[j.table]++
	r.mu.Unlock()
	logger.C(partCtx).Debug().Int("rows", w.Rows).Int64("bytes", w.Bytes).Msg("build: partition written")
	return nil
}
