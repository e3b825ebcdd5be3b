// Package service provides the warehouse build orchestrator
package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"visawh/internal/adapters/parquetfs"
	"visawh/internal/adapters/sink"
	"visawh/internal/core/normalize"
	"visawh/internal/modkit/repokit"
	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/logger"
	"visawh/internal/platform/metrics"
	"visawh/internal/services/build/domain"
	"visawh/internal/services/build/guardrails"
	factsvc "visawh/internal/services/facts/service"
	reconsvc "visawh/internal/services/reconcile/service"
	vdom "visawh/internal/services/validate/domain"
	valsvc "visawh/internal/services/validate/service"

	"github.com/google/uuid"
)

// Config holds configuration options for the build service
type Config struct {
	DataRoot string
	OutRoot  string

	// Concurrency
	Readers int // extracts read in parallel; <=0 -> 1
	Workers int // partitions written in parallel; <=0 -> 1

	// Partition-level retry
	MaxRetries int           // attempts per partition; <=0 -> 1
	RetryBase  time.Duration // base backoff; <=0 -> 500ms

	// Timeouts applied via guardrails
	RunTimeout       time.Duration
	ReadTimeout      time.Duration
	PartitionTimeout time.Duration
	DBTimeout        time.Duration

	// DriftFatal fails the run on any schema drift instead of reporting a warning
	DriftFatal bool

	// MetricsFile receives a prometheus textfile at the end of the run; empty disables it
	MetricsFile string
}

// Service implements domain.RunnerPort
type Service struct {
	DB     repokit.TxRunner                  // optional ledger; nil disables it
	Binder repokit.Binder[domain.LedgerRepo] // binds q -> domain.LedgerRepo
	Lease  guardrails.Lease

	Aliases   *reconsvc.Registry
	Norm      *normalize.Normalizer
	Facts     *factsvc.Service
	Validator *valsvc.Service
	Publisher domain.Publisher // optional
	Metrics   *metrics.Metrics
	Cfg       Config
}

var newRunID = func() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// New constructs the build service
func New(
	db repokit.TxRunner,
	binder repokit.Binder[domain.LedgerRepo],
	aliases *reconsvc.Registry,
	norm *normalize.Normalizer,
	facts *factsvc.Service,
	validator *valsvc.Service,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if aliases == nil || norm == nil || facts == nil || validator == nil {
		panic("build.Service requires aliases, normalizer, facts and validator")
	}
	lease := guardrails.Lease(guardrails.NoLease)
	if db != nil {
		lease = guardrails.MakeRunLease(db)
	}
	return &Service{
		DB: db, Binder: binder, Lease: lease,
		Aliases: aliases, Norm: norm, Facts: facts, Validator: validator,
		Metrics: m,
		Cfg:     cfg,
	}
}

// WithPublisher wires an optional publisher run after promotion
func (s *Service) WithPublisher(p domain.Publisher) *Service {
	s.Publisher = p
	return s
}

// RunBuild implements domain.RunnerPort
func (s *Service) RunBuild(ctx context.Context) (vdom.Report, error) {
	id, err := newRunID()
	if err != nil {
		return vdom.Report{}, perr.Wrap(err, perr.ErrorCodeUnknown, "run id")
	}
	ctx = logger.WithRun(ctx, id)

	var rep vdom.Report
	err = s.Lease(ctx, s.Cfg.OutRoot, func(ctx context.Context) error {
		var rerr error
		rep, rerr = s.run(ctx, id)
		return rerr
	})
	if errors.Is(err, guardrails.ErrLeaseHeld) {
		return rep, perr.Wrapf(err, perr.ErrorCodeConflict, "out root %s", s.Cfg.OutRoot)
	}
	return rep, err
}

// VersionDir is the directory of one build version
func VersionDir(outRoot, runID string) string {
	return filepath.Join(outRoot, domain.VersionsDir, runID)
}

func (s *Service) run(ctx context.Context, id string) (rep vdom.Report, retErr error) {
	tos := guardrails.Timeouts{
		Run:       s.Cfg.RunTimeout,
		Read:      s.Cfg.ReadTimeout,
		Partition: s.Cfg.PartitionTimeout,
		DB:        s.Cfg.DBTimeout,
	}
	runCtx, cancel := tos.Bound(ctx, guardrails.StageRun)
	defer cancel()

	startWall := time.Now()
	r := &run{
		s:       s,
		id:      id,
		version: VersionDir(s.Cfg.OutRoot, id),
		tos:     tos,
		recon:   reconsvc.New(s.Aliases, s.Metrics),
		written: map[string]int{},
		rejectN: map[string]int{},
		report:  vdom.Report{RunID: id, Status: vdom.StatusOK},
	}
	log := logger.C(runCtx)
	log.Info().Str("version", r.version).Str("data_root", s.Cfg.DataRoot).Msg("build: start")

	s.ledger(runCtx, tos, func(ctx context.Context, l domain.LedgerRepo) error {
		if err := l.EnsureSchema(ctx); err != nil {
			return err
		}
		return l.StartRun(ctx, id, r.version)
	})

	defer func() {
		rep = r.finish(runCtx, startWall, retErr)
	}()

	if err := r.openSinks(); err != nil {
		return r.report, err
	}

	exs := r.discover(runCtx)
	results := r.readAll(runCtx, exs)
	ins, reg, err := r.resolveEmployers(runCtx, results)
	if err != nil {
		return r.report, err
	}
	jobs := r.buildFacts(runCtx, ins)
	jobs = append(jobs, r.dimJob(reg))
	r.writeAll(runCtx, jobs)
	if err := runCtx.Err(); err != nil {
		return r.report, err
	}
	r.cleanStaging(runCtx, jobs)
	if err := r.closeSinks(); err != nil {
		r.finding(vdom.StatusFail, "", err)
	}

	r.report.Ingest.Employers = reg.Len()
	r.report.Ingest.NearDupes = len(reg.NearDuplicates())
	s.Metrics.SetEmployers(reg.Len())

	s.Validator.Validate(runCtx, r.version, &r.report)
	r.promote(runCtx)
	return r.report, r.failure()
}

// ledger runs fn inside a DB-bounded transaction; failures are logged and never fail the build
func (s *Service) ledger(ctx context.Context, tos guardrails.Timeouts, fn func(context.Context, domain.LedgerRepo) error) {
	if s.DB == nil || s.Binder == nil {
		return
	}
	dbCtx, dbCancel := tos.Bound(ctx, guardrails.StageDB)
	defer dbCancel()
	err := s.DB.Tx(dbCtx, func(q repokit.Queryer) error {
		return fn(dbCtx, repokit.MustBind(s.Binder, q))
	})
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("build: ledger write failed")
	}
}

// run is the mutable state of one build
type run struct {
	s       *Service
	id      string
	version string
	tos     guardrails.Timeouts
	recon   *reconsvc.Reconciler

	rejects   *sink.Sink[sink.Reject]
	conflicts *sink.Sink[sink.Conflict]

	mu      sync.Mutex
	report  vdom.Report
	records int
	rejectN map[string]int
	written map[string]int
	failed  int
	fatal   error
}

func (r *run) openSinks() error {
	q := filepath.Join(r.version, domain.QuarantineDir)
	var err error
	if r.rejects, err = sink.Open[sink.Reject](filepath.Join(q, domain.RejectsFile)); err != nil {
		return err
	}
	r.conflicts, err = sink.Open[sink.Conflict](filepath.Join(q, domain.ConflictsFile))
	return err
}

func (r *run) closeSinks() error {
	var errs []error
	if r.rejects != nil {
		errs = append(errs, r.rejects.Close())
	}
	if r.conflicts != nil {
		errs = append(errs, r.conflicts.Close())
	}
	return errors.Join(errs...)
}

// finding records err on the report; the first failing error is kept as the run error
func (r *run) finding(sev vdom.Status, table string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.AddError(sev, table, err)
	if sev == vdom.StatusFail && r.fatal == nil {
		r.fatal = err
	}
}

func (r *run) reject(rj sink.Reject) {
	r.mu.Lock()
	r.rejectN[rj.Code.String()]++
	r.mu.Unlock()
	r.s.Metrics.IncReject(rj.Domain, rj.Code.String())
	if err := r.rejects.Write(rj); err != nil {
		r.finding(vdom.StatusFail, "", err)
	}
}

func (r *run) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.report.Failed() {
		return nil
	}
	if r.fatal != nil {
		return r.fatal
	}
	return perr.Validationf("build %s failed validation", r.id)
}

// promote writes the report, then swaps CURRENT, then publishes
// A version becomes current only after its report is on disk
func (r *run) promote(ctx context.Context) {
	if r.report.Failed() {
		logger.C(ctx).Warn().Msg("build: validation failed, version not promoted")
		return
	}
	r.report.Promoted = true
	err := valsvc.WriteReport(filepath.Join(r.version, domain.ReportFile), r.report)
	if err == nil {
		err = parquetfs.WriteFileAtomic(filepath.Join(r.s.Cfg.OutRoot, domain.CurrentFile), []byte(r.id+"\n"))
	}
	if err != nil {
		r.report.Promoted = false
		r.finding(vdom.StatusFail, "", err)
		return
	}
	logger.C(ctx).Info().Str("version", r.version).Msg("build: promoted")

	if r.s.Publisher == nil {
		return
	}
	published, err := r.s.Publisher.Publish(ctx, r.id, r.version)
	if err != nil {
		// the version stays current; publication can be rerun
		r.finding(vdom.StatusWarn, "", perr.WithOp(err, "publish"))
		return
	}
	logger.C(ctx).Info().Interface("rows", published).Msg("build: published")
}

// finish fills the ingest summary, writes the report and closes the ledger row
func (r *run) finish(ctx context.Context, startWall time.Time, retErr error) vdom.Report {
	_ = r.closeSinks()
	if retErr != nil && !r.report.Failed() {
		r.finding(vdom.StatusFail, "", retErr)
	}

	r.mu.Lock()
	rep := r.report
	rep.Ingest.Records = r.records
	rep.Ingest.Unmapped = r.recon.Unmapped()
	rep.Ingest.Drift = r.recon.Drift()
	rep.Ingest.Rejects = r.rejectN
	rep.Ingest.Partitions = r.written
	failed := r.failed
	r.mu.Unlock()
	if rep.GeneratedAt.IsZero() {
		rep.GeneratedAt = time.Now().UTC()
	}

	if err := valsvc.WriteReport(filepath.Join(r.version, domain.ReportFile), rep); err != nil {
		logger.C(ctx).Error().Err(err).Msg("build: report write failed")
	}

	elapsed := time.Since(startWall)
	m := r.s.Metrics
	m.FinishBuild(elapsed, rep.Promoted, time.Now())
	if path := r.s.Cfg.MetricsFile; path != "" {
		if err := m.WriteTextfile(path); err != nil {
			logger.C(ctx).Warn().Err(err).Str("path", path).Msg("build: metrics textfile failed")
		}
	}

	conflicts, partitions := 0, 0
	for _, n := range rep.Ingest.Conflicts {
		conflicts += n
	}
	for _, n := range rep.Ingest.Partitions {
		partitions += n
	}
	rejects := 0
	for _, n := range rep.Ingest.Rejects {
		rejects += n
	}
	var errText []string
	for _, f := range rep.Findings {
		if f.Severity == vdom.StatusFail {
			errText = append(errText, f.Message)
		}
	}
	// the run context may be spent; the ledger row is still closed
	lctx := context.WithoutCancel(ctx)
	r.s.ledger(lctx, r.tos, func(ctx context.Context, l domain.LedgerRepo) error {
		return l.FinishRun(ctx, r.id, domain.RunFinish{
			Status:     map[bool]string{true: domain.StatusError, false: domain.StatusOK}[rep.Failed()],
			Validation: string(rep.Status),
			Promoted:   rep.Promoted,
			Records:    rep.Ingest.Records,
			Rejects:    rejects,
			Conflicts:  conflicts,
			Partitions: partitions,
			Failed:     failed,
			ElapsedMS:  int(elapsed.Milliseconds()),
			ErrText:    strings.Join(errText, "; "),
		})
	})

	logger.C(ctx).Info().
		Str("status", string(rep.Status)).
		Bool("promoted", rep.Promoted).
		Int("records", rep.Ingest.Records).
		Int("rejects", rejects).
		Int("conflicts", conflicts).
		Int("partitions", partitions).
		Dur("elapsed", elapsed).
		Msg("build: done")
	return rep
}
