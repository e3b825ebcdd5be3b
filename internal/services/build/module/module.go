// Package module provides the build module implementation
package module

import (
	"visawh/internal/adapters/aliasmap"
	"visawh/internal/core/normalize"
	"visawh/internal/modkit"
	"visawh/internal/modkit/repokit"
	"visawh/internal/platform/metrics"
	"visawh/internal/services/build/domain"
	"visawh/internal/services/build/repo"
	"visawh/internal/services/build/service"
	reconsvc "visawh/internal/services/reconcile/service"
)

// Ports defines the build module ports
type Ports struct {
	Runner  domain.RunnerPort
	Metrics *metrics.Metrics
}

// Module implements the build module
type Module struct {
	deps  modkit.Deps
	opts  Options
	ports Ports
}

// New constructs the build module.
// It loads the alias map, wires the ledger when a postgres seam is present and
// takes facts, validator and publisher from WithPorts(build/domain.Ports)
func New(deps modkit.Deps, overrides Options, opts ...modkit.Option) (*Module, error) {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("build"),
	}, opts...)...)

	// Basic guardrails against incorrect wiring
	ports, ok := b.Ports.(domain.Ports)
	if !ok {
		panic("build module: expected WithPorts(build/domain.Ports)")
	}
	if ports.Facts == nil || ports.Validator == nil {
		panic("build module: Ports missing Facts or Validator")
	}

	o := FromConfig(deps.Cfg).merge(overrides)
	if err := o.Validate(); err != nil {
		return nil, err
	}

	doc, err := aliasmap.Load(o.Aliases)
	if err != nil {
		return nil, err
	}
	var nopts []normalize.Option
	if len(doc.Employer.Suffixes) > 0 {
		nopts = append(nopts, normalize.WithSuffixes(doc.Employer.Suffixes))
	}
	if doc.Employer.MinLen > 0 {
		nopts = append(nopts, normalize.WithMinLen(doc.Employer.MinLen))
	}

	// Ledger is optional; SET LOCAL tuning runs at the start of every ledger tx
	var db repokit.TxRunner
	if deps.HasLedger() {
		db = repokit.WithBeginHooks(deps.PG, repo.TxTuning)
	}

	m := metrics.New()
	svc := service.New(
		db, repo.NewPG(),
		reconsvc.NewRegistry(doc),
		normalize.New(nopts...),
		ports.Facts, ports.Validator,
		m,
		service.Config{
			DataRoot:         o.DataRoot,
			OutRoot:          o.OutRoot,
			Readers:          o.Readers,
			Workers:          o.Workers,
			MaxRetries:       o.MaxRetries,
			RetryBase:        o.RetryBase,
			RunTimeout:       o.RunTimeout,
			ReadTimeout:      o.ReadTimeout,
			PartitionTimeout: o.PartitionTimeout,
			DBTimeout:        o.DBTimeout,
			DriftFatal:       o.DriftFatal,
			MetricsFile:      o.MetricsFile,
		},
	)
	if ports.Publisher != nil {
		svc.WithPublisher(ports.Publisher)
	}

	return &Module{deps: deps, opts: o, ports: Ports{Runner: svc, Metrics: m}}, nil
}

// Name returns the module name
func (m *Module) Name() string { return "build" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Options returns the effective options after config and overrides
func (m *Module) Options() Options { return m.opts }
