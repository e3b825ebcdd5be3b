// Package module provides the validate module implementation
package module

import (
	"strings"

	"visawh/internal/modkit"
	"visawh/internal/services/validate/domain"
	"visawh/internal/services/validate/engine"
	"visawh/internal/services/validate/service"
)

// Ports defines the validate module ports
type Ports struct {
	Validator *service.Service
}

// Module implements the validate module
type Module struct {
	deps   modkit.Deps
	engine domain.Engine
	ports  Ports
}

// New constructs the validate module and opens its read engine
func New(deps modkit.Deps) (*Module, error) {
	opts := FromConfig(deps.Cfg)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cov, err := service.ParseCoverage(opts.Coverage)
	if err != nil {
		return nil, err
	}

	var eng domain.Engine = engine.NewParquet()
	if strings.EqualFold(opts.Engine, EngineDuckDB) {
		if eng, err = engine.NewDuckDB(); err != nil {
			return nil, err
		}
	}

	svc := service.New(eng, service.Config{
		RefWarn:          opts.RefWarn,
		RefFail:          opts.RefFail,
		CoverageMin:      cov,
		CoverageBlocking: opts.CoverageBlocking,
	})
	return &Module{deps: deps, engine: eng, ports: Ports{Validator: svc}}, nil
}

// Name returns the module name
func (m *Module) Name() string { return "validate" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Close releases the read engine
func (m *Module) Close() error { return m.engine.Close() }
