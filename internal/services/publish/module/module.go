// Package module provides the publish module implementation
package module

import (
	"visawh/internal/modkit"
	perr "visawh/internal/platform/errors"
	"visawh/internal/services/publish/repo"
	"visawh/internal/services/publish/service"
)

// Ports defines the publish module ports
// Publisher is nil when publishing is disabled
type Ports struct {
	Publisher *service.Service
}

// Module implements the publish module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the publish module; enabling it without a ClickHouse seam is a startup error
func New(deps modkit.Deps) (*Module, error) {
	opts := FromConfig(deps.Cfg)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	m := &Module{deps: deps}
	if !opts.Enabled {
		return m, nil
	}
	if !deps.HasClickhouse() {
		return nil, perr.New(perr.ErrorCodeInvalidArgument, "publish enabled without clickhouse")
	}
	m.ports.Publisher = service.New(repo.NewCH(deps.CH), service.Config{
		TablePrefix: opts.TablePrefix,
		Batch:       opts.Batch,
	})
	return m, nil
}

// Name returns the module name
func (m *Module) Name() string { return "publish" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
