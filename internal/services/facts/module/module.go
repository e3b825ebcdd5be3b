// Package module provides the facts module implementation
package module

import (
	"visawh/internal/modkit"
	"visawh/internal/services/facts/service"
)

// Ports defines the facts module ports
type Ports struct {
	Builder *service.Service
}

// Module implements the facts module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the facts module; an invalid precedence list is a startup error
func New(deps modkit.Deps) (*Module, error) {
	opts := FromConfig(deps.Cfg)
	svc, err := service.New(opts.Precedence)
	if err != nil {
		return nil, err
	}
	return &Module{deps: deps, ports: Ports{Builder: svc}}, nil
}

// Name returns the module name
func (m *Module) Name() string { return "facts" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
