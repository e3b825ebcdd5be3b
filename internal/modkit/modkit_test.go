// Package modkit provides building blocks for modular Go applications
package modkit

import "testing"

// stub module that satisfies Module
type stub struct {
	name  string
	ports any
}

func (s *stub) Ports() any   { return s.ports }
func (s *stub) Name() string { return s.name }

// compile-time assertion: stub implements Module
var _ Module = (*stub)(nil)

func TestBuilder_TypeSignatureAndUse(t *testing.T) {
	t.Parallel()

	var b Builder = func(_ Deps, opts ...Option) Module {
		bt := Build(opts...)
		return &stub{name: bt.Name, ports: bt.Ports}
	}

	m := b(Deps{}, WithName("employer"), WithPorts("ok"))
	if m.Name() != "employer" {
		t.Fatalf("name = %q", m.Name())
	}
	if p := m.Ports(); p != "ok" {
		t.Fatalf("unexpected Ports value from built module: got=%v want=ok", p)
	}
}
