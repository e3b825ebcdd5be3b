package module

import "testing"

// stubModule is a minimal Module with a configurable name and port set
type stubModule struct {
	name  string
	ports any
}

func (s *stubModule) Ports() any   { return s.ports }
func (s *stubModule) Name() string { return s.name }

var _ Module = (*stubModule)(nil)

func TestModule_RegisterByName(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	mods := []Module{
		&stubModule{name: "facts", ports: portSet{Name: "facts", ID: 1}},
		&stubModule{name: "publish", ports: nil},
	}
	for _, m := range mods {
		Register(m.Name(), m.Ports())
	}

	got, ok := PortsAs[portSet]("facts")
	if !ok || got.ID != 1 {
		t.Fatalf("facts ports = %v ok=%v", got, ok)
	}
	// a disabled module registers nil ports and never satisfies a lookup
	if _, ok := PortsAs[portSet]("publish"); ok {
		t.Fatal("nil ports should not assert to portSet")
	}
}
