package modkit

import "testing"

type fakePorts struct{ Runner string }

func TestBuild_AppliesOptionsInOrder(t *testing.T) {
	t.Parallel()

	b := Build(
		WithName("facts"),
		WithPorts(fakePorts{Runner: "first"}),
		WithPorts(fakePorts{Runner: "second"}),
	)
	if b.Name != "facts" {
		t.Fatalf("name = %q", b.Name)
	}
	p, ok := b.Ports.(fakePorts)
	if !ok || p.Runner != "second" {
		t.Fatalf("last WithPorts should win, got %#v", b.Ports)
	}
}

func TestBuild_ZeroOptions(t *testing.T) {
	t.Parallel()

	b := Build()
	if b.Name != "" || b.Ports != nil {
		t.Fatalf("expected zero Built, got %#v", b)
	}
}
