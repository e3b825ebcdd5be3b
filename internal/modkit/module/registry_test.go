package module

import (
	"slices"
	"sync"
	"testing"
)

// portSet stands in for a module's Ports struct
type portSet struct {
	Name string
	ID   int
}

// registry tests share process state and never run in parallel

func TestRegistry_PortsAs(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	Register("facts", portSet{Name: "facts", ID: 1})

	cases := []struct {
		name   string
		lookup string
		wantOK bool
	}{
		{name: "registered", lookup: "facts", wantOK: true},
		{name: "missing", lookup: "publish", wantOK: false},
	}
	for _, tc := range cases {
		got, ok := PortsAs[portSet](tc.lookup)
		if ok != tc.wantOK {
			t.Fatalf("%s: ok = %v, want %v", tc.name, ok, tc.wantOK)
		}
		if !ok && got != (portSet{}) {
			t.Fatalf("%s: expected zero value, got %v", tc.name, got)
		}
	}

	if _, ok := PortsAs[int]("facts"); ok {
		t.Fatal("type mismatch should report ok=false")
	}
}

func TestRegistry_OverwriteAndNames(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	Register("validate", portSet{Name: "a", ID: 1})
	Register("build", portSet{Name: "b", ID: 2})
	Register("validate", portSet{Name: "c", ID: 3})

	got, _ := PortsAs[portSet]("validate")
	if got.ID != 3 {
		t.Fatalf("later Register should win, got %v", got)
	}
	if names := Names(); !slices.Equal(names, []string{"build", "validate"}) {
		t.Fatalf("Names = %v", names)
	}

	Reset()
	if len(Names()) != 0 {
		t.Fatal("Reset should clear the registry")
	}
}

func TestRegistry_ConcurrentRegisterAndRead(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	const n = 100
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range n {
			Register("build", portSet{Name: "k", ID: i})
		}
	}()
	go func() {
		defer wg.Done()
		for range n {
			_, _ = PortsAs[portSet]("build")
		}
	}()
	wg.Wait()

	got, ok := PortsAs[portSet]("build")
	if !ok || got.ID != n-1 {
		t.Fatalf("final value = %v ok=%v", got, ok)
	}
}
