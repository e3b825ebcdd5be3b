package store

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type pingLedger struct {
	TxRunner
	err error
}

func (p pingLedger) Ping(context.Context) error { return p.err }

type pingCH struct {
	Clickhouse
	err error
}

func (p pingCH) Ping(context.Context) error { return p.err }

// bareLedger satisfies TxRunner without Ping
type bareLedger struct{ TxRunner }

func TestGuard(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")
	tests := []struct {
		name    string
		store   *Store
		wantErr []string
	}{
		{name: "nil store", store: nil, wantErr: []string{"nil store"}},
		{name: "no backends", store: &Store{}},
		{name: "ledger without ping", store: &Store{PG: bareLedger{}}},
		{name: "ledger up", store: &Store{PG: pingLedger{}}},
		{name: "ledger down", store: &Store{PG: pingLedger{err: down}}, wantErr: []string{"pg: connection refused"}},
		{name: "publish target down", store: &Store{CH: pingCH{err: down}}, wantErr: []string{"ch: connection refused"}},
		{
			name:    "both down",
			store:   &Store{PG: pingLedger{err: down}, CH: pingCH{err: down}},
			wantErr: []string{"pg: ", "ch: "},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.store.Guard(context.Background())
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("Guard = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Guard = nil, want error")
			}
			for _, w := range tt.wantErr {
				if !strings.Contains(err.Error(), w) {
					t.Fatalf("Guard = %q, want it to contain %q", err, w)
				}
			}
		})
	}
}
