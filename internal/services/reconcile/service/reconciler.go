package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"visawh/internal/adapters/aliasmap"
	"visawh/internal/adapters/source"
	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/logger"
	"visawh/internal/platform/metrics"
	pstrings "visawh/internal/platform/strings"
	"visawh/internal/services/reconcile/domain"
)

// Reconciler binds extracts to their layout and tracks drift and unmapped columns
type Reconciler struct {
	reg     *Registry
	metrics *metrics.Metrics

	mu       sync.Mutex
	unmapped map[unmappedKey]int
	drift    []domain.DriftEvent
}

type unmappedKey struct{ domain, period, column string }

// New returns a reconciler over reg; m may be nil
func New(reg *Registry, m *metrics.Metrics) *Reconciler {
	return &Reconciler{reg: reg, metrics: m, unmapped: map[unmappedKey]int{}}
}

// Registry returns the alias registry
func (rc *Reconciler) Registry() *Registry { return rc.reg }

// Binding maps the columns of one extract onto its layout
type Binding struct {
	Domain   string
	Period   source.Period
	Source   string
	Layout   string
	Mapped   map[string]string // logical field -> raw header
	Unmapped []string

	fields []boundField
	byName map[string]int
}

type boundField struct {
	aliasmap.Field
	col    int
	invert bool
}

// Bind resolves every logical field of the extract's layout against header
// A required field with no column yields a SchemaDrift error naming domain, period, source and field
func (rc *Reconciler) Bind(ctx context.Context, ex source.Extract, header []string) (*Binding, error) {
	li, ok := rc.reg.layout(ex.Domain, ex.Period)
	if !ok {
		err := perr.SchemaDrift(ex.Domain, ex.Period.String(), ex.Rel, "<layout>")
		rc.recordDrift(ctx, ex, []string{"<layout>"})
		return nil, err
	}

	cols := map[string]int{}
	for i, h := range header {
		k := pstrings.HeaderKey(h)
		if _, dup := cols[k]; !dup && k != "" {
			cols[k] = i
		}
	}

	b := &Binding{
		Domain: ex.Domain,
		Period: ex.Period,
		Source: ex.Rel,
		Layout: li.Name,
		Mapped: map[string]string{},
		byName: map[string]int{},
	}
	var missing []string
	for fi, f := range li.Fields {
		bound := false
		for ai, k := range li.keys[fi] {
			col, ok := cols[k]
			if !ok {
				continue
			}
			if bound {
				continue
			}
			bound = true
			b.byName[f.Name] = len(b.fields)
			b.fields = append(b.fields, boundField{Field: f, col: col, invert: inverted(f, f.Aliases[ai])})
			b.Mapped[f.Name] = header[col]
		}
		if !bound && f.Required {
			missing = append(missing, f.Name)
		}
	}

	for i, h := range header {
		if _, ok := rc.reg.Resolve(ex.Domain, ex.Period, h); ok {
			continue
		}
		name := h
		if pstrings.HeaderKey(h) == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		b.Unmapped = append(b.Unmapped, name)
	}
	rc.recordUnmapped(ctx, ex, b.Unmapped)

	if len(missing) > 0 {
		rc.recordDrift(ctx, ex, missing)
		return nil, perr.SchemaDrift(ex.Domain, ex.Period.String(), ex.Rel, missing[0])
	}
	return b, nil
}

func inverted(f aliasmap.Field, alias string) bool {
	for _, a := range f.Invert {
		if pstrings.HeaderKey(a) == pstrings.HeaderKey(alias) {
			return true
		}
	}
	return false
}

// Apply coerces one raw record; a failure is a RecordParse error naming the field
func (b *Binding) Apply(rec source.Record) (domain.Record, error) {
	out := domain.Record{
		Domain:     b.Domain,
		Period:     b.Period,
		SourceFile: rec.SourceFile,
		Row:        rec.Row,
		Fields:     make(map[string]domain.Value, len(b.fields)),
		Unmapped:   b.Unmapped,
	}
	for _, f := range b.fields {
		raw := rec.Get(f.col)
		if isNull(raw, f.Field) {
			continue
		}
		var (
			v   domain.Value
			err error
		)
		switch f.Kind {
		case aliasmap.KindText:
			v = coerceText(raw)
		case aliasmap.KindCode:
			v = coerceCode(raw, f.Field)
		case aliasmap.KindDate:
			v, err = coerceDate(raw, f.Field)
		case aliasmap.KindMoney:
			unit, ok := b.unit(rec, f)
			if !ok {
				err = perr.RecordParsef(f.Name, "%s: missing pay unit", f.Name)
				break
			}
			v, err = coerceMoney(raw, unit, f.Field)
		case aliasmap.KindInt:
			v, err = coerceInt(raw, f.Field)
		case aliasmap.KindFloat:
			v, err = coerceFloat(raw, f.Field)
		case aliasmap.KindBool:
			v, err = coerceBool(raw, f.invert, f.Field)
		case aliasmap.KindCutoff:
			v, err = coerceCutoff(raw, f.Field)
		default:
			err = perr.RecordParsef(f.Name, "%s: unknown kind %q", f.Name, f.Kind)
		}
		if err != nil {
			return domain.Record{}, err
		}
		out.Fields[f.Name] = v
	}
	return out, nil
}

// unit reports the pay unit for a money field; fields without a unit_field are yearly.
// A declared unit that is unbound or null is missing
func (b *Binding) unit(rec source.Record, f boundField) (string, bool) {
	if f.UnitField == "" {
		return "", true
	}
	i, ok := b.byName[f.UnitField]
	if !ok {
		return "", false
	}
	u := rec.Get(b.fields[i].col)
	if isNull(u, b.fields[i].Field) {
		return "", false
	}
	return u, true
}

func (rc *Reconciler) recordUnmapped(ctx context.Context, ex source.Extract, cols []string) {
	if len(cols) == 0 {
		return
	}
	rc.mu.Lock()
	for _, c := range cols {
		rc.unmapped[unmappedKey{ex.Domain, ex.Period.String(), c}]++
	}
	rc.mu.Unlock()
	rc.metrics.AddUnmapped(ex.Domain, len(cols))
	logger.C(ctx).Info().
		Str("file", ex.Rel).
		Int("count", len(cols)).
		Strs("columns", cols).
		Msg("reconcile: unmapped columns")
}

func (rc *Reconciler) recordDrift(ctx context.Context, ex source.Extract, fields []string) {
	rc.mu.Lock()
	for _, f := range fields {
		rc.drift = append(rc.drift, domain.DriftEvent{
			Domain:     ex.Domain,
			Period:     ex.Period.String(),
			SourceFile: ex.Rel,
			Field:      f,
		})
	}
	rc.mu.Unlock()
	rc.metrics.IncDrift(ex.Domain)
	logger.C(ctx).Error().
		Str("file", ex.Rel).
		Str("period", ex.Period.String()).
		Strs("fields", fields).
		Msg("reconcile: schema drift")
}

// Unmapped returns unmapped column counts sorted by (domain, period, column)
func (rc *Reconciler) Unmapped() []domain.UnmappedCount {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]domain.UnmappedCount, 0, len(rc.unmapped))
	for k, n := range rc.unmapped {
		out = append(out, domain.UnmappedCount{Domain: k.domain, Period: k.period, Column: k.column, Files: n})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		return a.Column < b.Column
	})
	return out
}

// Drift returns drift events sorted by (domain, period, source, field)
func (rc *Reconciler) Drift() []domain.DriftEvent {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := append([]domain.DriftEvent(nil), rc.drift...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		return a.Field < b.Field
	})
	return out
}
