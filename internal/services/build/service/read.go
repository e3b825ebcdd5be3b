package service

import (
	"context"
	"errors"
	"io"

	"visawh/internal/adapters/sink"
	"visawh/internal/adapters/source"
	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/logger"
	"visawh/internal/services/build/guardrails"
	empdom "visawh/internal/services/employer/domain"
	empsvc "visawh/internal/services/employer/service"
	factsdom "visawh/internal/services/facts/domain"
	recdom "visawh/internal/services/reconcile/domain"
	vdom "visawh/internal/services/validate/domain"

	"golang.org/x/sync/errgroup"
)

// extractResult is the reconciled content of one extract
type extractResult struct {
	ex      source.Extract
	records []recdom.Record
	rows    int
	err     error
}

// discover lists every configured domain's extracts; a domain that cannot be listed fails the run
func (r *run) discover(ctx context.Context) []source.Extract {
	var out []source.Extract
	for _, d := range r.s.Aliases.Domains() {
		exs, err := source.Discover(r.s.Cfg.DataRoot, source.Layout{
			Domain:  d.Name,
			Subdir:  d.Subdir,
			Include: d.Include,
			Exclude: d.Exclude,
		})
		if err != nil {
			r.finding(vdom.StatusFail, factsdom.TableOf(d.Name), err)
			continue
		}
		logger.C(ctx).Info().Str("domain", d.Name).Int("extracts", len(exs)).Msg("build: discovered")
		out = append(out, exs...)
	}
	return out
}

// readAll reads and reconciles extracts concurrently; results keep discovery order
func (r *run) readAll(ctx context.Context, exs []source.Extract) []extractResult {
	out := make([]extractResult, len(exs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.s.Cfg.Readers, 1))
	for i, ex := range exs {
		g.Go(func() error {
			out[i] = r.readExtract(gctx, ex)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range out {
		if res.err == nil {
			continue
		}
		// drift fails its extract only; it fails the run when drift is fatal
		sev := vdom.StatusFail
		if perr.IsCode(res.err, perr.ErrorCodeSchemaDrift) && !r.s.Cfg.DriftFatal {
			sev = vdom.StatusWarn
		}
		r.finding(sev, factsdom.TableOf(res.ex.Domain), res.err)
	}
	return out
}

func (r *run) readExtract(ctx context.Context, ex source.Extract) (res extractResult) {
	res.ex = ex
	ctx = logger.WithDomain(ctx, ex.Domain)
	readCtx, readCancel := r.tos.Bound(ctx, guardrails.StageRead)
	defer readCancel()

	rd, err := source.Open(readCtx, ex)
	if err != nil {
		res.err = err
		return
	}
	defer func() {
		if cerr := rd.Close(); cerr != nil && res.err == nil {
			res.err = perr.Wrapf(cerr, perr.ErrorCodeIO, "close %s", ex.Rel)
		}
	}()

	b, err := r.recon.Bind(readCtx, ex, rd.Header())
	if err != nil {
		res.err = err
		return
	}
	for {
		raw, err := rd.Next(readCtx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.err = err
			res.records = nil
			return
		}
		res.rows++
		rec, err := b.Apply(raw)
		if err != nil {
			r.reject(sink.RejectOf(ex.Domain, ex.Period.String(), ex.Rel, raw.Row, err))
			continue
		}
		res.records = append(res.records, rec)
	}

	r.s.Metrics.AddRead(ex.Domain, res.rows)
	r.mu.Lock()
	r.records += res.rows
	r.mu.Unlock()
	logger.C(ctx).Debug().
		Str("file", ex.Rel).
		Str("layout", b.Layout).
		Int("rows", res.rows).
		Int("records", len(res.records)).
		Msg("build: extract read")
	return
}

// employerRef points at one Input awaiting an employer id
type employerRef struct {
	domain string
	i      int
}

// resolveEmployers turns reconciled records into fact inputs and assigns employer ids in one
// ordered pass; ids and the dimension are independent of reader scheduling
func (r *run) resolveEmployers(ctx context.Context, results []extractResult) (map[string][]factsdom.Input, *empsvc.Registry, error) {
	reg := empsvc.NewRegistry(r.s.Norm)
	ins := map[string][]factsdom.Input{}
	var items []empdom.Item
	var refs []employerRef

	for _, res := range results {
		if res.err != nil {
			continue
		}
		dom := res.ex.Domain
		for _, rec := range res.records {
			in := factsdom.Input{Rec: rec, Dirs: res.ex.Dirs, SourceName: res.ex.Name}
			if factsdom.HasEmployer(dom) {
				raw := rec.Text("employer_name")
				in.EmployerKey = reg.Normalize(raw)
				items = append(items, empdom.Item{Raw: raw, SourceFile: rec.SourceFile, Row: rec.Row})
				refs = append(refs, employerRef{domain: dom, i: len(ins[dom])})
			}
			ins[dom] = append(ins[dom], in)
		}
	}

	out, err := reg.ResolveAll(ctx, items)
	if err != nil {
		return nil, nil, err
	}
	for k, res := range out {
		in := &ins[refs[k].domain][refs[k].i]
		in.EmployerID = res.EmployerID
		in.EmployerErr = res.Err
	}
	return ins, reg, nil
}
