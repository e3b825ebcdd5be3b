// Package service mirrors a promoted warehouse version into ClickHouse
package service

import (
	"context"
	"time"

	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/logger"
	"visawh/internal/services/publish/domain"
)

// Config for the publish service
type Config struct {
	TablePrefix string
	Batch       int
}

// Service implements build/domain.Publisher
type Service struct {
	Repo domain.TableRepo
	Cfg  Config
}

// New constructs a new publish service with a required table repo
func New(r domain.TableRepo, cfg Config) *Service {
	if r == nil {
		panic("publish service: nil repo")
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 10_000
	}
	return &Service{Repo: r, Cfg: cfg}
}

// tableOf returns the published descriptor for a warehouse table
func (s *Service) tableOf(sp tableDef) domain.Table {
	cols := append([]domain.Column{{Name: RunIDColumn, Type: "String"}}, sp.columns...)
	return domain.Table{Name: s.Cfg.TablePrefix + sp.name, Columns: cols, OrderBy: sp.orderBy}
}

// Publish copies every table under root and returns rows sent per warehouse table
// Tables are published in order and the first failure stops the run
func (s *Service) Publish(ctx context.Context, runID, root string) (map[string]int, error) {
	sent := map[string]int{}
	for _, sp := range Tables {
		start := time.Now()
		n, err := s.publishTable(ctx, runID, root, sp)
		sent[sp.name] = n
		if err != nil {
			return sent, perr.WithOp(err, "publish "+sp.name)
		}
		logger.C(ctx).Info().
			Str("table", sp.name).
			Int("rows", n).
			Dur("elapsed", time.Since(start)).
			Msg("publish: table done")
	}
	return sent, nil
}

func (s *Service) publishTable(ctx context.Context, runID, root string, sp tableDef) (int, error) {
	t := s.tableOf(sp)
	if err := s.Repo.EnsureTable(ctx, t); err != nil {
		return 0, err
	}

	n := 0
	buf := make(domain.Batch, 0, s.Cfg.Batch)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if err := s.Repo.Insert(ctx, t, buf); err != nil {
			return err
		}
		n += len(buf)
		buf = buf[:0]
		return nil
	}

	err := sp.scan(ctx, root, func(rows [][]any) error {
		for _, r := range rows {
			buf = append(buf, append([]any{runID}, r...))
			if len(buf) == s.Cfg.Batch {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return n, err
	}
	return n, flush()
}
