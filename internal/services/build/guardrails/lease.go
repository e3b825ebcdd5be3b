package guardrails

import (
	"context"
	"errors"
	"fmt"
	"time"

	"visawh/internal/modkit/repokit"
	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/logger"
	"visawh/internal/platform/store"
)

const releaseTimeout = 5 * time.Second

// ErrLeaseHeld signals another build owns the output root already
var ErrLeaseHeld = errors.New("build: output root lease already held")

// Lease runs do while holding an exclusive claim on an output root
type Lease func(ctx context.Context, outRoot string, do func(context.Context) error) error

// MakeRunLease returns a Lease backed by the build_leases table.
// The claim is a row keyed by the output root, inserted with on conflict do nothing
// and deleted when do returns. A crashed build leaves its row behind; delete it by hand
// If the root is already claimed, it returns ErrLeaseHeld naming the holder without running do
func MakeRunLease(db repokit.TxRunner) Lease {
	return func(ctx context.Context, outRoot string, do func(context.Context) error) error {
		var (
			held   bool
			holder string
		)
		err := db.Tx(ctx, func(q repokit.Queryer) error {
			claimed, err := store.Many(ctx, q, scanBool, `
				insert into build_leases (out_root, run_id)
				values ($1, $2)
				on conflict (out_root) do nothing
				returning true
			`, outRoot, logger.RunID(ctx))
			if err != nil || len(claimed) > 0 {
				return err
			}
			held = true
			holder, err = store.Scalar[string](ctx, q, `select run_id from build_leases where out_root = $1`, outRoot)
			return err
		})
		if err != nil {
			return perr.FromPostgres(err, "ledger claim lease")
		}
		if held {
			return fmt.Errorf("%w (run %s)", ErrLeaseHeld, holder)
		}
		defer func() {
			// released on a fresh context so a cancelled build still frees the root
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			if _, err := db.Exec(rctx, `delete from build_leases where out_root = $1`, outRoot); err != nil {
				logger.C(ctx).Warn().Err(err).Str("out_root", outRoot).Msg("build: lease release failed")
			}
		}()
		return do(ctx)
	}
}

func scanBool(r store.Row) (bool, error) {
	var b bool
	err := r.Scan(&b)
	return b, err
}

// NoLease runs do directly; used when no ledger database is configured
func NoLease(ctx context.Context, _ string, do func(context.Context) error) error { return do(ctx) }
