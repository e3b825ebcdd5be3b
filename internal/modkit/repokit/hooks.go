package repokit

import "context"

// BeginHook runs at the top of a transaction before any ledger statement,
// e.g. SET LOCAL statement_timeout
type BeginHook func(ctx context.Context, q Queryer) error

// WithBeginHooks returns a runner whose Tx runs hooks in order, then fn, in one
// transaction. A hook error rolls back before fn runs. Exec, Query and QueryRow
// outside a Tx go straight to inner
func WithBeginHooks(inner TxRunner, hooks ...BeginHook) TxRunner {
	if len(hooks) == 0 {
		return inner
	}
	return hookedTx{TxRunner: inner, hooks: hooks}
}

type hookedTx struct {
	TxRunner
	hooks []BeginHook
}

func (h hookedTx) Tx(ctx context.Context, fn func(q Queryer) error) error {
	return h.TxRunner.Tx(ctx, func(q Queryer) error {
		for _, run := range h.hooks {
			if err := run(ctx, q); err != nil {
				return err
			}
		}
		return fn(q)
	})
}
