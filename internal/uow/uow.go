package uow

import (
	"context"

	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
)

// AfterCommit runs once the transaction has committed.
type AfterCommit func(ctx context.Context)

type UoW struct {
	store *crdb.Store
}

func New(store *crdb.Store) *UoW {
	return &UoW{store: store}
}

func (u *UoW) Store() *crdb.Store { return u.store }

// Do runs fn in one transaction and then its registered hooks, in registration order.
// A retried attempt starts with no hooks, so only the committed attempt's hooks run.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx crdb.DB, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.store.RunTx(ctx, func(ctx context.Context, tx crdb.DB) error {
		hooks = hooks[:0]
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}
	return nil
}
