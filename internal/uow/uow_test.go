package uow_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/testsupport"
	"github.com/robertarktes/event-bookings-and-payouts/internal/uow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUoW_Hooks(t *testing.T) {
	u := uow.New(testsupport.Store(t))
	ctx := context.Background()

	t.Run("run after commit in order", func(t *testing.T) {
		var calls []string
		err := u.Do(ctx, func(ctx context.Context, tx crdb.DB, after func(uow.AfterCommit)) error {
			after(func(context.Context) { calls = append(calls, "first") })
			after(func(context.Context) { calls = append(calls, "second") })
			assert.Empty(t, calls)
			_, err := tx.Exec(ctx, "SELECT 1")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, calls)
	})

	t.Run("skipped on rollback", func(t *testing.T) {
		called := false
		err := u.Do(ctx, func(ctx context.Context, tx crdb.DB, after func(uow.AfterCommit)) error {
			after(func(context.Context) { called = true })
			return errors.New("rollback")
		})
		require.Error(t, err)
		assert.False(t, called)
	})
}
