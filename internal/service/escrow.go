package service

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"github.com/robertarktes/event-bookings-and-payouts/internal/uow"
)

type EscrowService struct {
	*core
}

// Release pays out the organizer's share of ticket revenue for a completed event.
// Running it again after the escrow was released changes nothing.
func (s *EscrowService) Release(ctx context.Context, tx crdb.DB, e domain.Event) (bool, error) {
	if !e.TicketEnabled {
		return false, nil
	}
	gross, err := s.store.Tickets(tx).GrossRevenue(ctx, e.ID)
	if err != nil {
		return false, err
	}
	released := gross.Mul(s.policy.EscrowReleaseRate).Round(2)
	changed, err := s.store.Escrows(tx).Release(ctx, e.ID, e.UserID, gross, released, s.now().UTC())
	if err != nil {
		return false, err
	}
	if changed {
		observability.EscrowReleased.Inc()
	}
	return changed, nil
}

// Sweep releases escrow for every completed ticketed event still missing one.
func (s *EscrowService) Sweep(ctx context.Context) (int, error) {
	events, err := s.store.Events(nil).ListUnreleasedEscrow(ctx)
	if err != nil {
		return 0, err
	}
	released := 0
	var failed error
	for _, e := range events {
		var changed bool
		err := s.uow.Do(ctx, func(ctx context.Context, tx crdb.DB, after func(uow.AfterCommit)) error {
			var err error
			changed, err = s.Release(ctx, tx, e)
			return err
		})
		if err != nil {
			s.logger.WithField("event_id", e.ID).WithError(err).Error("escrow release failed")
			failed = errors.CombineErrors(failed, err)
			continue
		}
		if changed {
			released++
		}
	}
	return released, failed
}
