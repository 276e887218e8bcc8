// Package persistence bridges the engine's event stream to durable
// storage: a Recorder projects committed events into the state stores and
// the journal, and a Loader reassembles a snapshot for the next boot.
package persistence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fundex/internal/account"
	"fundex/internal/domain"
	"fundex/internal/events"
	"fundex/internal/observability"
	"fundex/internal/storage"
)

const persistTimeout = 5 * time.Second

// Recorder is an events.Sink that upserts the durable state an event batch
// carries and appends the batch to the journal. It runs synchronously in
// the engine's commit path, so persistence failures are logged and counted
// but never surfaced: the engine's in-memory state stays authoritative and
// a lost write must not fail the operation that produced it.
type Recorder struct {
	pools   storage.PoolStore
	tiers   storage.TierStore
	farms   storage.FarmStore
	journal storage.EventJournal
	log     *zap.Logger
}

var _ events.Sink = (*Recorder)(nil)

// NewRecorder wires a recorder over the given stores. The journal may be
// nil when no event log is configured; a nil logger discards log output.
func NewRecorder(pools storage.PoolStore, tiers storage.TierStore, farms storage.FarmStore, journal storage.EventJournal, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		pools:   pools,
		tiers:   tiers,
		farms:   farms,
		journal: journal,
		log:     log,
	}
}

// Publish projects the batch into the stores and journals it.
func (r *Recorder) Publish(batch []*domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	for _, ev := range batch {
		if ev == nil {
			continue
		}
		if err := r.project(ctx, ev); err != nil {
			observability.RecordJournalError()
			r.log.Error("project event",
				zap.String("event_id", ev.ID),
				zap.String("event_type", ev.Type.String()),
				zap.Error(err))
		}
	}

	if r.journal == nil {
		return
	}
	if err := r.journal.Append(ctx, batch); err != nil {
		observability.RecordJournalError()
		r.log.Error("journal batch", zap.Int("events", len(batch)), zap.Error(err))
	}
}

// project applies one event's durable state change. Events that carry no
// store state (swaps, flash loans, pause markers) reach only the journal;
// the pool row rides on the POOL_STATE_CHANGED event committed in the same
// batch.
func (r *Recorder) project(ctx context.Context, ev *domain.Event) error {
	switch p := ev.Payload.(type) {
	case *domain.PoolStateChangedPayload:
		return r.pools.SavePool(ctx, p.State)
	case *domain.LiquidityAddedPayload:
		if p.FloorShares != nil {
			floor := &domain.ShareBalance{Account: account.LockedShares, Shares: p.FloorShares}
			if err := r.pools.SaveShareBalance(ctx, floor); err != nil {
				return err
			}
		}
		return r.pools.SaveShareBalance(ctx, &domain.ShareBalance{Account: ev.Account, Shares: p.ShareBalance})
	case *domain.LiquidityRemovedPayload:
		return r.pools.SaveShareBalance(ctx, &domain.ShareBalance{Account: ev.Account, Shares: p.ShareBalance})
	case *domain.TierChangedPayload:
		return r.tiers.SaveUserTier(ctx, &domain.UserTier{Account: ev.Account, Tier: p.NewTier})
	case *domain.TierConfiguredPayload:
		return r.tiers.SaveTier(ctx, p.Tier)
	case *domain.StakedPayload:
		return r.saveFarmState(ctx, p.Pool, p.Position)
	case *domain.UnstakedPayload:
		return r.saveFarmState(ctx, p.Pool, p.Position)
	case *domain.RewardsClaimedPayload:
		return r.saveFarmState(ctx, p.Pool, p.Position)
	case *domain.FarmPoolCreatedPayload:
		return r.farms.SaveFarmPool(ctx, p.Pool)
	case *domain.FarmPoolStatusChangedPayload:
		return r.farms.SaveFarmPool(ctx, p.Pool)
	default:
		return nil
	}
}

// saveFarmState persists the pool before the position so the position's
// foreign key always has a parent row.
func (r *Recorder) saveFarmState(ctx context.Context, pool *domain.FarmPool, pos *domain.StakePosition) error {
	if err := r.farms.SaveFarmPool(ctx, pool); err != nil {
		return err
	}
	return r.farms.SaveStakePosition(ctx, pos)
}
