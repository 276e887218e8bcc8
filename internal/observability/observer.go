package observability

import (
	"fundex/internal/domain"
	"fundex/internal/events"
)

// Observer is an event sink that projects committed engine events onto the
// default metrics. It is stateless and safe to fan out alongside other
// sinks.
type Observer struct{}

var _ events.Sink = Observer{}

// Publish updates counters and gauges from a committed event batch.
func (Observer) Publish(batch []*domain.Event) {
	for _, ev := range batch {
		if ev == nil {
			continue
		}
		RecordEventPublished(string(ev.Type))

		switch p := ev.Payload.(type) {
		case *domain.PoolStateChangedPayload:
			if p.State != nil {
				UpdatePoolGauges(p.State.ReserveA, p.State.ReserveB, p.State.TotalShares)
			}
		case *domain.SwapExecutedPayload:
			RecordSwap(p.AssetIn, p.AmountIn)
		case *domain.FlashLoanRepaidPayload:
			RecordFlashLoan("repaid")
		case *domain.StakedPayload:
			if p.Pool != nil {
				UpdateFarmStaked(p.PoolID, p.Pool.TotalStaked)
			}
		case *domain.UnstakedPayload:
			if p.Pool != nil {
				UpdateFarmStaked(p.PoolID, p.Pool.TotalStaked)
			}
		case *domain.RewardsClaimedPayload:
			RecordRewardsClaimed(p.Amount)
		}
	}
}
