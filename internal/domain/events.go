package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// EventType identifies an engine notification.
type EventType string

// Event type constants
const (
	EventLiquidityAdded        EventType = "LIQUIDITY_ADDED"
	EventLiquidityRemoved      EventType = "LIQUIDITY_REMOVED"
	EventPoolStateChanged      EventType = "POOL_STATE_CHANGED"
	EventSwapExecuted          EventType = "SWAP_EXECUTED"
	EventTierChanged           EventType = "TIER_CHANGED"
	EventTierConfigured        EventType = "TIER_CONFIGURED"
	EventFlashLoanTaken        EventType = "FLASH_LOAN_TAKEN"
	EventFlashLoanRepaid       EventType = "FLASH_LOAN_REPAID"
	EventStaked                EventType = "STAKED"
	EventUnstaked              EventType = "UNSTAKED"
	EventRewardsClaimed        EventType = "REWARDS_CLAIMED"
	EventFarmPoolCreated       EventType = "FARM_POOL_CREATED"
	EventFarmPoolStatusChanged EventType = "FARM_POOL_STATUS_CHANGED"
	EventMaxSlippageUpdated    EventType = "MAX_SLIPPAGE_UPDATED"
	EventPaused                EventType = "PAUSED"
	EventUnpaused              EventType = "UNPAUSED"
	EventEmergencyWithdrawal   EventType = "EMERGENCY_WITHDRAWAL"
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	return string(t)
}

// Event is the envelope every engine notification is published in.
// Events are buffered during an operation and published only on commit;
// a failed operation publishes nothing.
type Event struct {
	ID      string    // UUID, assigned at commit
	Type    EventType //
	Unix    int64     // engine clock at commit
	Account string    // account the event primarily concerns, "" for engine-wide
	Payload any       // one of the *Payload types below, or nil
}

// JournalEvent is the journal's read model of a committed Event. Payload is
// the JSON encoding of the original payload, "" when the event carried none.
type JournalEvent struct {
	ID      string
	Type    EventType
	Unix    int64
	Account string
	Payload string
}

// NewJournalEvent converts an Event into its journal form.
func NewJournalEvent(ev *Event) (*JournalEvent, error) {
	if ev == nil {
		return nil, fmt.Errorf("nil event")
	}
	je := &JournalEvent{
		ID:      ev.ID,
		Type:    ev.Type,
		Unix:    ev.Unix,
		Account: ev.Account,
	}
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", ev.Type, err)
		}
		je.Payload = string(data)
	}
	return je, nil
}

// LiquidityAddedPayload carries the outcome of an AddLiquidity operation.
// ShareBalance is the depositor's balance after minting; FloorShares is
// non-nil only on the bootstrap deposit and holds the sentinel's locked
// floor.
type LiquidityAddedPayload struct {
	AmountA      *big.Int
	AmountB      *big.Int
	SharesMinted *big.Int // credited to the depositor, floor excluded
	ShareBalance *big.Int // depositor balance after the deposit
	Bootstrap    bool
	FloorShares  *big.Int // nil unless Bootstrap
}

// LiquidityRemovedPayload carries the outcome of a RemoveLiquidity
// operation. ShareBalance is the withdrawer's balance after burning.
type LiquidityRemovedPayload struct {
	Shares       *big.Int
	AmountA      *big.Int
	AmountB      *big.Int
	ShareBalance *big.Int
}

// PoolStateChangedPayload carries the full pool state after any operation
// that touched it, including pause/unpause and configuration changes.
type PoolStateChangedPayload struct {
	State *PoolState
}

// SwapExecutedPayload carries the executed trade.
type SwapExecutedPayload struct {
	AssetIn   string
	AssetOut  string
	AmountIn  *big.Int
	AmountOut *big.Int
	ImpactBps int64 // realized price impact
}

// TierChangedPayload is emitted only when reclassification actually moved
// the account to a different tier.
type TierChangedPayload struct {
	OldTier      int
	NewTier      int
	Contribution *big.Int // share balance that drove the classification
}

// TierConfiguredPayload carries the tier as created or updated.
type TierConfiguredPayload struct {
	Tier *Tier
}

// FlashLoanTakenPayload is emitted (on commit only) for the outbound leg.
type FlashLoanTakenPayload struct {
	Amount *big.Int
	Fee    *big.Int
}

// FlashLoanRepaidPayload records the measured repayment. Repaid is the
// actual facility balance delta after the callback, which may exceed
// Amount+Fee.
type FlashLoanRepaidPayload struct {
	Amount *big.Int
	Fee    *big.Int
	Repaid *big.Int
}

// StakedPayload carries the position and pool after a stake.
type StakedPayload struct {
	PoolID   string
	Amount   *big.Int
	Position *StakePosition
	Pool     *FarmPool
}

// UnstakedPayload carries the position and pool after an unstake.
type UnstakedPayload struct {
	PoolID   string
	Amount   *big.Int
	Position *StakePosition
	Pool     *FarmPool
}

// RewardsClaimedPayload carries the paid-out amount and the settled
// position.
type RewardsClaimedPayload struct {
	PoolID   string
	Amount   *big.Int
	Position *StakePosition
	Pool     *FarmPool
}

// FarmPoolCreatedPayload carries the new pool.
type FarmPoolCreatedPayload struct {
	Pool *FarmPool
}

// FarmPoolStatusChangedPayload is emitted only when the active flag
// actually changed.
type FarmPoolStatusChangedPayload struct {
	Pool *FarmPool
}

// MaxSlippageUpdatedPayload records a slippage bound change.
type MaxSlippageUpdatedPayload struct {
	OldBps int64
	NewBps int64
}

// EmergencyWithdrawalPayload records the break-glass sweep: both facility
// reserves plus the farm treasury's asset B balance, sent to Recipient.
type EmergencyWithdrawalPayload struct {
	Recipient string
	AmountA   *big.Int
	AmountB   *big.Int
	TreasuryB *big.Int
}
