package engine

import (
	"errors"
	"math/big"
	"testing"

	"fundex/internal/account"
	"fundex/internal/auth"
	"fundex/internal/domain"
)

func TestFarm_SingleStakerAccrual(t *testing.T) {
	f := defaultFixture(t)
	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-core", bi(10)); err != nil {
		t.Fatalf("CreateFarmPool: %v", err)
	}

	staker := f.user(nil, bi(1000))
	if err := f.engine.Stake(f.ctx, staker, "fnd-core", bi(1000)); err != nil {
		t.Fatalf("Stake: %v", err)
	}

	// a sole staker earns the full rate: 86400 s at 10 per second
	f.clock.Advance(86400)
	pending, err := f.engine.PendingRewards("fnd-core", staker.Account)
	if err != nil {
		t.Fatalf("PendingRewards: %v", err)
	}
	if pending.Cmp(bi(864_000)) != 0 {
		t.Errorf("pending = %s, want 864000", pending)
	}

	// the preview must not advance the pool accumulator
	pool, err := f.engine.FarmPoolState("fnd-core")
	if err != nil {
		t.Fatalf("FarmPoolState: %v", err)
	}
	if pool.CumulativeRewardPerShare.Sign() != 0 {
		t.Errorf("preview mutated the accumulator: %s", pool.CumulativeRewardPerShare)
	}

	if err := f.bank.Mint(f.ctx, f.engine.params.AssetB, account.FarmTreasury, bi(1_000_000)); err != nil {
		t.Fatalf("fund treasury: %v", err)
	}
	paid, err := f.engine.ClaimRewards(f.ctx, staker, "fnd-core")
	if err != nil {
		t.Fatalf("ClaimRewards: %v", err)
	}
	if paid.Cmp(bi(864_000)) != 0 {
		t.Errorf("paid = %s, want 864000", paid)
	}
	if got := f.balance(f.engine.params.AssetB, staker.Account); got.Cmp(bi(864_000)) != 0 {
		t.Errorf("staker balance = %s, want 864000", got)
	}

	// an immediate second claim pays nothing and emits nothing
	f.sink.reset()
	paid, err = f.engine.ClaimRewards(f.ctx, staker, "fnd-core")
	if err != nil {
		t.Fatalf("second ClaimRewards: %v", err)
	}
	if paid.Sign() != 0 {
		t.Errorf("second claim paid %s, want 0", paid)
	}
	if n := f.sink.count(); n != 0 {
		t.Errorf("zero claim published %d events", n)
	}
}

func TestAccrue_IdempotentAtSameTimestamp(t *testing.T) {
	pool := &domain.FarmPool{
		ID:                       "p",
		TotalStaked:              bi(500),
		RewardRatePerSecond:      bi(7),
		LastUpdateUnix:           100,
		CumulativeRewardPerShare: new(big.Int),
		Active:                   true,
	}

	accrue(pool, 160)
	first := new(big.Int).Set(pool.CumulativeRewardPerShare)
	if first.Sign() == 0 {
		t.Fatal("accrual over 60s produced nothing")
	}

	accrue(pool, 160)
	if pool.CumulativeRewardPerShare.Cmp(first) != 0 {
		t.Error("second accrue at the same instant moved the accumulator")
	}

	// a clock running backwards accrues nothing and keeps the timestamp
	accrue(pool, 40)
	if pool.CumulativeRewardPerShare.Cmp(first) != 0 || pool.LastUpdateUnix != 160 {
		t.Errorf("backwards clock accrued: cum=%s last=%d", pool.CumulativeRewardPerShare, pool.LastUpdateUnix)
	}
}

func TestFarm_IdleTimeEarnsNothing(t *testing.T) {
	f := defaultFixture(t)
	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-core", bi(10)); err != nil {
		t.Fatalf("CreateFarmPool: %v", err)
	}

	// a long idle stretch before anyone stakes must not be paid out
	f.clock.Advance(5000)
	staker := f.user(nil, bi(100))
	if err := f.engine.Stake(f.ctx, staker, "fnd-core", bi(100)); err != nil {
		t.Fatalf("Stake: %v", err)
	}
	pending, err := f.engine.PendingRewards("fnd-core", staker.Account)
	if err != nil {
		t.Fatalf("PendingRewards: %v", err)
	}
	if pending.Sign() != 0 {
		t.Errorf("idle time paid %s retroactively", pending)
	}

	f.clock.Advance(10)
	pending, err = f.engine.PendingRewards("fnd-core", staker.Account)
	if err != nil {
		t.Fatalf("PendingRewards: %v", err)
	}
	if pending.Cmp(bi(100)) != 0 {
		t.Errorf("pending = %s, want 100 after 10s at rate 10", pending)
	}
}

func TestFarm_TwoStakersSplitRewards(t *testing.T) {
	f := defaultFixture(t)
	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-core", bi(10)); err != nil {
		t.Fatalf("CreateFarmPool: %v", err)
	}

	alice := f.user(nil, bi(1000))
	if err := f.engine.Stake(f.ctx, alice, "fnd-core", bi(1000)); err != nil {
		t.Fatalf("Stake alice: %v", err)
	}
	f.clock.Advance(100)

	bob := f.user(nil, bi(3000))
	if err := f.engine.Stake(f.ctx, bob, "fnd-core", bi(3000)); err != nil {
		t.Fatalf("Stake bob: %v", err)
	}
	f.clock.Advance(100)

	// phase one pays alice alone 1000; phase two splits 1000 at 1:3
	alicePending, err := f.engine.PendingRewards("fnd-core", alice.Account)
	if err != nil {
		t.Fatalf("PendingRewards alice: %v", err)
	}
	if alicePending.Cmp(bi(1250)) != 0 {
		t.Errorf("alice pending = %s, want 1250", alicePending)
	}
	bobPending, err := f.engine.PendingRewards("fnd-core", bob.Account)
	if err != nil {
		t.Fatalf("PendingRewards bob: %v", err)
	}
	if bobPending.Cmp(bi(750)) != 0 {
		t.Errorf("bob pending = %s, want 750", bobPending)
	}
}

func TestFarm_UnstakeBanksRewards(t *testing.T) {
	f := defaultFixture(t)
	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-core", bi(10)); err != nil {
		t.Fatalf("CreateFarmPool: %v", err)
	}
	staker := f.user(nil, bi(1000))
	if err := f.engine.Stake(f.ctx, staker, "fnd-core", bi(1000)); err != nil {
		t.Fatalf("Stake: %v", err)
	}

	f.clock.Advance(50) // earns 500
	if err := f.engine.Unstake(f.ctx, staker, "fnd-core", bi(600)); err != nil {
		t.Fatalf("Unstake: %v", err)
	}
	f.clock.Advance(50) // the remaining 400 still earn the full rate: 500 more

	pending, err := f.engine.PendingRewards("fnd-core", staker.Account)
	if err != nil {
		t.Fatalf("PendingRewards: %v", err)
	}
	if pending.Cmp(bi(1000)) != 0 {
		t.Errorf("pending = %s, want 1000", pending)
	}

	// a full exit freezes the banked rewards
	if err := f.engine.Unstake(f.ctx, staker, "fnd-core", bi(400)); err != nil {
		t.Fatalf("Unstake: %v", err)
	}
	f.clock.Advance(100)
	pending, err = f.engine.PendingRewards("fnd-core", staker.Account)
	if err != nil {
		t.Fatalf("PendingRewards: %v", err)
	}
	if pending.Cmp(bi(1000)) != 0 {
		t.Errorf("pending after exit = %s, want frozen 1000", pending)
	}

	if err := f.bank.Mint(f.ctx, f.engine.params.AssetB, account.FarmTreasury, bi(2000)); err != nil {
		t.Fatalf("fund treasury: %v", err)
	}
	paid, err := f.engine.ClaimRewards(f.ctx, staker, "fnd-core")
	if err != nil {
		t.Fatalf("ClaimRewards: %v", err)
	}
	if paid.Cmp(bi(1000)) != 0 {
		t.Errorf("paid = %s, want 1000", paid)
	}
	// principal fully returned plus the claim
	if got := f.balance(f.engine.params.AssetB, staker.Account); got.Cmp(bi(2000)) != 0 {
		t.Errorf("staker balance = %s, want 2000", got)
	}
}

func TestFarm_ClaimFailsOnTreasuryShortfall(t *testing.T) {
	f := defaultFixture(t)
	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-core", bi(10)); err != nil {
		t.Fatalf("CreateFarmPool: %v", err)
	}
	staker := f.user(nil, bi(100))
	if err := f.engine.Stake(f.ctx, staker, "fnd-core", bi(100)); err != nil {
		t.Fatalf("Stake: %v", err)
	}

	// 1000 owed, but the treasury only holds the 100 staked
	f.clock.Advance(100)
	_, err := f.engine.ClaimRewards(f.ctx, staker, "fnd-core")
	if !errors.Is(err, ErrInsufficientRewardBalance) {
		t.Fatalf("ClaimRewards: got %v, want ErrInsufficientRewardBalance", err)
	}

	// the failed claim must not burn the entitlement
	pending, err := f.engine.PendingRewards("fnd-core", staker.Account)
	if err != nil {
		t.Fatalf("PendingRewards: %v", err)
	}
	if pending.Cmp(bi(1000)) != 0 {
		t.Errorf("pending after failed claim = %s, want 1000", pending)
	}

	if err := f.bank.Mint(f.ctx, f.engine.params.AssetB, account.FarmTreasury, bi(2000)); err != nil {
		t.Fatalf("fund treasury: %v", err)
	}
	paid, err := f.engine.ClaimRewards(f.ctx, staker, "fnd-core")
	if err != nil {
		t.Fatalf("ClaimRewards after funding: %v", err)
	}
	if paid.Cmp(bi(1000)) != 0 {
		t.Errorf("paid = %s, want 1000", paid)
	}
}

func TestFarm_StakeValidation(t *testing.T) {
	f := defaultFixture(t)
	staker := f.user(nil, bi(1000))

	if err := f.engine.Stake(f.ctx, staker, "missing", bi(100)); !errors.Is(err, ErrFarmPoolNotFound) {
		t.Errorf("unknown pool: got %v, want ErrFarmPoolNotFound", err)
	}

	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-core", bi(10)); err != nil {
		t.Fatalf("CreateFarmPool: %v", err)
	}
	if err := f.engine.Stake(f.ctx, staker, "fnd-core", bi(0)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero stake: got %v, want ErrInvalidInput", err)
	}
	if err := f.engine.Unstake(f.ctx, staker, "fnd-core", bi(100)); !errors.Is(err, ErrInsufficientStake) {
		t.Errorf("unstake without position: got %v, want ErrInsufficientStake", err)
	}

	if err := f.engine.Stake(f.ctx, staker, "fnd-core", bi(500)); err != nil {
		t.Fatalf("Stake: %v", err)
	}
	if err := f.engine.Unstake(f.ctx, staker, "fnd-core", bi(501)); !errors.Is(err, ErrInsufficientStake) {
		t.Errorf("overdrawn unstake: got %v, want ErrInsufficientStake", err)
	}

	// deactivation blocks new stakes but not exits
	if err := f.engine.SetFarmPoolActive(f.ctx, f.admin, "fnd-core", false); err != nil {
		t.Fatalf("SetFarmPoolActive: %v", err)
	}
	if err := f.engine.Stake(f.ctx, staker, "fnd-core", bi(100)); !errors.Is(err, ErrFarmPoolInactive) {
		t.Errorf("stake into inactive pool: got %v, want ErrFarmPoolInactive", err)
	}
	if err := f.engine.Unstake(f.ctx, staker, "fnd-core", bi(500)); err != nil {
		t.Errorf("unstake from inactive pool: %v", err)
	}

	if _, err := f.engine.ClaimRewards(f.ctx, staker, "missing"); !errors.Is(err, ErrFarmPoolNotFound) {
		t.Errorf("claim on unknown pool: got %v, want ErrFarmPoolNotFound", err)
	}
	// claiming with no position is a harmless no-op
	idle := f.user(nil, nil)
	paid, err := f.engine.ClaimRewards(f.ctx, idle, "fnd-core")
	if err != nil || paid.Sign() != 0 {
		t.Errorf("positionless claim = %s (err %v), want 0", paid, err)
	}
}

func TestCreateFarmPool_Validation(t *testing.T) {
	params := DefaultParams()
	params.MaxFarmPools = 2
	f := newFixture(t, params)

	outsider := auth.NewCaller(newWallet(t))
	if err := f.engine.CreateFarmPool(f.ctx, outsider, "fnd-core", bi(10)); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("outsider create: got %v, want ErrUnauthorized", err)
	}

	for _, id := range []string{"", "has spaces", "bad!chars", string(make([]byte, 65))} {
		if err := f.engine.CreateFarmPool(f.ctx, f.admin, id, bi(10)); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("pool id %q: got %v, want ErrInvalidInput", id, err)
		}
	}
	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-core", bi(0)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero rate: got %v, want ErrInvalidInput", err)
	}

	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-core", bi(10)); err != nil {
		t.Fatalf("CreateFarmPool: %v", err)
	}
	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-core", bi(10)); !errors.Is(err, ErrFarmPoolExists) {
		t.Errorf("duplicate pool: got %v, want ErrFarmPoolExists", err)
	}
	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-extra", bi(10)); err != nil {
		t.Fatalf("CreateFarmPool: %v", err)
	}
	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-over", bi(10)); !errors.Is(err, ErrFarmPoolLimit) {
		t.Errorf("pool over limit: got %v, want ErrFarmPoolLimit", err)
	}

	pools, err := f.engine.FarmPools()
	if err != nil {
		t.Fatalf("FarmPools: %v", err)
	}
	if len(pools) != 2 || pools[0].ID != "fnd-core" || pools[1].ID != "fnd-extra" {
		t.Errorf("pool listing = %v", pools)
	}
}

func TestSetFarmPoolActive(t *testing.T) {
	f := defaultFixture(t)
	if err := f.engine.SetFarmPoolActive(f.ctx, f.admin, "missing", false); !errors.Is(err, ErrFarmPoolNotFound) {
		t.Errorf("unknown pool: got %v, want ErrFarmPoolNotFound", err)
	}

	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-core", bi(10)); err != nil {
		t.Fatalf("CreateFarmPool: %v", err)
	}
	f.sink.reset()

	// setting the current value is a silent no-op
	if err := f.engine.SetFarmPoolActive(f.ctx, f.admin, "fnd-core", true); err != nil {
		t.Fatalf("SetFarmPoolActive: %v", err)
	}
	if n := f.sink.count(); n != 0 {
		t.Errorf("no-op toggle published %d events", n)
	}

	if err := f.engine.SetFarmPoolActive(f.ctx, f.admin, "fnd-core", false); err != nil {
		t.Fatalf("SetFarmPoolActive: %v", err)
	}
	changed := f.sink.byType(domain.EventFarmPoolStatusChanged)
	if len(changed) != 1 {
		t.Fatalf("FarmPoolStatusChanged events = %d, want 1", len(changed))
	}
	if changed[0].Payload.(*domain.FarmPoolStatusChangedPayload).Pool.Active {
		t.Error("payload still marks the pool active")
	}

	pool, err := f.engine.FarmPoolState("fnd-core")
	if err != nil {
		t.Fatalf("FarmPoolState: %v", err)
	}
	if pool.Active {
		t.Error("pool still active after disable")
	}
}
