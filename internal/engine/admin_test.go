package engine

import (
	"errors"
	"math/big"
	"testing"

	"fundex/internal/account"
	"fundex/internal/auth"
	"fundex/internal/domain"
)

func TestPause_GatesValueOperations(t *testing.T) {
	f := defaultFixture(t)
	provider := f.seed(1000, 1000)
	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-core", bi(10)); err != nil {
		t.Fatalf("CreateFarmPool: %v", err)
	}
	staker := f.user(nil, bi(2000))
	if err := f.engine.Stake(f.ctx, staker, "fnd-core", bi(1000)); err != nil {
		t.Fatalf("Stake: %v", err)
	}

	if err := f.engine.Pause(f.ctx, f.admin); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	blocked := map[string]error{}
	_, blocked["AddLiquidity"] = f.engine.AddLiquidity(f.ctx, provider, units(1), units(1))
	_, _, blocked["RemoveLiquidity"] = f.engine.RemoveLiquidity(f.ctx, provider, bi(1))
	_, blocked["SwapAForB"] = f.engine.SwapAForB(f.ctx, provider, units(1), nil)
	_, blocked["SwapBForA"] = f.engine.SwapBForA(f.ctx, provider, units(1), nil)
	blocked["FlashLoan"] = f.engine.FlashLoan(f.ctx, provider, units(1), nil, f.repayer(provider.Account))
	blocked["Stake"] = f.engine.Stake(f.ctx, staker, "fnd-core", bi(100))
	blocked["Unstake"] = f.engine.Unstake(f.ctx, staker, "fnd-core", bi(100))
	_, blocked["ClaimRewards"] = f.engine.ClaimRewards(f.ctx, staker, "fnd-core")

	for op, err := range blocked {
		if !errors.Is(err, ErrEnginePaused) {
			t.Errorf("%s while paused: got %v, want ErrEnginePaused", op, err)
		}
	}

	// configuration stays available while paused
	if err := f.engine.SetMaxSlippage(f.ctx, f.admin, 500); err != nil {
		t.Errorf("SetMaxSlippage while paused: %v", err)
	}
	t4 := &domain.Tier{ID: 4, MinContribution: units(100000), RewardMultiplierBps: 20000, FlashFeeBps: 10, Enabled: true}
	if err := f.engine.ConfigureTier(f.ctx, f.admin, t4); err != nil {
		t.Errorf("ConfigureTier while paused: %v", err)
	}
	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-two", bi(1)); err != nil {
		t.Errorf("CreateFarmPool while paused: %v", err)
	}
	if err := f.engine.ManualUpdateTier(f.ctx, f.admin, staker.Account, units(100)); err != nil {
		t.Errorf("ManualUpdateTier while paused: %v", err)
	}

	if err := f.engine.Unpause(f.ctx, f.admin); err != nil {
		t.Fatalf("Unpause: %v", err)
	}
	f.fund(provider.Account, units(1), nil)
	if _, err := f.engine.SwapAForB(f.ctx, provider, units(1), nil); err != nil {
		t.Errorf("swap after unpause: %v", err)
	}
}

func TestPause_Transitions(t *testing.T) {
	f := defaultFixture(t)

	outsider := auth.NewCaller(newWallet(t))
	if err := f.engine.Pause(f.ctx, outsider); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("outsider Pause: got %v, want ErrUnauthorized", err)
	}

	if err := f.engine.Unpause(f.ctx, f.admin); !errors.Is(err, ErrNotPaused) {
		t.Errorf("Unpause while running: got %v, want ErrNotPaused", err)
	}
	if err := f.engine.EmergencyWithdraw(f.ctx, f.admin); !errors.Is(err, ErrNotPaused) {
		t.Errorf("EmergencyWithdraw while running: got %v, want ErrNotPaused", err)
	}

	if err := f.engine.Pause(f.ctx, f.admin); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := f.engine.Pause(f.ctx, f.admin); !errors.Is(err, ErrEnginePaused) {
		t.Errorf("double Pause: got %v, want ErrEnginePaused", err)
	}

	paused := f.sink.byType(domain.EventPaused)
	if len(paused) != 1 {
		t.Errorf("Paused events = %d, want 1", len(paused))
	}

	pool, err := f.engine.PoolState()
	if err != nil {
		t.Fatalf("PoolState: %v", err)
	}
	if !pool.Paused {
		t.Error("pool state does not report paused")
	}
}

func TestSetMaxSlippage(t *testing.T) {
	f := defaultFixture(t)

	outsider := auth.NewCaller(newWallet(t))
	if err := f.engine.SetMaxSlippage(f.ctx, outsider, 100); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("outsider SetMaxSlippage: got %v, want ErrUnauthorized", err)
	}
	if err := f.engine.SetMaxSlippage(f.ctx, f.admin, -1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative bound: got %v, want ErrInvalidInput", err)
	}
	if err := f.engine.SetMaxSlippage(f.ctx, f.admin, 10001); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("oversized bound: got %v, want ErrInvalidInput", err)
	}

	if err := f.engine.SetMaxSlippage(f.ctx, f.admin, 250); err != nil {
		t.Fatalf("SetMaxSlippage: %v", err)
	}
	pool, err := f.engine.PoolState()
	if err != nil {
		t.Fatalf("PoolState: %v", err)
	}
	if pool.MaxSlippageBps != 250 {
		t.Errorf("bound = %d, want 250", pool.MaxSlippageBps)
	}

	updated := f.sink.byType(domain.EventMaxSlippageUpdated)
	if len(updated) != 1 {
		t.Fatalf("MaxSlippageUpdated events = %d, want 1", len(updated))
	}
	payload := updated[0].Payload.(*domain.MaxSlippageUpdatedPayload)
	if payload.OldBps != DefaultMaxSlippageBps || payload.NewBps != 250 {
		t.Errorf("payload = %d->%d, want %d->250", payload.OldBps, payload.NewBps, DefaultMaxSlippageBps)
	}
}

func TestEmergencyWithdraw(t *testing.T) {
	f := defaultFixture(t)
	f.seed(1000, 2000)
	if err := f.engine.CreateFarmPool(f.ctx, f.admin, "fnd-core", bi(10)); err != nil {
		t.Fatalf("CreateFarmPool: %v", err)
	}
	staker := f.user(nil, bi(5000))
	if err := f.engine.Stake(f.ctx, staker, "fnd-core", bi(5000)); err != nil {
		t.Fatalf("Stake: %v", err)
	}

	outsider := auth.NewCaller(newWallet(t))
	if err := f.engine.EmergencyWithdraw(f.ctx, outsider); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("outsider EmergencyWithdraw: got %v, want ErrUnauthorized", err)
	}

	if err := f.engine.Pause(f.ctx, f.admin); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	f.sink.reset()
	if err := f.engine.EmergencyWithdraw(f.ctx, f.admin); err != nil {
		t.Fatalf("EmergencyWithdraw: %v", err)
	}

	if got := f.balance(f.engine.params.AssetA, f.admin.Account); got.Cmp(units(1000)) != 0 {
		t.Errorf("recipient asset A = %s, want %s", got, units(1000))
	}
	wantB := new(big.Int).Add(units(2000), bi(5000))
	if got := f.balance(f.engine.params.AssetB, f.admin.Account); got.Cmp(wantB) != 0 {
		t.Errorf("recipient asset B = %s, want %s", got, wantB)
	}
	if got := f.balance(f.engine.params.AssetA, account.ReserveFacility); got.Sign() != 0 {
		t.Errorf("facility asset A not drained: %s", got)
	}
	if got := f.balance(f.engine.params.AssetB, account.FarmTreasury); got.Sign() != 0 {
		t.Errorf("treasury not drained: %s", got)
	}

	pool, err := f.engine.PoolState()
	if err != nil {
		t.Fatalf("PoolState: %v", err)
	}
	if pool.ReserveA.Sign() != 0 || pool.ReserveB.Sign() != 0 || pool.TotalShares.Sign() != 0 {
		t.Errorf("bookkeeping not zeroed: reserves %s/%s shares %s",
			pool.ReserveA, pool.ReserveB, pool.TotalShares)
	}

	swept := f.sink.byType(domain.EventEmergencyWithdrawal)
	if len(swept) != 1 {
		t.Fatalf("EmergencyWithdrawal events = %d, want 1", len(swept))
	}
	payload := swept[0].Payload.(*domain.EmergencyWithdrawalPayload)
	if payload.AmountA.Cmp(units(1000)) != 0 || payload.AmountB.Cmp(units(2000)) != 0 || payload.TreasuryB.Cmp(bi(5000)) != 0 {
		t.Errorf("payload = %s/%s/%s, want 1000u/2000u/5000", payload.AmountA, payload.AmountB, payload.TreasuryB)
	}
	if payload.Recipient != f.admin.Account {
		t.Errorf("recipient = %s, want %s", payload.Recipient, f.admin.Account)
	}
}
