package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"fundex/internal/account"
	"fundex/internal/auth"
	"fundex/internal/domain"
)

// borrowerFunc adapts a function to the FlashBorrower interface.
type borrowerFunc func(ctx context.Context, amount, fee *big.Int, data []byte) error

func (fn borrowerFunc) OnFlashLoan(ctx context.Context, amount, fee *big.Int, data []byte) error {
	return fn(ctx, amount, fee, data)
}

// repayer returns a borrower that sends principal plus fee back to the
// facility from addr's own balance.
func (f *fixture) repayer(addr string) borrowerFunc {
	return func(ctx context.Context, amount, fee *big.Int, data []byte) error {
		owed := new(big.Int).Add(amount, fee)
		return f.bank.Transfer(ctx, f.engine.params.AssetB, addr, account.ReserveFacility, owed)
	}
}

// tierBorrower builds a borrower wallet funded with extraB of asset B and
// administratively placed in a tier via the given contribution.
func (f *fixture) tierBorrower(contribution, extraB *big.Int) auth.Caller {
	f.t.Helper()
	b := f.user(nil, extraB)
	if err := f.engine.ManualUpdateTier(f.ctx, f.admin, b.Account, contribution); err != nil {
		f.t.Fatalf("ManualUpdateTier: %v", err)
	}
	f.sink.reset()
	return b
}

func TestFlashLoan_RepaysWithFee(t *testing.T) {
	f := defaultFixture(t)
	f.seed(1000, 1000)

	// tier 1 charges 30 bps: borrowing 100 units owes a 0.3 unit fee
	borrower := f.tierBorrower(units(100), units(1))

	if err := f.engine.FlashLoan(f.ctx, borrower, units(100), nil, f.repayer(borrower.Account)); err != nil {
		t.Fatalf("FlashLoan: %v", err)
	}

	fee := bi(300_000_000)
	wantFacility := new(big.Int).Add(units(1000), fee)
	if got := f.balance(f.engine.params.AssetB, account.ReserveFacility); got.Cmp(wantFacility) != 0 {
		t.Errorf("facility = %s, want %s", got, wantFacility)
	}
	wantBorrower := new(big.Int).Sub(units(1), fee)
	if got := f.balance(f.engine.params.AssetB, borrower.Account); got.Cmp(wantBorrower) != 0 {
		t.Errorf("borrower = %s, want %s", got, wantBorrower)
	}

	// flash traffic never touches the reserve bookkeeping
	pool, err := f.engine.PoolState()
	if err != nil {
		t.Fatalf("PoolState: %v", err)
	}
	if pool.ReserveB.Cmp(units(1000)) != 0 {
		t.Errorf("reserve B = %s, want %s", pool.ReserveB, units(1000))
	}

	taken := f.sink.byType(domain.EventFlashLoanTaken)
	repaid := f.sink.byType(domain.EventFlashLoanRepaid)
	if len(taken) != 1 || len(repaid) != 1 {
		t.Fatalf("events taken=%d repaid=%d, want 1 each", len(taken), len(repaid))
	}
	payload := repaid[0].Payload.(*domain.FlashLoanRepaidPayload)
	if payload.Fee.Cmp(fee) != 0 {
		t.Errorf("fee = %s, want %s", payload.Fee, fee)
	}
	owed := new(big.Int).Add(units(100), fee)
	if payload.Repaid.Cmp(owed) != 0 {
		t.Errorf("repaid = %s, want %s", payload.Repaid, owed)
	}
}

func TestFlashLoan_TierSetsFee(t *testing.T) {
	f := defaultFixture(t)
	f.seed(1000, 1000)

	// tier 2 charges 25 bps
	borrower := f.tierBorrower(units(1000), units(1))
	if err := f.engine.FlashLoan(f.ctx, borrower, units(100), nil, f.repayer(borrower.Account)); err != nil {
		t.Fatalf("FlashLoan: %v", err)
	}

	fee := bi(250_000_000)
	wantBorrower := new(big.Int).Sub(units(1), fee)
	if got := f.balance(f.engine.params.AssetB, borrower.Account); got.Cmp(wantBorrower) != 0 {
		t.Errorf("borrower = %s, want %s after a 25 bps fee", got, wantBorrower)
	}
}

func TestFlashLoan_UnderpaymentUnwinds(t *testing.T) {
	f := defaultFixture(t)
	f.seed(1000, 1000)
	borrower := f.tierBorrower(units(100), units(1))

	// principal comes back, the fee does not
	shortpay := borrowerFunc(func(ctx context.Context, amount, fee *big.Int, data []byte) error {
		return f.bank.Transfer(ctx, f.engine.params.AssetB, borrower.Account, account.ReserveFacility, amount)
	})
	err := f.engine.FlashLoan(f.ctx, borrower, units(100), nil, shortpay)
	if !errors.Is(err, ErrFlashLoanRepaymentFailed) {
		t.Fatalf("FlashLoan: got %v, want ErrFlashLoanRepaymentFailed", err)
	}

	if got := f.balance(f.engine.params.AssetB, account.ReserveFacility); got.Cmp(units(1000)) != 0 {
		t.Errorf("facility = %s, want restored %s", got, units(1000))
	}
	if got := f.balance(f.engine.params.AssetB, borrower.Account); got.Cmp(units(1)) != 0 {
		t.Errorf("borrower = %s, want restored %s", got, units(1))
	}
	if n := f.sink.count(); n != 0 {
		t.Errorf("failed loan published %d events", n)
	}
}

func TestFlashLoan_CallbackErrorUnwinds(t *testing.T) {
	f := defaultFixture(t)
	f.seed(1000, 1000)
	borrower := f.tierBorrower(units(100), units(1))

	// the borrower keeps the principal and reports failure
	abort := borrowerFunc(func(ctx context.Context, amount, fee *big.Int, data []byte) error {
		return errors.New("strategy failed")
	})
	if err := f.engine.FlashLoan(f.ctx, borrower, units(100), nil, abort); err == nil {
		t.Fatal("aborted loan succeeded")
	}

	if got := f.balance(f.engine.params.AssetB, account.ReserveFacility); got.Cmp(units(1000)) != 0 {
		t.Errorf("facility = %s, want restored %s", got, units(1000))
	}
	if got := f.balance(f.engine.params.AssetB, borrower.Account); got.Cmp(units(1)) != 0 {
		t.Errorf("borrower kept the principal: %s", got)
	}
}

func TestFlashLoan_CallbackPanicUnwinds(t *testing.T) {
	f := defaultFixture(t)
	f.seed(1000, 1000)
	borrower := f.tierBorrower(units(100), units(1))

	boom := borrowerFunc(func(ctx context.Context, amount, fee *big.Int, data []byte) error {
		panic("strategy exploded")
	})
	if err := f.engine.FlashLoan(f.ctx, borrower, units(100), nil, boom); err == nil {
		t.Fatal("panicking loan succeeded")
	}

	if got := f.balance(f.engine.params.AssetB, account.ReserveFacility); got.Cmp(units(1000)) != 0 {
		t.Errorf("facility = %s, want restored %s", got, units(1000))
	}

	// the engine remains fully operational afterwards
	if err := f.engine.FlashLoan(f.ctx, borrower, units(100), nil, f.repayer(borrower.Account)); err != nil {
		t.Errorf("loan after recovered panic: %v", err)
	}
}

func TestFlashLoan_ReentrantCallsRejected(t *testing.T) {
	f := defaultFixture(t)
	f.seed(1000, 1000)
	borrower := f.tierBorrower(units(100), units(1))
	f.fund(borrower.Account, units(5), nil)

	inner := map[string]error{}
	reenter := borrowerFunc(func(ctx context.Context, amount, fee *big.Int, data []byte) error {
		_, inner["swap"] = f.engine.SwapAForB(ctx, borrower, units(1), nil)
		_, inner["view"] = f.engine.PoolState()
		inner["loan"] = f.engine.FlashLoan(ctx, borrower, units(1), nil, f.repayer(borrower.Account))
		owed := new(big.Int).Add(amount, fee)
		return f.bank.Transfer(ctx, f.engine.params.AssetB, borrower.Account, account.ReserveFacility, owed)
	})

	if err := f.engine.FlashLoan(f.ctx, borrower, units(100), nil, reenter); err != nil {
		t.Fatalf("FlashLoan: %v", err)
	}
	for name, err := range inner {
		if !errors.Is(err, ErrReentrant) {
			t.Errorf("%s inside callback: got %v, want ErrReentrant", name, err)
		}
	}
}

func TestFlashLoan_Preconditions(t *testing.T) {
	f := defaultFixture(t)
	f.seed(1000, 1000)

	noTier := f.user(nil, nil)
	err := f.engine.FlashLoan(f.ctx, noTier, units(1), nil, f.repayer(noTier.Account))
	if !errors.Is(err, ErrUnauthorizedFlashLoan) {
		t.Errorf("tierless borrower: got %v, want ErrUnauthorizedFlashLoan", err)
	}

	borrower := f.tierBorrower(units(100), units(1))

	if err := f.engine.FlashLoan(f.ctx, borrower, bi(0), nil, f.repayer(borrower.Account)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero amount: got %v, want ErrInvalidInput", err)
	}
	if err := f.engine.FlashLoan(f.ctx, borrower, units(1), nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil borrower: got %v, want ErrInvalidInput", err)
	}
	if err := f.engine.FlashLoan(f.ctx, borrower, units(5000), nil, f.repayer(borrower.Account)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("oversized loan: got %v, want ErrInsufficientBalance", err)
	}

	// disabling the borrower's tier revokes access
	disabled := &domain.Tier{ID: 1, MinContribution: units(100), RewardMultiplierBps: 10000, FlashFeeBps: 30, Enabled: false}
	if err := f.engine.ConfigureTier(f.ctx, f.admin, disabled); err != nil {
		t.Fatalf("ConfigureTier: %v", err)
	}
	if err := f.engine.FlashLoan(f.ctx, borrower, units(1), nil, f.repayer(borrower.Account)); !errors.Is(err, ErrUnauthorizedFlashLoan) {
		t.Errorf("disabled tier: got %v, want ErrUnauthorizedFlashLoan", err)
	}
}

func TestFlashLoan_ActiveRecordRejected(t *testing.T) {
	f := defaultFixture(t)
	f.seed(1000, 1000)
	borrower := f.tierBorrower(units(100), units(1))

	// an active record cannot arise through the public API because the
	// reentrancy flag fires first; plant one to cover the guard itself
	f.engine.st.loan = &domain.FlashLoanRecord{
		Borrower: borrower.Account,
		Amount:   units(1),
		Fee:      bi(0),
		Active:   true,
	}
	err := f.engine.FlashLoan(f.ctx, borrower, units(100), nil, f.repayer(borrower.Account))
	if !errors.Is(err, ErrFlashLoanActive) {
		t.Fatalf("FlashLoan: got %v, want ErrFlashLoanActive", err)
	}
	f.engine.st.loan = nil
}
