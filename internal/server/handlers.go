package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"fundex/internal/account"
	"fundex/internal/amm"
	"fundex/internal/assets"
	"fundex/internal/auth"
	"fundex/internal/domain"
)

type okResponse struct {
	Status string `json:"status"`
}

var statusOK = okResponse{Status: "ok"}

type addLiquidityRequest struct {
	Account string `json:"account"`
	AmountA string `json:"amount_a"`
	AmountB string `json:"amount_b"`
}

type addLiquidityResponse struct {
	SharesMinted string `json:"shares_minted"`
}

func (s *Server) handleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req addLiquidityRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	amountA, err := parseAmount("amount_a", req.AmountA)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	amountB, err := parseAmount("amount_b", req.AmountB)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, req.Account)

	var minted *big.Int
	if !s.do(w, "add_liquidity", func() error {
		var opErr error
		minted, opErr = s.engine.AddLiquidity(r.Context(), caller, amountA, amountB)
		return opErr
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, addLiquidityResponse{SharesMinted: minted.String()})
}

type removeLiquidityRequest struct {
	Account string `json:"account"`
	Shares  string `json:"shares"`
}

type removeLiquidityResponse struct {
	AmountA string `json:"amount_a"`
	AmountB string `json:"amount_b"`
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var req removeLiquidityRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, req.Account)

	var amountA, amountB *big.Int
	if !s.do(w, "remove_liquidity", func() error {
		var opErr error
		amountA, amountB, opErr = s.engine.RemoveLiquidity(r.Context(), caller, shares)
		return opErr
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, removeLiquidityResponse{
		AmountA: amountA.String(),
		AmountB: amountB.String(),
	})
}

type swapRequest struct {
	Account  string `json:"account"`
	AmountIn string `json:"amount_in"`
	MinOut   string `json:"min_out,omitempty"`
}

type swapResponse struct {
	AmountOut string `json:"amount_out"`
}

func (s *Server) handleSwapAForB(w http.ResponseWriter, r *http.Request) {
	s.handleSwap(w, r, "swap_a_for_b", s.engine.SwapAForB)
}

func (s *Server) handleSwapBForA(w http.ResponseWriter, r *http.Request) {
	s.handleSwap(w, r, "swap_b_for_a", s.engine.SwapBForA)
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request, op string,
	swap func(ctx context.Context, caller auth.Caller, amountIn, minOut *big.Int) (*big.Int, error)) {
	var req swapRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	amountIn, err := parseAmount("amount_in", req.AmountIn)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	minOut, err := parseOptionalAmount("min_out", req.MinOut)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, req.Account)

	var out *big.Int
	if !s.do(w, op, func() error {
		var opErr error
		out, opErr = swap(r.Context(), caller, amountIn, minOut)
		return opErr
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, swapResponse{AmountOut: out.String()})
}

type stakeRequest struct {
	Account string `json:"account"`
	PoolID  string `json:"pool_id"`
	Amount  string `json:"amount"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, req.Account)
	if !s.do(w, "stake", func() error {
		return s.engine.Stake(r.Context(), caller, req.PoolID, amount)
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, req.Account)
	if !s.do(w, "unstake", func() error {
		return s.engine.Unstake(r.Context(), caller, req.PoolID, amount)
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

type claimRequest struct {
	Account string `json:"account"`
	PoolID  string `json:"pool_id"`
}

type claimResponse struct {
	Amount string `json:"amount"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, req.Account)

	var paid *big.Int
	if !s.do(w, "claim_rewards", func() error {
		var opErr error
		paid, opErr = s.engine.ClaimRewards(r.Context(), caller, req.PoolID)
		return opErr
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, claimResponse{Amount: paid.String()})
}

type quoteResponse struct {
	AmountOut string `json:"amount_out"`
}

// handleQuote prices a hypothetical swap against explicit reserves without
// touching the pool.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amountIn, err := parseAmount("amount_in", q.Get("amount_in"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	reserveIn, err := parseAmount("reserve_in", q.Get("reserve_in"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	reserveOut, err := parseAmount("reserve_out", q.Get("reserve_out"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	out, err := amm.OutputAmount(amountIn, reserveIn, reserveOut)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, quoteResponse{AmountOut: out.String()})
}

type rateResponse struct {
	Rate      string `json:"rate"`
	Precision string `json:"precision"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	rate, err := s.engine.ExchangeRate()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rateResponse{
		Rate:      rate.String(),
		Precision: amm.Precision.String(),
	})
}

type poolResponse struct {
	AssetA         string `json:"asset_a"`
	AssetB         string `json:"asset_b"`
	ReserveA       string `json:"reserve_a"`
	ReserveB       string `json:"reserve_b"`
	TotalShares    string `json:"total_shares"`
	MaxSlippageBps int64  `json:"max_slippage_bps"`
	Paused         bool   `json:"paused"`
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.engine.PoolState()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, poolResponse{
		AssetA:         pool.AssetA,
		AssetB:         pool.AssetB,
		ReserveA:       pool.ReserveA.String(),
		ReserveB:       pool.ReserveB.String(),
		TotalShares:    pool.TotalShares.String(),
		MaxSlippageBps: pool.MaxSlippageBps,
		Paused:         pool.Paused,
	})
}

type sharesResponse struct {
	Account string `json:"account"`
	Shares  string `json:"shares"`
}

func (s *Server) handleShares(w http.ResponseWriter, r *http.Request) {
	acct := r.URL.Query().Get("account")
	if err := account.Validate(acct); err != nil {
		s.writeError(w, err)
		return
	}
	shares, err := s.engine.ShareBalanceOf(acct)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sharesResponse{Account: acct, Shares: shares.String()})
}

type tierResponse struct {
	ID                  int    `json:"id"`
	MinContribution     string `json:"min_contribution"`
	RewardMultiplierBps int64  `json:"reward_multiplier_bps"`
	FlashFeeBps         int64  `json:"flash_fee_bps"`
	Enabled             bool   `json:"enabled"`
}

func tierToResponse(t *domain.Tier) tierResponse {
	return tierResponse{
		ID:                  t.ID,
		MinContribution:     t.MinContribution.String(),
		RewardMultiplierBps: t.RewardMultiplierBps,
		FlashFeeBps:         t.FlashFeeBps,
		Enabled:             t.Enabled,
	}
}

func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := s.engine.Tiers()
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := make([]tierResponse, 0, len(tiers))
	for _, t := range tiers {
		resp = append(resp, tierToResponse(t))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type tierOfResponse struct {
	Account string `json:"account"`
	Tier    int    `json:"tier"`
}

func (s *Server) handleTierOf(w http.ResponseWriter, r *http.Request) {
	acct := r.URL.Query().Get("account")
	if err := account.Validate(acct); err != nil {
		s.writeError(w, err)
		return
	}
	tier, err := s.engine.TierOf(acct)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tierOfResponse{Account: acct, Tier: tier})
}

type farmPoolResponse struct {
	ID                       string `json:"id"`
	TotalStaked              string `json:"total_staked"`
	RewardRatePerSecond      string `json:"reward_rate_per_second"`
	LastUpdateUnix           int64  `json:"last_update_unix"`
	CumulativeRewardPerShare string `json:"cumulative_reward_per_share"`
	Active                   bool   `json:"active"`
}

func farmPoolToResponse(p *domain.FarmPool) farmPoolResponse {
	return farmPoolResponse{
		ID:                       p.ID,
		TotalStaked:              p.TotalStaked.String(),
		RewardRatePerSecond:      p.RewardRatePerSecond.String(),
		LastUpdateUnix:           p.LastUpdateUnix,
		CumulativeRewardPerShare: p.CumulativeRewardPerShare.String(),
		Active:                   p.Active,
	}
}

func (s *Server) handleFarmPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.engine.FarmPools()
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := make([]farmPoolResponse, 0, len(pools))
	for _, p := range pools {
		resp = append(resp, farmPoolToResponse(p))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type pendingResponse struct {
	PoolID  string `json:"pool_id"`
	Account string `json:"account"`
	Pending string `json:"pending"`
}

func (s *Server) handlePendingRewards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	poolID, acct := q.Get("pool"), q.Get("account")
	if err := account.Validate(acct); err != nil {
		s.writeError(w, err)
		return
	}
	pending, err := s.engine.PendingRewards(poolID, acct)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pendingResponse{PoolID: poolID, Account: acct, Pending: pending.String()})
}

type balanceResponse struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	acct, asset := q.Get("account"), q.Get("asset")
	if asset == "" {
		s.badRequest(w, fmt.Errorf("asset is required"))
		return
	}
	if err := account.Validate(acct); err != nil {
		s.writeError(w, err)
		return
	}
	balance, err := s.bank.BalanceOf(r.Context(), assets.Asset(asset), acct)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceResponse{Account: acct, Asset: asset, Balance: balance.String()})
}

type journalEventResponse struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Unix    int64           `json:"unix"`
	Account string          `json:"account,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "event journal not configured"})
		return
	}
	q := r.URL.Query()

	var (
		entries []*domain.JournalEvent
		err     error
	)
	if acct := q.Get("account"); acct != "" {
		entries, err = s.journal.GetByAccount(r.Context(), acct)
	} else {
		start := int64(0)
		end := time.Now().Unix()
		if v := q.Get("start"); v != "" {
			start, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				s.badRequest(w, fmt.Errorf("start: %w", err))
				return
			}
		}
		if v := q.Get("end"); v != "" {
			end, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				s.badRequest(w, fmt.Errorf("end: %w", err))
				return
			}
		}
		entries, err = s.journal.GetByTimeRange(r.Context(), start, end)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := make([]journalEventResponse, 0, len(entries))
	for _, e := range entries {
		item := journalEventResponse{ID: e.ID, Type: e.Type.String(), Unix: e.Unix, Account: e.Account}
		if e.Payload != "" {
			item.Payload = json.RawMessage(e.Payload)
		}
		resp = append(resp, item)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type configureTierRequest struct {
	Account             string `json:"account"`
	ID                  int    `json:"id"`
	MinContribution     string `json:"min_contribution"`
	RewardMultiplierBps int64  `json:"reward_multiplier_bps"`
	FlashFeeBps         int64  `json:"flash_fee_bps"`
	Enabled             bool   `json:"enabled"`
}

func (s *Server) handleConfigureTier(w http.ResponseWriter, r *http.Request) {
	var req configureTierRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	minContribution, err := parseAmount("min_contribution", req.MinContribution)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, req.Account)
	tier := &domain.Tier{
		ID:                  req.ID,
		MinContribution:     minContribution,
		RewardMultiplierBps: req.RewardMultiplierBps,
		FlashFeeBps:         req.FlashFeeBps,
		Enabled:             req.Enabled,
	}
	if !s.do(w, "configure_tier", func() error {
		return s.engine.ConfigureTier(r.Context(), caller, tier)
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

type updateTierRequest struct {
	Account      string `json:"account"`
	Contribution string `json:"contribution"`
}

func (s *Server) handleTierOverride(w http.ResponseWriter, r *http.Request) {
	var req updateTierRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	contribution, err := parseAmount("contribution", req.Contribution)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, "")
	if !s.do(w, "tier_override", func() error {
		return s.engine.ManualUpdateTier(r.Context(), caller, req.Account, contribution)
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

func (s *Server) handleUpdateTier(w http.ResponseWriter, r *http.Request) {
	var req updateTierRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	contribution, err := parseAmount("contribution", req.Contribution)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, "")
	if !s.do(w, "update_tier", func() error {
		return s.engine.UpdateTier(r.Context(), caller, req.Account, contribution)
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

type slippageRequest struct {
	Account string `json:"account"`
	Bps     int64  `json:"bps"`
}

func (s *Server) handleSetSlippage(w http.ResponseWriter, r *http.Request) {
	var req slippageRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, req.Account)
	if !s.do(w, "set_max_slippage", func() error {
		return s.engine.SetMaxSlippage(r.Context(), caller, req.Bps)
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

type createFarmPoolRequest struct {
	Account             string `json:"account"`
	PoolID              string `json:"pool_id"`
	RewardRatePerSecond string `json:"reward_rate_per_second"`
}

func (s *Server) handleCreateFarmPool(w http.ResponseWriter, r *http.Request) {
	var req createFarmPoolRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	rate, err := parseAmount("reward_rate_per_second", req.RewardRatePerSecond)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, req.Account)
	if !s.do(w, "create_farm_pool", func() error {
		return s.engine.CreateFarmPool(r.Context(), caller, req.PoolID, rate)
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

type farmPoolActiveRequest struct {
	Account string `json:"account"`
	PoolID  string `json:"pool_id"`
	Active  bool   `json:"active"`
}

func (s *Server) handleSetFarmPoolActive(w http.ResponseWriter, r *http.Request) {
	var req farmPoolActiveRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, req.Account)
	if !s.do(w, "set_farm_pool_active", func() error {
		return s.engine.SetFarmPoolActive(r.Context(), caller, req.PoolID, req.Active)
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

type accountRequest struct {
	Account string `json:"account"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, req.Account)
	if !s.do(w, "pause", func() error {
		return s.engine.Pause(r.Context(), caller)
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, req.Account)
	if !s.do(w, "unpause", func() error {
		return s.engine.Unpause(r.Context(), caller)
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, req.Account)
	if !s.do(w, "emergency_withdraw", func() error {
		return s.engine.EmergencyWithdraw(r.Context(), caller)
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

type mintRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

// handleMint credits bank balances. The bank is in-process, so this is the
// only way to fund wallets on a running server; admin-gated for that
// reason.
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	caller := s.callerFromRequest(r, "")
	if err := caller.Require(auth.CapAdmin); err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	if err := account.Validate(req.Account); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.bank.Mint(r.Context(), assets.Asset(req.Asset), req.Account, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

type approveRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

// handleApprove grants the engine's facility and treasury accounts an
// allowance over the owner's balance, the step every depositor, trader and
// staker needs before the engine can pull funds.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	if err := account.Validate(req.Account); err != nil {
		s.writeError(w, err)
		return
	}
	for _, spender := range []string{account.ReserveFacility, account.FarmTreasury} {
		if err := s.bank.Approve(r.Context(), assets.Asset(req.Asset), req.Account, spender, amount); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}
