package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/unicode/norm"

	"liquidityhub/core/events"
	"liquidityhub/native/liquidity"
	ledgermw "liquidityhub/services/ledgerd/middleware"
)

const (
	maxBodyBytes        = 1 << 16
	defaultJournalLimit = 100
	maxJournalPage      = 1_000
)

type amountRequest struct {
	Amount string `json:"amount"`
}

type deltaRequest struct {
	SharesDelta    string `json:"sharesDelta"`
	OffsetRayDelta string `json:"offsetRayDelta"`
	RealizedDelta  string `json:"realizedDelta"`
}

type settleRequest struct {
	Drawn   string       `json:"drawn"`
	Premium string       `json:"premium"`
	Delta   deltaRequest `json:"delta"`
}

type transferRequest struct {
	To     string `json:"to"`
	Shares string `json:"shares"`
}

type modelRequest struct {
	BaseRateBps    uint64 `json:"baseRateBps"`
	Slope1Bps      uint64 `json:"slope1Bps"`
	Slope2Bps      uint64 `json:"slope2Bps"`
	OptimalUtilBps uint64 `json:"optimalUtilisationBps"`
}

type assetConfigRequest struct {
	LiquidityFeeBps        uint64        `json:"liquidityFeeBps"`
	Strategy               string        `json:"strategy"`
	FeeReceiver            string        `json:"feeReceiver"`
	ReinvestmentController string        `json:"reinvestmentController"`
	Model                  *modelRequest `json:"model,omitempty"`
}

type participantConfigRequest struct {
	AddCap  *string `json:"addCap,omitempty"`
	DrawCap *string `json:"drawCap,omitempty"`
	Active  bool    `json:"active"`
}

type poolResponse struct {
	AssetID                string `json:"assetId"`
	Liquidity              string `json:"liquidity"`
	AddedShares            string `json:"addedShares"`
	DrawnShares            string `json:"drawnShares"`
	DrawnIndex             string `json:"drawnIndex"`
	DrawnRate              string `json:"drawnRate"`
	PremiumShares          string `json:"premiumShares"`
	PremiumOffsetRay       string `json:"premiumOffsetRay"`
	RealizedPremium        string `json:"realizedPremium"`
	Deficit                string `json:"deficit"`
	Swept                  string `json:"swept"`
	LastUpdateTimestamp    uint64 `json:"lastUpdateTimestamp"`
	LiquidityFeeBps        uint64 `json:"liquidityFeeBps"`
	Strategy               string `json:"strategy"`
	FeeReceiver            string `json:"feeReceiver"`
	ReinvestmentController string `json:"reinvestmentController"`
	// Computed as of the request time without committing.
	TotalValue   string `json:"totalValue,omitempty"`
	Drawn        string `json:"drawn,omitempty"`
	Premium      string `json:"premium,omitempty"`
	CurrentIndex string `json:"currentIndex,omitempty"`
}

type participantResponse struct {
	AssetID          string `json:"assetId"`
	Participant      string `json:"participant"`
	AddedShares      string `json:"addedShares"`
	DrawnShares      string `json:"drawnShares"`
	PremiumShares    string `json:"premiumShares"`
	PremiumOffsetRay string `json:"premiumOffsetRay"`
	RealizedPremium  string `json:"realizedPremium"`
	AddCap           string `json:"addCap"`
	DrawCap          string `json:"drawCap"`
	Active           bool   `json:"active"`
	// Computed as of the request time without committing.
	AddedValue   string `json:"addedValue,omitempty"`
	Withdrawable string `json:"withdrawable,omitempty"`
	OwedDrawn    string `json:"owedDrawn,omitempty"`
	OwedPremium  string `json:"owedPremium,omitempty"`
}

func toPoolResponse(pool *liquidity.AssetPool) poolResponse {
	return poolResponse{
		AssetID:                pool.AssetID,
		Liquidity:              intString(pool.Liquidity),
		AddedShares:            intString(pool.AddedShares),
		DrawnShares:            intString(pool.DrawnShares),
		DrawnIndex:             intString(pool.DrawnIndex),
		DrawnRate:              intString(pool.DrawnRate),
		PremiumShares:          intString(pool.PremiumShares),
		PremiumOffsetRay:       intString(pool.PremiumOffsetRay),
		RealizedPremium:        intString(pool.RealizedPremium),
		Deficit:                intString(pool.Deficit),
		Swept:                  intString(pool.Swept),
		LastUpdateTimestamp:    pool.LastUpdateTimestamp,
		LiquidityFeeBps:        pool.LiquidityFeeBps,
		Strategy:               pool.Strategy,
		FeeReceiver:            pool.FeeReceiver,
		ReinvestmentController: pool.ReinvestmentController,
	}
}

func toParticipantResponse(record *liquidity.ParticipantRecord) participantResponse {
	return participantResponse{
		AssetID:          record.AssetID,
		Participant:      record.Participant,
		AddedShares:      intString(record.AddedShares),
		DrawnShares:      intString(record.DrawnShares),
		PremiumShares:    intString(record.PremiumShares),
		PremiumOffsetRay: intString(record.PremiumOffsetRay),
		RealizedPremium:  intString(record.RealizedPremium),
		AddCap:           intString(record.AddCap),
		DrawCap:          intString(record.DrawCap),
		Active:           record.Active,
	}
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.engine.Pools(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	out := make([]poolResponse, 0, len(pools))
	for _, pool := range pools {
		out = append(out, toPoolResponse(pool))
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": out})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset := assetParam(r)
	pool, err := s.engine.Pool(ctx, asset)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	resp := toPoolResponse(pool)
	totalValue, err := s.engine.TotalValue(ctx, asset)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	drawn, err := s.engine.Drawn(ctx, asset)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	premium, err := s.engine.Premium(ctx, asset)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	index, err := s.engine.PreviewIndex(ctx, asset)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	resp.TotalValue = totalValue.String()
	resp.Drawn = drawn.String()
	resp.Premium = premium.String()
	resp.CurrentIndex = index.String()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	records, err := s.engine.Participants(r.Context(), assetParam(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	out := make([]participantResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toParticipantResponse(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": out})
}

func (s *Server) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset := assetParam(r)
	participant := normalizeID(chi.URLParam(r, "participant"))
	record, err := s.engine.Participant(ctx, asset, participant)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	resp := toParticipantResponse(record)
	added, err := s.engine.AddedValue(ctx, asset, participant)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	withdrawable, err := s.engine.WithdrawableValue(ctx, asset, participant)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	owed, err := s.engine.ParticipantOwed(ctx, asset, participant)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	resp.AddedValue = added.String()
	resp.Withdrawable = withdrawable.String()
	resp.OwedDrawn = intString(owed.Drawn)
	resp.OwedPremium = intString(owed.Premium)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreviewShares(w http.ResponseWriter, r *http.Request) {
	value, err := parseAmount("value", r.URL.Query().Get("value"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_value", err.Error())
		return
	}
	rounding := liquidity.ParseRounding(strings.ToLower(r.URL.Query().Get("rounding")))
	shares, err := s.engine.PreviewSharesForValue(r.Context(), assetParam(r), value, rounding)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"shares": shares.String(), "rounding": rounding.String()})
}

func (s *Server) handlePreviewValue(w http.ResponseWriter, r *http.Request) {
	shares, err := parseAmount("shares", r.URL.Query().Get("shares"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_shares", err.Error())
		return
	}
	rounding := liquidity.ParseRounding(strings.ToLower(r.URL.Query().Get("rounding")))
	value, err := s.engine.PreviewValueForShares(r.Context(), assetParam(r), shares, rounding)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"value": value.String(), "rounding": rounding.String()})
}

func (s *Server) handlePreviewIndex(w http.ResponseWriter, r *http.Request) {
	index, err := s.engine.PreviewIndex(r.Context(), assetParam(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"index": index.String()})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	s.sharesOperation(w, r, s.engine.Add)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	s.sharesOperation(w, r, s.engine.Remove)
}

func (s *Server) handleDraw(w http.ResponseWriter, r *http.Request) {
	s.sharesOperation(w, r, s.engine.Draw)
}

func (s *Server) handleEliminateDeficit(w http.ResponseWriter, r *http.Request) {
	s.sharesOperation(w, r, s.engine.EliminateDeficit)
}

// sharesOperation runs an amount-based operation on behalf of the token
// subject and reports the shares minted or burnt.
func (s *Server) sharesOperation(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, asset, participant string, amount *big.Int) (*big.Int, error)) {
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}
	shares, err := op(r.Context(), assetParam(r), ledgermw.Subject(r.Context()), amount)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"shares": shares.String()})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	s.settleOperation(w, r, s.engine.Restore)
}

func (s *Server) handleReportDeficit(w http.ResponseWriter, r *http.Request) {
	s.settleOperation(w, r, s.engine.ReportDeficit)
}

func (s *Server) settleOperation(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, asset, participant string, drawn, premium *big.Int, delta liquidity.PremiumDelta) (*big.Int, error)) {
	var req settleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	drawn, err := parseAmount("drawn", req.Drawn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}
	premium, err := parseAmount("premium", req.Premium)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}
	delta, err := req.Delta.delta()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_delta", err.Error())
		return
	}
	shares, err := op(r.Context(), assetParam(r), ledgermw.Subject(r.Context()), drawn, premium, delta)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"drawnShares": shares.String()})
}

func (s *Server) handleRefreshPremium(w http.ResponseWriter, r *http.Request) {
	var req deltaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	delta, err := req.delta()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_delta", err.Error())
		return
	}
	if err := s.engine.RefreshPremium(r.Context(), assetParam(r), ledgermw.Subject(r.Context()), delta); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_shares", err.Error())
		return
	}
	to := normalizeID(req.To)
	if to == "" {
		writeError(w, http.StatusBadRequest, "invalid_recipient", "recipient required")
		return
	}
	if err := s.engine.TransferShares(r.Context(), assetParam(r), ledgermw.Subject(r.Context()), to, shares); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	s.controllerOperation(w, r, s.engine.Sweep)
}

func (s *Server) handleReclaim(w http.ResponseWriter, r *http.Request) {
	s.controllerOperation(w, r, s.engine.Reclaim)
}

func (s *Server) controllerOperation(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, asset, caller string, amount *big.Int) error) {
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}
	if err := op(r.Context(), assetParam(r), ledgermw.Subject(r.Context()), amount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAccrue(w http.ResponseWriter, r *http.Request) {
	pool, err := s.engine.Accrue(r.Context(), assetParam(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolResponse(pool))
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotImplemented, "journal_unavailable", "journal not configured")
		return
	}
	from, err := parseUintParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", err.Error())
		return
	}
	limit := defaultJournalLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxJournalPage {
		limit = maxJournalPage
	}
	entries, err := s.journal.Journal(r.Context(), from, limit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []events.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleConfigureAsset(w http.ResponseWriter, r *http.Request) {
	var req assetConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	ctx := r.Context()
	asset := assetParam(r)
	if req.Model != nil {
		if s.kinked == nil {
			writeError(w, http.StatusBadRequest, "strategy_unavailable", "kinked strategy not configured")
			return
		}
		if req.Strategy == "" {
			req.Strategy = liquidity.KinkedStrategyName
		}
		s.kinked.SetModel(asset, liquidity.NewInterestModel(req.Model.BaseRateBps, req.Model.Slope1Bps, req.Model.Slope2Bps, req.Model.OptimalUtilBps))
	}
	cfg := liquidity.AssetConfig{
		LiquidityFeeBps:        req.LiquidityFeeBps,
		Strategy:               req.Strategy,
		FeeReceiver:            normalizeID(req.FeeReceiver),
		ReinvestmentController: normalizeID(req.ReinvestmentController),
	}
	status := http.StatusCreated
	err := s.engine.ListAsset(ctx, asset, cfg)
	if errors.Is(err, liquidity.ErrAssetAlreadyListed) {
		status = http.StatusOK
		err = s.engine.UpdateAssetConfig(ctx, asset, cfg)
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	pool, err := s.engine.Pool(ctx, asset)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.logger.Info("asset configured", "asset", asset, "subject", ledgermw.Subject(ctx), "listed", status == http.StatusCreated)
	writeJSON(w, status, toPoolResponse(pool))
}

func (s *Server) handleConfigureParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	cfg := liquidity.ParticipantConfig{Active: req.Active}
	var err error
	if req.AddCap != nil {
		if cfg.AddCap, err = parseAmount("addCap", *req.AddCap); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_cap", err.Error())
			return
		}
	}
	if req.DrawCap != nil {
		if cfg.DrawCap, err = parseAmount("drawCap", *req.DrawCap); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_cap", err.Error())
			return
		}
	}
	ctx := r.Context()
	asset := assetParam(r)
	participant := normalizeID(chi.URLParam(r, "participant"))
	if err := s.engine.ConfigureParticipant(ctx, asset, participant, cfg); err != nil {
		s.writeEngineError(w, err)
		return
	}
	record, err := s.engine.Participant(ctx, asset, participant)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipantResponse(record))
}

func (s *Server) handleListPauses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"paused": s.pauses.Paused()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.pauses.Pause(liquidity.ModuleName)
	s.logger.Warn("ledger paused", "subject", ledgermw.Subject(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.pauses.Resume(liquidity.ModuleName)
	s.logger.Warn("ledger resumed", "subject", ledgermw.Subject(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (d deltaRequest) delta() (liquidity.PremiumDelta, error) {
	var out liquidity.PremiumDelta
	fields := []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"sharesDelta", d.SharesDelta, &out.SharesDelta},
		{"offsetRayDelta", d.OffsetRayDelta, &out.OffsetRayDelta},
		{"realizedDelta", d.RealizedDelta, &out.RealizedDelta},
	}
	for _, field := range fields {
		raw := strings.TrimSpace(field.value)
		if raw == "" {
			continue
		}
		parsed, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return liquidity.PremiumDelta{}, fmt.Errorf("%s must be a signed base-10 integer", field.name)
		}
		*field.dst = parsed
	}
	return out, nil
}

// parseAmount accepts a non-negative base-10 integer. Positivity is left to
// the engine so the error surface matches direct callers.
func parseAmount(field, raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%s must be a non-negative base-10 integer", field)
	}
	return value, nil
}

func parseUintParam(r *http.Request, name string) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an unsigned integer", name)
	}
	return value, nil
}

// normalizeID folds compatibility characters so visually identical ids map
// to the same ledger record.
func normalizeID(raw string) string {
	return norm.NFKC.String(strings.TrimSpace(raw))
}

func assetParam(r *http.Request) string {
	return normalizeID(chi.URLParam(r, "asset"))
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
