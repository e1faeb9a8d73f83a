package server

import (
	"context"
	"errors"
	"net/http"

	nativecommon "liquidityhub/native/common"
	"liquidityhub/native/liquidity"
	"liquidityhub/observability"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{nativecommon.ErrModulePaused, http.StatusServiceUnavailable, "paused"},
	{liquidity.ErrAssetNotListed, http.StatusNotFound, "asset_not_listed"},
	{liquidity.ErrParticipantNotFound, http.StatusNotFound, "participant_not_found"},
	{liquidity.ErrAssetAlreadyListed, http.StatusConflict, "asset_already_listed"},
	{liquidity.ErrOnlyReinvestmentController, http.StatusForbidden, "unauthorized"},
	{liquidity.ErrInvalidAmount, http.StatusBadRequest, ""},
	{liquidity.ErrInvalidShares, http.StatusBadRequest, ""},
	{liquidity.ErrInvalidSweepAmount, http.StatusBadRequest, ""},
	{liquidity.ErrInvalidConfig, http.StatusBadRequest, "invalid_config"},
	{liquidity.ErrStrategyNotFound, http.StatusBadRequest, "strategy_not_found"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

// statusFor classifies err into an HTTP status and a stable error code.
// Ledger state violations that are not listed above surface as 422.
func statusFor(err error) (int, string) {
	for _, class := range errorStatuses {
		if errors.Is(err, class.err) {
			code := class.code
			if code == "" {
				code = observability.Outcome(err)
			}
			return class.status, code
		}
	}
	if code := observability.Outcome(err); code != "error" {
		return http.StatusUnprocessableEntity, code
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("ledger request failed", "error", err)
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	writeError(w, status, code, message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}
