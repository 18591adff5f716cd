package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/yishin/mimbonode/internal/models"
	"github.com/yishin/mimbonode/internal/service"
)

type harvestRequest struct {
	AccountID      uint64 `json:"account_id"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
}

type harvestResponse struct {
	Success       bool      `json:"success"`
	HarvestAmount float64   `json:"harvest_amount"`
	HarvestTime   time.Time `json:"harvest_time"`
	FeeAmount     float64   `json:"fee_amount"`
}

type harvestRecordResponse struct {
	ID             uint64     `json:"id"`
	Status         string     `json:"status"`
	HarvestAmount  float64    `json:"harvest_amount"`
	FeeAmount      float64    `json:"fee_amount"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
	TxHash         string     `json:"tx_hash,omitempty"`
	FailReason     string     `json:"fail_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

type balanceResponse struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

func (s *Server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	user := userFromContext(r.Context())

	var req harvestRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	// The body names an account; it must be the one the token resolves to.
	if req.AccountID != user.ID {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := s.settler.Harvest(r.Context(), user, req.ElapsedSeconds)
	if err != nil {
		s.writeHarvestError(w, user, err)
		return
	}

	writeJSON(w, http.StatusOK, harvestResponse{
		Success:       true,
		HarvestAmount: result.HarvestAmount,
		HarvestTime:   result.HarvestTime,
		FeeAmount:     result.FeeAmount,
	})
}

// writeHarvestError maps engine errors onto the wire. Policy declines are a
// 200 with the reason verbatim; transfer and persistence failures never leak
// details to the client.
func (s *Server) writeHarvestError(w http.ResponseWriter, user *models.User, err error) {
	var policyErr *service.PolicyError
	if errors.As(err, &policyErr) {
		writeJSON(w, http.StatusOK, errorResponse{Error: policyErr.Reason})
		return
	}

	switch {
	case errors.Is(err, service.ErrDuplicate):
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded.")
	case errors.Is(err, service.ErrBlocked):
		writeError(w, http.StatusForbidden, "account_blocked")
	case errors.Is(err, service.ErrStaleHarvest):
		writeError(w, http.StatusBadRequest, "invalid harvest time")
	case errors.Is(err, service.ErrNoCapacity):
		writeError(w, http.StatusBadRequest, "no mining capacity")
	case errors.Is(err, service.ErrNoWallet):
		writeError(w, http.StatusBadRequest, "no wallet")
	default:
		s.logger.Errorf("harvest failed for user %d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) handleListHarvests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	user := userFromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = parsed
	}

	harvests, err := s.settler.RecentHarvests(r.Context(), user.ID, limit)
	if err != nil {
		s.logger.Errorf("failed to list harvests for user %d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	out := make([]harvestRecordResponse, 0, len(harvests))
	for _, h := range harvests {
		out = append(out, toHarvestRecordResponse(h))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	user := userFromContext(r.Context())

	if user.Wallet == nil || user.Wallet.Address == "" {
		writeError(w, http.StatusBadRequest, "no wallet")
		return
	}

	balance, err := s.balances.Balance(r.Context(), user.Wallet.Address)
	if err != nil {
		s.logger.Errorf("balance read failed for user %d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Address: user.Wallet.Address,
		Balance: balance,
	})
}

func toHarvestRecordResponse(h models.Harvest) harvestRecordResponse {
	return harvestRecordResponse{
		ID:             h.ID,
		Status:         h.Status,
		HarvestAmount:  h.HarvestAmount,
		FeeAmount:      h.FeeAmount,
		ElapsedSeconds: h.ElapsedSeconds,
		TxHash:         h.TxHash,
		FailReason:     h.FailReason,
		CreatedAt:      h.CreatedAt,
		ProcessedAt:    h.ProcessedAt,
	}
}
