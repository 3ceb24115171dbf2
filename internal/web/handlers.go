/*

This file contains the vault endpoints. Queries read the live vault, mutations decode a JSON body
carrying the sender address and forward it to the matching vault operation.

*/

package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gorilla/mux"

	"github.com/elys-network/clvault/internal/state"
	"github.com/elys-network/clvault/internal/types"
)

type senderRequest struct {
	Sender string `json:"sender"`
}

// DepositRequest is the body of the deposit endpoints. Funds use the coin string format, e.g. "100uatom,5uusdc".
type DepositRequest struct {
	Sender       string    `json:"sender"`
	Funds        string    `json:"funds"`
	MinSharesOut *math.Int `json:"min_shares_out,omitempty"`
}

type forceBurnRequest struct {
	Sender string   `json:"sender"`
	Target string   `json:"target"`
	Amount math.Int `json:"amount"`
}

type configRequest struct {
	Sender string       `json:"sender"`
	Config types.Config `json:"config"`
}

type operatorRequest struct {
	Sender   string `json:"sender"`
	Operator string `json:"operator"`
}

type whitelistRequest struct {
	Sender string   `json:"sender"`
	Add    []string `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

type createPositionRequest struct {
	Sender string `json:"sender"`
	types.CreatePositionRequest
}

type addToPositionRequest struct {
	Sender string `json:"sender"`
	types.AddToPositionRequest
}

type withdrawPositionRequest struct {
	Sender string `json:"sender"`
	types.WithdrawPositionRequest
}

type swapRequest struct {
	Sender string `json:"sender"`
	types.Swap
}

// decodeRequest decodes the JSON body into dst. It writes the error response and returns false on failure.
func (ws *WebServer) decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}, sender func() string) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if sender() == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "sender is required")
		return false
	}
	return true
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := ws.vault.Status(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get vault status")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault status")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, status)
}

func (ws *WebServer) handleAssets(w http.ResponseWriter, r *http.Request) {
	locked, err := ws.vault.LockedAssets(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get locked assets")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve locked assets")
		return
	}
	available, err := ws.vault.AvailableLiquid(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get available liquidity")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve available liquidity")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"locked":    locked,
		"available": available,
	})
}

// handlePendingMints lists the mint queue, or returns a single entry when address is given.
func (ws *WebServer) handlePendingMints(w http.ResponseWriter, r *http.Request) {
	if addr := r.URL.Query().Get("address"); addr != "" {
		pending, ok := ws.vault.PendingMint(addr)
		if !ok {
			ws.writeErrorResponse(w, http.StatusNotFound, "No pending mint for "+addr)
			return
		}
		ws.writeJSONResponse(w, http.StatusOK, types.MintEntry{Address: addr, Pending: pending})
		return
	}

	page, err := pageRequest(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.vault.PendingMints(page))
}

func (ws *WebServer) handlePendingBurns(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.vault.PendingBurns(page))
}

func (ws *WebServer) handleGetWhitelist(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.vault.Whitelist(page))
}

// handleSettlements returns the latest settlements, newest first. The database is used when
// available, otherwise the in-memory history of the running process.
func (ws *WebServer) handleSettlements(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	var (
		settlements []types.SettlementReport
		source      = "memory"
	)
	if state.DB != nil {
		var err error
		settlements, err = state.GetRecentSettlements(r.Context(), ws.vault.Address(), limit)
		if err != nil {
			webLogger.Error().Err(err).Msg("Failed to get recent settlements")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve settlements")
			return
		}
		source = "database"
	} else {
		history := ws.vault.Settlements()
		for i := len(history) - 1; i >= 0 && len(settlements) < limit; i-- {
			settlements = append(settlements, history[i])
		}
	}
	if settlements == nil {
		settlements = []types.SettlementReport{}
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"settlements": settlements,
		"count":       len(settlements),
		"limit":       limit,
		"source":      source,
	})
}

// handleSettlementSummary needs the database, the in-memory history has no cycle counter.
func (ws *WebServer) handleSettlementSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := state.GetSettlementSummary(r.Context(), ws.vault.Address())
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) handleConfigVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := state.ListConfigVersions(r.Context(), ws.vault.Address())
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"versions": versions,
		"count":    len(versions),
	})
}

func (ws *WebServer) handleDepositForMint(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !ws.decodeRequest(w, r, &req, func() string { return req.Sender }) {
		return
	}
	funds, err := sdk.ParseCoinsNormalized(req.Funds)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid funds: "+err.Error())
		return
	}
	if err := ws.vault.DepositForMint(r.Context(), req.Sender, funds, req.MinSharesOut); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	pending, _ := ws.vault.PendingMint(req.Sender)
	ws.writeJSONResponse(w, http.StatusAccepted, types.MintEntry{Address: req.Sender, Pending: pending})
}

func (ws *WebServer) handleDepositForBurn(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !ws.decodeRequest(w, r, &req, func() string { return req.Sender }) {
		return
	}
	funds, err := sdk.ParseCoinsNormalized(req.Funds)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid funds: "+err.Error())
		return
	}
	if err := ws.vault.DepositForBurn(r.Context(), req.Sender, funds); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusAccepted, map[string]interface{}{"queued": true, "address": req.Sender})
}

func (ws *WebServer) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req senderRequest
	if !ws.decodeRequest(w, r, &req, func() string { return req.Sender }) {
		return
	}
	if err := ws.vault.Unlock(r.Context(), req.Sender); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"phase": ws.vault.Phase()})
}

// handleVaultAction runs one of the sender-only management operations named by the path.
func (ws *WebServer) handleVaultAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	var req senderRequest
	if !ws.decodeRequest(w, r, &req, func() string { return req.Sender }) {
		return
	}

	ctx := r.Context()
	var (
		result interface{}
		err    error
	)
	switch action {
	case "halt":
		err = ws.vault.Halt(ctx, req.Sender)
	case "resume":
		err = ws.vault.Resume(ctx, req.Sender)
	case "process-mints":
		result, err = ws.vault.ProcessMints(ctx, req.Sender)
	case "process-burns":
		result, err = ws.vault.ProcessBurns(ctx, req.Sender)
	case "collect-commission":
		result, err = ws.vault.CollectCommission(ctx, req.Sender)
	default:
		ws.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("Unknown vault action %q", action))
		return
	}
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"action": action,
		"phase":  ws.vault.Phase(),
		"result": result,
	})
}

// handleModifyConfig replaces the configuration and records the new version when persistence is enabled.
func (ws *WebServer) handleModifyConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if !ws.decodeRequest(w, r, &req, func() string { return req.Sender }) {
		return
	}
	if err := ws.vault.ModifyConfig(r.Context(), req.Sender, req.Config); err != nil {
		ws.writeVaultError(w, err)
		return
	}

	cfg := ws.vault.Snapshot().Config
	response := map[string]interface{}{"config": cfg}
	if state.DB != nil {
		version, err := state.SaveConfigVersion(r.Context(), ws.vault.Address(), req.Sender, cfg, true)
		if err != nil {
			// The vault already applied the change, only the audit record is missing.
			webLogger.Error().Err(err).Msg("Failed to save config version")
		} else {
			response["version"] = version
		}
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleModifyOperator(w http.ResponseWriter, r *http.Request) {
	var req operatorRequest
	if !ws.decodeRequest(w, r, &req, func() string { return req.Sender }) {
		return
	}
	if err := ws.vault.ModifyOperator(r.Context(), req.Sender, req.Operator); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"operator": req.Operator})
}

func (ws *WebServer) handleForceBurn(w http.ResponseWriter, r *http.Request) {
	var req forceBurnRequest
	if !ws.decodeRequest(w, r, &req, func() string { return req.Sender }) {
		return
	}
	if req.Amount.IsNil() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "amount is required")
		return
	}
	if err := ws.vault.ForceBurn(r.Context(), req.Sender, req.Target, req.Amount); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusAccepted, map[string]interface{}{"queued": true, "address": req.Target})
}

func (ws *WebServer) handleUpdateWhitelist(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if !ws.decodeRequest(w, r, &req, func() string { return req.Sender }) {
		return
	}
	if err := ws.vault.UpdateWhitelist(r.Context(), req.Sender, req.Add, req.Remove); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.vault.Whitelist(types.PageRequest{}))
}

func (ws *WebServer) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req createPositionRequest
	if !ws.decodeRequest(w, r, &req, func() string { return req.Sender }) {
		return
	}
	res, err := ws.vault.CreatePosition(r.Context(), req.Sender, req.CreatePositionRequest)
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, res)
}

func (ws *WebServer) handleAddToPosition(w http.ResponseWriter, r *http.Request) {
	var req addToPositionRequest
	if !ws.decodeRequest(w, r, &req, func() string { return req.Sender }) {
		return
	}
	res, err := ws.vault.AddToPosition(r.Context(), req.Sender, req.AddToPositionRequest)
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, res)
}

func (ws *WebServer) handleWithdrawPosition(w http.ResponseWriter, r *http.Request) {
	var req withdrawPositionRequest
	if !ws.decodeRequest(w, r, &req, func() string { return req.Sender }) {
		return
	}
	withdrawn, err := ws.vault.WithdrawPosition(r.Context(), req.Sender, req.WithdrawPositionRequest)
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"withdrawn": withdrawn,
		"timestamp": time.Now().UTC(),
	})
}

func (ws *WebServer) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if !ws.decodeRequest(w, r, &req, func() string { return req.Sender }) {
		return
	}
	out, err := ws.vault.Swap(r.Context(), req.Sender, req.Swap)
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"token_out": out})
}
