package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/blue-carbon-registry/apiserver/internal/services"
	"github.com/blue-carbon-registry/apiserver/internal/store"
	"github.com/blue-carbon-registry/apiserver/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// UserHandler provides authenticated account endpoints.
type UserHandler struct {
	userService *services.UserService
	log         *zap.SugaredLogger
}

func NewUserHandler(userService *services.UserService, log *zap.SugaredLogger) *UserHandler {
	return &UserHandler{userService: userService, log: log}
}

// Profile returns the current account snapshot from the directory, not the
// possibly stale session token.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.log.Errorw("profile fetch failed", "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateWallet links a wallet address to the current account.
func (h *UserHandler) UpdateWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req UpdateWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	wallet := strings.TrimSpace(req.WalletAddress)
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet address is required")
		return
	}
	if !common.IsHexAddress(wallet) {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	user, err := h.userService.LinkWallet(r.Context(), userID, common.HexToAddress(wallet).Hex())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "wallet address already linked to another account")
		default:
			h.log.Errorw("wallet update failed", "user", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, UpdateWalletResponse{
		Message: "Wallet address updated successfully",
		User:    user,
	})
}

type UpdateWalletRequest struct {
	WalletAddress string `json:"walletAddress"`
}

type UpdateWalletResponse struct {
	Message string     `json:"message"`
	User    types.User `json:"user"`
}
