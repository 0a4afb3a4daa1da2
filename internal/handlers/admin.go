package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/blue-carbon-registry/apiserver/internal/chain"
	"github.com/blue-carbon-registry/apiserver/internal/services"
	"github.com/blue-carbon-registry/apiserver/internal/store"
	"github.com/blue-carbon-registry/apiserver/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminHandler provides the role-gated admin endpoints. Every write is
// authorized against the on-chain admin role before the store is touched.
type AdminHandler struct {
	userService  *services.UserService
	adminService *services.AdminService
	roles        chain.RoleReader
	log          *zap.SugaredLogger
}

func NewAdminHandler(
	userService *services.UserService,
	adminService *services.AdminService,
	roles chain.RoleReader,
	log *zap.SugaredLogger,
) *AdminHandler {
	return &AdminHandler{
		userService:  userService,
		adminService: adminService,
		roles:        roles,
		log:          log,
	}
}

// AdminRouter registers admin routes on the given router.
func AdminRouter(r chi.Router, handler *AdminHandler) {
	r.Get("/pending-requests", handler.PendingRequests)
	r.Post("/update-user", handler.UpdateUser)
	r.Post("/delete-user", handler.DeleteUser)
}

// verifyAdmin checks the caller's on-chain admin role. A definite "false"
// is a 403; a failed or untrustworthy check (RPC error, wrong network) is
// a 502 so it can never silently grant or silently deny.
func (h *AdminHandler) verifyAdmin(r *http.Request, address string) (int, string) {
	address = strings.TrimSpace(address)
	if address == "" {
		return http.StatusBadRequest, "admin address is required"
	}
	if !common.IsHexAddress(address) {
		return http.StatusBadRequest, "invalid admin address"
	}

	isAdmin, err := h.roles.HasRole(r.Context(), chain.DefaultAdminRole, common.HexToAddress(address))
	if err != nil {
		h.log.Errorw("admin role check failed", "address", address, "error", err)
		if errors.Is(err, chain.ErrWrongNetwork) {
			return http.StatusBadGateway, "admin verification unavailable: wrong network"
		}
		return http.StatusBadGateway, "admin verification unavailable"
	}
	if !isAdmin {
		return http.StatusForbidden, "forbidden: the provided address is not an admin"
	}
	return 0, ""
}

// PendingRequests lists pending signup requests that have a linked wallet.
func (h *AdminHandler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	if status, msg := h.verifyAdmin(r, r.URL.Query().Get("adminAddress")); status != 0 {
		writeError(w, status, msg)
		return
	}

	users, err := h.userService.ListPending(r.Context())
	if err != nil {
		h.log.Errorw("pending list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if users == nil {
		users = []types.User{}
	}

	writeJSON(w, http.StatusOK, users)
}

// UpdateUser runs the approve workflow (status "approved") or the
// reject-as-delete workflow (status "rejected").
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.ID < 1 || req.Status == "" {
		writeError(w, http.StatusBadRequest, "user id and status are required")
		return
	}

	if status, msg := h.verifyAdmin(r, req.AdminAddress); status != 0 {
		writeError(w, status, msg)
		return
	}

	switch types.Status(req.Status) {
	case types.StatusApproved:
		h.approve(w, r, req.ID)
	case types.StatusRejected:
		h.reject(w, r, req.ID)
	default:
		writeError(w, http.StatusBadRequest, "status must be approved or rejected")
	}
}

func (h *AdminHandler) approve(w http.ResponseWriter, r *http.Request, id int) {
	user, err := h.adminService.Approve(r.Context(), id)
	if err != nil {
		var reconcile *services.ReconcileError
		switch {
		case errors.As(err, &reconcile):
			// The grant is live on chain but the directory still shows
			// pending. This needs an operator, not a retry.
			h.log.Errorw("approve needs reconciliation",
				"account", reconcile.AccountID, "tx", reconcile.TxHash.Hex(), "error", reconcile.Err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error:  "on-chain role granted, but status update failed; manual reconciliation required",
				Code:   "reconcile_required",
				TxHash: reconcile.TxHash.Hex(),
			})
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, store.ErrNotPending):
			writeError(w, http.StatusConflict, "user is not pending")
		case errors.Is(err, services.ErrNoWallet):
			writeError(w, http.StatusConflict, "user has no linked wallet")
		case errors.Is(err, chain.ErrUnknownRole):
			writeError(w, http.StatusConflict, "requested role cannot be granted on chain")
		case errors.Is(err, chain.ErrTxTimeout):
			writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{
				Error: "timed out waiting for the grant transaction; status unchanged, retry later",
				Code:  "tx_timeout",
			})
		default:
			h.log.Errorw("approve failed", "account", id, "error", err)
			writeError(w, http.StatusInternalServerError, "role grant failed; status unchanged, please retry")
		}
		return
	}

	writeJSON(w, http.StatusOK, UpdateUserResponse{
		Message: "User status updated to approved",
		User:    user,
	})
}

func (h *AdminHandler) reject(w http.ResponseWriter, r *http.Request, id int) {
	if err := h.adminService.Reject(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.log.Errorw("reject failed", "account", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, DeleteUserResponse{Message: "User rejected and removed"})
}

// DeleteUser is the explicit rejection-as-delete action.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	var req DeleteUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.ID < 1 {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	if status, msg := h.verifyAdmin(r, req.AdminAddress); status != 0 {
		writeError(w, status, msg)
		return
	}

	h.reject(w, r, req.ID)
}

type UpdateUserRequest struct {
	ID           int    `json:"id"`
	Status       string `json:"status"`
	AdminAddress string `json:"adminAddress"`
}

type UpdateUserResponse struct {
	Message string     `json:"message"`
	User    types.User `json:"user"`
}

type DeleteUserRequest struct {
	ID           int    `json:"id"`
	AdminAddress string `json:"adminAddress"`
}

type DeleteUserResponse struct {
	Message string `json:"message"`
}
