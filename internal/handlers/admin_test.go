package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blue-carbon-registry/apiserver/internal/chain"
	"github.com/blue-carbon-registry/apiserver/internal/services"
	"github.com/blue-carbon-registry/apiserver/types"
	"github.com/ethereum/go-ethereum/common"
)

const (
	adminAddress  = "0x00000000000000000000000000000000000000Ad"
	memberAddress = "0x00000000000000000000000000000000000000aa"
)

func newTestAdminHandler(repo *fakeUsers, roles *fakeRoles, granter *fakeGranter) *AdminHandler {
	userService := services.NewUserService(repo)
	adminService := services.NewAdminService(repo, granter, nil, testLogger())
	return NewAdminHandler(userService, adminService, roles, testLogger())
}

func adminRoles() *fakeRoles {
	return &fakeRoles{admins: map[common.Address]bool{
		common.HexToAddress(adminAddress): true,
	}}
}

func pendingNGO(id int) types.User {
	return types.User{
		ID: id, Name: "Mangrove Trust", Email: "ngo@example.org",
		Role: types.RoleNGO, Status: types.StatusPending, Wallet: memberAddress,
	}
}

func TestPendingRequests(t *testing.T) {
	t.Run("lists pending wallet-linked accounts", func(t *testing.T) {
		handler := newTestAdminHandler(newFakeUsers(pendingNGO(1)), adminRoles(), &fakeGranter{})
		req := httptest.NewRequest(http.MethodGet, "/api/admin/pending-requests?adminAddress="+adminAddress, nil)
		rr := httptest.NewRecorder()
		handler.PendingRequests(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body)
		}
		if users := decodeBody[[]types.User](t, rr); len(users) != 1 || users[0].ID != 1 {
			t.Fatalf("users = %v, want the pending account", users)
		}
	})

	t.Run("empty list is a JSON array", func(t *testing.T) {
		handler := newTestAdminHandler(newFakeUsers(), adminRoles(), &fakeGranter{})
		req := httptest.NewRequest(http.MethodGet, "/api/admin/pending-requests?adminAddress="+adminAddress, nil)
		rr := httptest.NewRecorder()
		handler.PendingRequests(rr, req)

		if body := rr.Body.String(); body != "[]\n" {
			t.Fatalf("body = %q, want empty array", body)
		}
	})

	t.Run("missing admin address", func(t *testing.T) {
		handler := newTestAdminHandler(newFakeUsers(), adminRoles(), &fakeGranter{})
		req := httptest.NewRequest(http.MethodGet, "/api/admin/pending-requests", nil)
		rr := httptest.NewRecorder()
		handler.PendingRequests(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("non-admin address", func(t *testing.T) {
		handler := newTestAdminHandler(newFakeUsers(), adminRoles(), &fakeGranter{})
		req := httptest.NewRequest(http.MethodGet, "/api/admin/pending-requests?adminAddress="+memberAddress, nil)
		rr := httptest.NewRecorder()
		handler.PendingRequests(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rr.Code)
		}
	})

	t.Run("failed role check is not a denial", func(t *testing.T) {
		roles := &fakeRoles{err: errors.New("rpc: connection refused")}
		handler := newTestAdminHandler(newFakeUsers(), roles, &fakeGranter{})
		req := httptest.NewRequest(http.MethodGet, "/api/admin/pending-requests?adminAddress="+adminAddress, nil)
		rr := httptest.NewRecorder()
		handler.PendingRequests(rr, req)
		if rr.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", rr.Code)
		}
	})

	t.Run("wrong network is reported distinctly", func(t *testing.T) {
		roles := &fakeRoles{err: chain.ErrWrongNetwork}
		handler := newTestAdminHandler(newFakeUsers(), roles, &fakeGranter{})
		req := httptest.NewRequest(http.MethodGet, "/api/admin/pending-requests?adminAddress="+adminAddress, nil)
		rr := httptest.NewRecorder()
		handler.PendingRequests(rr, req)
		if rr.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", rr.Code)
		}
		if resp := decodeBody[ErrorResponse](t, rr); resp.Error != "admin verification unavailable: wrong network" {
			t.Errorf("error = %q", resp.Error)
		}
	})
}

func TestUpdateUser(t *testing.T) {
	txHash := common.HexToHash("0xbeef")

	t.Run("approve grants the role and flips status", func(t *testing.T) {
		repo := newFakeUsers(pendingNGO(1))
		granter := &fakeGranter{txHash: txHash}
		handler := newTestAdminHandler(repo, adminRoles(), granter)

		rr := postJSON(t, handler.UpdateUser, "/api/admin/update-user", UpdateUserRequest{
			ID: 1, Status: "approved", AdminAddress: adminAddress,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body)
		}
		resp := decodeBody[UpdateUserResponse](t, rr)
		if resp.User.Status != types.StatusApproved {
			t.Errorf("status = %s, want approved", resp.User.Status)
		}
		if granter.calls != 1 {
			t.Errorf("grant calls = %d, want 1", granter.calls)
		}
	})

	t.Run("rejected deletes the account", func(t *testing.T) {
		repo := newFakeUsers(pendingNGO(1))
		handler := newTestAdminHandler(repo, adminRoles(), &fakeGranter{})

		rr := postJSON(t, handler.UpdateUser, "/api/admin/update-user", UpdateUserRequest{
			ID: 1, Status: "rejected", AdminAddress: adminAddress,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body)
		}
		if _, ok := repo.users[1]; ok {
			t.Error("rejected account should be removed")
		}
	})

	t.Run("non-admin cannot act", func(t *testing.T) {
		repo := newFakeUsers(pendingNGO(1))
		granter := &fakeGranter{txHash: txHash}
		handler := newTestAdminHandler(repo, adminRoles(), granter)

		rr := postJSON(t, handler.UpdateUser, "/api/admin/update-user", UpdateUserRequest{
			ID: 1, Status: "approved", AdminAddress: memberAddress,
		})
		if rr.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rr.Code)
		}
		if granter.calls != 0 {
			t.Errorf("grant calls = %d, want 0", granter.calls)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		handler := newTestAdminHandler(newFakeUsers(pendingNGO(1)), adminRoles(), &fakeGranter{})
		rr := postJSON(t, handler.UpdateUser, "/api/admin/update-user", UpdateUserRequest{
			ID: 1, Status: "archived", AdminAddress: adminAddress,
		})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		handler := newTestAdminHandler(newFakeUsers(), adminRoles(), &fakeGranter{txHash: txHash})
		rr := postJSON(t, handler.UpdateUser, "/api/admin/update-user", UpdateUserRequest{
			ID: 42, Status: "approved", AdminAddress: adminAddress,
		})
		if rr.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rr.Code)
		}
	})

	t.Run("already approved conflicts", func(t *testing.T) {
		user := pendingNGO(1)
		user.Status = types.StatusApproved
		handler := newTestAdminHandler(newFakeUsers(user), adminRoles(), &fakeGranter{txHash: txHash})
		rr := postJSON(t, handler.UpdateUser, "/api/admin/update-user", UpdateUserRequest{
			ID: 1, Status: "approved", AdminAddress: adminAddress,
		})
		if rr.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rr.Code)
		}
	})

	t.Run("no linked wallet conflicts", func(t *testing.T) {
		user := pendingNGO(1)
		user.Wallet = ""
		handler := newTestAdminHandler(newFakeUsers(user), adminRoles(), &fakeGranter{txHash: txHash})
		rr := postJSON(t, handler.UpdateUser, "/api/admin/update-user", UpdateUserRequest{
			ID: 1, Status: "approved", AdminAddress: adminAddress,
		})
		if rr.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rr.Code)
		}
	})

	t.Run("grant failure keeps the account pending", func(t *testing.T) {
		repo := newFakeUsers(pendingNGO(1))
		granter := &fakeGranter{err: errors.New("rpc down")}
		handler := newTestAdminHandler(repo, adminRoles(), granter)

		rr := postJSON(t, handler.UpdateUser, "/api/admin/update-user", UpdateUserRequest{
			ID: 1, Status: "approved", AdminAddress: adminAddress,
		})
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rr.Code)
		}
		if repo.users[1].Status != types.StatusPending {
			t.Errorf("status = %s, want pending", repo.users[1].Status)
		}
	})

	t.Run("grant timeout is a 504", func(t *testing.T) {
		granter := &fakeGranter{err: chain.ErrTxTimeout}
		handler := newTestAdminHandler(newFakeUsers(pendingNGO(1)), adminRoles(), granter)

		rr := postJSON(t, handler.UpdateUser, "/api/admin/update-user", UpdateUserRequest{
			ID: 1, Status: "approved", AdminAddress: adminAddress,
		})
		if rr.Code != http.StatusGatewayTimeout {
			t.Fatalf("status = %d, want 504", rr.Code)
		}
		if resp := decodeBody[ErrorResponse](t, rr); resp.Code != "tx_timeout" {
			t.Errorf("code = %q, want tx_timeout", resp.Code)
		}
	})

	t.Run("directory failure after mined grant reports the tx", func(t *testing.T) {
		repo := newFakeUsers(pendingNGO(1))
		repo.updateErr = errors.New("connection reset")
		handler := newTestAdminHandler(repo, adminRoles(), &fakeGranter{txHash: txHash})

		rr := postJSON(t, handler.UpdateUser, "/api/admin/update-user", UpdateUserRequest{
			ID: 1, Status: "approved", AdminAddress: adminAddress,
		})
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rr.Code)
		}
		resp := decodeBody[ErrorResponse](t, rr)
		if resp.Code != "reconcile_required" {
			t.Errorf("code = %q, want reconcile_required", resp.Code)
		}
		if resp.TxHash != txHash.Hex() {
			t.Errorf("tx = %q, want %q", resp.TxHash, txHash.Hex())
		}
	})
}

func TestDeleteUser(t *testing.T) {
	t.Run("removes the account", func(t *testing.T) {
		repo := newFakeUsers(pendingNGO(1))
		handler := newTestAdminHandler(repo, adminRoles(), &fakeGranter{})

		rr := postJSON(t, handler.DeleteUser, "/api/admin/delete-user", DeleteUserRequest{
			ID: 1, AdminAddress: adminAddress,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body)
		}
		if _, ok := repo.users[1]; ok {
			t.Error("account should be removed")
		}
	})

	t.Run("requires the admin role", func(t *testing.T) {
		repo := newFakeUsers(pendingNGO(1))
		handler := newTestAdminHandler(repo, adminRoles(), &fakeGranter{})

		rr := postJSON(t, handler.DeleteUser, "/api/admin/delete-user", DeleteUserRequest{
			ID: 1, AdminAddress: memberAddress,
		})
		if rr.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rr.Code)
		}
	})
}
