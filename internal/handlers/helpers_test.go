package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blue-carbon-registry/apiserver/internal/auth"
	"github.com/blue-carbon-registry/apiserver/internal/services"
	"github.com/blue-carbon-registry/apiserver/internal/store"
	"github.com/blue-carbon-registry/apiserver/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

// fakeUsers is an in-memory services.UserRepository.
type fakeUsers struct {
	users  map[int]types.User
	nextID int

	updateErr error
}

func newFakeUsers(users ...types.User) *fakeUsers {
	repo := &fakeUsers{users: map[int]types.User{}, nextID: 1}
	for _, u := range users {
		if u.ID >= repo.nextID {
			repo.nextID = u.ID + 1
		}
		repo.users[u.ID] = u
	}
	return repo
}

func (r *fakeUsers) GetByID(_ context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUsers) GetByWallet(_ context.Context, wallet string) (types.User, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Wallet, wallet) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUsers) Create(_ context.Context, user types.User) (types.User, error) {
	for _, u := range r.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = r.nextID
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUsers) LinkWallet(_ context.Context, id int, wallet string) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	for _, u := range r.users {
		if u.ID != id && strings.EqualFold(u.Wallet, wallet) {
			return types.User{}, store.ErrConflict
		}
	}
	user.Wallet = wallet
	r.users[id] = user
	return user, nil
}

func (r *fakeUsers) ListPendingWithWallet(_ context.Context) ([]types.User, error) {
	var pending []types.User
	for _, u := range r.users {
		if u.Status == types.StatusPending && u.Wallet != "" {
			pending = append(pending, u)
		}
	}
	return pending, nil
}

func (r *fakeUsers) SetStatusFromPending(_ context.Context, id int, status types.Status) (types.User, error) {
	if r.updateErr != nil {
		return types.User{}, r.updateErr
	}
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if user.Status != types.StatusPending {
		return types.User{}, store.ErrNotPending
	}
	user.Status = status
	r.users[id] = user
	return user, nil
}

func (r *fakeUsers) Delete(_ context.Context, id int) error {
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

// fakeRoles is a chain.RoleReader with canned answers per address.
type fakeRoles struct {
	admins map[common.Address]bool
	err    error
}

func (f *fakeRoles) HasRole(_ context.Context, _ common.Hash, account common.Address) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.admins[account], nil
}

// fakeGranter is a services.RoleGranter recording its calls.
type fakeGranter struct {
	txHash common.Hash
	err    error
	calls  int
}

func (g *fakeGranter) GrantRole(_ context.Context, _ common.Hash, _ common.Address) (common.Hash, error) {
	g.calls++
	if g.err != nil {
		return common.Hash{}, g.err
	}
	return g.txHash, nil
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newTestAuthHandler(t *testing.T, repo services.UserRepository) (*AuthHandler, *auth.NonceStore) {
	t.Helper()
	nonces := auth.NewNonceStore()
	t.Cleanup(nonces.Stop)

	userService := services.NewUserService(repo)
	authService := services.NewAuthService(repo, nonces, testLogger())
	return NewAuthHandler(authService, userService, nonces, testSecret, time.Hour, testLogger()), nonces
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func postJSONWithSubject(t *testing.T, handler http.HandlerFunc, target string, userID int, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = withSubject(req, userID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func withSubject(r *http.Request, userID int) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), contextSubjectKey, userID))
}
