package services

import (
	"context"
	"strings"

	"github.com/blue-carbon-registry/apiserver/internal/store"
	"github.com/blue-carbon-registry/apiserver/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// fakeUserRepo is an in-memory UserRepository for service tests.
type fakeUserRepo struct {
	users  map[int]types.User
	nextID int

	getErr    error
	updateErr error
	deleteErr error
}

func newFakeUserRepo(users ...types.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: map[int]types.User{}, nextID: 1}
	for _, u := range users {
		if u.ID >= repo.nextID {
			repo.nextID = u.ID + 1
		}
		repo.users[u.ID] = u
	}
	return repo
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	if r.getErr != nil {
		return types.User{}, r.getErr
	}
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	if r.getErr != nil {
		return types.User{}, r.getErr
	}
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByWallet(_ context.Context, wallet string) (types.User, error) {
	if r.getErr != nil {
		return types.User{}, r.getErr
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Wallet, wallet) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
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

func (r *fakeUserRepo) LinkWallet(_ context.Context, id int, wallet string) (types.User, error) {
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

func (r *fakeUserRepo) ListPendingWithWallet(_ context.Context) ([]types.User, error) {
	var pending []types.User
	for _, u := range r.users {
		if u.Status == types.StatusPending && u.Wallet != "" {
			pending = append(pending, u)
		}
	}
	return pending, nil
}

func (r *fakeUserRepo) SetStatusFromPending(_ context.Context, id int, status types.Status) (types.User, error) {
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

func (r *fakeUserRepo) Delete(_ context.Context, id int) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

// fakeGranter records grant calls and returns a canned result.
type fakeGranter struct {
	txHash common.Hash
	err    error
	calls  []common.Hash
}

func (g *fakeGranter) GrantRole(_ context.Context, role common.Hash, _ common.Address) (common.Hash, error) {
	g.calls = append(g.calls, role)
	if g.err != nil {
		return common.Hash{}, g.err
	}
	return g.txHash, nil
}

// fakeBus records published events and can simulate a broker outage.
type fakeBus struct {
	events []types.Event
	err    error
}

func (b *fakeBus) PublishEvent(_ context.Context, event types.Event) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.events = append(b.events, event)
	return event.ID, nil
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
