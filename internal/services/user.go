package services

import (
	"context"

	"github.com/blue-carbon-registry/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByWallet(ctx context.Context, wallet string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	LinkWallet(ctx context.Context, id int, wallet string) (types.User, error)
	ListPendingWithWallet(ctx context.Context) ([]types.User, error)
	SetStatusFromPending(ctx context.Context, id int, status types.Status) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Signup creates a pending account. Email uniqueness is enforced by the
// store; a duplicate surfaces as store.ErrConflict.
func (s *UserService) Signup(ctx context.Context, name, email, password string, role types.Role) (types.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	return s.repo.Create(ctx, types.User{
		Name:         name,
		Email:        email,
		Role:         role,
		Status:       types.StatusPending,
		PasswordHash: string(hashed),
	})
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// LinkWallet records a wallet address on the account. Wallet uniqueness is
// enforced by the store.
func (s *UserService) LinkWallet(ctx context.Context, id int, wallet string) (types.User, error) {
	return s.repo.LinkWallet(ctx, id, wallet)
}

// ListPending returns pending signup requests that can be acted on (those
// with a linked wallet).
func (s *UserService) ListPending(ctx context.Context) ([]types.User, error) {
	return s.repo.ListPendingWithWallet(ctx)
}
