package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/blue-carbon-registry/apiserver/internal/chain"
	"github.com/blue-carbon-registry/apiserver/internal/store"
	"github.com/blue-carbon-registry/apiserver/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ErrNoWallet is returned when an approval is attempted on an account that
// has not linked a wallet; there is no address to grant the role to.
var ErrNoWallet = errors.New("account has no linked wallet")

// ReconcileError reports the distinguished partial-failure case of the
// approve workflow: the on-chain grant mined successfully but the status
// update did not commit. The role is live on chain while the directory
// still shows pending, which requires manual reconciliation and must not
// be reported as a generic failure.
type ReconcileError struct {
	AccountID int
	TxHash    common.Hash
	Err       error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("on-chain role granted (tx %s) but status update for account %d failed: %v",
		e.TxHash.Hex(), e.AccountID, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

// RoleGranter submits a role grant and waits for it to mine.
type RoleGranter interface {
	GrantRole(ctx context.Context, role common.Hash, account common.Address) (common.Hash, error)
}

// EventPublisher emits registry lifecycle events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event types.Event) (string, error)
}

// AdminService orchestrates the approve/reject workflows.
type AdminService struct {
	users  UserRepository
	roles  RoleGranter
	events EventPublisher
	log    *zap.SugaredLogger
}

// NewAdminService constructs the executor. events may be nil when no
// broker is configured.
func NewAdminService(users UserRepository, roles RoleGranter, events EventPublisher, log *zap.SugaredLogger) *AdminService {
	return &AdminService{users: users, roles: roles, events: events, log: log}
}

// Approve grants the requested role on chain and then flips the account to
// approved. The two steps are not atomic: a chain failure leaves status
// pending (retryable), while a directory failure after a mined grant is
// surfaced as *ReconcileError.
func (s *AdminService) Approve(ctx context.Context, accountID int) (types.User, error) {
	user, err := s.users.GetByID(ctx, accountID)
	if err != nil {
		return types.User{}, err
	}
	if user.Status != types.StatusPending {
		return types.User{}, store.ErrNotPending
	}
	if user.Wallet == "" {
		return types.User{}, ErrNoWallet
	}

	roleID, err := chain.RoleID(user.Role)
	if err != nil {
		return types.User{}, err
	}

	txHash, err := s.roles.GrantRole(ctx, roleID, common.HexToAddress(user.Wallet))
	if err != nil {
		// Nothing was committed; the account stays pending and the
		// caller may retry.
		return types.User{}, fmt.Errorf("role grant: %w", err)
	}
	s.log.Infow("role granted on chain",
		"account", accountID, "role", user.Role, "wallet", user.Wallet, "tx", txHash.Hex())

	updated, err := s.users.SetStatusFromPending(ctx, accountID, types.StatusApproved)
	if err != nil {
		return types.User{}, &ReconcileError{AccountID: accountID, TxHash: txHash, Err: err}
	}

	s.publish(ctx, func() types.Event {
		event := types.NewEvent(types.EventAccountApproved)
		event.AccountID = updated.ID
		event.Wallet = updated.Wallet
		event.Role = updated.Role
		event.TxHash = txHash.Hex()
		return event
	})
	return updated, nil
}

// Reject deletes the account row. It does not touch the chain, and it is
// not reversible.
func (s *AdminService) Reject(ctx context.Context, accountID int) error {
	user, err := s.users.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.users.Delete(ctx, accountID); err != nil {
		return err
	}
	s.log.Infow("account rejected and removed", "account", accountID)

	s.publish(ctx, func() types.Event {
		event := types.NewEvent(types.EventAccountRejected)
		event.AccountID = user.ID
		event.Wallet = user.Wallet
		event.Role = user.Role
		return event
	})
	return nil
}

// publish emits an event without letting a broker failure fail the
// triggering request.
func (s *AdminService) publish(ctx context.Context, build func() types.Event) {
	if s.events == nil {
		return
	}
	event := build()
	if _, err := s.events.PublishEvent(ctx, event); err != nil {
		s.log.Warnw("event publish failed", "kind", event.Kind, "error", err)
	}
}
