package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// AccessState is a state of the admin access check.
type AccessState int

const (
	// StateConnecting waits for a wallet to connect.
	StateConnecting AccessState = iota
	// StateChecking runs the on-chain role read.
	StateChecking
	// StateAuthorized is the only state that unlocks protected content.
	StateAuthorized
	// StateDenied means the role read definitively resolved to false.
	StateDenied
	// StateWrongNetwork means the chain id did not match; the role read
	// result (if any) was not trusted.
	StateWrongNetwork
	// StateCheckFailed means the role read errored (RPC failure). It is
	// deliberately distinct from StateDenied.
	StateCheckFailed
)

func (s AccessState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateChecking:
		return "checking"
	case StateAuthorized:
		return "authorized"
	case StateDenied:
		return "denied"
	case StateWrongNetwork:
		return "wrong-network"
	case StateCheckFailed:
		return "check-failed"
	default:
		return "unknown"
	}
}

// RoleReader is the read-only role query the guard depends on.
type RoleReader interface {
	HasRole(ctx context.Context, role common.Hash, account common.Address) (bool, error)
}

// AccessCheck drives the admin guard: Connecting -> Checking ->
// {Authorized, Denied, WrongNetwork, CheckFailed}. There is no automatic
// retry; only Connect or Retry re-enters Checking.
type AccessCheck struct {
	roles   RoleReader
	role    common.Hash
	state   AccessState
	account common.Address
	err     error
}

// NewAccessCheck builds a guard for the given required role, starting in
// StateConnecting.
func NewAccessCheck(roles RoleReader, role common.Hash) *AccessCheck {
	return &AccessCheck{roles: roles, role: role, state: StateConnecting}
}

// State returns the current state.
func (a *AccessCheck) State() AccessState {
	return a.state
}

// Err returns the error behind a WrongNetwork or CheckFailed state.
func (a *AccessCheck) Err() error {
	return a.err
}

// Connect handles a wallet connect event: it moves to Checking and runs
// the role read for the connected account.
func (a *AccessCheck) Connect(ctx context.Context, account common.Address) AccessState {
	a.account = account
	return a.check(ctx)
}

// Retry re-runs the check after user action (switched network or wallet).
// It is a no-op while no wallet has connected or once authorized.
func (a *AccessCheck) Retry(ctx context.Context) AccessState {
	if a.state == StateConnecting || a.state == StateAuthorized {
		return a.state
	}
	return a.check(ctx)
}

func (a *AccessCheck) check(ctx context.Context) AccessState {
	a.state = StateChecking
	a.err = nil

	has, err := a.roles.HasRole(ctx, a.role, a.account)
	switch {
	case errors.Is(err, ErrWrongNetwork):
		a.state = StateWrongNetwork
		a.err = err
	case err != nil:
		a.state = StateCheckFailed
		a.err = err
	case has:
		a.state = StateAuthorized
	default:
		a.state = StateDenied
	}
	return a.state
}
