package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/blue-carbon-registry/apiserver/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const rolesControllerABI = `[
	{"type":"function","name":"hasRole","stateMutability":"view","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"grantRole","stateMutability":"nonpayable","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]},
	{"type":"function","name":"revokeRole","stateMutability":"nonpayable","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]}
]`

// Role identifiers as the RolesController contract keys them.
var (
	DefaultAdminRole = common.Hash{}
	NGORole          = crypto.Keccak256Hash([]byte("NGO_ROLE"))
	VerifierRole     = crypto.Keccak256Hash([]byte("VERIFIER_ROLE"))
)

// ErrUnknownRole is returned when a role request has no grantable contract
// role. Admin is deliberately not grantable through the approve workflow.
var ErrUnknownRole = errors.New("no contract role for requested role")

// RoleID maps a role request to the contract role identifier it resolves
// to. The mapping is a closed enumeration; anything outside it is rejected
// with ErrUnknownRole.
func RoleID(role types.Role) (common.Hash, error) {
	switch role {
	case types.RoleNGO:
		return NGORole, nil
	case types.RoleVerifier:
		return VerifierRole, nil
	default:
		return common.Hash{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

var rolesABI = mustParseABI(rolesControllerABI)

// RolesController calls the on-chain role/permission contract.
type RolesController struct {
	client  *Client
	address common.Address
}

// NewRolesController binds the contract at the given address.
func NewRolesController(client *Client, address string) (*RolesController, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid roles controller address %q", address)
	}
	return &RolesController{
		client:  client,
		address: common.HexToAddress(address),
	}, nil
}

// HasRole performs the read-only hasRole(role, account) query. An RPC or
// network error is returned as-is; it never degrades to a false.
func (rc *RolesController) HasRole(ctx context.Context, role common.Hash, account common.Address) (bool, error) {
	out, err := rc.client.call(ctx, rc.address, rolesABI, "hasRole", role, account)
	if err != nil {
		return false, err
	}
	has, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("hasRole: unexpected result type %T", out[0])
	}
	return has, nil
}

// GrantRole submits grantRole(role, account) and waits for it to mine.
func (rc *RolesController) GrantRole(ctx context.Context, role common.Hash, account common.Address) (common.Hash, error) {
	return rc.client.transact(ctx, rc.address, rolesABI, "grantRole", role, account)
}

// RevokeRole submits revokeRole(role, account) and waits for it to mine.
func (rc *RolesController) RevokeRole(ctx context.Context, role common.Hash, account common.Address) (common.Hash, error) {
	return rc.client.transact(ctx, rc.address, rolesABI, "revokeRole", role, account)
}
