package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const retirementABI = `[
	{"type":"function","name":"retire","stateMutability":"nonpayable","inputs":[{"name":"sourceCertificateId","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"beneficiary","type":"string"}],"outputs":[]},
	{"type":"function","name":"getRetirement","stateMutability":"view","inputs":[{"name":"retirementId","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"owner","type":"address"},{"name":"beneficiary","type":"string"},{"name":"amount","type":"uint256"},{"name":"retirementDate","type":"uint256"},{"name":"sourceCertificateId","type":"uint256"}]}]}
]`

var retireABI = mustParseABI(retirementABI)

// RetirementRecord is the on-chain record of a permanent credit
// retirement, laid out like the contract's RetirementRecord struct.
type RetirementRecord struct {
	Owner               common.Address
	Beneficiary         string
	Amount              *big.Int
	RetirementDate      *big.Int
	SourceCertificateId *big.Int
}

// Retirement calls the credit retirement contract.
type Retirement struct {
	client  *Client
	address common.Address
}

func NewRetirement(client *Client, address string) (*Retirement, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid retirement address %q", address)
	}
	return &Retirement{
		client:  client,
		address: common.HexToAddress(address),
	}, nil
}

func (r *Retirement) Retire(ctx context.Context, sourceCertificateID, amount *big.Int, beneficiary string) (common.Hash, error) {
	return r.client.transact(ctx, r.address, retireABI, "retire", sourceCertificateID, amount, beneficiary)
}

func (r *Retirement) GetRetirement(ctx context.Context, retirementID *big.Int) (RetirementRecord, error) {
	out, err := r.client.call(ctx, r.address, retireABI, "getRetirement", retirementID)
	if err != nil {
		return RetirementRecord{}, err
	}
	return decodeRetirement(out)
}

func decodeRetirement(out []any) (RetirementRecord, error) {
	if len(out) != 1 {
		return RetirementRecord{}, fmt.Errorf("getRetirement: expected 1 output, got %d", len(out))
	}
	return *abi.ConvertType(out[0], new(RetirementRecord)).(*RetirementRecord), nil
}
