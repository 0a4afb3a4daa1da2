package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const carbonRegistryABI = `[
	{"type":"function","name":"registerProject","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"},{"name":"metadataCid","type":"string"}],"outputs":[]},
	{"type":"function","name":"submitProof","stateMutability":"nonpayable","inputs":[{"name":"projectId","type":"uint256"},{"name":"evidenceCid","type":"string"},{"name":"reportedTonnes","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"approveAndIssue","stateMutability":"nonpayable","inputs":[{"name":"proofId","type":"uint256"},{"name":"verifiedTonnes","type":"uint256"},{"name":"certificateUri","type":"string"}],"outputs":[]},
	{"type":"function","name":"getProject","stateMutability":"view","inputs":[{"name":"projectId","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"name","type":"string"},{"name":"metadataCid","type":"string"},{"name":"owner","type":"address"}]}]},
	{"type":"function","name":"getProof","stateMutability":"view","inputs":[{"name":"proofId","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"projectId","type":"uint256"},{"name":"evidenceCid","type":"string"},{"name":"reportedTonnes","type":"uint256"},{"name":"verifiedTonnes","type":"uint256"},{"name":"proofStatus","type":"uint8"},{"name":"submittedBy","type":"address"}]}]}
]`

var registryABI = mustParseABI(carbonRegistryABI)

// Project is the on-chain project record. Field order and names follow
// the contract's Project struct so the decoded tuple converts directly.
type Project struct {
	Name        string
	MetadataCid string
	Owner       common.Address
}

// Proof is the on-chain proof record, laid out like the contract's
// Proof struct.
type Proof struct {
	ProjectId      *big.Int
	EvidenceCid    string
	ReportedTonnes *big.Int
	VerifiedTonnes *big.Int
	ProofStatus    uint8
	SubmittedBy    common.Address
}

// CarbonRegistry calls the project/proof/certificate lifecycle contract.
type CarbonRegistry struct {
	client  *Client
	address common.Address
}

func NewCarbonRegistry(client *Client, address string) (*CarbonRegistry, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid carbon registry address %q", address)
	}
	return &CarbonRegistry{
		client:  client,
		address: common.HexToAddress(address),
	}, nil
}

func (r *CarbonRegistry) RegisterProject(ctx context.Context, name, metadataCid string) (common.Hash, error) {
	return r.client.transact(ctx, r.address, registryABI, "registerProject", name, metadataCid)
}

// SubmitProof submits an evidence reference for verification. The packed
// argument order is the contract's: projectId, evidenceCid, reportedTonnes.
func (r *CarbonRegistry) SubmitProof(ctx context.Context, projectID, reportedTonnes *big.Int, evidenceCid string) (common.Hash, error) {
	return r.client.transact(ctx, r.address, registryABI, "submitProof", projectID, evidenceCid, reportedTonnes)
}

func (r *CarbonRegistry) ApproveAndIssue(ctx context.Context, proofID, verifiedTonnes *big.Int, certificateUri string) (common.Hash, error) {
	return r.client.transact(ctx, r.address, registryABI, "approveAndIssue", proofID, verifiedTonnes, certificateUri)
}

func (r *CarbonRegistry) GetProject(ctx context.Context, projectID *big.Int) (Project, error) {
	out, err := r.client.call(ctx, r.address, registryABI, "getProject", projectID)
	if err != nil {
		return Project{}, err
	}
	return decodeProject(out)
}

func (r *CarbonRegistry) GetProof(ctx context.Context, proofID *big.Int) (Proof, error) {
	out, err := r.client.call(ctx, r.address, registryABI, "getProof", proofID)
	if err != nil {
		return Proof{}, err
	}
	return decodeProof(out)
}

func decodeProject(out []any) (Project, error) {
	if len(out) != 1 {
		return Project{}, fmt.Errorf("getProject: expected 1 output, got %d", len(out))
	}
	return *abi.ConvertType(out[0], new(Project)).(*Project), nil
}

func decodeProof(out []any) (Proof, error) {
	if len(out) != 1 {
		return Proof{}, fmt.Errorf("getProof: expected 1 output, got %d", len(out))
	}
	return *abi.ConvertType(out[0], new(Proof)).(*Proof), nil
}
