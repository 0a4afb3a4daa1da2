package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/blue-carbon-registry/apiserver/internal/storage"
	"github.com/blue-carbon-registry/apiserver/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// RegistryCaller is the slice of the CarbonRegistry contract the proof
// service needs.
type RegistryCaller interface {
	RegisterProject(ctx context.Context, name, metadataCid string) (common.Hash, error)
	SubmitProof(ctx context.Context, projectID, reportedTonnes *big.Int, evidenceCid string) (common.Hash, error)
	ApproveAndIssue(ctx context.Context, proofID, verifiedTonnes *big.Int, certificateUri string) (common.Hash, error)
}

// RetirementCaller is the slice of the Retirement contract the proof
// service needs.
type RetirementCaller interface {
	Retire(ctx context.Context, sourceCertificateID, amount *big.Int, beneficiary string) (common.Hash, error)
}

// ProofService drives the project/proof/certificate lifecycle: evidence
// documents go to object storage, their digests go on chain.
type ProofService struct {
	registry   RegistryCaller
	retirement RetirementCaller
	evidence   *storage.Storage
	events     EventPublisher
	log        *zap.SugaredLogger
}

func NewProofService(registry RegistryCaller, retirement RetirementCaller, evidence *storage.Storage, events EventPublisher, log *zap.SugaredLogger) *ProofService {
	return &ProofService{
		registry:   registry,
		retirement: retirement,
		evidence:   evidence,
		events:     events,
		log:        log,
	}
}

// RegisterProject registers a new project on chain.
func (s *ProofService) RegisterProject(ctx context.Context, name, metadataCid string) (common.Hash, error) {
	return s.registry.RegisterProject(ctx, name, metadataCid)
}

// SubmitProof stores the evidence document and submits the proof with the
// document's digest as its evidence id. The upload happens first so the
// on-chain record never references a document that failed to persist.
func (s *ProofService) SubmitProof(ctx context.Context, projectID, reportedTonnes *big.Int, contentType string, evidence []byte) (common.Hash, string, error) {
	digest := sha256.Sum256(evidence)
	evidenceCid := hex.EncodeToString(digest[:])

	if err := s.evidence.Put(ctx, evidenceCid, bytes.NewReader(evidence), int64(len(evidence)), contentType); err != nil {
		return common.Hash{}, "", err
	}

	txHash, err := s.registry.SubmitProof(ctx, projectID, reportedTonnes, evidenceCid)
	if err != nil {
		return common.Hash{}, "", err
	}
	s.log.Infow("proof submitted",
		"project", projectID.String(), "tonnes", reportedTonnes.String(), "evidence", evidenceCid, "tx", txHash.Hex())

	s.publish(ctx, func() types.Event {
		event := types.NewEvent(types.EventProofSubmitted)
		event.TxHash = txHash.Hex()
		return event
	})
	return txHash, evidenceCid, nil
}

// ApproveProof verifies a proof and issues credits for it.
func (s *ProofService) ApproveProof(ctx context.Context, proofID, verifiedTonnes *big.Int, certificateUri string) (common.Hash, error) {
	return s.registry.ApproveAndIssue(ctx, proofID, verifiedTonnes, certificateUri)
}

// Retire permanently retires credits against a certificate.
func (s *ProofService) Retire(ctx context.Context, sourceCertificateID, amount *big.Int, beneficiary string) (common.Hash, error) {
	txHash, err := s.retirement.Retire(ctx, sourceCertificateID, amount, beneficiary)
	if err != nil {
		return common.Hash{}, err
	}

	s.publish(ctx, func() types.Event {
		event := types.NewEvent(types.EventCreditRetired)
		event.TxHash = txHash.Hex()
		return event
	})
	return txHash, nil
}

func (s *ProofService) publish(ctx context.Context, build func() types.Event) {
	if s.events == nil {
		return
	}
	event := build()
	if _, err := s.events.PublishEvent(ctx, event); err != nil {
		s.log.Warnw("event publish failed", "kind", event.Kind, "error", err)
	}
}
