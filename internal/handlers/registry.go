package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/blue-carbon-registry/apiserver/internal/chain"
	"github.com/blue-carbon-registry/apiserver/internal/services"
	"github.com/blue-carbon-registry/apiserver/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	maxMultipartMemory = 32 << 20
	maxEvidenceBytes   = 64 << 20

	formFieldEvidence = "evidence"
	formFieldProject  = "project_id"
	formFieldTonnes   = "reported_tonnes"
)

// RegistryHandler exposes the project/proof/retirement lifecycle to
// approved accounts.
type RegistryHandler struct {
	proofService *services.ProofService
	userService  *services.UserService
	log          *zap.SugaredLogger
}

func NewRegistryHandler(proofService *services.ProofService, userService *services.UserService, log *zap.SugaredLogger) *RegistryHandler {
	return &RegistryHandler{
		proofService: proofService,
		userService:  userService,
		log:          log,
	}
}

// RegistryRouter registers lifecycle routes. The caller mounts it behind
// the session middleware.
func RegistryRouter(r chi.Router, handler *RegistryHandler) {
	r.With(handler.requireApproved(types.RoleNGO)).Post("/projects", handler.RegisterProject)
	r.With(handler.requireApproved(types.RoleNGO)).Post("/proofs", handler.SubmitProof)
	r.With(handler.requireApproved(types.RoleVerifier)).Post("/proofs/approve", handler.ApproveProof)
	r.Post("/retirements", handler.Retire)
}

// requireApproved admits only authenticated accounts holding the given
// approved role.
func (h *RegistryHandler) requireApproved(role types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := userIDFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			user, err := h.userService.GetByID(r.Context(), userID)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if user.Status != types.StatusApproved || user.Role != role {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RegisterProject registers a project on chain for an approved NGO.
func (h *RegistryHandler) RegisterProject(w http.ResponseWriter, r *http.Request) {
	var req RegisterProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "name and metadata_cid are required")
		return
	}

	txHash, err := h.proofService.RegisterProject(r.Context(), req.Name, req.MetadataCid)
	if err != nil {
		h.writeChainError(w, "project registration", err)
		return
	}

	writeJSON(w, http.StatusCreated, TxResponse{TxHash: txHash.Hex()})
}

// SubmitProof accepts a multipart evidence document, stores it, and
// submits the proof on chain.
func (h *RegistryHandler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEvidenceBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	projectID, ok := new(big.Int).SetString(strings.TrimSpace(r.FormValue(formFieldProject)), 10)
	if !ok || projectID.Sign() < 1 {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	tonnes, ok := new(big.Int).SetString(strings.TrimSpace(r.FormValue(formFieldTonnes)), 10)
	if !ok || tonnes.Sign() < 1 {
		writeError(w, http.StatusBadRequest, "reported_tonnes is required")
		return
	}

	file, header, err := r.FormFile(formFieldEvidence)
	if err != nil {
		writeError(w, http.StatusBadRequest, "evidence document is required")
		return
	}
	defer file.Close()

	evidence, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read evidence document")
		return
	}

	contentType := header.Header.Get("Content-Type")
	txHash, evidenceCid, err := h.proofService.SubmitProof(r.Context(), projectID, tonnes, contentType, evidence)
	if err != nil {
		h.writeChainError(w, "proof submission", err)
		return
	}

	writeJSON(w, http.StatusCreated, SubmitProofResponse{
		TxHash:      txHash.Hex(),
		EvidenceCid: evidenceCid,
	})
}

// ApproveProof verifies a proof and issues credits for it.
func (h *RegistryHandler) ApproveProof(w http.ResponseWriter, r *http.Request) {
	var req ApproveProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.ProofID < 1 || req.VerifiedTonnes < 1 {
		writeError(w, http.StatusBadRequest, "proof_id and verified_tonnes are required")
		return
	}

	txHash, err := h.proofService.ApproveProof(r.Context(),
		big.NewInt(req.ProofID), big.NewInt(req.VerifiedTonnes), req.CertificateUri)
	if err != nil {
		h.writeChainError(w, "proof approval", err)
		return
	}

	writeJSON(w, http.StatusOK, TxResponse{TxHash: txHash.Hex()})
}

// Retire permanently retires credits against a certificate.
func (h *RegistryHandler) Retire(w http.ResponseWriter, r *http.Request) {
	if _, err := userIDFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RetireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Beneficiary = strings.TrimSpace(req.Beneficiary)
	if req.CertificateID < 1 || req.Amount < 1 || req.Beneficiary == "" {
		writeError(w, http.StatusBadRequest, "certificate_id, amount and beneficiary are required")
		return
	}

	txHash, err := h.proofService.Retire(r.Context(),
		big.NewInt(req.CertificateID), big.NewInt(req.Amount), req.Beneficiary)
	if err != nil {
		h.writeChainError(w, "retirement", err)
		return
	}

	writeJSON(w, http.StatusOK, TxResponse{TxHash: txHash.Hex()})
}

func (h *RegistryHandler) writeChainError(w http.ResponseWriter, op string, err error) {
	h.log.Errorw(op+" failed", "error", err)
	switch {
	case errors.Is(err, chain.ErrTxTimeout):
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{
			Error: op + " timed out waiting for the transaction; retry later",
			Code:  "tx_timeout",
		})
	case errors.Is(err, chain.ErrTxReverted):
		writeError(w, http.StatusBadGateway, op+" transaction reverted")
	case errors.Is(err, chain.ErrWrongNetwork):
		writeError(w, http.StatusBadGateway, op+" unavailable: wrong network")
	default:
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

type RegisterProjectRequest struct {
	Name        string `json:"name" validate:"required"`
	MetadataCid string `json:"metadata_cid" validate:"required"`
}

type ApproveProofRequest struct {
	ProofID        int64  `json:"proof_id"`
	VerifiedTonnes int64  `json:"verified_tonnes"`
	CertificateUri string `json:"certificate_uri"`
}

type RetireRequest struct {
	CertificateID int64  `json:"certificate_id"`
	Amount        int64  `json:"amount"`
	Beneficiary   string `json:"beneficiary"`
}

type TxResponse struct {
	TxHash string `json:"tx_hash"`
}

type SubmitProofResponse struct {
	TxHash      string `json:"tx_hash"`
	EvidenceCid string `json:"evidence_cid"`
}
