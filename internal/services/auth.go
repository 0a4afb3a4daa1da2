package services

import (
	"context"
	"errors"

	"github.com/blue-carbon-registry/apiserver/internal/auth"
	"github.com/blue-carbon-registry/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Login type discriminators accepted by Authenticate.
const (
	LoginTypeEmail  = "email"
	LoginTypeWallet = "wallet"
)

// ErrInvalidCredentials is the single failure every unsuccessful
// authentication collapses into. The internal cause (wrong password,
// unknown email, bad signature, unregistered wallet, replayed nonce) is
// logged but never exposed, so the endpoint cannot be used as an oracle
// for account or address enumeration.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials is the union of the two mutually exclusive login shapes.
type Credentials struct {
	LoginType string

	// Email flow.
	Email    string
	Password string

	// Wallet flow.
	Message       string
	Signature     string
	WalletAddress string
}

// SignatureVerifier checks a personal-message signature. It is a function
// so tests can swap the real EIP-191 recovery out.
type SignatureVerifier func(address, message, signature string) bool

// NonceConsumer atomically uses up an issued challenge nonce.
type NonceConsumer interface {
	Consume(nonce string) bool
}

// AuthService unifies email/password and wallet-signature login into one
// authorization decision.
type AuthService struct {
	users  UserRepository
	nonces NonceConsumer
	verify SignatureVerifier
	log    *zap.SugaredLogger
}

func NewAuthService(users UserRepository, nonces NonceConsumer, log *zap.SugaredLogger) *AuthService {
	return &AuthService{
		users:  users,
		nonces: nonces,
		verify: auth.VerifyPersonalSignature,
		log:    log,
	}
}

// Authenticate resolves credentials to a session principal. On any failure
// it returns ErrInvalidCredentials; upstream failures (database down) are
// returned as-is so the handler can report a 500 instead of a 401.
func (s *AuthService) Authenticate(ctx context.Context, creds Credentials) (types.Principal, error) {
	switch creds.LoginType {
	case LoginTypeWallet:
		return s.authenticateWallet(ctx, creds)
	case LoginTypeEmail:
		return s.authenticateEmail(ctx, creds)
	default:
		return types.Principal{}, ErrInvalidCredentials
	}
}

func (s *AuthService) authenticateEmail(ctx context.Context, creds Credentials) (types.Principal, error) {
	if creds.Email == "" || creds.Password == "" {
		return types.Principal{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, creds.Email)
	if err != nil {
		if isNotFound(err) {
			s.log.Debugw("login failed: unknown email")
			return types.Principal{}, ErrInvalidCredentials
		}
		return types.Principal{}, err
	}

	if user.PasswordHash == "" {
		// Wallet-only account; password login is not available for it.
		s.log.Debugw("login failed: no password on account", "user", user.ID)
		return types.Principal{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		s.log.Debugw("login failed: password mismatch", "user", user.ID)
		return types.Principal{}, ErrInvalidCredentials
	}

	return types.PrincipalFromUser(user), nil
}

func (s *AuthService) authenticateWallet(ctx context.Context, creds Credentials) (types.Principal, error) {
	if creds.Message == "" || creds.Signature == "" || creds.WalletAddress == "" {
		return types.Principal{}, ErrInvalidCredentials
	}

	nonce, ok := auth.NonceFromMessage(creds.Message)
	if !ok {
		s.log.Debugw("wallet login failed: message does not match challenge template")
		return types.Principal{}, ErrInvalidCredentials
	}
	if !s.nonces.Consume(nonce) {
		s.log.Warnw("wallet login failed: unknown or replayed nonce")
		return types.Principal{}, ErrInvalidCredentials
	}

	if !s.verify(creds.WalletAddress, creds.Message, creds.Signature) {
		s.log.Debugw("wallet login failed: signature check")
		return types.Principal{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByWallet(ctx, creds.WalletAddress)
	if err != nil {
		if isNotFound(err) {
			// Indistinguishable from a bad signature by design.
			s.log.Debugw("wallet login failed: no account for wallet")
			return types.Principal{}, ErrInvalidCredentials
		}
		return types.Principal{}, err
	}

	return types.PrincipalFromUser(user), nil
}
