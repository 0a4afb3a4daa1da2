package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blue-carbon-registry/apiserver/internal/auth"
	"github.com/blue-carbon-registry/apiserver/internal/services"
	"github.com/blue-carbon-registry/apiserver/internal/store"
	"github.com/blue-carbon-registry/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AuthHandler provides challenge, login, and signup endpoints.
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	nonces      *auth.NonceStore
	secret      []byte
	tokenTTL    time.Duration
	log         *zap.SugaredLogger
}

func NewAuthHandler(
	authService *services.AuthService,
	userService *services.UserService,
	nonces *auth.NonceStore,
	jwtSecret string,
	tokenTTL time.Duration,
	log *zap.SugaredLogger,
) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
		nonces:      nonces,
		secret:      []byte(jwtSecret),
		tokenTTL:    tokenTTL,
		log:         log,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Get("/challenge", handler.Challenge)
	r.Post("/login", handler.Login)
}

// RequireAuth enforces JWT authentication and injects the subject into
// context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return requireAuth(h.secret)(next)
}

func requireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			subject, err := parseTokenSubject(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Challenge issues a fresh sign-in challenge message. The embedded nonce
// is recorded for single-use consumption during wallet login.
func (h *AuthHandler) Challenge(w http.ResponseWriter, _ *http.Request) {
	message, nonce, err := auth.NewChallenge()
	if err != nil {
		h.log.Errorw("challenge generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate challenge")
		return
	}

	if err := h.nonces.Put(nonce); err != nil {
		h.log.Warnw("nonce store rejected challenge", "error", err)
		writeError(w, http.StatusServiceUnavailable, "server busy, try again later")
		return
	}

	writeJSON(w, http.StatusOK, ChallengeResponse{Message: message})
}

// Login authenticates either credential shape and returns a session token.
// Every authentication failure is reported identically.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	principal, err := h.authService.Authenticate(r.Context(), services.Credentials{
		LoginType:     strings.TrimSpace(req.LoginType),
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		Password:      req.Password,
		Message:       req.Message,
		Signature:     strings.TrimSpace(req.Signature),
		WalletAddress: strings.TrimSpace(req.WalletAddress),
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.log.Errorw("login failed upstream", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, err := issueToken(principal.ID, h.secret, h.tokenTTL)
	if err != nil {
		h.log.Errorw("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: principal})
}

// Signup creates a pending account.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "all fields are required")
		return
	}

	role := types.Role(req.Role)
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}

	user, err := h.userService.Signup(r.Context(), req.Name, req.Email, req.Password, role)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "user with this email already exists")
			return
		}
		h.log.Errorw("signup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, SignupResponse{
		Message: "Account created successfully",
		User:    user,
	})
}

type ChallengeResponse struct {
	Message string `json:"message"`
}

type LoginRequest struct {
	LoginType     string `json:"loginType"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Message       string `json:"message"`
	Signature     string `json:"signature"`
	WalletAddress string `json:"walletAddress"`
}

type AuthResponse struct {
	Token string          `json:"token"`
	User  types.Principal `json:"user"`
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

type SignupResponse struct {
	Message string     `json:"message"`
	User    types.User `json:"user"`
}

func issueToken(userID int, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
