//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blue-carbon-registry/apiserver/config"
	"github.com/blue-carbon-registry/apiserver/internal/server"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

// TestWalletLoginFlow walks the full account lifecycle: signup, email
// login, wallet link, then challenge/sign/login with the wallet alone.
func TestWalletLoginFlow(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	email := fmt.Sprintf("ngo_%d@example.org", time.Now().UnixNano())
	password := "testpass123!"

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wallet := crypto.PubkeyToAddress(key.PublicKey).Hex()

	if err := signup(t, baseURL, email, password); err != nil {
		t.Fatalf("signup: %v", err)
	}

	token, err := loginEmail(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("email login: %v", err)
	}

	if err := linkWallet(t, baseURL, token, wallet); err != nil {
		t.Fatalf("link wallet: %v", err)
	}

	message, err := fetchChallenge(t, baseURL)
	if err != nil {
		t.Fatalf("fetch challenge: %v", err)
	}
	if !strings.Contains(message, "Blue Carbon Registry") {
		t.Fatalf("unexpected challenge message: %q", message)
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		t.Fatalf("sign challenge: %v", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	walletToken, err := loginWallet(t, baseURL, message, hexutil.Encode(sig), wallet)
	if err != nil {
		t.Fatalf("wallet login: %v", err)
	}
	if walletToken == "" {
		t.Fatal("missing wallet session token")
	}

	// The consumed challenge must not work a second time.
	if _, err := loginWallet(t, baseURL, message, hexutil.Encode(sig), wallet); err == nil {
		t.Fatal("expected replayed challenge to be rejected")
	}
}

type authResponse struct {
	Token string `json:"token"`
}

func signup(t *testing.T, baseURL, email, password string) error {
	t.Helper()

	status, _, err := postJSON(baseURL+"/api/signup", "", map[string]string{
		"name":     "Test NGO",
		"email":    email,
		"password": password,
		"role":     "NGO",
	})
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("signup status %d", status)
	}
	return nil
}

func loginEmail(t *testing.T, baseURL, email, password string) (string, error) {
	t.Helper()

	status, body, err := postJSON(baseURL+"/api/auth/login", "", map[string]string{
		"loginType": "email",
		"email":     email,
		"password":  password,
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("login status %d: %s", status, body)
	}

	var parsed authResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("missing token in login response")
	}
	return parsed.Token, nil
}

func linkWallet(t *testing.T, baseURL, token, wallet string) error {
	t.Helper()

	status, body, err := postJSON(baseURL+"/api/update-wallet", token, map[string]string{
		"walletAddress": wallet,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("update-wallet status %d: %s", status, body)
	}
	return nil
}

func fetchChallenge(t *testing.T, baseURL string) (string, error) {
	t.Helper()

	resp, err := http.Get(baseURL + "/api/auth/challenge")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("challenge status %d", resp.StatusCode)
	}
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.Message, nil
}

func loginWallet(t *testing.T, baseURL, message, signature, wallet string) (string, error) {
	t.Helper()

	status, body, err := postJSON(baseURL+"/api/auth/login", "", map[string]string{
		"loginType":     "wallet",
		"message":       message,
		"signature":     signature,
		"walletAddress": wallet,
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("wallet login status %d: %s", status, body)
	}

	var parsed authResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	return parsed.Token, nil
}

func postJSON(url, token string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func buildPostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}
	host := fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		host,
		cfg.Database.DBName,
		sslmode,
	)
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "registry")
	_ = os.Setenv("DB_PASSWORD", "registry")
	_ = os.Setenv("DB_NAME", "registry")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("CHAIN_RPC_URL", "http://localhost:8545")
	_ = os.Setenv("CHAIN_ID", "31337")
	_ = os.Setenv("ROLES_CONTROLLER_ADDRESS", "0x0000000000000000000000000000000000000001")
	_ = os.Setenv("MINIO_ENDPOINT", "localhost:9000")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "evidence")

	cfg := config.LoadConfig()
	log, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}

	srv, err := server.New(context.Background(), cfg, log.Sugar())
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
