package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blue-carbon-registry/apiserver/config"
	"github.com/blue-carbon-registry/apiserver/internal/auth"
	"github.com/blue-carbon-registry/apiserver/internal/chain"
	"github.com/blue-carbon-registry/apiserver/internal/db"
	"github.com/blue-carbon-registry/apiserver/internal/handlers"
	"github.com/blue-carbon-registry/apiserver/internal/mq"
	"github.com/blue-carbon-registry/apiserver/internal/services"
	"github.com/blue-carbon-registry/apiserver/internal/storage"
	"github.com/blue-carbon-registry/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	nonces     *auth.NonceStore
	chain      *chain.Client
	bus        *mq.EventBus
	log        *zap.SugaredLogger
}

// New constructs a Server with all dependencies wired.
func New(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*Server, error) {
	jwtSecret := strings.TrimSpace(cfg.JWT.Secret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	chainClient, err := chain.Dial(ctx, cfg.Chain, log)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	rolesController, err := chain.NewRolesController(chainClient, cfg.Chain.RolesController)
	if err != nil {
		_ = dbConn.Close()
		chainClient.Close()
		return nil, fmt.Errorf("roles controller: %w", err)
	}

	evidence, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		chainClient.Close()
		return nil, err
	}
	if err := evidence.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		chainClient.Close()
		return nil, fmt.Errorf("ensure evidence bucket: %w", err)
	}

	var carbonRegistry *chain.CarbonRegistry
	var retirement *chain.Retirement
	if cfg.Chain.CarbonRegistry != "" && cfg.Chain.Retirement != "" {
		carbonRegistry, err = chain.NewCarbonRegistry(chainClient, cfg.Chain.CarbonRegistry)
		if err != nil {
			_ = dbConn.Close()
			chainClient.Close()
			return nil, fmt.Errorf("carbon registry: %w", err)
		}
		retirement, err = chain.NewRetirement(chainClient, cfg.Chain.Retirement)
		if err != nil {
			_ = dbConn.Close()
			chainClient.Close()
			return nil, fmt.Errorf("retirement: %w", err)
		}
	}

	bus, err := newEventBus(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		chainClient.Close()
		return nil, err
	}
	var events services.EventPublisher
	if bus != nil {
		events = bus
	}

	nonces := auth.NewNonceStore()

	userRepo := store.NewUserRepository(dbConn)
	userService := services.NewUserService(userRepo)
	authService := services.NewAuthService(userRepo, nonces, log)
	adminService := services.NewAdminService(userRepo, rolesController, events, log)

	authHandler := handlers.NewAuthHandler(authService, userService, nonces, jwtSecret, cfg.JWT.TokenTTL, log)
	userHandler := handlers.NewUserHandler(userService, log)
	adminHandler := handlers.NewAdminHandler(userService, adminService, rolesController, log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler)
		})
		r.Post("/signup", authHandler.Signup)

		r.Group(func(r chi.Router) {
			r.Use(authHandler.RequireAuth)
			r.Get("/user/profile", userHandler.Profile)
			r.Post("/update-wallet", userHandler.UpdateWallet)
		})

		r.Route("/admin", func(r chi.Router) {
			handlers.AdminRouter(r, adminHandler)
		})

		if carbonRegistry != nil {
			proofService := services.NewProofService(carbonRegistry, retirement, evidence, events, log)
			registryHandler := handlers.NewRegistryHandler(proofService, userService, log)
			r.Group(func(r chi.Router) {
				r.Use(authHandler.RequireAuth)
				handlers.RegistryRouter(r, registryHandler)
			})
		} else {
			log.Infow("registry routes disabled: contract addresses not configured")
		}
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		nonces:     nonces,
		chain:      chainClient,
		bus:        bus,
		log:        log,
	}, nil
}

func newStorage(ctx context.Context, cfg config.StorageConfig) (*storage.Storage, error) {
	switch cfg.Backend {
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		return storage.NewStorage(client), nil
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		return storage.NewStorage(client), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newEventBus(ctx context.Context, cfg config.MQConfig) (*mq.EventBus, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		return mq.NewEventBus(client, cfg.Channel), nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		return mq.NewEventBus(client, cfg.Channel), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	s.nonces.Stop()
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.chain != nil {
		s.chain.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
