package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"memories-backend/internal/config"
	"memories-backend/internal/handlers"
	"memories-backend/internal/identity"
	"memories-backend/internal/metrics"
	"memories-backend/internal/middleware"
	"memories-backend/internal/repository"
	"memories-backend/internal/repository/memstore"
	"memories-backend/internal/services"
	"memories-backend/internal/workers"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// stores is the persistence layer selected by database.driver
type stores struct {
	users       services.UserStore
	friendships services.FriendshipStore
	media       services.MediaStore
	statuses    services.StatusStore
	blobs       services.BlobStore

	pinger     handlers.Pinger
	blobServer http.Handler
	close      func()
}

func Run() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to open storage")
	}
	defer st.close()

	verifier, err := newVerifier(ctx, cfg.Identity)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create identity verifier")
	}

	var push services.PushSender
	if cfg.APNs.Enabled {
		sender, err := services.NewAPNsSender(cfg.APNs)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs client")
		}
		push = sender
		log.Info().Bool("production", cfg.APNs.Production).Msg("APNs delivery enabled")
	}

	// Initialize services
	wsHub := services.NewWSHub()
	notifier := services.NewDeliveryNotifier(wsHub, st.users, push)
	userService := services.NewUserService(st.users, cfg.JWT.Secret, cfg.JWT.TTL)
	friendshipService := services.NewFriendshipService(st.friendships)
	mediaService := services.NewMediaService(st.media, st.blobs, cfg.Media.HistoryLimit)
	statusService := services.NewStatusService(st.statuses, st.media)
	syncService := services.NewSyncService(
		userService,
		friendshipService,
		mediaService,
		statusService,
		notifier,
		cfg.Friends.SortMode,
	)

	metrics.Register(prometheus.DefaultRegisterer)

	// rps 0 disables rate limiting
	var rateLimit func(http.Handler) http.Handler
	if cfg.RateLimit.RPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		go limiter.Cleanup(ctx)
		rateLimit = limiter.Middleware
	}

	refresher := workers.NewRefresher(syncService, wsHub, cfg.Refresh.Interval, cfg.Refresh.Budget)
	go refresher.Run(ctx)

	router := handlers.NewRouter(handlers.Routes{
		Users:     handlers.NewUserHandler(userService, verifier),
		Friends:   handlers.NewFriendshipHandler(syncService),
		Media:     handlers.NewMediaHandler(syncService, cfg.Media.MaxUploadBytes),
		History:   handlers.NewHistoryHandler(syncService),
		WebSocket: handlers.NewWebSocketHandler(wsHub, userService, syncService),
		Health:    handlers.NewHealthHandler(st.pinger),
		Auth:      middleware.AuthMiddleware(userService),
		RateLimit: rateLimit,
		Metrics:   promhttp.Handler(),
		Blobs:     st.blobServer,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("driver", cfg.Database.Driver).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	stop()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// hijacked WebSocket connections are not tracked by Shutdown
	wsHub.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		users := memstore.NewUsers()
		media := memstore.NewMedia()
		blobs := memstore.NewBlobs("http://" + cfg.Server.Addr() + "/blobs")
		return &stores{
			users:       users,
			friendships: memstore.NewFriendships(users),
			media:       media,
			statuses:    memstore.NewStatuses(),
			blobs:       blobs,
			blobServer:  blobs,
			close:       func() {},
		}, nil
	}

	db, err := repository.Connect(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Database connection established")

	if cfg.Database.Migrate {
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		log.Info().Msg("Database schema applied")
	}

	blobs, err := services.NewS3BlobStore(ctx, cfg.AWS)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &stores{
		users:       repository.NewUserRepository(db),
		friendships: repository.NewFriendshipRepository(db),
		media:       repository.NewMediaRepository(db),
		statuses:    repository.NewMediaStatusRepository(db),
		blobs:       blobs,
		pinger:      db,
		close:       db.Close,
	}, nil
}

func newVerifier(ctx context.Context, cfg config.IdentityConfig) (identity.Verifier, error) {
	if cfg.Mode == "firebase" {
		return identity.NewFirebaseVerifier(ctx, cfg.CredentialsFile)
	}
	return identity.DeviceVerifier{}, nil
}

// setupLogger configures zerolog logger
func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	switch cfg.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
