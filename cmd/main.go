package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	httpctx "github.com/dtroode/wingcoach-server/internal/api/http/context"
	"github.com/dtroode/wingcoach-server/internal/api/http/middleware"
	"github.com/dtroode/wingcoach-server/internal/api/http/router"
	httpServer "github.com/dtroode/wingcoach-server/internal/api/http/server"
	"github.com/dtroode/wingcoach-server/internal/config"
	"github.com/dtroode/wingcoach-server/internal/logger"
	"github.com/dtroode/wingcoach-server/internal/metrics"
	"github.com/dtroode/wingcoach-server/internal/model"
	"github.com/dtroode/wingcoach-server/internal/password"
	"github.com/dtroode/wingcoach-server/internal/provider"
	"github.com/dtroode/wingcoach-server/internal/repository/memory"
	"github.com/dtroode/wingcoach-server/internal/repository/postgres"
	"github.com/dtroode/wingcoach-server/internal/server"
	"github.com/dtroode/wingcoach-server/internal/service"
	"github.com/dtroode/wingcoach-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	tokenManager, err := token.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL, token.WithIssuer(cfg.JWT.Issuer))
	if err != nil {
		logger.Fatal("refusing to start without a safe JWT_SECRET", "error", err)
	}

	userStore, closeStore := newUserStore(ctx, cfg.Database, logger)
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	providerClient := &http.Client{Timeout: cfg.Provider.HTTPTimeout}

	googleVerifier, err := newGoogleVerifier(cfg, providerClient, collector, logger)
	if err != nil {
		logger.Fatal("failed to create google verifier", "error", err)
	}

	appleKeys := provider.NewJWKSCache(provider.JWKSCacheConfig{
		URL:        cfg.Apple.KeysURL,
		TTL:        cfg.Apple.KeysTTL,
		HTTPClient: providerClient,
	}, collector, logger.With("provider", model.AuthProviderApple))
	appleVerifier, err := provider.NewAppleVerifier(cfg.Apple.BundleID, appleKeys, collector, logger)
	if err != nil {
		logger.Fatal("failed to create apple verifier", "error", err)
	}

	tokenService := service.NewTokenService(tokenManager, collector, logger)
	authService := service.NewAuth(userStore, password.NewBcrypt(cfg.Bcrypt.Cost), googleVerifier, appleVerifier, tokenService, logger)

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  rate.Limit(cfg.RateLimit.RPS),
		Burst: cfg.RateLimit.Burst,
	}, logger)
	defer limiter.Stop()

	handler := router.New(router.Deps{
		AuthService:    authService,
		TokenService:   tokenService,
		ContextManager: httpctx.NewManager(),
		RateLimiter:    limiter,
		Metrics:        collector,
		Gatherer:       registry,
		Logger:         logger,
	}).Register()

	apiServer := httpServer.NewHTTPServer(handler, cfg.HTTP.Address, httpServer.Timeouts{
		Read:  cfg.HTTP.ReadTimeout,
		Write: cfg.HTTP.WriteTimeout,
		Idle:  2 * cfg.HTTP.WriteTimeout,
	})

	var sl model.SecurityLayer

	if cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address(), "https", cfg.HTTP.EnableHTTPS)
		if err := s.Start(sl); err != nil {
			logger.Error("failed to start server", "error", err)
			stop()
		}
	}(apiServer)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", apiServer.Address())
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func newUserStore(ctx context.Context, cfg config.Database, logger *logger.Logger) (model.UserStore, func()) {
	if cfg.InMemory {
		logger.Warn("using in-memory user store, accounts are lost on restart")
		return memory.NewUserRepository(), func() {}
	}

	db, err := postgres.NewConection(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	return postgres.NewUserRepository(db), func() { _ = db.Close() }
}

func newGoogleVerifier(cfg *config.Config, client *http.Client, recorder metrics.Recorder, logger *logger.Logger) (service.GoogleVerifier, error) {
	googleCfg := provider.GoogleConfig{
		ClientIDs:    cfg.Google.ClientIDs,
		TokenInfoURL: cfg.Google.TokenInfoURL,
		CertsURL:     cfg.Google.CertsURL,
		HTTPClient:   client,
	}
	if cfg.Google.VerifyMode == config.GoogleVerifyOffline {
		logger.Info("verifying google tokens offline", "certs_url", cfg.Google.CertsURL)
		return provider.NewGoogleOfflineVerifier(googleCfg, recorder, logger)
	}
	return provider.NewGoogleVerifier(googleCfg, recorder, logger)
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
