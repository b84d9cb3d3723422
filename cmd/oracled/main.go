package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aegis-relief/aegis/internal/activity"
	"github.com/aegis-relief/aegis/internal/attest"
	"github.com/aegis-relief/aegis/internal/chain"
	"github.com/aegis-relief/aegis/internal/mission"
	"github.com/aegis-relief/aegis/internal/oracle/handler"
	"github.com/aegis-relief/aegis/internal/relief"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("oracled exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("oracled")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("chain.rpc_url", "https://coston2-api.flare.network/ext/C/rpc")
	viper.SetDefault("chain.id", 114)
	viper.SetDefault("chain.gas_limit", 500_000)
	viper.SetDefault("chain.tx_attempts", 3)
	viper.SetDefault("chain.retry_base_delay", "2s")
	viper.SetDefault("chain.receipt_timeout", "60s")
	viper.SetDefault("oracle.private_key", "")
	viper.SetDefault("mission.control.address", "")
	viper.SetDefault("aid.treasury.address", "")
	viper.SetDefault("provider.address", "")
	viper.SetDefault("delivery.transit_delay", "50s")
	viper.SetDefault("database.url", "")
	viper.SetDefault("feed.url", "")
	viper.SetDefault("feed.interval", "5m")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Chain client ─────────────────────────────────────────────────────────
	chainCfg := chain.Config{
		RPCURL:         viper.GetString("chain.rpc_url"),
		ChainID:        viper.GetInt64("chain.id"),
		PrivateKey:     viper.GetString("oracle.private_key"),
		MissionControl: viper.GetString("mission.control.address"),
		Treasury:       viper.GetString("aid.treasury.address"),
		GasLimit:       viper.GetUint64("chain.gas_limit"),
		TxAttempts:     uint(viper.GetInt("chain.tx_attempts")),
		RetryBaseDelay: viper.GetDuration("chain.retry_base_delay"),
		ReceiptTimeout: viper.GetDuration("chain.receipt_timeout"),
	}

	client := chain.NewClient(chainCfg, logger)
	if client.Configured() {
		if err := client.Dial(context.Background()); err != nil {
			return fmt.Errorf("chain dial: %w", err)
		}
		client.Submitter().SetMetricsRecorder(handler.RecordTransaction)
	} else {
		logger.Warn("chain not configured — mutating operations will be no-ops",
			zap.String("hint", "set ORACLE_PRIVATE_KEY and MISSION_CONTROL_ADDRESS"))
	}

	// ── Activity log (+ optional durable archive) ────────────────────────────
	feed := activity.NewLog(logger)
	feed.SetAppendRecorder(handler.RecordActivityEvent)

	var db *pgxpool.Pool
	if dbURL := viper.GetString("database.url"); dbURL != "" {
		var err error
		db, err = pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()
		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		feed.SetSink(activity.NewArchive(db, logger))
		logger.Info("activity archive enabled")
	}

	// ── Orchestrator ─────────────────────────────────────────────────────────
	missions := mission.NewService(client, attest.NewMockGenerator(), feed, logger)
	missions.SetTransitDelay(viper.GetDuration("delivery.transit_delay"))
	missions.SetDeliveryRecorder(handler.RecordDelivery)

	// ── Relief domain ────────────────────────────────────────────────────────
	zones := relief.NewService(relief.DefaultZones(), nil, logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if feedURL := viper.GetString("feed.url"); feedURL != "" {
		poller := relief.NewFeedPoller(zones, feedURL, viper.GetDuration("feed.interval"), logger)
		go poller.Run(rootCtx)
		logger.Info("disaster feed poller started", zap.String("url", feedURL))
	}

	// ── HTTP surface ─────────────────────────────────────────────────────────
	var defaultProvider common.Address
	if p := viper.GetString("provider.address"); p != "" && common.IsHexAddress(p) {
		defaultProvider = common.HexToAddress(p)
	} else if client.Configured() {
		// Demo fallback: pay out to the oracle itself when no provider is set.
		defaultProvider = client.OracleAddress()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: viper.GetStringSlice("server.cors_origins"),
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	router.Use(handler.PrometheusMiddleware())
	router.Use(handler.RateLimiter(viper.GetInt("server.rate_limit_rps"), viper.GetInt("server.rate_limit_rps")*2))

	oracleH := handler.NewOracleHandler(missions, defaultProvider, logger)
	reliefH := handler.NewReliefHandler(zones, logger)

	api := router.Group("/api")
	oracleH.Register(api)
	reliefH.Register(api)
	router.GET("/healthz", oracleH.Health)
	router.GET("/metrics", handler.MetricsHandler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", viper.GetInt("server.port")),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("oracled listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-rootCtx.Done():
	}

	// ── Graceful shutdown: drain HTTP, then join in-flight deliveries ────────
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := missions.Shutdown(shutdownCtx); err != nil {
		logger.Warn("deliveries still in flight at shutdown", zap.Error(err))
	}
	return nil
}
