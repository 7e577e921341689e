package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"torchmarket/internal/config"
	cronrunner "torchmarket/internal/cron"
	"torchmarket/internal/db"
	"torchmarket/internal/handler"
	"torchmarket/internal/logger"
	"torchmarket/internal/market"
	"torchmarket/internal/projection"
	gormrepository "torchmarket/internal/repository/gorm"
	"torchmarket/internal/service"
	"torchmarket/internal/stream"
)

func main() {
	cfgPath := os.Getenv("TM_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TM_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	engine := &market.Engine{
		Repo:   store,
		Logger: logger,
		Config: cfg.Market,
	}

	var hub *stream.Hub
	if cfg.Stream.Enabled {
		hub = stream.NewHub(logger, cfg.Stream.SendBuffer)
	}

	projector := &projection.Projector{
		Repo:   store,
		Logger: logger,
		Config: cfg.Projection,
	}
	if hub != nil {
		projector.Publisher = hub
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(router)
	marketHandler := &handler.MarketHandler{
		Engine:     engine,
		AdminToken: cfg.Market.AdminToken,
	}
	marketHandler.Register(router)
	queryHandler := &handler.QueryHandler{Repo: store}
	queryHandler.Register(router)
	if hub != nil {
		streamHandler := &handler.StreamHandler{Hub: hub, Logger: logger}
		streamHandler.Register(router)
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Settlement.SweepEnabled {
		sweep := &service.SettleSweepService{
			Repo:   store,
			Engine: engine,
			Logger: logger,
			Config: cfg.Settlement,
		}
		if _, err := cronRunner.Add(cfg.Settlement.SweepSpec, sweep.SweepOnce); err != nil {
			logger.Warn("cron register settle sweep failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if cfg.Projection.Enabled {
		go projector.Run(ctx)
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
