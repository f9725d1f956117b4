package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/trovehq/trove/internal/config"
	"github.com/trovehq/trove/internal/infra/database"
	"github.com/trovehq/trove/internal/infra/gateway"
	"github.com/trovehq/trove/internal/infra/repository"
	"github.com/trovehq/trove/internal/present/rest"
	"github.com/trovehq/trove/internal/present/rest/middleware"
	"github.com/trovehq/trove/internal/service"
	"github.com/trovehq/trove/internal/telemetry"
	"github.com/trovehq/trove/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	if conf.Server.EnableTrace {
		shutdown, err := telemetry.Setup(ctx, "trove", conf.Server.TraceEndpoint)
		if err != nil {
			slog.Error("failed to setup tracing", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				slog.Error("failed to flush spans", slog.String("error", err.Error()))
			}
		}()
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		slog.Error("failed to connect database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := database.MigratePostgres(db); err != nil {
		slog.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb := database.NewRedis(conf.Server.RedisAddr, conf.Server.RedisPassword, conf.Server.RedisDB)
	mc := database.NewMemcached(conf.Server.MemcachedAddr)

	claimRepo := repository.NewClaimRepository(db)
	trustRepo := repository.NewTrustRepository(db, mc)
	chatRepo := repository.NewChatRepository(db)

	storage := gateway.NewStorageGateway(conf.Storage.PublicBaseURL)
	signal := service.NewSignalService(rdb)
	auth := service.NewAuthService(conf.Auth)

	claimUC := usecase.NewClaimUsecase(claimRepo, signal, storage)
	trustUC := usecase.NewTrustUsecase(trustRepo, signal)
	chatUC := usecase.NewChatUsecase(chatRepo, claimRepo, signal)

	// Repair chats an older deployment failed to provision.
	if created, err := chatUC.Reconcile(ctx, 100); err != nil {
		slog.Error("chat reconciliation failed", slog.String("error", err.Error()))
	} else if created > 0 {
		slog.Info("provisioned missing chats", slog.Int("count", created))
	}

	e := echo.New()
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(otelecho.Middleware("trove"))

	authMiddleware := middleware.NewAuthMiddleware(auth)
	e.Use(authMiddleware.IdentifyIdentity)

	handler := rest.NewHandler(claimUC, trustUC, chatUC, signal)
	handler.RegisterRoutes(e)

	e.Logger.Fatal(e.Start(conf.Server.ListenAddr))
}
