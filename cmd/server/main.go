package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/mstoica/storefront/internal/cart"
	"github.com/mstoica/storefront/internal/checkout"
	"github.com/mstoica/storefront/internal/config"
	"github.com/mstoica/storefront/internal/db"
	"github.com/mstoica/storefront/internal/es"
	"github.com/mstoica/storefront/internal/httpserver"
	"github.com/mstoica/storefront/internal/inventory"
	"github.com/mstoica/storefront/internal/logging"
	"github.com/mstoica/storefront/internal/middleware/loggingmw"
	"github.com/mstoica/storefront/internal/mykafka"
	"github.com/mstoica/storefront/internal/notify"
	"github.com/mstoica/storefront/internal/order"
	"github.com/mstoica/storefront/internal/search"
)

func main() {
	cfg := config.Load()
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	var dispatcher notify.Dispatcher = notify.Nop{}
	var producer *mykafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = mykafka.NewProducer(cfg.KafkaBrokers)
		dispatcher = &notify.KafkaDispatcher{Producer: producer, Topic: cfg.NotificationTopic}
	} else {
		logger.Warn("KAFKA_BROKERS empty, notifications disabled")
	}

	var orderIndex *search.OrderIndex
	if cfg.ESURL != "" {
		esClient, err := es.NewClient(cfg)
		if err != nil {
			log.Fatalf("elasticsearch: %v", err)
		}
		orderIndex = &search.OrderIndex{ES: esClient, Index: cfg.OrderIndex}
	} else {
		logger.Warn("ES_URL empty, order search disabled")
	}

	store := inventory.NewStore(gdb)
	cartSvc := &cart.Service{Repo: &cart.GormRepo{DB: gdb}}
	orderRepo := &order.GormRepo{DB: gdb}

	coordinator := &checkout.Coordinator{DB: gdb, Inventory: store, Dispatch: dispatcher}
	lifecycle := &order.Lifecycle{DB: gdb, Inventory: store, Dispatch: dispatcher}
	if orderIndex != nil {
		coordinator.Index = orderIndex
		lifecycle.Index = orderIndex
	}

	e := echo.New()
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover(), echomw.RequestID())
	e.Use(loggingmw.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		CartHandler: &httpserver.CartHTTP{Svc: cartSvc},
		OrderHandler: &httpserver.OrderHTTP{
			Coordinator: coordinator,
			Lifecycle:   lifecycle,
			Repo:        orderRepo,
			CartSvc:     cartSvc,
			OrderIndex:  orderIndex,
		},
		JWTSecret: cfg.JWTSecret,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
