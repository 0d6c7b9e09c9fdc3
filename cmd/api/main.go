package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-inventory-orders/internal/config"
	"github.com/ariefcatur/go-inventory-orders/internal/httpx"
	"github.com/ariefcatur/go-inventory-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-inventory-orders/internal/kafka"
	"github.com/ariefcatur/go-inventory-orders/internal/logging"
	"github.com/ariefcatur/go-inventory-orders/internal/memstore"
	"github.com/ariefcatur/go-inventory-orders/internal/observability"
	"github.com/ariefcatur/go-inventory-orders/internal/orders"
	"github.com/ariefcatur/go-inventory-orders/internal/postgres"
	"github.com/ariefcatur/go-inventory-orders/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type store interface {
	orders.Store
	inventory.Catalog
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing")
	}

	// Store
	var st store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		st = memstore.New(cfg.LockTimeout)
		log.Warn().Msg("using in-memory store, data is lost on exit")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
		if err != nil {
			log.Fatal().Err(err).Msg("db connect")
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				log.Fatal().Err(err).Msg("migrate")
			}
		}
		st = postgres.NewStore(db, cfg.LockTimeout)
	}

	mgr := &orders.Manager{Store: st, Service: cfg.ServiceName}

	// Kafka producers
	var producers []*kafkax.Producer
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		created := kafkax.NewProducer(brokers, orders.TopicOrderCreated, 1024)
		changed := kafkax.NewProducer(brokers, orders.TopicOrderStatusChanged, 1024)
		created.Start(ctx)
		changed.Start(ctx)
		mgr.CreatedEvents, mgr.StatusEvents = created, changed
		producers = append(producers, created, changed)
	} else {
		log.Info().Msg("KAFKA_BROKERS empty, events disabled")
	}

	// Redis idempotency
	oh := &httpx.OrdersHandler{Orders: mgr}
	if cfg.RedisAddr != "" {
		rdb, err := redisx.New(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer rdb.Close()
		oh.Idem = redisx.NewIdempotency(rdb, "order:create")
	}

	router := httpx.NewRouter(log.Logger)
	(&httpx.ProductsHandler{Catalog: st}).Register(router)
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close()
	}
	for _, p := range producers {
		p.WaitClosed()
	}
	if err := shutdownTracing(ctx2); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
}
