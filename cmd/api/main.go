package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go"
	"github.com/example/yoga-booking/internal/api"
	"github.com/example/yoga-booking/internal/config"
	"github.com/example/yoga-booking/internal/domain/booking"
	"github.com/example/yoga-booking/internal/domain/cart"
	"github.com/example/yoga-booking/internal/domain/catalog"
	"github.com/example/yoga-booking/internal/infrastructure/kafka"
	"github.com/example/yoga-booking/internal/infrastructure/store"
	"github.com/example/yoga-booking/internal/metrics"
	"github.com/example/yoga-booking/internal/redisx"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] Yoga Class Booking")
	log.Println("[API] ========================================")
	log.Printf("[API] Store: %s", cfg.StoreBackend)
	if cfg.EventsEnabled() {
		log.Printf("[API] Kafka: %v", cfg.KafkaBrokers)
		log.Printf("[API] Topic: %s", cfg.KafkaTopic)
	}

	metrics.Register()

	ds, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[API] Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer closeStore()
	log.Printf("[API] Connected to %s store", cfg.StoreBackend)

	// Booking events
	var publisher booking.Publisher
	if cfg.EventsEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
	}

	// Idempotency keys
	var idem api.IdempotencyStore
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("[API] Redis unavailable, idempotency keys disabled: %v", err)
		} else {
			idem = redisx.NewIdempotency(rdb, cfg.IdempotencyTTL)
			log.Printf("[API] Redis: %s", cfg.RedisAddr)
		}
	}

	// Initialize domain services
	catalogSvc := catalog.NewService(ds)
	bookingSvc := booking.NewService(ds, publisher)
	cartAgg := cart.NewAggregate(bookingSvc, catalogSvc)

	if cfg.CatalogSeedFile != "" {
		if err := seedCatalog(ctx, catalogSvc, cfg.CatalogSeedFile); err != nil {
			log.Fatalf("[API] Failed to seed catalog: %v", err)
		}
	}

	// Load the cart before serving; a failure leaves it empty
	if err := cartAgg.Load(ctx); err != nil {
		log.Printf("[API] Cart load failed, starting empty: %v", err)
	}

	handlers := api.NewHandlers(catalogSvc, cartAgg, idem)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(handlers),
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}

// openStore connects the configured backend, retrying while it comes up
func openStore(ctx context.Context, cfg config.Config) (store.DocumentStore, func(), error) {
	attempts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(cfg.ConnectAttempts),
		retry.Delay(cfg.ConnectDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[API] Store connection attempt %d failed: %v", n+1, err)
		}),
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		var ps *store.PostgresStore
		var closeDB func()
		err := retry.Do(func() error {
			db, err := store.ConnectPostgres(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			ps = store.NewPostgresStore(db, cfg.DatabaseURL)
			closeDB = func() { db.Close() }
			return nil
		}, attempts...)
		if err != nil {
			return nil, nil, err
		}
		if err := ps.Migrate(ctx); err != nil {
			closeDB()
			return nil, nil, err
		}
		return ps, closeDB, nil

	case config.BackendDynamo:
		client, streams, err := store.LoadDynamoClients(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, nil, err
		}
		ds := store.NewDynamoStore(client, streams, cfg.DynamoTable)
		if err := retry.Do(func() error { return ds.EnsureTable(ctx) }, attempts...); err != nil {
			return nil, nil, err
		}
		return ds, func() {}, nil

	case config.BackendMemory:
		return store.NewMemoryStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.StoreBackend)
}

func seedCatalog(ctx context.Context, svc *catalog.Service, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	courses, instances, err := svc.Seed(ctx, f)
	if err != nil {
		return err
	}
	log.Printf("[API] Seeded %d courses and %d instances from %s", courses, instances, path)
	return nil
}
