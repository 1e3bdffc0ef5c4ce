package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/checkout"
	"github.com/ariefcatur/go-storefront/internal/config"
	"github.com/ariefcatur/go-storefront/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/logging"
	"github.com/ariefcatur/go-storefront/internal/memstore"
	"github.com/ariefcatur/go-storefront/internal/metrics"
	"github.com/ariefcatur/go-storefront/internal/notify"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/payment"
	"github.com/ariefcatur/go-storefront/internal/postgres"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/ariefcatur/go-storefront/internal/review"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// store is everything the services need from the persistence backend.
type store interface {
	catalog.Store
	checkout.Ledger
	orders.Repository
	review.Repository
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Store
	var st store
	switch cfg.StoreBackend {
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
		}
		st = &postgres.Store{DB: db}
	default:
		log.Warn("using in-memory store; data is lost on restart")
		st = memstore.New()
	}

	// Cart, locks, idempotency keys and the status cache
	var (
		cartStore cart.Store       = cart.NewMemoryStore()
		locker    cart.Locker      = cart.NewLocalLocker()
		replays   checkout.Replays = memstore.NewReplays()
		status    httpx.StatusCache
	)
	if cfg.CartBackend == "redis" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			return err
		}
		cartStore = redisx.NewCartStore(rdb, cfg.CartTTL)
		locker = redisx.NewOwnerLocker(rdb, log)
		replays = redisx.NewReplays(rdb)
		status = redisx.NewStatusCache(rdb)
	}

	// Notifications
	var sink notify.Sink = notify.LogSink{Log: log}
	var prod *kafkax.Producer
	prodCtx, stopProd := context.WithCancel(context.Background())
	defer stopProd()
	if cfg.NotifyBackend == "kafka" {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		prod.Start(prodCtx)
		sink = notify.KafkaSink{Producer: prod, Service: cfg.ServiceName}
	}
	dispatcher := notify.NewDispatcher(sink, notify.Options{Log: log, Drops: m})

	// Payments
	var gateway payment.Gateway = payment.Manual{}
	if cfg.PaymentProvider == "stripe" {
		if cfg.StripeKey == "" {
			return errors.New("PAYMENT_PROVIDER=stripe needs STRIPE_KEY")
		}
		gateway = payment.NewStripe(cfg.StripeKey, cfg.Currency, log)
	}

	carts := cart.NewEngine(st, cartStore, locker, log)
	orderSvc := &orders.Service{Repo: st, Refunds: gateway, Notifier: dispatcher, Metrics: m, Log: log}
	api := &httpx.API{
		Catalog: st,
		Carts:   carts,
		Checkout: &checkout.Orchestrator{
			Carts:    carts,
			Ledger:   st,
			Payments: gateway,
			Notifier: dispatcher,
			Replays:  replays,
			Metrics:  m,
			Currency: cfg.Currency,
			Log:      log,
		},
		Orders:  orderSvc,
		Reviews: &review.Service{Repo: st, Orders: st, Log: log},
		Status:  status,
		Log:     log,
	}
	router := httpx.NewRouter(m, cfg.RequestTimeout)
	api.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend, "cart", cfg.CartBackend, "notify", cfg.NotifyBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	err := g.Wait()

	// Requests are done; flush what they queued.
	dispatcher.Close()
	if prod != nil {
		prod.Close()
		stopProd()
		prod.WaitClosed()
	}
	return err
}
