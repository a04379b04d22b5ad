package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rajbirverr/centurionintimates-sub000/internal/checkout"
	"github.com/rajbirverr/centurionintimates-sub000/internal/events"
	h "github.com/rajbirverr/centurionintimates-sub000/internal/http"
	"github.com/rajbirverr/centurionintimates-sub000/internal/localstore"
	"github.com/rajbirverr/centurionintimates-sub000/internal/order"
	"github.com/rajbirverr/centurionintimates-sub000/internal/reconcile"
	"github.com/rajbirverr/centurionintimates-sub000/internal/remote"
	"github.com/rajbirverr/centurionintimates-sub000/internal/session"
	"github.com/rajbirverr/centurionintimates-sub000/internal/shipping"
)

type Config struct {
	HTTPPort        string
	RedisAddr       string
	MongoURI        string
	MongoDB         string
	PGHost          string
	PGPort          int
	PGUser          string
	PGPassword      string
	PGDBName        string
	MigrationsPath  string
	KafkaBrokers    []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         getEnv("MONGO_DB", "storefront"),
		PGHost:          getEnv("POSTGRES_HOST", "localhost"),
		PGPort:          getEnvInt("POSTGRES_PORT", 5432),
		PGUser:          getEnv("POSTGRES_USER", "postgres"),
		PGPassword:      getEnv("POSTGRES_PASSWORD", "postgres"),
		PGDBName:        getEnv("POSTGRES_DB", "storefront"),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "migrations"),
		KafkaBrokers:    strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis backs the per-device snapshot store and the session oracle.
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	var local localstore.SnapshotStore
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable, falling back to in-memory snapshot store")
		local = localstore.NewMemoryStore()
	} else {
		local = localstore.NewRedisStore(redisClient, log)
	}

	// Mongo holds the per-user carts and wishlists.
	mongoCtx, mongoCancel := context.WithTimeout(ctx, 10*time.Second)
	defer mongoCancel()
	mongoClient, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.WithError(err).Fatal("failed to connect to mongodb")
	}
	defer mongoClient.Disconnect(context.Background())

	mongoStore := remote.NewMongoStore(mongoClient.Database(cfg.MongoDB))
	if err := mongoStore.CreateIndexes(mongoCtx); err != nil {
		log.WithError(err).Fatal("failed to create mongodb indexes")
	}
	gateway := remote.NewBreakerGateway(mongoStore, mongoStore)

	reconciler := reconcile.New(local, gateway, gateway, log)
	defer reconciler.Close()

	// Session oracle plus its event relay.
	oracle := session.NewRedisOracle(redisClient, log)
	go oracle.Run(ctx)
	unsubscribe := oracle.Subscribe(func(ev session.Event) {
		if ev.DeviceID == "" {
			return
		}
		reconciler.OnAuthChange(ctx, ev.DeviceID, ev)
	})
	defer unsubscribe()

	discovery := session.NewDiscovery(oracle, log)
	go discovery.Run(ctx, func(sess *session.Session) {
		log.WithField("user_id", sess.UserID).Info("session discovered")
	})

	// Orders on Postgres with an outbox publisher.
	pgCred := &order.Credentials{
		Host:              cfg.PGHost,
		Port:              cfg.PGPort,
		User:              cfg.PGUser,
		Password:          cfg.PGPassword,
		DBName:            cfg.PGDBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := order.NewRepository(pgCred)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer repo.Close()
	if err := repo.RunMigrations(pgCred); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	orders := order.NewService(repo, reconciler, log)

	outboxPoller := events.NewOutboxPoller(repo, log, cfg.KafkaBrokers...)
	go outboxPoller.Run(ctx)
	defer outboxPoller.Close()

	cartClearPoller := events.NewCartClearPoller(reconciler, log, cfg.KafkaBrokers...)
	go cartClearPoller.Run(ctx)
	defer cartClearPoller.Close()

	checkouts := checkout.NewService(reconciler, shipping.StaticResolver{}, orders, log)

	cartHandler := h.NewCartHandler(reconciler, cfg.RequestTimeout)
	checkoutHandler := h.NewCheckoutHandler(checkouts, cfg.RequestTimeout)
	ordersHandler := h.NewOrdersHandler(orders, cfg.RequestTimeout)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(h.RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(h.DeviceIDMiddleware)
	r.Use(h.SessionMiddleware(oracle))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
		})
		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", cartHandler.GetWishlist)
			r.Post("/items", cartHandler.AddToWishlist)
			r.Delete("/items/{product_id}", cartHandler.RemoveFromWishlist)
		})
		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkoutHandler.GetState)
			r.Get("/prefill", checkoutHandler.Prefill)
			r.Post("/postal-code", checkoutHandler.SetPostalCode)
			r.Post("/shipping-method", checkoutHandler.SelectMethod)
			r.Post("/shipping", checkoutHandler.SubmitShipping)
			r.Post("/back", checkoutHandler.Back)
			r.Post("/payment", checkoutHandler.SubmitPayment)
			r.Post("/reset", checkoutHandler.Reset)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordersHandler.ListOrders)
			r.Get("/{order_number}", ordersHandler.GetOrder)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("storefront starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server exited")
}
