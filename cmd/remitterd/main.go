package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/remitter/internal/api"
	"github.com/terminal-bench/remitter/internal/auth"
	"github.com/terminal-bench/remitter/internal/remitter"
	"github.com/terminal-bench/remitter/internal/telemetry"
	"github.com/terminal-bench/remitter/internal/token"
	"github.com/terminal-bench/remitter/internal/treasury"
	"github.com/terminal-bench/remitter/pkg/circuit"
	"github.com/terminal-bench/remitter/pkg/messaging"
)

func main() {
	port := envOr("PORT", "8080")
	custody := envOr("CUSTODY_ADDRESS", "remitter")
	superAdmin := envOr("SUPER_ADMIN", "")
	if superAdmin == "" {
		log.Fatal("SUPER_ADMIN must be set")
	}

	jwtSecret := envOr("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	ctx := context.Background()

	// Currency backend: Postgres treasury in production, in-memory bank
	// for local development.
	var currency token.Currency
	var db *sql.DB
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		var err error
		db, err = sql.Open("postgres", dbURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}

		t := treasury.New(db)
		if err := t.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate treasury: %v", err)
		}
		if fund := envDecimal("CUSTODY_FUND", decimal.Zero); fund.IsPositive() {
			if err := t.Deposit(ctx, custody, fund, "boot funding"); err != nil {
				log.Fatalf("Failed to fund custody account: %v", err)
			}
		}
		currency = t
	} else {
		log.Println("DATABASE_URL not set, using in-memory bank")
		bank := token.NewBank()
		bank.Mint(custody, envDecimal("CUSTODY_FUND", decimal.NewFromInt(1_000_000)))
		currency = bank
	}

	breaker := circuit.NewBreaker(circuit.Config{
		Name:        "currency",
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		HalfOpenMax: 3,
	})
	currency = token.NewGuarded(currency, breaker)

	// Event sinks: WebSocket hub always, NATS and InfluxDB when configured
	hub := api.NewHub()
	sinks := []remitter.EventSink{hub}

	var natsClient *messaging.Client
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		var err error
		natsClient, err = messaging.NewClient(messaging.Config{
			URL:           natsURL,
			Name:          "remitterd",
			ReconnectWait: time.Second,
			MaxReconnects: 5,
		})
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		sinks = append(sinks, natsClient)
	}

	var recorder *telemetry.Recorder
	if influxURL := os.Getenv("INFLUX_URL"); influxURL != "" {
		recorder = telemetry.NewRecorder(telemetry.Config{
			URL:    influxURL,
			Token:  os.Getenv("INFLUX_TOKEN"),
			Org:    envOr("INFLUX_ORG", "remitter"),
			Bucket: envOr("INFLUX_BUCKET", "remitter"),
		})
		sinks = append(sinks, recorder)
	}

	ledger := remitter.New(remitter.Config{
		Currency:    currency,
		Custody:     custody,
		Events:      remitter.MultiSink(sinks...),
		SuperAdmin:  superAdmin,
		DefaultAuth: envDecimal("DEFAULT_AUTH", decimal.NewFromInt(5000)),
		MaxSalary:   envDecimal("MAX_SALARY", decimal.Zero),
	})

	var rdb *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Failed to parse REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("Redis unreachable, caching disabled: %v", err)
			rdb = nil
		}
	}

	authSvc := auth.NewService(jwtSecret, 24*time.Hour)
	server := api.NewServer(api.Config{
		RateLimitWindow: time.Minute,
		RateLimitMax:    envInt("RATE_LIMIT_MAX", 600),
	}, ledger, authSvc, rdb, hub)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: server.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("remitterd listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-quit:
		case <-gctx.Done():
			return gctx.Err()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	hub.Close()
	if natsClient != nil {
		natsClient.Close()
	}
	if recorder != nil {
		recorder.Close()
	}
	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}

	if err != nil && err != context.Canceled {
		log.Fatalf("remitterd exited: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		log.Fatalf("Invalid %s: %v", key, err)
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("Invalid %s: %v", key, err)
	}
	return n
}
