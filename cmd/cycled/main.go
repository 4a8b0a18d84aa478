package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// cycled advances the payroll cycle on a fixed schedule. When several
// replicas run, etcd leader election ensures exactly one of them ticks.
func main() {
	remitterURL := envOr("REMITTER_URL", "http://localhost:8080")
	interval, err := time.ParseDuration(envOr("CYCLE_INTERVAL", "24h"))
	if err != nil {
		log.Fatalf("Invalid CYCLE_INTERVAL: %v", err)
	}

	etcdEndpoints := envOr("ETCD_ENDPOINTS", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	if etcdEndpoints == "" {
		log.Println("ETCD_ENDPOINTS not set, running without leader election")
		runTicker(ctx, remitterURL, interval)
		return
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   strings.Split(etcdEndpoints, ","),
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect to etcd: %v", err)
	}
	defer cli.Close()

	for ctx.Err() == nil {
		if err := campaign(ctx, cli, remitterURL, interval); err != nil && ctx.Err() == nil {
			log.Printf("Leadership lost: %v", err)
			time.Sleep(time.Second)
		}
	}
}

// campaign blocks until this replica wins the election, then ticks until
// the session dies or the context is cancelled
func campaign(ctx context.Context, cli *clientv3.Client, remitterURL string, interval time.Duration) error {
	session, err := concurrency.NewSession(cli, concurrency.WithTTL(10))
	if err != nil {
		return err
	}
	defer session.Close()

	election := concurrency.NewElection(session, "/remitter/cycled/leader")
	if err := election.Campaign(ctx, envOr("HOSTNAME", "cycled")); err != nil {
		return err
	}
	log.Println("Elected leader, starting cycle schedule")

	leaderCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-session.Done()
		cancel()
	}()

	runTicker(leaderCtx, remitterURL, interval)
	return leaderCtx.Err()
}

func runTicker(ctx context.Context, remitterURL string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: 30 * time.Second}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := advanceCycle(ctx, client, remitterURL); err != nil {
				log.Printf("Failed to advance cycle: %v", err)
			}
		}
	}
}

func advanceCycle(ctx context.Context, client *http.Client, remitterURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, remitterURL+"/api/v1/cycle/advance", nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Cycle advance returned status %d", resp.StatusCode)
		return nil
	}

	log.Println("Cycle advanced")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
