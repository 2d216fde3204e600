package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcutil"

	"github.com/certen/anchorsvc/pkg/batch"
	"github.com/certen/anchorsvc/pkg/broadcast"
	"github.com/certen/anchorsvc/pkg/config"
	"github.com/certen/anchorsvc/pkg/database"
	"github.com/certen/anchorsvc/pkg/intent"
	"github.com/certen/anchorsvc/pkg/pipeline"
	"github.com/certen/anchorsvc/pkg/pool"
	"github.com/certen/anchorsvc/pkg/replenish"
	"github.com/certen/anchorsvc/pkg/server"
	"github.com/certen/anchorsvc/pkg/signingkey"
	"github.com/certen/anchorsvc/pkg/worker"
	"github.com/certen/anchorsvc/pkg/txbuilder"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("🚀 Starting Anchoring Service")

	var (
		validatorID = flag.String("validator-id", "", "Service instance ID (overrides VALIDATOR_ID env var)")
		policyPath  = flag.String("policy-config", "", "Optional YAML policy overlay (rate limit/pool/fee/batch knobs)")
		showHelp    = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}

	log.Println("🔄 Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	if *validatorID != "" {
		log.Printf("📋 CLI flag override: using service id from command line: %s", *validatorID)
		cfg.ValidatorID = *validatorID
	}

	if *policyPath != "" {
		policy, err := config.LoadPolicyConfig(*policyPath)
		if err != nil {
			log.Fatalf("❌ Failed to load policy config %s: %v", *policyPath, err)
		}
		if policy != nil {
			policy.ApplyTo(cfg)
			log.Printf("📋 Applied policy overlay from %s", *policyPath)
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration:\n", err)
	}

	// ==========================================================================
	// Database connection + migrations
	// ==========================================================================
	log.Println("🗄️  Connecting to PostgreSQL database...")
	dbClient, err := database.NewClient(cfg, database.WithLogger(
		log.New(log.Writer(), "[Database] ", log.LstdFlags),
	))
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL database")

	if err := dbClient.MigrateUp(context.Background()); err != nil {
		log.Fatalf("❌ Database migration failed: %v", err)
	}

	repos := database.NewRepositories(dbClient)

	// ==========================================================================
	// Signing key + change address
	// ==========================================================================
	log.Println("🔑 Loading signing key...")
	signingKey, err := signingkey.Load(cfg.SigningKeyPath)
	if err != nil {
		log.Fatalf("❌ Failed to load signing key: %v", err)
	}
	log.Println("✅ Signing key loaded")

	changeAddr, err := btcutil.DecodeAddress(cfg.ChangeAddress, txbuilder.ChainParams)
	if err != nil {
		log.Fatalf("❌ Invalid CHANGE_ADDRESS %q: %v", cfg.ChangeAddress, err)
	}

	// ==========================================================================
	// Pool manager, broadcast adapter, shared pipeline dependencies
	// ==========================================================================
	poolMgr := pool.NewManager(repos.UTXOs, cfg.UTXOLeaseDuration)
	broadcastClient := broadcast.NewClient(cfg.LedgerBroadcastURL, cfg.BroadcastTimeout)

	deps := &pipeline.Dependencies{
		Pool:             poolMgr,
		Jobs:             repos.Jobs,
		Audit:            repos.Audit,
		Broadcaster:      broadcastClient,
		SigningKey:       signingKey,
		ChangeAddress:    changeAddr,
		FeeRateSatsPerKB: cfg.FeeRateSatsPerKB,
		Logger:           log.New(log.Writer(), "[pipeline] ", log.LstdFlags),
	}

	// Revert any job stuck in "sending" past its TTL from a prior crash before
	// anything starts claiming work.
	reverted, err := repos.Jobs.Unstick(context.Background(), time.Now().Add(-cfg.SendingTTL))
	if err != nil {
		log.Printf("⚠️  Unstick on startup failed: %v", err)
	} else if reverted > 0 {
		log.Printf("♻️  Reverted %d stuck sending job(s) back to processing_batch", reverted)
	}

	// ==========================================================================
	// Background components: single-job worker, batch collector/broadcaster,
	// replenisher
	// ==========================================================================
	singleWorker := worker.New(repos.Jobs, deps, 0, log.New(log.Writer(), "[worker] ", log.LstdFlags))

	collector, err := batch.NewCollector(repos.Jobs, cfg.BatchWindow, cfg.MaxBatchSize, log.New(log.Writer(), "[collector] ", log.LstdFlags))
	if err != nil {
		log.Fatalf("❌ Failed to construct batch collector: %v", err)
	}

	limiter := batch.NewTokenBucket(cfg.RateLimitCapacity, cfg.RateLimitWindow)
	broadcaster, err := batch.NewBroadcaster(repos.Jobs, deps, limiter, log.New(log.Writer(), "[broadcaster] ", log.LstdFlags))
	if err != nil {
		log.Fatalf("❌ Failed to construct batch broadcaster: %v", err)
	}

	replenisher := replenish.New(poolMgr, broadcastClient, replenish.Config{
		CheckInterval:     cfg.PoolCheckInterval,
		MinPoolSize:       int64(cfg.PoolMinSize),
		SplitTarget:       cfg.PoolSplitTarget,
		Cooldown:          cfg.PoolSplitCooldown,
		UnitValueSatoshis: cfg.PoolUnitValueSatoshis,
		FeeRateSatsPerKB:  cfg.FeeRateSatsPerKB,
		ChangeAddress:     changeAddr,
		SigningKey:        signingKey,
	}, log.New(log.Writer(), "[replenish] ", log.LstdFlags))

	// ==========================================================================
	// HTTP API
	// ==========================================================================
	validator := intent.NewValidator(cfg.TimestampSkewSeconds, repos.Nonces, repos.Signers)
	mux := server.NewRouter(validator, repos, dbClient, log.New(log.Writer(), "[server] ", log.LstdFlags))

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Periodically revert jobs stuck in "sending" past the TTL.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.SendingTTL):
				if _, err := repos.Jobs.Unstick(ctx, time.Now().Add(-cfg.SendingTTL)); err != nil {
					log.Printf("⚠️  Periodic unstick failed: %v", err)
				}
			}
		}
	}()

	singleWorker.Start(ctx)
	if err := collector.Start(ctx); err != nil {
		log.Fatalf("❌ Failed to start batch collector: %v", err)
	}
	if err := broadcaster.Start(ctx); err != nil {
		log.Fatalf("❌ Failed to start batch broadcaster: %v", err)
	}
	replenisher.Start(ctx)

	go func() {
		log.Printf("🌐 Anchoring Service API listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server:", err)
		}
	}()

	log.Println("✅ Anchoring Service ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down Anchoring Service...")

	cancel()
	singleWorker.Stop()
	collector.Stop()
	broadcaster.Stop()
	replenisher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := dbClient.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Anchoring Service stopped")
}

func printHelp() {
	log.Println("Anchoring Service")
	log.Println()
	log.Println("Usage:")
	log.Println("  anchorsvc [flags]")
	log.Println()
	log.Println("Flags:")
	flag.PrintDefaults()
	log.Println()
	log.Println("Configuration is primarily sourced from environment variables; see pkg/config.")
}
