package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Div1912/Ageis/internal/agent"
	"github.com/Div1912/Ageis/internal/config"
	"github.com/Div1912/Ageis/internal/decision"
	"github.com/Div1912/Ageis/internal/ledger"
	"github.com/Div1912/Ageis/internal/logger"
	"github.com/Div1912/Ageis/internal/notify"
	"github.com/Div1912/Ageis/internal/oracle"
	"github.com/Div1912/Ageis/internal/orchestrator"
	"github.com/Div1912/Ageis/internal/reconciler"
	"github.com/Div1912/Ageis/internal/store"
	"github.com/Div1912/Ageis/internal/web"
)

// main is the entry point for the Aegis position monitor.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Uint64("app_id", cfg.AppID).Str("mode", cfg.Mode).Msg("Aegis position monitor starting...")

	// --- 2. Storage ---
	positionStore, err := store.NewAdapter(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize position store")
	}
	defer positionStore.Close()

	// --- 3. Data sources ---
	codec := ledger.NewCodec(cfg.PriceScale, cfg.CapitalScale)
	reader := ledger.NewReader(cfg.AppID, cfg.NodeURL, cfg.IndexerURL, codec)
	priceOracle := oracle.New(cfg.OracleURL, cfg.OracleAssetID, cfg.OracleCurrency)

	rec := reconciler.New(reader, positionStore, cfg.AppID, cfg.OwnerAddress)

	// --- 4. Execution path ---
	// The signer is the safety switch: live mode refuses to start without
	// one, and dry-run never reaches it.
	var signer ledger.TransactionSigner
	if cfg.Mode == "live" {
		if cfg.SignerURL == "" {
			log.Fatal().Msg("Live mode requires SIGNER_URL; refusing to start")
		}
		signer = ledger.NewRemoteSigner(cfg.SignerURL)
		log.Info().Str("signer_url", cfg.SignerURL).Msg("Live mode: remote signer configured")
	} else {
		log.Info().Msg("Dry-run mode: decisions are evaluated and logged, transactions are never submitted")
	}

	builder := ledger.NewIntentBuilder(cfg.AppID, cfg.OwnerAddress, codec)
	executor := orchestrator.New(cfg, builder, signer, rec, positionStore)

	// --- 5. Decision engine and agent ---
	engine := decision.NewEngine(cfg)
	console := notify.NewConsole()
	agentIdentity := cfg.AgentAddress
	if agentIdentity == "" {
		agentIdentity = cfg.OwnerAddress
	}
	runner := agent.NewRunner(cfg, rec, priceOracle, engine, executor, positionStore, console, agentIdentity)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 6. Background loops ---
	go rec.Run(ctx, cfg.PollInterval)
	runner.Start(ctx)

	// --- 7. Web server ---
	webServer := web.NewWebServer(cfg, rec, priceOracle, reader, executor, positionStore, runner, cfg.OwnerAddress)
	go func() {
		log.Info().Str("port", cfg.WebPort).Str("url", "http://localhost:"+cfg.WebPort).Msg("Starting Aegis dashboard API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, stopping...")
	runner.Stop()
}
