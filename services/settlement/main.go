package settlement

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"trancheclear/config"
	"trancheclear/native/tranche"
	"trancheclear/observability/logging"
	telemetry "trancheclear/observability/otel"
	"trancheclear/services/settlement/ledger"
	"trancheclear/storage"
	"trancheclear/storage/journal"
)

// Main initialises and runs the epoch settlement daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/settlement/config.yaml", "path to epochd configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("EPOCHD_ENV"))
	logger := logging.Setup("epochd", env)
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.FromEnv("epochd", env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Log.Path != "" {
		logger = logging.SetupWithSink("epochd", env, cfg.Log)
	}
	registry, err := config.LoadPools(cfg.PoolsPath)
	if err != nil {
		return fmt.Errorf("load pools: %w", err)
	}
	baseWeights, err := cfg.Weights.Resolve(tranche.DefaultWeights())
	if err != nil {
		return fmt.Errorf("resolve weights: %w", err)
	}

	signer, err := gethcrypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKey, "0x"))
	if err != nil {
		return fmt.Errorf("load signer key: %w", err)
	}
	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	client, err := ledger.DialEVMClient(dialCtx, cfg.RPCEndpoint)
	if err != nil {
		cancel()
		return err
	}
	defer client.Close()
	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		if chainID, err = client.ChainID(dialCtx); err != nil {
			cancel()
			return fmt.Errorf("fetch chain id: %w", err)
		}
	}
	cancel()
	logger.Info("connected to ledger",
		logging.MaskURL("rpc_endpoint", cfg.RPCEndpoint),
		slog.String("chain_id", chainID.String()),
		slog.String("signer", gethcrypto.PubkeyToAddress(signer.PublicKey).Hex()),
		slog.Int("pools", len(registry.Pools)))

	var attempts *journal.Journal
	if cfg.JournalDSN != "" {
		if attempts, err = journal.Open(cfg.JournalDSN); err != nil {
			return err
		}
		defer attempts.Close()
	}
	var kv storage.Database = storage.NewMemDB()
	if cfg.CheckpointPath != "" {
		if kv, err = storage.NewLevelDB(cfg.CheckpointPath); err != nil {
			return fmt.Errorf("open checkpoints: %w", err)
		}
	}
	checkpoints := storage.NewCheckpoints(kv)
	defer checkpoints.Close()

	metrics := NewMetrics()
	rates := tranche.NewRateCache(cfg.RatioScale())
	coordinators := make([]*Coordinator, 0, len(registry.Pools))
	for _, pool := range registry.Pools {
		coordinator, assessor, reserve, navFeed := pool.Addresses()
		evm, err := ledger.NewEVM(client, ledger.EVMConfig{
			Contracts:      ledger.Contracts{Coordinator: coordinator, Assessor: assessor, Reserve: reserve, NAVFeed: navFeed},
			ChainID:        chainID,
			Signer:         signer,
			CurrencyScale:  cfg.CurrencyScale(),
			RatioScale:     cfg.RatioScale(),
			Confirmations:  cfg.Confirmations,
			PollInterval:   cfg.PollInterval.Duration / 5,
			ConfirmTimeout: cfg.ConfirmationTimeout.Duration,
		})
		if err != nil {
			return fmt.Errorf("pool %s: %w", pool.ID, err)
		}
		weights, err := pool.Weights.Resolve(baseWeights)
		if err != nil {
			return fmt.Errorf("pool %s: %w", pool.ID, err)
		}
		opts := []CoordinatorOption{
			WithLogger(logger),
			WithMetrics(metrics),
			WithRetrier(NewRetrier(pool.ID, cfg.Retry.Policy(), metrics)),
			WithCheckpoints(checkpoints),
			WithPollInterval(cfg.PollInterval.Duration),
			WithMaxResolves(cfg.MaxResolves),
			WithReplacement(!cfg.DisableReplacement),
			WithCurrencyScale(cfg.CurrencyScale()),
			WithRateCache(rates),
		}
		if attempts != nil {
			opts = append(opts, WithJournal(attempts))
		}
		c, err := NewCoordinator(pool.ID, evm, weights, opts...)
		if err != nil {
			return fmt.Errorf("pool %s: %w", pool.ID, err)
		}
		if pool.PauseOnStart {
			c.Pause()
		}
		coordinators = append(coordinators, c)
	}
	supervisor, err := NewSupervisor(logger, coordinators...)
	if err != nil {
		return err
	}

	auth, err := NewAuthenticator(cfg.Admin.BearerToken)
	if err != nil {
		return err
	}
	var lister AttemptLister
	if attempts != nil {
		lister = attempts
	}
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      NewAdminServer(supervisor, auth, lister),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ConfirmationTimeout.Duration + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	supervised := make(chan struct{})
	go func() {
		defer close(supervised)
		_ = supervisor.Run(stopCtx)
	}()

	errs := make(chan error, 1)
	go func() {
		logger.Info("epochd listening", slog.String("listen", cfg.ListenAddress))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
	case err := <-errs:
		stop()
		<-supervised
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
		return err
	}
	<-supervised
	return nil
}
