package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/compose-network/saya/metrics"
	"github.com/compose-network/saya/saya-app/config"
	apisrv "github.com/compose-network/saya/server/api"
	"github.com/compose-network/saya/x/pipeline"
	pipelinehttp "github.com/compose-network/saya/x/pipeline/http"
	"github.com/compose-network/saya/x/prover/atlantic"
	"github.com/compose-network/saya/x/settlement"
	"github.com/compose-network/saya/x/store"
	"github.com/compose-network/saya/x/trace"
)

// App wires the job store, prover, trace generator, settlement client and
// pipeline together.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	store    *store.SQLite
	prover   *atlantic.HTTPClient
	rpc      *rpc.Client
	pipeline *pipeline.Orchestrator

	// API server (HTTP)
	apiServer *apisrv.Server

	// Shutdown management
	shutdownFns []func() error

	cancel context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:         cfg,
		log:         log.With().Str("component", "app").Logger(),
		shutdownFns: make([]func() error, 0),
	}

	if err := app.initialize(ctx, log); err != nil {
		app.runShutdownFns()
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up the application components
func (a *App) initialize(ctx context.Context, log zerolog.Logger) error {
	st, err := store.OpenSQLite(ctx, a.cfg.Store, log)
	if err != nil {
		return err
	}
	a.store = st
	a.shutdownFns = append(a.shutdownFns, st.Close)

	pc, err := atlantic.NewHTTPClient(a.cfg.Prover, nil, log)
	if err != nil {
		return fmt.Errorf("failed to create prover client: %w", err)
	}
	a.prover = pc

	gen, err := trace.NewCommandGenerator(a.cfg.Trace, log)
	if err != nil {
		return fmt.Errorf("failed to create trace generator: %w", err)
	}

	settler, parser, err := a.initializeSettlement(ctx, log)
	if err != nil {
		return err
	}

	o, err := pipeline.New(a.cfg.Pipeline, st, pc, gen, settler, parser, log)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	a.pipeline = o

	if a.cfg.API.Enabled {
		a.initializeAPIServer(log)
	}
	return nil
}

// initializeSettlement dials the settlement node and builds the core contract client.
func (a *App) initializeSettlement(ctx context.Context, log zerolog.Logger) (*settlement.Client, settlement.ProofParser, error) {
	sc := a.cfg.Settlement

	client, err := rpc.DialOptions(ctx, sc.RPCEndpoint, rpc.WithHTTPClient(&http.Client{Timeout: sc.CallTimeout}))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial settlement node: %w", err)
	}
	a.rpc = client
	a.shutdownFns = append(a.shutdownFns, func() error {
		client.Close()
		return nil
	})

	signer, err := settlement.NewStarkSigner(sc.PrivateKeyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid settlement private key: %w", err)
	}
	contract, err := settlement.ParseFelt(sc.ContractAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid core contract address: %w", err)
	}
	accountAddr, err := settlement.ParseFelt(sc.AccountAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid account address: %w", err)
	}
	maxFee, err := optionalFelt(sc.MaxFee)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid max fee: %w", err)
	}
	chainID, err := optionalFelt(sc.ChainID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid chain id: %w", err)
	}

	account, err := settlement.NewRPCAccount(client, accountAddr, signer, maxFee, chainID, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create settlement account: %w", err)
	}

	parser := settlement.NewStarkProofParser()
	settler, err := settlement.NewClient(contract, account, parser, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create settlement client: %w", err)
	}

	a.log.Info().
		Str("core_contract", contract.String()).
		Str("account", accountAddr.String()).
		Str("public_key", signer.PublicKey().String()).
		Msg("Settlement client initialized")
	return settler, parser, nil
}

// initializeAPIServer sets up the HTTP API server with all endpoints
func (a *App) initializeAPIServer(log zerolog.Logger) {
	s := apisrv.NewServer(a.cfg.API, log)
	if a.cfg.Metrics.Enabled {
		s.HandleMetrics(a.cfg.Metrics.Path, metrics.GetRegistry())
	}

	// Pipeline API
	pipelinehttp.NewHandler(a.store, a.pipeline, log).RegisterMux(s.Router)

	a.apiServer = s
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if alive, err := a.prover.IsAlive(runCtx); err != nil || !alive {
		a.log.Warn().Err(err).Bool("alive", alive).Msg("Prover health check failed, continuing")
	}

	// Recovery failures are fatal: the cursor cannot be derived without chain state.
	if err := a.pipeline.Start(runCtx); err != nil {
		cancel()
		a.runShutdownFns()
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	// Start API server
	if a.apiServer != nil {
		go func() {
			if err := a.apiServer.Start(runCtx); err != nil {
				a.log.Error().Err(err).Msg("API server error")
			}
		}()
	}

	return a.runWithGracefulShutdown(runCtx)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	c := a.pipeline.Cursor()
	a.log.Info().
		Uint64("last_settled_block", c.LastSettledBlock).
		Uint64("last_sent_for_prove_block", c.LastSentForProveBlock).
		Msg("Saya started successfully")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	if a.cancel != nil {
		a.cancel()
	}

	return a.shutdown()
}

// shutdown stops the pipeline, then closes the store and RPC client.
func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := a.pipeline.Stop(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("Pipeline shutdown error")
		errs = append(errs, err)
	}

	a.runShutdownFns()

	c := a.pipeline.Cursor()
	a.log.Info().
		Uint64("last_settled_block", c.LastSettledBlock).
		Uint64("last_sent_for_prove_block", c.LastSentForProveBlock).
		Msg("Graceful shutdown complete")
	return errors.Join(errs...)
}

// runShutdownFns runs shutdown functions in reverse registration order.
func (a *App) runShutdownFns() {
	for i := len(a.shutdownFns) - 1; i >= 0; i-- {
		if err := a.shutdownFns[i](); err != nil {
			a.log.Error().Err(err).Msg("Shutdown function error")
		}
	}
	a.shutdownFns = nil
}

func optionalFelt(s string) (*felt.Felt, error) {
	if s == "" {
		return nil, nil
	}
	return settlement.ParseFelt(s)
}
