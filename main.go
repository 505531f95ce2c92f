package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cfg "github.com/cometbft/cometbft/config"
	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	nm "github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	cmtrpc "github.com/cometbft/cometbft/rpc/client/local"
	"github.com/dgraph-io/badger/v4"

	"github.com/ahmadzakiakmal/produce-registry/app"
	"github.com/ahmadzakiakmal/produce-registry/config"
	"github.com/ahmadzakiakmal/produce-registry/repository"
	"github.com/ahmadzakiakmal/produce-registry/server"
	"github.com/ahmadzakiakmal/produce-registry/srvreg"
)

func main() {
	nodeConfig, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Loading node config: %v", err)
	}

	log.Println("=== Starting Produce Registry ledger node ===")
	log.Printf("Home Directory: %s", nodeConfig.CmtHome)
	log.Printf("HTTP Port: %s", nodeConfig.HTTPPort)
	log.Printf("Projection enabled: %t", nodeConfig.ProjectionEnabled)

	// Load CometBFT configuration
	cometConfig, err := config.LoadCometConfig(nodeConfig.CmtHome)
	if err != nil {
		log.Fatalf("Loading CometBFT config: %v", err)
	}

	// Off-chain projection of committed state
	repo := repository.NewRepository()
	if nodeConfig.ProjectionEnabled {
		log.Println("Connecting to PostgreSQL")
		if err := repo.ConnectDB(nodeConfig.PostgresDSN); err != nil {
			log.Fatalf("Setting up projection database: %v", err)
		}
	}

	// Badger holds the replicated ledger state
	db, err := badger.Open(badger.DefaultOptions(nodeConfig.BadgerPath()))
	if err != nil {
		log.Fatalf("Opening badger database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Fatalf("Closing badger database: %v", err)
		}
	}()

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	logger, err = cmtflags.ParseLogLevel(cometConfig.LogLevel, logger, cfg.DefaultLogLevel)
	if err != nil {
		log.Fatalf("Failed to parse log level: %v", err)
	}

	serviceRegistry := srvreg.NewServiceRegistry(repo, logger.With("module", "srvreg"))
	serviceRegistry.RegisterDefaultServices()

	appConfig := &app.AppConfig{
		NodeID:    filepath.Base(nodeConfig.CmtHome),
		LogAllTxs: nodeConfig.LogAllTxs,
	}
	var projector app.Projector
	if repo.Connected() {
		projector = repo
	}
	abciApp := app.NewABCIApplication(db, appConfig, logger.With("module", "ledger"), projector)

	pv := privval.LoadFilePV(
		cometConfig.PrivValidatorKeyFile(),
		cometConfig.PrivValidatorStateFile(),
	)

	nodeKey, err := p2p.LoadNodeKey(cometConfig.NodeKeyFile())
	if err != nil {
		log.Fatalf("Failed to load node's key: %v", err)
	}

	node, err := nm.NewNode(
		context.Background(),
		cometConfig,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(abciApp),
		nm.DefaultGenesisDocProviderFunc(cometConfig),
		cfg.DefaultDBProvider,
		nm.DefaultMetricsProvider(cometConfig.Instrumentation),
		logger,
	)
	if err != nil {
		log.Fatalf("Creating CometBFT node: %v", err)
	}
	logger.Info("Ledger node initialized", "node_id", string(node.NodeInfo().ID()))

	repo.SetupRpcClient(cmtrpc.New(node))

	logger.Info("Starting CometBFT node...")
	if err := node.Start(); err != nil {
		log.Fatalf("Starting CometBFT node: %v", err)
	}
	defer func() {
		logger.Info("Stopping CometBFT node...")
		node.Stop()
		node.Wait()
	}()

	webserver := server.NewWebServer(abciApp, nodeConfig.HTTPPort, logger.With("module", "server"), node, serviceRegistry)
	if err := webserver.Start(); err != nil {
		log.Fatalf("Starting HTTP server: %v", err)
	}

	logger.Info("=== Ledger node started ===")
	logger.Info("Ledger HTTP API", "url", fmt.Sprintf("http://localhost:%s", nodeConfig.HTTPPort))
	logger.Info("CometBFT RPC", "address", cometConfig.RPC.ListenAddress)
	logger.Info("Chain", "chain_id", abciApp.ChainID())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Received shutdown signal, shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := webserver.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP web server", "err", err)
	}
	logger.Info("Ledger node gracefully stopped")
}
