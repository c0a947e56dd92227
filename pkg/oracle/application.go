/*
 * Copyright 2024 Galactica Network
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package oracle

import (
	"context"
	"fmt"
	"time"

	db "github.com/cometbft/cometbft-db"
	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Galactica-corp/purchase-oracle-service/internal/chain"
	"github.com/Galactica-corp/purchase-oracle-service/internal/merkle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/oracle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/query"
	"github.com/Galactica-corp/purchase-oracle-service/internal/signer"
	"github.com/Galactica-corp/purchase-oracle-service/internal/storage"
)

const (
	dbName = "oracle"
)

type (
	ApplicationConfig struct {
		// EvmRpc is the URL of the EVM RPC, http or websocket.
		EvmRpc string

		// PurchaseOracle is the address of the PurchaseOracle contract.
		PurchaseOracle common.Address

		// OracleUpdaterKey is the hex private key of the account allowed to update the merkle roots.
		OracleUpdaterKey string

		Database DatabaseConfig

		// DbPath is the path to the root journal database folder
		DbPath string

		// DbBackend is the root journal database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb | pebbledb | memdb
		DbBackend db.BackendType

		// CacheSize is the amount of product trees kept in memory.
		CacheSize int

		Reconcile ReconcileConfig

		HTTP HTTPConfig

		Redis RedisConfig
	}

	DatabaseConfig struct {
		// Driver is the relational database driver: postgres | sqlite
		Driver string
		DSN    string
	}

	ReconcileConfig struct {
		Interval       time.Duration
		Confirmations  uint64
		ReceiptTimeout time.Duration

		// Threshold and MaxAge configure the update policy, both zero commits every pending leaf on each run.
		Threshold int
		MaxAge    time.Duration
	}

	HTTPConfig struct {
		Address string
	}

	RedisConfig struct {
		// Address enables the distributed run lock when set.
		Address string
		LockKey string
		LockTTL time.Duration
	}

	Application struct {
		config ApplicationConfig

		kvDB           db.DB
		relationalDB   *gorm.DB
		ethereumClient *ethclient.Client
		redisClient    *redis.Client

		store   *storage.Store
		journal *storage.RootJournal
		trees   *merkle.TreeCache
		keyring *signer.Keyring
		chain   *chain.Client

		registry   *prometheus.Registry
		metrics    *oracle.Metrics
		ingestion  *oracle.IngestionService
		proofs     *oracle.ProofService
		reconciler *oracle.Reconciler
		scheduler  *oracle.Scheduler

		queryServer *query.Server

		logger log.Logger
	}
)

func NewApplication(config ApplicationConfig, logger log.Logger) *Application {
	return &Application{
		config: config,
		logger: logger,
	}
}

// StartApplication runs the reconciliation scheduler and the HTTP server until the context is done.
func StartApplication(ctx context.Context, config ApplicationConfig, logger log.Logger) error {
	logger.Info("starting purchase oracle application")

	app := NewApplication(config, logger)
	defer app.Close()

	if err := app.Init(ctx); err != nil {
		return fmt.Errorf("init application: %w", err)
	}

	wgr, ctx := errgroup.WithContext(ctx)

	wgr.Go(func() error {
		return app.RunScheduler(ctx)
	})
	wgr.Go(func() error {
		return app.RunQueryServer(ctx)
	})

	if err := wgr.Wait(); err != nil {
		logger.Error("wait for goroutines", "error", err)
		return err
	}

	return nil
}

// ReconcileOnce runs a single reconciliation without the scheduler and the HTTP server.
func ReconcileOnce(ctx context.Context, config ApplicationConfig, logger log.Logger) (oracle.Report, error) {
	app := NewApplication(config, logger)
	defer app.Close()

	if err := app.Init(ctx); err != nil {
		return oracle.Report{}, fmt.Errorf("init application: %w", err)
	}

	report, ran, err := app.scheduler.Tick(ctx)
	if err != nil {
		return report, err
	}
	if !ran {
		return report, fmt.Errorf("reconciliation is running on another replica")
	}

	return report, nil
}

// Init initializes the application and all its dependencies
func (app *Application) Init(ctx context.Context) error {
	var err error

	app.ethereumClient, err = chain.Dial(ctx, app.config.EvmRpc, app.logger)
	if err != nil {
		return err
	}

	app.chain, err = chain.NewClient(
		app.ethereumClient,
		app.config.PurchaseOracle,
		chain.DefaultClientConfig(),
		app.logger.With("component", "chain"),
	)
	if err != nil {
		return fmt.Errorf("create chain client: %w", err)
	}

	chainID, err := app.chain.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	app.logger.Info("connected to chain", "chain_id", chainID, "purchase_oracle", app.config.PurchaseOracle.Hex())

	app.keyring = signer.NewKeyring(chainID)
	if err := app.keyring.AddHexKey(signer.OracleUpdaterKey, app.config.OracleUpdaterKey); err != nil {
		return fmt.Errorf("add oracle updater key: %w", err)
	}

	account, err := app.keyring.AccountForKey(signer.OracleUpdaterKey)
	if err != nil {
		return err
	}
	app.logger.Info("oracle updater account", "address", account.Address.Hex())

	// Initialize storage
	app.logger.Info("initializing relational db", "driver", app.config.Database.Driver)
	app.relationalDB, err = storage.OpenDatabase(
		app.config.Database.Driver,
		app.config.Database.DSN,
		app.logger.With("component", "gorm"),
	)
	if err != nil {
		return err
	}
	app.store = storage.NewStore(app.relationalDB)

	app.logger.Info("initializing root journal db", "db_backend", app.config.DbBackend, "db_path", app.config.DbPath)
	app.kvDB, err = db.NewDB(dbName, app.config.DbBackend, app.config.DbPath)
	if err != nil {
		return fmt.Errorf("create root journal DB: %w", err)
	}
	app.journal = storage.NewRootJournal(app.kvDB)

	app.trees = merkle.NewTreeCache(app.store, app.config.CacheSize)

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.metrics = oracle.NewMetrics(app.registry)

	app.ingestion = oracle.NewIngestionService(app.store, app.logger.With("component", "ingestion"))
	app.proofs = oracle.NewProofService(app.store, app.trees, app.metrics, app.logger.With("component", "proof"))
	app.reconciler = oracle.NewReconciler(
		app.store,
		app.trees,
		app.chain,
		app.keyring,
		app.journal,
		app.reconcilerConfig(),
		app.metrics,
		app.logger.With("component", "reconciler"),
	)

	var runLock oracle.RunLock
	if app.config.Redis.Address != "" {
		app.redisClient = redis.NewClient(&redis.Options{Addr: app.config.Redis.Address})
		if err := app.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}

		app.logger.Info("using distributed reconciliation lock", "redis", app.config.Redis.Address)
		runLock = oracle.NewRedisRunLock(app.redisClient, app.config.Redis.LockKey, app.config.Redis.LockTTL)
	}

	app.scheduler = oracle.NewScheduler(
		app.reconciler,
		app.config.Reconcile.Interval,
		runLock,
		app.metrics,
		app.logger.With("component", "scheduler"),
	)
	app.scheduler.OnUpdated(app.onOracleUpdated)
	app.scheduler.OnUpdated(app.metrics.ObserveUpdate)

	gin.SetMode(gin.ReleaseMode)
	app.queryServer = query.NewServer(
		app.ingestion,
		app.proofs,
		app.journal,
		app.registry,
		app.logger.With("component", "http"),
	)

	return nil
}

func (app *Application) reconcilerConfig() oracle.ReconcilerConfig {
	config := oracle.DefaultReconcilerConfig()
	config.SignerKey = signer.OracleUpdaterKey

	if app.config.Reconcile.Confirmations > 0 {
		config.Confirmations = app.config.Reconcile.Confirmations
	}
	if app.config.Reconcile.ReceiptTimeout > 0 {
		config.ReceiptTimeout = app.config.Reconcile.ReceiptTimeout
	}
	config.Policy = oracle.UpdatePolicy{
		Threshold: app.config.Reconcile.Threshold,
		MaxAge:    app.config.Reconcile.MaxAge,
	}

	return config
}

func (app *Application) RunScheduler(ctx context.Context) error {
	return app.scheduler.Start(ctx)
}

func (app *Application) RunQueryServer(ctx context.Context) error {
	return app.queryServer.Run(ctx, app.config.HTTP.Address)
}

func (app *Application) onOracleUpdated(report oracle.Report) {
	for _, productID := range report.Products {
		app.logger.Info("oracle updated", "product", productID.Hex())
	}
}

// Close releases the resources opened by Init.
func (app *Application) Close() {
	if app.ethereumClient != nil {
		app.ethereumClient.Close()
	}

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("close redis client", "error", err)
		}
	}

	if app.relationalDB != nil {
		if err := storage.CloseDatabase(app.relationalDB); err != nil {
			app.logger.Error("close relational DB", "error", err)
		}
	}

	if app.kvDB != nil {
		if err := app.kvDB.Close(); err != nil {
			app.logger.Error("close key-value DB", "error", err)
		}
	}
}
