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

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	db "github.com/cometbft/cometbft-db"
	"github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Galactica-corp/purchase-oracle-service/cmd/purchase-oracle/cmd/ctx"
	"github.com/Galactica-corp/purchase-oracle-service/cmd/purchase-oracle/cmd/oracle"
	"github.com/Galactica-corp/purchase-oracle-service/cmd/purchase-oracle/cmd/product"
	"github.com/Galactica-corp/purchase-oracle-service/internal/storage"
	"github.com/Galactica-corp/purchase-oracle-service/internal/utils"
)

const (
	FlagHome  = "home"
	EnvHome   = "PURCHASE_ORACLE_HOME"
	ViperHome = "home"

	FlagConfig  = "config"
	EnvConfig   = "PURCHASE_ORACLE_CONFIG"
	ViperConfig = "config"

	FlagDBBackend  = "db-backend"
	EvnDBBackend   = "DB_BACKEND"
	ViperDBBackend = "db_backend"

	FlagDatabaseDriver  = "database.driver"
	EnvDatabaseDriver   = "DATABASE_DRIVER"
	ViperDatabaseDriver = "database.driver"

	FlagDatabaseDSN  = "database.dsn"
	EnvDatabaseDSN   = "DATABASE_DSN"
	ViperDatabaseDSN = "database.dsn"

	FlagLogLevel    = "log-level"
	EvnLogLevel     = "LOG_LEVEL"
	ViperLogLevel   = "log_level"
	DefaultLogLevel = "info"

	DefaultHomeSubDir     = ".purchase-oracle"
	DefaultConfigFileName = "oracle.yaml"
	DefaultSQLiteFileName = "oracle.db"
)

type Config struct {
	Home      string
	Config    string
	LogLevel  string
	DBBackend db.BackendType
	Database  ctx.DatabaseConfig
}

func createRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purchase-oracle",
		Short: "Galactica Network purchase oracle cli",
		Long: `Galactica Network purchase oracle cli.
This is a CLI tool to run the purchase oracle service, which commits merchant purchases
into per-product merkle trees and keeps their roots in sync with the PurchaseOracle contract.`,
	}
}

func Execute() {
	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := initRootCmd(createRootCmd())
	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initRootCmd(rootCmd *cobra.Command) *cobra.Command {
	cfg := Config{}

	// root command flags
	rootCmd.PersistentFlags().StringVar(
		&cfg.Home,
		FlagHome,
		"",
		"home directory (default is $HOME/"+DefaultHomeSubDir+")",
	)
	rootCmd.PersistentFlags().StringVar(
		&cfg.Config,
		FlagConfig,
		"",
		"config file (default is $HOME/"+DefaultHomeSubDir+"/"+DefaultConfigFileName+")",
	)
	rootCmd.PersistentFlags().StringVar(
		&cfg.LogLevel,
		FlagLogLevel,
		DefaultLogLevel,
		"log level, available options: [debug, info, error, none]",
	)
	rootCmd.PersistentFlags().String(
		FlagDBBackend,
		string(db.GoLevelDBBackend),
		"root journal database backend, available options: "+dbBackendsString(),
	)
	rootCmd.PersistentFlags().String(
		FlagDatabaseDriver,
		storage.DriverSQLite,
		"relational database driver, available options: ["+storage.DriverPostgres+", "+storage.DriverSQLite+"]",
	)
	rootCmd.PersistentFlags().String(
		FlagDatabaseDSN,
		"",
		"relational database DSN (default is the "+DefaultSQLiteFileName+" file in the home directory for sqlite)",
	)

	// bind flags to viper
	utils.MustBindPFlag(viper.GetViper(), ViperHome, rootCmd.PersistentFlags().Lookup(FlagHome))
	utils.MustBindPFlag(viper.GetViper(), ViperConfig, rootCmd.PersistentFlags().Lookup(FlagConfig))
	utils.MustBindPFlag(viper.GetViper(), ViperLogLevel, rootCmd.PersistentFlags().Lookup(FlagLogLevel))
	utils.MustBindPFlag(viper.GetViper(), ViperDBBackend, rootCmd.PersistentFlags().Lookup(FlagDBBackend))
	utils.MustBindPFlag(viper.GetViper(), ViperDatabaseDriver, rootCmd.PersistentFlags().Lookup(FlagDatabaseDriver))
	utils.MustBindPFlag(viper.GetViper(), ViperDatabaseDSN, rootCmd.PersistentFlags().Lookup(FlagDatabaseDSN))

	// bind env variables to viper
	viper.MustBindEnv(ViperHome, EnvHome)
	viper.MustBindEnv(ViperConfig, EnvConfig)
	viper.MustBindEnv(ViperLogLevel, EvnLogLevel)
	viper.MustBindEnv(ViperDBBackend, EvnDBBackend)
	viper.MustBindEnv(ViperDatabaseDriver, EnvDatabaseDriver)
	viper.MustBindEnv(ViperDatabaseDSN, EnvDatabaseDSN)

	// set logger to root command
	writer := log.NewSyncWriter(os.Stdout)
	rootCmd.SetOut(writer)
	rootCmd.SetErr(writer)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if initedCfg, err := initConfig(cfg); err != nil {
			fmt.Println(err)
			os.Exit(1)
		} else {
			cfg = initedCfg
		}

		// init logger
		logger := initLogger(cfg.LogLevel, writer)

		cmd.SetContext(context.WithValue(cmd.Context(), ctx.LoggerKey, logger))
		cmd.SetContext(context.WithValue(cmd.Context(), ctx.HomeDirKey, cfg.Home))
		cmd.SetContext(context.WithValue(cmd.Context(), ctx.DBBackendKey, cfg.DBBackend))
		cmd.SetContext(context.WithValue(cmd.Context(), ctx.DatabaseKey, cfg.Database))
	}

	// add subcommands
	rootCmd.AddCommand(oracle.CreateStartCmd())
	rootCmd.AddCommand(oracle.CreateReconcileCmd())
	rootCmd.AddCommand(product.CreateProductCmd())

	// add version command
	rootCmd.AddCommand(CreateVersion())

	return rootCmd
}

func initLogger(
	level string,
	writer io.Writer,
) log.Logger {
	logger := log.NewTMLogger(writer)
	logLevel, err := log.AllowLevel(level)
	if err != nil {
		level = DefaultLogLevel
		logLevel, err = log.AllowLevel(level)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}
	logger = log.NewFilter(logger, logLevel)

	return logger
}

func initConfig(cfg Config) (Config, error) {
	if home := viper.GetString(ViperHome); home != "" {
		cfg.Home = home
	} else {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("failed to get user home directory: %w", err)
		}

		cfg.Home = filepath.Join(userHome, DefaultHomeSubDir)
	}

	if config := viper.GetString(ViperConfig); config != "" {
		cfg.Config = config
	} else {
		cfg.Config = filepath.Join(cfg.Home, DefaultConfigFileName)
	}

	viper.AddConfigPath(cfg.Home)
	viper.SetConfigFile(cfg.Config)

	// no need to return error if config file not found
	_ = viper.ReadInConfig()

	// set log level
	cfg.LogLevel = viper.GetString(ViperLogLevel)

	// set db backend
	cfg.DBBackend = db.BackendType(viper.GetString(ViperDBBackend))
	if !slices.Contains(availableDBBackends(), cfg.DBBackend) {
		return cfg, fmt.Errorf("invalid db backend %s, expected one of %s", cfg.DBBackend, dbBackendsString())
	}

	// set relational database
	cfg.Database.Driver = viper.GetString(ViperDatabaseDriver)
	cfg.Database.DSN = viper.GetString(ViperDatabaseDSN)
	switch cfg.Database.Driver {
	case storage.DriverSQLite:
		if cfg.Database.DSN == "" {
			if err := os.MkdirAll(cfg.Home, 0o755); err != nil {
				return cfg, fmt.Errorf("create home directory: %w", err)
			}
			cfg.Database.DSN = filepath.Join(cfg.Home, DefaultSQLiteFileName)
		}
	case storage.DriverPostgres:
		if cfg.Database.DSN == "" {
			return cfg, fmt.Errorf("database dsn is required for the %s driver", storage.DriverPostgres)
		}
	default:
		return cfg, fmt.Errorf("invalid database driver %s, expected one of [%s, %s]", cfg.Database.Driver, storage.DriverPostgres, storage.DriverSQLite)
	}

	return cfg, nil
}

func availableDBBackends() []db.BackendType {
	return []db.BackendType{
		db.GoLevelDBBackend,
		db.CLevelDBBackend,
		db.MemDBBackend,
		db.BoltDBBackend,
		db.RocksDBBackend,
		db.BadgerDBBackend,
		db.PebbleDBBackend,
	}
}

func dbBackendsString() string {
	backends := availableDBBackends()
	strs := make([]string, 0, len(backends))
	for _, backend := range backends {
		strs = append(strs, string(backend))
	}
	return fmt.Sprintf("[%s]", strings.Join(strs, ", "))
}
