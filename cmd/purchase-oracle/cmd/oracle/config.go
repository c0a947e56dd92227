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
	"fmt"
	"path/filepath"

	db "github.com/cometbft/cometbft-db"
	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Galactica-corp/purchase-oracle-service/cmd/purchase-oracle/cmd/ctx"
	"github.com/Galactica-corp/purchase-oracle-service/internal/merkle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/oracle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/utils"
	pkgoracle "github.com/Galactica-corp/purchase-oracle-service/pkg/oracle"
)

const (
	evmRpcFlag  = "evm-rpc"
	evmRpcEnv   = "EVM_RPC"
	evmRpcViper = "evm_rpc"

	purchaseOracleFlag  = "contract.purchase-oracle"
	purchaseOracleEnv   = "PURCHASE_ORACLE_ADDRESS"
	purchaseOracleViper = "contract.purchase_oracle"

	oracleUpdaterKeyFlag  = "signer.oracle-updater-key"
	oracleUpdaterKeyEnv   = "ORACLE_UPDATER_KEY"
	oracleUpdaterKeyViper = "signer.oracle_updater_key"

	reconcileIntervalFlag        = "reconcile.interval"
	reconcileIntervalViper       = "reconcile.interval"
	reconcileConfirmationsFlag   = "reconcile.confirmations"
	reconcileConfirmationsViper  = "reconcile.confirmations"
	reconcileReceiptTimeoutFlag  = "reconcile.receipt-timeout"
	reconcileReceiptTimeoutViper = "reconcile.receipt_timeout"
	reconcileThresholdFlag       = "reconcile.threshold"
	reconcileThresholdViper      = "reconcile.threshold"
	reconcileMaxAgeFlag          = "reconcile.max-age"
	reconcileMaxAgeViper         = "reconcile.max_age"

	cacheSizeFlag  = "cache.size"
	cacheSizeViper = "cache.size"

	httpAddressFlag  = "http.address"
	httpAddressEnv   = "HTTP_ADDRESS"
	httpAddressViper = "http.address"

	redisAddressFlag  = "redis.address"
	redisAddressEnv   = "REDIS_ADDRESS"
	redisAddressViper = "redis.address"
	redisLockKeyFlag  = "redis.lock-key"
	redisLockKeyViper = "redis.lock_key"
	redisLockTTLFlag  = "redis.lock-ttl"
	redisLockTTLViper = "redis.lock_ttl"

	defaultEvmRpc = "http://localhost:8545"

	dbFolder = "db"
)

// initFlags registers the flags shared by the commands running the oracle.
func initFlags(cmd *cobra.Command) {
	cmd.Flags().String(evmRpcFlag, defaultEvmRpc, "EVM RPC endpoint")
	cmd.Flags().String(purchaseOracleFlag, "", "PurchaseOracle contract address")
	cmd.Flags().String(oracleUpdaterKeyFlag, "", "hex private key of the account updating the merkle roots")
	cmd.Flags().Duration(reconcileIntervalFlag, oracle.DefaultInterval, "interval between reconciliation runs")
	cmd.Flags().Uint64(reconcileConfirmationsFlag, oracle.DefaultConfirmations, "block confirmations required for a root update")
	cmd.Flags().Duration(reconcileReceiptTimeoutFlag, oracle.DefaultReceiptTimeout, "timeout of the wait for a root update receipt")
	cmd.Flags().Int(reconcileThresholdFlag, 0, "commit the leaves of a product once it has this amount of pending purchases, 0 disables the threshold")
	cmd.Flags().Duration(reconcileMaxAgeFlag, 0, "commit the leaves of a product once its oldest pending purchase is this old, 0 disables the max age")
	cmd.Flags().Int(cacheSizeFlag, merkle.DefaultCacheSize, "amount of product trees kept in memory")
	cmd.Flags().String(redisAddressFlag, "", "redis address of the distributed reconciliation lock, empty disables the lock")
	cmd.Flags().String(redisLockKeyFlag, oracle.DefaultRunLockKey, "redis key of the distributed reconciliation lock")
	cmd.Flags().Duration(redisLockTTLFlag, oracle.DefaultRunLockTTL, "expiration of the distributed reconciliation lock")
}

// bindFlags binds the flags of the command being run, the commands share the viper keys.
func bindFlags(cmd *cobra.Command) {
	utils.MustBindPFlag(viper.GetViper(), evmRpcViper, cmd.Flags().Lookup(evmRpcFlag))
	utils.MustBindPFlag(viper.GetViper(), purchaseOracleViper, cmd.Flags().Lookup(purchaseOracleFlag))
	utils.MustBindPFlag(viper.GetViper(), oracleUpdaterKeyViper, cmd.Flags().Lookup(oracleUpdaterKeyFlag))
	utils.MustBindPFlag(viper.GetViper(), reconcileIntervalViper, cmd.Flags().Lookup(reconcileIntervalFlag))
	utils.MustBindPFlag(viper.GetViper(), reconcileConfirmationsViper, cmd.Flags().Lookup(reconcileConfirmationsFlag))
	utils.MustBindPFlag(viper.GetViper(), reconcileReceiptTimeoutViper, cmd.Flags().Lookup(reconcileReceiptTimeoutFlag))
	utils.MustBindPFlag(viper.GetViper(), reconcileThresholdViper, cmd.Flags().Lookup(reconcileThresholdFlag))
	utils.MustBindPFlag(viper.GetViper(), reconcileMaxAgeViper, cmd.Flags().Lookup(reconcileMaxAgeFlag))
	utils.MustBindPFlag(viper.GetViper(), cacheSizeViper, cmd.Flags().Lookup(cacheSizeFlag))
	utils.MustBindPFlag(viper.GetViper(), redisAddressViper, cmd.Flags().Lookup(redisAddressFlag))
	utils.MustBindPFlag(viper.GetViper(), redisLockKeyViper, cmd.Flags().Lookup(redisLockKeyFlag))
	utils.MustBindPFlag(viper.GetViper(), redisLockTTLViper, cmd.Flags().Lookup(redisLockTTLFlag))

	viper.MustBindEnv(evmRpcViper, evmRpcEnv)
	viper.MustBindEnv(purchaseOracleViper, purchaseOracleEnv)
	viper.MustBindEnv(oracleUpdaterKeyViper, oracleUpdaterKeyEnv)
	viper.MustBindEnv(redisAddressViper, redisAddressEnv)
}

// getApplicationConfig reads the application config from viper and the values set by the root command.
func getApplicationConfig(cmd *cobra.Command) (pkgoracle.ApplicationConfig, log.Logger, error) {
	logger, ok := cmd.Context().Value(ctx.LoggerKey).(log.Logger)
	if !ok {
		return pkgoracle.ApplicationConfig{}, nil, fmt.Errorf("logger not found in context")
	}

	homeDir, ok := cmd.Context().Value(ctx.HomeDirKey).(string)
	if !ok {
		return pkgoracle.ApplicationConfig{}, nil, fmt.Errorf("home dir not found in context")
	}

	dbBackend, ok := cmd.Context().Value(ctx.DBBackendKey).(db.BackendType)
	if !ok {
		return pkgoracle.ApplicationConfig{}, nil, fmt.Errorf("db backend not found in context")
	}

	database, ok := cmd.Context().Value(ctx.DatabaseKey).(ctx.DatabaseConfig)
	if !ok {
		return pkgoracle.ApplicationConfig{}, nil, fmt.Errorf("database not found in context")
	}

	evmRpc := viper.GetString(evmRpcViper)
	if evmRpc == "" {
		return pkgoracle.ApplicationConfig{}, nil, fmt.Errorf("EVM RPC endpoint is required")
	}

	contractAddress := viper.GetString(purchaseOracleViper)
	if !common.IsHexAddress(contractAddress) {
		return pkgoracle.ApplicationConfig{}, nil, fmt.Errorf("invalid purchase oracle contract address: %q", contractAddress)
	}

	updaterKey := viper.GetString(oracleUpdaterKeyViper)
	if updaterKey == "" {
		return pkgoracle.ApplicationConfig{}, nil, fmt.Errorf("oracle updater key is required")
	}

	return pkgoracle.ApplicationConfig{
		EvmRpc:           evmRpc,
		PurchaseOracle:   common.HexToAddress(contractAddress),
		OracleUpdaterKey: updaterKey,
		Database: pkgoracle.DatabaseConfig{
			Driver: database.Driver,
			DSN:    database.DSN,
		},
		DbPath:    filepath.Join(homeDir, dbFolder),
		DbBackend: dbBackend,
		CacheSize: viper.GetInt(cacheSizeViper),
		Reconcile: pkgoracle.ReconcileConfig{
			Interval:       viper.GetDuration(reconcileIntervalViper),
			Confirmations:  viper.GetUint64(reconcileConfirmationsViper),
			ReceiptTimeout: viper.GetDuration(reconcileReceiptTimeoutViper),
			Threshold:      viper.GetInt(reconcileThresholdViper),
			MaxAge:         viper.GetDuration(reconcileMaxAgeViper),
		},
		HTTP: pkgoracle.HTTPConfig{
			Address: viper.GetString(httpAddressViper),
		},
		Redis: pkgoracle.RedisConfig{
			Address: viper.GetString(redisAddressViper),
			LockKey: viper.GetString(redisLockKeyViper),
			LockTTL: viper.GetDuration(redisLockTTLViper),
		},
	}, logger, nil
}
