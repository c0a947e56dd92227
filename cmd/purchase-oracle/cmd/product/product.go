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

package product

import (
	"encoding/json"
	"fmt"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Galactica-corp/purchase-oracle-service/cmd/purchase-oracle/cmd/ctx"
	"github.com/Galactica-corp/purchase-oracle-service/internal/storage"
	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
	"github.com/Galactica-corp/purchase-oracle-service/internal/utils"
)

const (
	productIDFlag        = "product-id"
	platformFlag         = "platform"
	hookSignatureKeyFlag = "hook-signature-key"
	hookSignatureKeyEnv  = "HOOK_SIGNATURE_KEY"
	hookSignatureViper   = "product.hook_signature_key"
)

func CreateProductCmd() *cobra.Command {
	productCmd := &cobra.Command{
		Use:   "product",
		Short: "Manage the product oracles",
	}

	productCmd.AddCommand(createAddCmd())
	productCmd.AddCommand(createListCmd())

	return productCmd
}

func createAddCmd() *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a product oracle or update its platform",
		Long: `Register the product with the purchase oracle. Purchases reported by webhooks of the
product are accepted only once the product is registered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			productIDValue, _ := cmd.Flags().GetString(productIDFlag)
			productID, err := utils.ParseUint256Hash(productIDValue)
			if err != nil {
				return fmt.Errorf("invalid product id %q: %w", productIDValue, err)
			}

			platformValue, _ := cmd.Flags().GetString(platformFlag)
			platform, err := types.ParsePlatform(platformValue)
			if err != nil {
				return err
			}

			if err := viper.BindEnv(hookSignatureViper, hookSignatureKeyEnv); err != nil {
				return err
			}
			if err := viper.BindPFlag(hookSignatureViper, cmd.Flags().Lookup(hookSignatureKeyFlag)); err != nil {
				return err
			}

			return withStore(cmd, func(store *storage.Store) error {
				oracle, err := store.UpsertProductOracle(cmd.Context(), &storage.ProductOracle{
					ProductID:        productID.Hex(),
					HookSignatureKey: viper.GetString(hookSignatureViper),
					Platform:         platform,
				})
				if err != nil {
					return err
				}

				return printJSON(cmd, oracle)
			})
		},
	}

	addCmd.Flags().String(productIDFlag, "", "product id, a hex or decimal 256-bit number")
	addCmd.Flags().String(platformFlag, string(types.PlatformShopify), "merchant platform: [shopify, woo-commerce, custom, internal]")
	addCmd.Flags().String(hookSignatureKeyFlag, "", "secret of the platform webhook signatures")
	_ = addCmd.MarkFlagRequired(productIDFlag)

	return addCmd
}

func createListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the product oracles with their sync state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *storage.Store) error {
				oracles, err := store.SelectOracles(cmd.Context())
				if err != nil {
					return err
				}

				return printJSON(cmd, oracles)
			})
		},
	}
}

func withStore(cmd *cobra.Command, fn func(store *storage.Store) error) error {
	logger, ok := cmd.Context().Value(ctx.LoggerKey).(log.Logger)
	if !ok {
		return fmt.Errorf("logger not found in context")
	}

	database, ok := cmd.Context().Value(ctx.DatabaseKey).(ctx.DatabaseConfig)
	if !ok {
		return fmt.Errorf("database not found in context")
	}

	db, err := storage.OpenDatabase(database.Driver, database.DSN, logger.With("component", "gorm"))
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.CloseDatabase(db); err != nil {
			logger.Error("close relational DB", "error", err)
		}
	}()

	return fn(storage.NewStore(db))
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	cmd.Println(string(out))
	return nil
}
