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
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Galactica-corp/purchase-oracle-service/internal/query"
	"github.com/Galactica-corp/purchase-oracle-service/internal/utils"
	pkgoracle "github.com/Galactica-corp/purchase-oracle-service/pkg/oracle"
)

func CreateStartCmd() *cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the purchase oracle",
		Long: `Start the purchase oracle: the HTTP server receiving merchant webhooks and serving proofs,
and the reconciliation job committing purchases and syncing the product roots on-chain.`,
		PreRun: func(cmd *cobra.Command, args []string) {
			bindFlags(cmd)
			utils.MustBindPFlag(viper.GetViper(), httpAddressViper, cmd.Flags().Lookup(httpAddressFlag))
			viper.MustBindEnv(httpAddressViper, httpAddressEnv)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, logger, err := getApplicationConfig(cmd)
			if err != nil {
				return err
			}

			for {
				if err := pkgoracle.StartApplication(cmd.Context(), appConfig, logger); err != nil {
					logger.Error("service produced an error", "error", err)
				}

				needStop := false
				select {
				case <-cmd.Context().Done():
					needStop = true
				default:
				}

				if needStop {
					logger.Info("stopping application")
					break
				}

				logger.Error("restarting application in 5 seconds")
				select {
				case <-cmd.Context().Done():
				case <-time.After(5 * time.Second):
				}
			}

			logger.Info("gracefully stopped purchase oracle")

			return nil
		},
	}

	initFlags(startCmd)
	startCmd.Flags().String(httpAddressFlag, query.DefaultAddr, "HTTP server address")

	return startCmd
}
