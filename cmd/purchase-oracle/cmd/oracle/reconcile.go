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

	"github.com/spf13/cobra"

	pkgoracle "github.com/Galactica-corp/purchase-oracle-service/pkg/oracle"
)

func CreateReconcileCmd() *cobra.Command {
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run a single reconciliation",
		Long: `Commit the pending purchases into the product trees and sync the changed and unsynced
product roots on-chain once, then exit.`,
		PreRun: func(cmd *cobra.Command, args []string) {
			bindFlags(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, logger, err := getApplicationConfig(cmd)
			if err != nil {
				return err
			}

			report, err := pkgoracle.ReconcileOnce(cmd.Context(), appConfig, logger)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}

			cmd.Printf(
				"leaves committed: %d, products resynced: %d, chain writes: %d, already synced: %d, failed: %d\n",
				report.LeavesCommitted,
				len(report.Products),
				report.ChainWrites,
				report.AlreadySynced,
				report.Failed,
			)

			return nil
		},
	}

	initFlags(reconcileCmd)

	return reconcileCmd
}
