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

package storage

import (
	"fmt"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// OpenDatabase opens the relational database with the given driver and creates the schema.
func OpenDatabase(driver, dsn string, logger log.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q, expected one of [%s, %s]", driver, DriverPostgres, DriverSQLite)
	}

	database, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(logger, gormlogger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// sqlite allows a single writer, serialize access instead of failing with "database is locked"
		sqlDB, err := database.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql database: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(database); err != nil {
		return nil, err
	}

	return database, nil
}

// Migrate creates or updates the schema of the relational storage.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(&ProductOracle{}, &PurchaseStatus{}, &PurchaseItem{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	return nil
}

// CloseDatabase closes the underlying connection pool.
func CloseDatabase(database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("get sql database: %w", err)
	}

	return sqlDB.Close()
}
