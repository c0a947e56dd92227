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

package ctx

type contextKey string

const (
	LoggerKey    contextKey = "logger"
	HomeDirKey   contextKey = "home_dir"
	DBBackendKey contextKey = "db_backend"
	DatabaseKey  contextKey = "database"
)

// DatabaseConfig is the relational database selected by the root command flags.
type DatabaseConfig struct {
	Driver string
	DSN    string
}
