// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"strings"
)

// DatabaseConfig holds configuration for SQL database connections.
// Supports PostgreSQL, MySQL, and SQLite.
type DatabaseConfig struct {
	// Driver is "postgres", "mysql", or "sqlite".
	Driver string `yaml:"driver,omitempty"`

	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"` // file path for SQLite
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`

	MaxConns int `yaml:"max_conns,omitempty"`
	MaxIdle  int `yaml:"max_idle,omitempty"`

	// ReadOnly opens SQLite files with mode=ro.
	ReadOnly *bool `yaml:"read_only,omitempty"`
}

// SetDefaults applies default values to the database config.
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}

	if c.Port == 0 {
		switch c.Driver {
		case "postgres":
			c.Port = 5432
		case "mysql":
			c.Port = 3306
		}
	}

	if c.Driver == "postgres" && c.SSLMode == "" {
		c.SSLMode = "disable"
	}
}

// Validate checks the database configuration.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "postgres", "mysql", "sqlite", "sqlite3":
	case "":
		return fmt.Errorf("driver is required")
	default:
		return fmt.Errorf("invalid driver %q (valid: postgres, mysql, sqlite)", c.Driver)
	}

	if c.Database == "" {
		return fmt.Errorf("database is required")
	}

	if !c.IsSQLite() && c.Host == "" {
		return fmt.Errorf("host is required for %s", c.Driver)
	}

	if c.MaxConns < 0 || c.MaxIdle < 0 {
		return fmt.Errorf("max_conns and max_idle must be non-negative")
	}

	return nil
}

// IsSQLite reports whether the driver is SQLite.
func (c *DatabaseConfig) IsSQLite() bool {
	return c.Driver == "sqlite" || c.Driver == "sqlite3"
}

// IsReadOnly reports whether the connection should refuse writes.
func (c *DatabaseConfig) IsReadOnly() bool {
	return c.ReadOnly != nil && *c.ReadOnly
}

// DSN returns the data source name for the database.
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s", c.Host, c.Port, c.Database)
		if c.Username != "" {
			dsn += fmt.Sprintf(" user=%s", c.Username)
		}
		if c.Password != "" {
			dsn += fmt.Sprintf(" password=%s", c.Password)
		}
		if c.SSLMode != "" {
			dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
		}
		return dsn
	case "mysql":
		// [username[:password]@][protocol[(address)]]/dbname
		if c.Username != "" {
			return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
				c.Username, c.Password, c.Host, c.Port, c.Database)
		}
		return fmt.Sprintf("tcp(%s:%d)/%s", c.Host, c.Port, c.Database)
	case "sqlite", "sqlite3":
		if c.IsReadOnly() && c.Database != ":memory:" && !strings.HasPrefix(c.Database, "file:") {
			return "file:" + c.Database + "?mode=ro"
		}
		return c.Database
	default:
		return ""
	}
}

// DriverName returns the driver name for sql.Open().
func (c *DatabaseConfig) DriverName() string {
	if c.Driver == "sqlite" {
		return "sqlite3"
	}
	return c.Driver
}

// Dialect returns the normalized SQL dialect name.
func (c *DatabaseConfig) Dialect() string {
	if c.Driver == "sqlite3" {
		return "sqlite"
	}
	return c.Driver
}
