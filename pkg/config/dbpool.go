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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DBPool shares *sql.DB handles between the data tool, the metadata loader
// and the SQL state store. SQLite handles use a single connection so writers
// never see "database is locked".
type DBPool struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
}

// NewDBPool creates an empty pool.
func NewDBPool() *DBPool {
	return &DBPool{pools: make(map[string]*sql.DB)}
}

// Get returns the handle for cfg, opening it on first use.
func (p *DBPool) Get(ctx context.Context, cfg *DatabaseConfig) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := cfg.DriverName() + "|" + cfg.DSN()
	if db, ok := p.pools[key]; ok {
		return db, nil
	}

	db, err := open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.pools[key] = db
	return db, nil
}

func open(ctx context.Context, cfg *DatabaseConfig) (*sql.DB, error) {
	driverName := cfg.DriverName()

	db, err := sql.Open(driverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driverName == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(cfg.MaxConns)
		}
		if cfg.MaxIdle > 0 {
			db.SetMaxIdleConns(cfg.MaxIdle)
		}
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driverName == "sqlite3" && !cfg.IsReadOnly() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			slog.Warn("Failed to enable WAL mode", "database", cfg.Database, "error", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=10000"); err != nil {
			slog.Warn("Failed to set busy timeout", "database", cfg.Database, "error", err)
		}
	}

	slog.Debug("Opened database", "driver", driverName, "database", cfg.Database, "read_only", cfg.IsReadOnly())
	return db, nil
}

// Close closes every pooled handle.
func (p *DBPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for key, db := range p.pools {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	p.pools = make(map[string]*sql.DB)
	return errors.Join(errs...)
}
