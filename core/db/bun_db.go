package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/usezoracle/usezoracle-tg-server/config"
	"github.com/usezoracle/usezoracle-tg-server/core/model"
)

var db *bun.DB
var once sync.Once

// GetDB get postgressql db instance by sync.Once
func GetDB() *bun.DB {
	once.Do(func() {
		cfg := config.GetPostgresqlConfig()
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&connect_timeout=10",
			cfg.Account, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithConnParams(map[string]interface{}{
			"search_path": cfg.SchemaName,
		})))

		sqldb.SetMaxOpenConns(10)
		sqldb.SetMaxIdleConns(5)
		sqldb.SetConnMaxLifetime(time.Hour)

		db = bun.NewDB(sqldb, pgdialect.New())
	})
	return db
}

// InitSchema creates the copy-trade tables if they do not exist. The
// unique groups on the models become the uniqueness constraints the
// pipeline relies on: (account_name, target_wallet_address) for configs
// and (config_id, original_tx_hash) for events.
func InitSchema(ctx context.Context) error {
	models := []interface{}{
		(*model.CopyTradeConfig)(nil),
		(*model.CopyTradeEvent)(nil),
	}

	for _, m := range models {
		if _, err := GetDB().NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	return nil
}
