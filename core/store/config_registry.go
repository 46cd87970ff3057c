package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/usezoracle/usezoracle-tg-server/core/model"
	"github.com/usezoracle/usezoracle-tg-server/utils/logger"
)

var (
	ErrConfigExists    = errors.New("copy-trade config already exists for this account and wallet")
	ErrConfigNotFound  = errors.New("copy-trade config not found")
	ErrNoBeneficiaries = errors.New("beneficiary address list must not be empty")
)

// pgUniqueViolation is the SQLSTATE for a unique constraint violation.
const pgUniqueViolation = "23505"

const defaultMaxSlippage = 0.05

// ConfigRegistry is the durable set of copy-trade configurations. The
// active-configs-by-wallet lookup runs on the hot ingestion path, so it
// goes through a short-TTL redis cache; every mutation invalidates the
// affected wallet key. rdb may be nil, which disables the cache.
type ConfigRegistry struct {
	db  *bun.DB
	rdb *redis.Client
	ttl time.Duration
}

func NewConfigRegistry(db *bun.DB, rdb *redis.Client, cacheTTL time.Duration) *ConfigRegistry {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &ConfigRegistry{db: db, rdb: rdb, ttl: cacheTTL}
}

func cacheKey(wallet string) string {
	return fmt.Sprintf("copytrade:configs:%s", wallet)
}

// Create stores a new config. The tracked wallet is lower-cased before
// storage so matching stays case-insensitive; slippage defaults to 0.05.
// Returns ErrConfigExists when the (account, wallet) pair is taken.
func (r *ConfigRegistry) Create(ctx context.Context, cfg *model.CopyTradeConfig) error {
	if len(cfg.BeneficiaryAddrs) == 0 {
		return ErrNoBeneficiaries
	}

	cfg.TargetWalletAddress = strings.ToLower(cfg.TargetWalletAddress)
	if cfg.MaxSlippage == 0 {
		cfg.MaxSlippage = defaultMaxSlippage
	}
	if cfg.CumulativeSpent == "" {
		cfg.CumulativeSpent = "0"
	}
	cfg.Active = true

	_, err := r.db.NewInsert().Model(cfg).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConfigExists
		}
		return err
	}

	r.invalidate(ctx, cfg.TargetWalletAddress)
	return nil
}

// FindActiveByWallet returns every active config tracking the given
// wallet address, case-insensitively.
func (r *ConfigRegistry) FindActiveByWallet(ctx context.Context, wallet string) ([]model.CopyTradeConfig, error) {
	wallet = strings.ToLower(wallet)

	if cached, ok := r.fromCache(ctx, wallet); ok {
		return cached, nil
	}

	var res []model.CopyTradeConfig
	err := r.db.NewSelect().Model(&res).
		Where("target_wallet_address = ?", wallet).
		Where("active = TRUE").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	r.toCache(ctx, wallet, res)
	return res, nil
}

func (r *ConfigRegistry) ListByAccount(ctx context.Context, account string) ([]model.CopyTradeConfig, error) {
	var res []model.CopyTradeConfig
	err := r.db.NewSelect().Model(&res).
		Where("account_name = ?", account).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Deactivate soft-deletes a config. The row stays because historical
// event rows reference it.
func (r *ConfigRegistry) Deactivate(ctx context.Context, account, wallet string) error {
	wallet = strings.ToLower(wallet)

	res, err := r.db.NewUpdate().Model((*model.CopyTradeConfig)(nil)).
		Set("active = FALSE").
		Where("account_name = ?", account).
		Where("target_wallet_address = ?", wallet).
		Exec(ctx)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConfigNotFound
	}

	r.invalidate(ctx, wallet)
	return nil
}

// RecordExecution is the mutation hook the execution subsystem calls
// after copying a trade: bumps the trade counter, adds amount to the
// cumulative spend and stamps the execution time.
func (r *ConfigRegistry) RecordExecution(ctx context.Context, configID int64, amount string) error {
	add, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("invalid execution amount %q: %w", amount, err)
	}

	var wallet string
	res, err := r.recordExecutionQuery(configID, add).Exec(ctx, &wallet)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConfigNotFound
		}
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConfigNotFound
	}

	r.invalidate(ctx, wallet)
	return nil
}

// recordExecutionQuery increments the counter and the cumulative spend
// in a single statement. The spend arithmetic runs in the database:
// the registry is a shared multiple-writer store, and a read-modify-
// write in Go would lose one of two concurrent executions for the same
// config.
func (r *ConfigRegistry) recordExecutionQuery(configID int64, add decimal.Decimal) *bun.UpdateQuery {
	return r.db.NewUpdate().Model((*model.CopyTradeConfig)(nil)).
		Set("executed_trades = executed_trades + 1").
		Set("cumulative_spent = (COALESCE(cumulative_spent, '0')::numeric + ?::numeric)::text", add.String()).
		Set("last_executed_at = ?", time.Now().UTC()).
		Where("id = ?", configID).
		Returning("target_wallet_address")
}

func (r *ConfigRegistry) fromCache(ctx context.Context, wallet string) ([]model.CopyTradeConfig, bool) {
	if r.rdb == nil {
		return nil, false
	}

	data, err := r.rdb.Get(ctx, cacheKey(wallet)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Logrus.WithFields(logrus.Fields{"Wallet": wallet, "ErrMsg": err}).Warn("config cache read failed")
		}
		return nil, false
	}

	var res []model.CopyTradeConfig
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, false
	}
	return res, true
}

func (r *ConfigRegistry) toCache(ctx context.Context, wallet string, cfgs []model.CopyTradeConfig) {
	if r.rdb == nil {
		return
	}

	data, err := json.Marshal(cfgs)
	if err != nil {
		return
	}

	if err := r.rdb.Set(ctx, cacheKey(wallet), data, r.ttl).Err(); err != nil {
		logger.Logrus.WithFields(logrus.Fields{"Wallet": wallet, "ErrMsg": err}).Warn("config cache write failed")
	}
}

func (r *ConfigRegistry) invalidate(ctx context.Context, wallet string) {
	if r.rdb == nil {
		return
	}

	if err := r.rdb.Del(ctx, cacheKey(wallet)).Err(); err != nil {
		logger.Logrus.WithFields(logrus.Fields{"Wallet": wallet, "ErrMsg": err}).Warn("config cache invalidate failed")
	}
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == pgUniqueViolation
	}
	return false
}
