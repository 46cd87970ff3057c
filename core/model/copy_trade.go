package model

import (
	"time"

	"github.com/uptrace/bun"
)

// NativeTokenAddress is the all-zero sentinel used for the chain's base
// asset in event rows and classified transfers.
const NativeTokenAddress = "0x0000000000000000000000000000000000000000"

// NativeDecimals is the decimal scale of the chain's base asset (wei).
const NativeDecimals = 18

type EventStatus string

const (
	EventStatusPending EventStatus = "pending"
	EventStatusSuccess EventStatus = "success"
	EventStatusFailed  EventStatus = "failed"
)

// CopyTradeConfig is one tracked follow relationship: an account copying
// the activity of a target wallet. Unique per (account_name,
// target_wallet_address); the wallet is always stored lower-cased.
// Configs are never deleted, only deactivated, because event rows keep
// referencing them.
type CopyTradeConfig struct {
	bun.BaseModel `bun:"table:copy_trade_configs,alias:ctc"`

	ID                  int64    `bun:"id,pk,autoincrement" json:"id"`
	AccountName         string   `bun:"account_name,notnull,unique:uq_account_wallet" json:"account_name"`
	TargetWalletAddress string   `bun:"target_wallet_address,notnull,unique:uq_account_wallet" json:"target_wallet_address"`
	BeneficiaryAddrs    []string `bun:"beneficiary_addresses,array" json:"beneficiary_addresses"`
	DelegationAmount    string   `bun:"delegation_amount" json:"delegation_amount"`
	MaxSlippage         float64  `bun:"max_slippage" json:"max_slippage"`
	BuyOnly             bool     `bun:"buy_only" json:"buy_only"`
	AllowedRouters      []string `bun:"allowed_routers,array" json:"allowed_routers"`
	Active              bool     `bun:"active" json:"active"`

	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	LastExecutedAt  *time.Time `bun:"last_executed_at" json:"last_executed_at,omitempty"`
	ExecutedTrades  int64      `bun:"executed_trades" json:"executed_trades"`
	CumulativeSpent string     `bun:"cumulative_spent,default:'0'" json:"cumulative_spent"`
}

// CopyTradeEvent is one detected qualifying transfer on a tracked wallet.
// (config_id, original_tx_hash) is the idempotency key of the whole
// ingestion pipeline; rows are never deleted, they are the audit trail.
type CopyTradeEvent struct {
	bun.BaseModel `bun:"table:copy_trade_events,alias:cte"`

	ID                  int64  `bun:"id,pk,autoincrement" json:"id"`
	ConfigID            int64  `bun:"config_id,notnull,unique:uq_config_tx" json:"config_id"`
	OriginalTxHash      string `bun:"original_tx_hash,notnull,unique:uq_config_tx" json:"original_tx_hash"`
	AccountName         string `bun:"account_name,notnull" json:"account_name"`
	TargetWalletAddress string `bun:"target_wallet_address,notnull" json:"target_wallet_address"`

	TokenAddress string `bun:"token_address" json:"token_address"`
	TokenSymbol  string `bun:"token_symbol" json:"token_symbol"`
	TokenName    string `bun:"token_name" json:"token_name"`

	// Raw integer strings, pre decimal scaling. Formatting happens only
	// in the notification text.
	OriginalAmount string `bun:"original_amount" json:"original_amount"`
	CopiedAmount   string `bun:"copied_amount" json:"copied_amount"`

	ResultTxHash string      `bun:"result_tx_hash,nullzero" json:"result_tx_hash,omitempty"`
	Status       EventStatus `bun:"status,notnull,default:'pending'" json:"status"`
	ErrorMessage string      `bun:"error_message" json:"error_message,omitempty"`
	Timestamp    time.Time   `bun:"timestamp,nullzero,notnull,default:current_timestamp" json:"timestamp"`
}

// TokenInfo describes the token a classified transfer concerns.
type TokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
}

type TransferKind string

const (
	TransferKindNative TransferKind = "native"
	TransferKindToken  TransferKind = "token"
)

// TransferEvent is the typed, total result of classifying a raw webhook
// payload. No field is ever left unset: parsing fills sentinel defaults
// before classification runs.
type TransferEvent struct {
	Kind       TransferKind `json:"kind"`
	EventType  string       `json:"event_type"`
	Network    string       `json:"network"`
	TxHash     string       `json:"transaction_hash"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	RawValue   string       `json:"raw_value"`
	HumanValue string       `json:"human_value"`
	Token      TokenInfo    `json:"token"`
}
