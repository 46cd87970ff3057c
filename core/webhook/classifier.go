package webhook

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/usezoracle/usezoracle-tg-server/config"
	"github.com/usezoracle/usezoracle-tg-server/core/model"
)

// Sentinel defaults for payload fields the sender left out. Parsing is
// total: a classified event never carries an unset field.
const (
	UnknownEventType = "unknown"
	UnknownAddress   = "unknown"
	ZeroValue        = "0"
)

const (
	EventTypeERC20Transfer = "erc20_transfer"
	EventTypeTransaction   = "transaction"
)

// RawPayload mirrors the inbound webhook body.
type RawPayload struct {
	EventType       string `json:"eventType"`
	Network         string `json:"network"`
	TransactionHash string `json:"transactionHash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ValueString     string `json:"valueString"`
	ContractAddress string `json:"contractAddress"`
}

// ParsePayload decodes raw JSON into a RawPayload with every absent
// field replaced by its sentinel. contractAddress defaults to the
// transfer's to address, value falls back to valueString.
func ParsePayload(raw []byte) RawPayload {
	var p RawPayload
	// decode errors leave the zero value, which the defaults below cover
	_ = json.Unmarshal(raw, &p)

	if p.EventType == "" {
		p.EventType = UnknownEventType
	}
	if p.Network == "" {
		p.Network = UnknownAddress
	}
	if p.TransactionHash == "" {
		p.TransactionHash = UnknownAddress
	}
	if p.From == "" {
		p.From = UnknownAddress
	}
	if p.To == "" {
		p.To = UnknownAddress
	}
	if p.Value == "" {
		p.Value = p.ValueString
	}
	if p.Value == "" {
		p.Value = ZeroValue
	}
	if p.ContractAddress == "" {
		p.ContractAddress = p.To
	}

	return p
}

// Result is the classifier outcome. Tracked=false means the webhook was
// received but concerns nothing we follow; callers acknowledge it and
// stop, they never treat it as an error.
type Result struct {
	Tracked bool
	Event   model.TransferEvent
}

// Classifier decides whether a payload concerns a tracked token. The
// token table is data, not code: it comes from the config file.
type Classifier struct {
	tokens  map[string]model.TokenInfo
	network string
}

func NewClassifier(tokens []config.TrackedToken, network string) *Classifier {
	table := make(map[string]model.TokenInfo, len(tokens))
	for _, t := range tokens {
		addr := strings.ToLower(t.Address)
		table[addr] = model.TokenInfo{
			Address:  addr,
			Symbol:   t.Symbol,
			Name:     t.Name,
			Decimals: t.Decimals,
		}
	}

	return &Classifier{tokens: table, network: network}
}

// Classify applies the decision table: erc20_transfer payloads are
// tracked iff their contract address is on the allow list and not the
// zero address; transaction payloads are native transfers; anything
// else is ignored.
func (cl *Classifier) Classify(p RawPayload) Result {
	network := p.Network
	if network == UnknownAddress && cl.network != "" {
		network = cl.network
	}

	switch p.EventType {
	case EventTypeERC20Transfer:
		contract := strings.ToLower(p.ContractAddress)
		if contract == model.NativeTokenAddress {
			return Result{}
		}

		token, ok := cl.tokens[contract]
		if !ok {
			return Result{}
		}

		return Result{
			Tracked: true,
			Event: model.TransferEvent{
				Kind:       model.TransferKindToken,
				EventType:  p.EventType,
				Network:    network,
				TxHash:     p.TransactionHash,
				From:       strings.ToLower(p.From),
				To:         strings.ToLower(p.To),
				RawValue:   p.Value,
				HumanValue: ScaleAmount(p.Value, token.Decimals),
				Token:      token,
			},
		}

	case EventTypeTransaction:
		return Result{
			Tracked: true,
			Event: model.TransferEvent{
				Kind:       model.TransferKindNative,
				EventType:  p.EventType,
				Network:    network,
				TxHash:     p.TransactionHash,
				From:       strings.ToLower(p.From),
				To:         strings.ToLower(p.To),
				RawValue:   p.Value,
				HumanValue: ScaleAmount(p.Value, model.NativeDecimals),
				Token: model.TokenInfo{
					Address:  model.NativeTokenAddress,
					Symbol:   "ETH",
					Name:     "Ether",
					Decimals: model.NativeDecimals,
				},
			},
		}
	}

	return Result{}
}

// ScaleAmount renders a raw integer amount at the token's decimal scale
// with six fractional digits. Presentational only; the raw string is
// what gets persisted.
func ScaleAmount(raw string, decimals int) string {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		d = decimal.Zero
	}

	return d.Shift(int32(-decimals)).StringFixed(6)
}
