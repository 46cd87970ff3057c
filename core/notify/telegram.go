package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/usezoracle/usezoracle-tg-server/core/model"
)

// TelegramNotifier sends copy-trade alerts through the Telegram bot
// sendMessage API. Dispatch is strictly best-effort: callers log
// failures and move on, nothing is queued or retried.
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// IsAvailable reports whether the outbound channel is usable. Missing
// credentials mean notifications are skipped, never queued.
func (n *TelegramNotifier) IsAvailable() bool {
	return n.botToken != "" && n.chatID != ""
}

type sendMessageBody struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (n *TelegramNotifier) Send(ctx context.Context, text string) error {
	hook := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)

	body, err := json.Marshal(&sendMessageBody{ChatID: n.chatID, Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("telegram sendMessage failed, %s: %s", res.Status, string(data))
	}

	return nil
}

// FormatTransfer renders the alert text for a classified transfer:
// one shape for native-asset moves, one for fungible tokens.
func FormatTransfer(ev model.TransferEvent) string {
	if ev.Kind == model.TransferKindNative {
		return fmt.Sprintf(
			"🔔 Native transfer detected\nFrom: %s\nTo: %s\nAmount: %s ETH\nTx: %s\nNetwork: %s",
			ev.From, ev.To, ev.HumanValue, ev.TxHash, ev.Network)
	}

	return fmt.Sprintf(
		"🔔 %s transfer detected\nToken: %s (%s)\nFrom: %s\nTo: %s\nAmount: %s %s\nTx: %s\nNetwork: %s",
		ev.Token.Symbol, ev.Token.Name, ev.Token.Address,
		ev.From, ev.To, ev.HumanValue, ev.Token.Symbol, ev.TxHash, ev.Network)
}
