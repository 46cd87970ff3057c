package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/usezoracle/usezoracle-tg-server/config"
	"github.com/usezoracle/usezoracle-tg-server/core/model"
	"github.com/usezoracle/usezoracle-tg-server/core/webhook"
	"github.com/usezoracle/usezoracle-tg-server/utils/logger"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Init(filepath.Join(os.TempDir(), "webhook_handler_test.log"), false)
	os.Exit(m.Run())
}

type stubRegistry struct {
	byWallet map[string][]model.CopyTradeConfig
	err      error
}

func (s *stubRegistry) FindActiveByWallet(_ context.Context, wallet string) ([]model.CopyTradeConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byWallet[wallet], nil
}

type stubEvents struct {
	rows    map[string]struct{}
	failFor map[int64]bool
	upserts int
}

func newStubEvents() *stubEvents {
	return &stubEvents{rows: make(map[string]struct{}), failFor: make(map[int64]bool)}
}

func (s *stubEvents) Upsert(_ context.Context, ev *model.CopyTradeEvent) (bool, error) {
	s.upserts++
	if s.failFor[ev.ConfigID] {
		return false, errors.New("storage unavailable")
	}

	key := fmt.Sprintf("%d/%s", ev.ConfigID, ev.OriginalTxHash)
	if _, ok := s.rows[key]; ok {
		return false, nil
	}
	s.rows[key] = struct{}{}
	return true, nil
}

type stubNotifier struct {
	available bool
	sent      []string
	err       error
}

func (s *stubNotifier) IsAvailable() bool { return s.available }

func (s *stubNotifier) Send(_ context.Context, text string) error {
	s.sent = append(s.sent, text)
	return s.err
}

const trackedWallet = "0x00000000000000000000000000000000000aaaaa"

func testHandler(registry *stubRegistry, events *stubEvents, notifier *stubNotifier) *WebhookHandler {
	cl := webhook.NewClassifier([]config.TrackedToken{
		{Address: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", Symbol: "USDC", Name: "USD Coin", Decimals: 6},
	}, "base")
	return NewWebhookHandler(cl, registry, events, notifier)
}

func postWebhook(h *WebhookHandler, body []byte, headers map[string]string) (*httptest.ResponseRecorder, *WebhookAck) {
	router := gin.New()
	router.POST("/", h.Handle)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var ack WebhookAck
	_ = json.Unmarshal(w.Body.Bytes(), &ack)
	return w, &ack
}

func nativeTransferBody(txHash string) []byte {
	return []byte(fmt.Sprintf(`{
		"eventType": "transaction",
		"network": "base",
		"transactionHash": %q,
		"from": %q,
		"to": "0xbbb",
		"value": "1000000000000000000"
	}`, txHash, trackedWallet))
}

func TestHandleIgnoredEventAcknowledged(t *testing.T) {
	events := newStubEvents()
	notifier := &stubNotifier{available: true}
	h := testHandler(&stubRegistry{}, events, notifier)

	w, ack := postWebhook(h, []byte(`{"eventType":"nft_transfer","network":"base"}`), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("ignored event must be acknowledged with 200, got %d", w.Code)
	}
	if ack.EventType != "nft_transfer" || ack.Network != "base" {
		t.Errorf("ack must carry event type and network: %+v", ack)
	}
	if ack.ReceivedData == nil {
		t.Error("ignored ack must echo received data")
	}
	if events.upserts != 0 {
		t.Error("ignored event must not touch the store")
	}
	if len(notifier.sent) != 0 {
		t.Error("ignored event must not notify")
	}
}

func TestHandleInvalidSignature(t *testing.T) {
	events := newStubEvents()
	h := testHandler(&stubRegistry{}, events, &stubNotifier{available: true})

	body := nativeTransferBody("0x1")
	w, ack := postWebhook(h, body, map[string]string{
		"x-coinbase-signature": strings.Repeat("00", 32),
	})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("invalid signature must yield 401, got %d", w.Code)
	}
	if ack.Message == "" {
		t.Error("authentication failure must still be a structured ack")
	}
	if events.upserts != 0 {
		t.Error("authentication failure must have no side effects")
	}
}

func TestHandleValidSignature(t *testing.T) {
	events := newStubEvents()
	registry := &stubRegistry{byWallet: map[string][]model.CopyTradeConfig{
		trackedWallet: {{ID: 1, AccountName: "acct", TargetWalletAddress: trackedWallet}},
	}}
	h := testHandler(registry, events, &stubNotifier{available: true})

	body := nativeTransferBody("0x2")
	// handler runs with the zero-value webhook config, so the shared secret is empty
	w, _ := postWebhook(h, body, map[string]string{
		"x-webhook-signature": webhook.Sign(body, ""),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("valid signature rejected: %d, %s", w.Code, w.Body.String())
	}
	if len(events.rows) != 1 {
		t.Errorf("expected one event row, got %d", len(events.rows))
	}
}

func TestHandleIdempotentRedelivery(t *testing.T) {
	events := newStubEvents()
	registry := &stubRegistry{byWallet: map[string][]model.CopyTradeConfig{
		trackedWallet: {{ID: 7, AccountName: "acct", TargetWalletAddress: trackedWallet}},
	}}
	notifier := &stubNotifier{available: true}
	h := testHandler(registry, events, notifier)

	body := nativeTransferBody("0xsame")
	for i := 0; i < 3; i++ {
		w, _ := postWebhook(h, body, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("delivery %d: got %d", i, w.Code)
		}
	}

	if len(events.rows) != 1 {
		t.Errorf("redelivery produced %d rows, want 1", len(events.rows))
	}
	if events.upserts != 3 {
		t.Errorf("expected 3 upsert attempts, got %d", events.upserts)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("redelivery must notify exactly once, got %d", len(notifier.sent))
	}
}

func TestHandleMatchByRecipient(t *testing.T) {
	events := newStubEvents()
	registry := &stubRegistry{byWallet: map[string][]model.CopyTradeConfig{
		trackedWallet: {{ID: 12, AccountName: "acct", TargetWalletAddress: trackedWallet}},
	}}
	notifier := &stubNotifier{available: true}
	h := testHandler(registry, events, notifier)

	// tracked wallet only on the receiving side
	body := []byte(fmt.Sprintf(`{
		"eventType": "transaction",
		"network": "base",
		"transactionHash": "0xin",
		"from": "0xccc",
		"to": %q,
		"value": "1000000000000000000"
	}`, trackedWallet))

	w, _ := postWebhook(h, body, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if _, ok := events.rows["12/0xin"]; !ok {
		t.Error("transfer into the tracked wallet not recorded")
	}
	if len(notifier.sent) != 1 {
		t.Errorf("expected one alert, got %d", len(notifier.sent))
	}
}

func TestHandleSelfTransferDedupedByConfig(t *testing.T) {
	events := newStubEvents()
	registry := &stubRegistry{byWallet: map[string][]model.CopyTradeConfig{
		trackedWallet: {{ID: 13, AccountName: "acct", TargetWalletAddress: trackedWallet}},
	}}
	notifier := &stubNotifier{available: true}
	h := testHandler(registry, events, notifier)

	// tracked wallet on both sides: the from and to lookups hit the
	// same config, which must produce one branch, not two
	body := []byte(fmt.Sprintf(`{
		"eventType": "transaction",
		"network": "base",
		"transactionHash": "0xself",
		"from": %q,
		"to": %q,
		"value": "1000000000000000000"
	}`, trackedWallet, trackedWallet))

	w, ack := postWebhook(h, body, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if events.upserts != 1 {
		t.Errorf("expected a single upsert attempt, got %d", events.upserts)
	}
	if len(events.rows) != 1 {
		t.Errorf("expected one event row, got %d", len(events.rows))
	}
	if len(notifier.sent) != 1 {
		t.Errorf("expected one alert, got %d", len(notifier.sent))
	}
	if !strings.Contains(ack.Message, "1 matched") {
		t.Errorf("ack must report a single match: %q", ack.Message)
	}
}

func TestHandleFanOutIndependence(t *testing.T) {
	events := newStubEvents()
	events.failFor[1] = true

	registry := &stubRegistry{byWallet: map[string][]model.CopyTradeConfig{
		trackedWallet: {
			{ID: 1, AccountName: "alice", TargetWalletAddress: trackedWallet},
			{ID: 2, AccountName: "bob", TargetWalletAddress: trackedWallet},
		},
	}}
	notifier := &stubNotifier{available: true}
	h := testHandler(registry, events, notifier)

	w, ack := postWebhook(h, nativeTransferBody("0xfan"), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("partial failure must still acknowledge: %d", w.Code)
	}
	if _, ok := events.rows["2/0xfan"]; !ok {
		t.Error("sibling branch must commit despite the failed one")
	}
	if len(events.rows) != 1 {
		t.Errorf("expected exactly one committed row, got %d", len(events.rows))
	}
	if len(notifier.sent) != 1 {
		t.Errorf("notification must still be attempted, got %d sends", len(notifier.sent))
	}
	if !strings.Contains(ack.Message, "1 failed") {
		t.Errorf("ack must summarize the partial failure: %q", ack.Message)
	}
}

func TestHandleNotifierUnavailable(t *testing.T) {
	events := newStubEvents()
	registry := &stubRegistry{byWallet: map[string][]model.CopyTradeConfig{
		trackedWallet: {{ID: 3, AccountName: "acct", TargetWalletAddress: trackedWallet}},
	}}
	notifier := &stubNotifier{available: false}
	h := testHandler(registry, events, notifier)

	w, _ := postWebhook(h, nativeTransferBody("0x3"), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if len(events.rows) != 1 {
		t.Error("persistence must not depend on the notification channel")
	}
	if len(notifier.sent) != 0 {
		t.Error("unavailable channel must be skipped, not used")
	}
}

func TestHandleNotificationFailureNonFatal(t *testing.T) {
	events := newStubEvents()
	registry := &stubRegistry{byWallet: map[string][]model.CopyTradeConfig{
		trackedWallet: {{ID: 4, AccountName: "acct", TargetWalletAddress: trackedWallet}},
	}}
	notifier := &stubNotifier{available: true, err: errors.New("telegram down")}
	h := testHandler(registry, events, notifier)

	w, _ := postWebhook(h, nativeTransferBody("0x4"), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("notification failure leaked into the response: %d", w.Code)
	}
	if len(events.rows) != 1 {
		t.Error("committed event row lost after notification failure")
	}
}

func TestHandleRegistryUnavailable(t *testing.T) {
	events := newStubEvents()
	registry := &stubRegistry{err: errors.New("db down")}
	h := testHandler(registry, events, &stubNotifier{available: true})

	w, ack := postWebhook(h, nativeTransferBody("0x5"), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("lookup failure must still acknowledge receipt: %d", w.Code)
	}
	if !strings.Contains(ack.Message, "0 matched") {
		t.Errorf("ack message: %q", ack.Message)
	}
}

func TestHandleERC20MatchTokenInfo(t *testing.T) {
	events := newStubEvents()
	registry := &stubRegistry{byWallet: map[string][]model.CopyTradeConfig{
		trackedWallet: {{ID: 9, AccountName: "acct", TargetWalletAddress: trackedWallet}},
	}}
	h := testHandler(registry, events, &stubNotifier{available: true})

	body := []byte(fmt.Sprintf(`{
		"eventType": "erc20_transfer",
		"network": "base",
		"transactionHash": "0x9",
		"from": %q,
		"to": "0xccc",
		"value": "2500000",
		"contractAddress": "0x833589FCD6EDB6E08F4C7C32D4F71B54BDA02913"
	}`, trackedWallet))

	w, ack := postWebhook(h, body, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if ack.TokenInfo == nil || ack.TokenInfo.Symbol != "USDC" {
		t.Fatalf("ack token info: %+v", ack.TokenInfo)
	}
	if ack.TokenType != string(model.TransferKindToken) {
		t.Errorf("token type: %q", ack.TokenType)
	}

	if _, ok := events.rows["9/0x9"]; !ok {
		t.Error("tracked ERC-20 transfer not recorded")
	}
}
