package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/usezoracle/usezoracle-tg-server/config"
	"github.com/usezoracle/usezoracle-tg-server/core/model"
	"github.com/usezoracle/usezoracle-tg-server/core/notify"
	"github.com/usezoracle/usezoracle-tg-server/core/webhook"
	"github.com/usezoracle/usezoracle-tg-server/utils/logger"
)

// ConfigMatcher resolves which active copy-trade configs a classified
// transfer concerns.
type ConfigMatcher interface {
	FindActiveByWallet(ctx context.Context, wallet string) ([]model.CopyTradeConfig, error)
}

// EventUpserter is the idempotent event sink. inserted=false signals a
// redelivered webhook, which is success.
type EventUpserter interface {
	Upsert(ctx context.Context, ev *model.CopyTradeEvent) (bool, error)
}

// Notifier is the outbound alert channel.
type Notifier interface {
	IsAvailable() bool
	Send(ctx context.Context, text string) error
}

// WebhookHandler drives a webhook request through
// verify → classify → match → persist → notify → acknowledge.
// Collaborators are injected at startup; the classifier can be swapped
// when the tracked-token table is reloaded from disk.
type WebhookHandler struct {
	mu         sync.RWMutex
	classifier *webhook.Classifier

	registry ConfigMatcher
	events   EventUpserter
	notifier Notifier
}

func NewWebhookHandler(cl *webhook.Classifier, registry ConfigMatcher, events EventUpserter, notifier Notifier) *WebhookHandler {
	return &WebhookHandler{
		classifier: cl,
		registry:   registry,
		events:     events,
		notifier:   notifier,
	}
}

func (h *WebhookHandler) SetClassifier(cl *webhook.Classifier) {
	h.mu.Lock()
	h.classifier = cl
	h.mu.Unlock()
}

func (h *WebhookHandler) getClassifier() *webhook.Classifier {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.classifier
}

func printStack() string {
	var buf [4096]byte
	n := runtime.Stack(buf[:], false)
	return string(buf[:n])
}

func newAck() *WebhookAck {
	return &WebhookAck{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		EventType: webhook.UnknownEventType,
		Network:   webhook.UnknownAddress,
	}
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	ack := newAck()
	defer func() {
		if err := recover(); err != nil {
			logger.Logrus.WithFields(logrus.Fields{"ErrMsg": err, "Stack": printStack()}).Error("webhook handler panic")
			ack.Message = "internal error"
			c.JSON(http.StatusInternalServerError, ack)
		}
	}()

	body, err := c.GetRawData()
	if err != nil {
		logger.Logrus.WithFields(logrus.Fields{"ErrMsg": err}).Error("webhook read body failed")
		ack.Message = "unreadable request body"
		c.JSON(http.StatusBadRequest, ack)
		return
	}

	// Received → Verified. An authentication failure is the only outcome
	// that halts the whole request: no persistence, no notification.
	wcfg := config.GetWebhookConfig()
	sig, _ := webhook.SignatureFromHeader(c.Request.Header)
	if _, err := webhook.Process(body, sig, wcfg.SharedSecret, wcfg.RequireSignature); err != nil {
		logger.Logrus.WithFields(logrus.Fields{"ErrMsg": err}).Warn("webhook signature rejected")
		ack.Message = err.Error()
		c.JSON(http.StatusUnauthorized, ack)
		return
	}

	// Verified → Classified.
	payload := webhook.ParsePayload(body)
	ack.EventType = payload.EventType

	res := h.getClassifier().Classify(payload)
	if !res.Tracked {
		// Received but irrelevant: acknowledge so the sender stops
		// redelivering, persist nothing.
		ack.Network = payload.Network
		ack.ReceivedData = payload
		ack.Message = "event received"
		c.JSON(http.StatusOK, ack)
		return
	}

	ev := res.Event
	ack.Network = ev.Network
	ack.TokenInfo = &ev.Token
	ack.TokenType = string(ev.Kind)

	ctx := c.Request.Context()

	// Classified → Matched.
	configs := h.matchConfigs(ctx, ev)

	// Matched → Persisted, one independent branch per config.
	recorded, duplicates, failed := 0, 0, 0
	for _, cfg := range configs {
		row := buildEventRow(cfg, ev)

		inserted, err := h.events.Upsert(ctx, row)
		if err != nil {
			// This branch fails; siblings keep going. The sender's
			// redelivery will retry it, idempotently.
			failed++
			logger.Logrus.WithFields(logrus.Fields{"ConfigID": cfg.ID, "TxHash": ev.TxHash, "ErrMsg": err}).Error("copy-trade event persist failed")
			continue
		}
		if !inserted {
			duplicates++
			logger.Logrus.WithFields(logrus.Fields{"ConfigID": cfg.ID, "TxHash": ev.TxHash}).Info("copy-trade event already recorded")
			continue
		}
		recorded++
	}

	// Persisted → NotificationAttempted: at most one outbound alert per
	// qualifying event, only when something new was recorded, and never
	// for a pure redelivery.
	if recorded > 0 {
		h.dispatch(ctx, ev)
	}

	ack.Message = fmt.Sprintf("event processed: %d matched, %d recorded, %d duplicate, %d failed",
		len(configs), recorded, duplicates, failed)
	c.JSON(http.StatusOK, ack)
}

// matchConfigs looks up active configs by both sides of the transfer
// and dedupes by config id. A lookup failure is logged and yields no
// matches for that side; it never aborts the request.
func (h *WebhookHandler) matchConfigs(ctx context.Context, ev model.TransferEvent) []model.CopyTradeConfig {
	seen := make(map[int64]struct{})
	var res []model.CopyTradeConfig

	for _, wallet := range []string{ev.From, ev.To} {
		if wallet == webhook.UnknownAddress {
			continue
		}

		cfgs, err := h.registry.FindActiveByWallet(ctx, wallet)
		if err != nil {
			logger.Logrus.WithFields(logrus.Fields{"Wallet": wallet, "TxHash": ev.TxHash, "ErrMsg": err}).Error("config lookup failed")
			continue
		}

		for _, cfg := range cfgs {
			if _, ok := seen[cfg.ID]; ok {
				continue
			}
			seen[cfg.ID] = struct{}{}
			res = append(res, cfg)
		}
	}

	return res
}

func buildEventRow(cfg model.CopyTradeConfig, ev model.TransferEvent) *model.CopyTradeEvent {
	return &model.CopyTradeEvent{
		ConfigID:            cfg.ID,
		OriginalTxHash:      ev.TxHash,
		AccountName:         cfg.AccountName,
		TargetWalletAddress: cfg.TargetWalletAddress,
		TokenAddress:        ev.Token.Address,
		TokenSymbol:         ev.Token.Symbol,
		TokenName:           ev.Token.Name,
		OriginalAmount:      ev.RawValue,
		// no copy transformation has happened yet at ingestion time
		CopiedAmount: ev.RawValue,
		Status:       model.EventStatusPending,
		Timestamp:    time.Now().UTC(),
	}
}

// dispatch sends the alert best-effort. Nothing here may propagate:
// the event rows are already committed.
func (h *WebhookHandler) dispatch(ctx context.Context, ev model.TransferEvent) {
	if !h.notifier.IsAvailable() {
		logger.Logrus.WithFields(logrus.Fields{"TxHash": ev.TxHash}).Info("notification channel unavailable, skipping alert")
		return
	}

	if err := h.notifier.Send(ctx, notify.FormatTransfer(ev)); err != nil {
		logger.Logrus.WithFields(logrus.Fields{"TxHash": ev.TxHash, "ErrMsg": err}).Error("notification send failed")
	}
}
