package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/usezoracle/usezoracle-tg-server/config"
	"github.com/usezoracle/usezoracle-tg-server/core/db"
	"github.com/usezoracle/usezoracle-tg-server/core/notify"
	"github.com/usezoracle/usezoracle-tg-server/core/redis"
	"github.com/usezoracle/usezoracle-tg-server/core/store"
	"github.com/usezoracle/usezoracle-tg-server/core/web"
	"github.com/usezoracle/usezoracle-tg-server/core/web/handler"
	"github.com/usezoracle/usezoracle-tg-server/core/webhook"
	"github.com/usezoracle/usezoracle-tg-server/utils/logger"
)

func main() {
	configPath := flag.String("config_path", "./", "config file")
	logicLogFile := flag.String("logic_log_file", "./log/tg_server.log", "logic log file")
	flag.Parse()

	logger.Init(*logicLogFile, true)

	err := config.LoadConf(*configPath)
	if err != nil {
		log.Fatal("load config failed:", err)
	}

	logger.SetLogLevel(config.GetServerConfig().RunMode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.InitSchema(ctx)
	cancel()
	if err != nil {
		log.Fatal("init schema failed:", err)
	}

	rdb := redis.GetRedisInst()

	cacheTTL := time.Duration(config.GetRedisConfig().CacheTTLSec) * time.Second
	registry := store.NewConfigRegistry(db.GetDB(), rdb, cacheTTL)
	events := store.NewEventStore(db.GetDB())

	tgCfg := config.GetTelegramConfig()
	notifier := notify.NewTelegramNotifier(tgCfg.BotToken, tgCfg.ChatID)

	wcfg := config.GetWebhookConfig()
	wh := handler.NewWebhookHandler(
		webhook.NewClassifier(config.GetTrackedTokens(), wcfg.Network),
		registry, events, notifier,
	)

	// rebuild the classifier when the tracked-token table changes on disk
	confChange := make(chan bool, 1)
	config.RegistConfChange(confChange)
	go func() {
		for range confChange {
			wh.SetClassifier(webhook.NewClassifier(config.GetTrackedTokens(), config.GetWebhookConfig().Network))
			logger.Logrus.Info("classifier token table reloaded")
		}
	}()

	ch := handler.NewConfigHandler(registry)

	web.Run(wh, ch)
}
