package web

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/usezoracle/usezoracle-tg-server/config"
	"github.com/usezoracle/usezoracle-tg-server/core/web/handler"
	"github.com/usezoracle/usezoracle-tg-server/utils/logger"
)

func ServerRoute(wh *handler.WebhookHandler, ch *handler.ConfigHandler) *gin.Engine {
	router := gin.New()

	srvCfg := config.GetServerConfig()

	recoverFile, err := os.OpenFile(srvCfg.RecoverLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil || recoverFile == nil {
		if err != nil {
			logger.Logrus.WithFields(logrus.Fields{"ErrMsg": err.Error()}).Error("open recover log file failed")
		}
		if recoverFile == nil {
			logger.Logrus.Error("open recover log file failed:recoverFile is nil")
		}

		return nil
	}

	router.Use(MiddleLogger(srvCfg.VisitLogFile, "/health"), gin.RecoveryWithWriter(recoverFile))

	// webhook ingestion
	router.POST("/", wh.Handle)
	router.POST("/webhook", wh.Handle)

	// operator surface
	router.POST("/configs", ch.Create)
	router.GET("/configs", ch.List)
	router.POST("/configs/deactivate", ch.Deactivate)
	router.POST("/configs/:id/executions", ch.RecordExecution)

	router.GET("/health", handler.Health)

	return router
}

func Run(wh *handler.WebhookHandler, ch *handler.ConfigHandler) {
	router := ServerRoute(wh, ch)
	if router == nil {
		return
	}

	addr := config.GetServerConfig().ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logger.Logrus.WithFields(logrus.Fields{"ErrMsg": err}).Fatal("Server start failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with
	// a timeout of 5 seconds.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Logrus.WithFields(logrus.Fields{"ErrMsg": err.Error()}).Error("Server forced to shutdown")
	}

	logger.Logrus.Info("Server shutdown complete")
}
