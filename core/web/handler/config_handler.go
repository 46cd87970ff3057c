package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/usezoracle/usezoracle-tg-server/core/model"
	"github.com/usezoracle/usezoracle-tg-server/core/store"
	"github.com/usezoracle/usezoracle-tg-server/utils/logger"
)

// ConfigRegistry is the operator-facing slice of the registry.
type ConfigRegistry interface {
	Create(ctx context.Context, cfg *model.CopyTradeConfig) error
	ListByAccount(ctx context.Context, account string) ([]model.CopyTradeConfig, error)
	Deactivate(ctx context.Context, account, wallet string) error
	RecordExecution(ctx context.Context, configID int64, amount string) error
}

// ConfigHandler exposes the operator surface of the config registry:
// create, list, deactivate and the execution-subsystem hook.
type ConfigHandler struct {
	registry ConfigRegistry
}

func NewConfigHandler(registry ConfigRegistry) *ConfigHandler {
	return &ConfigHandler{registry: registry}
}

type createConfigRequest struct {
	AccountName         string   `json:"account_name" binding:"required"`
	TargetWalletAddress string   `json:"target_wallet_address" binding:"required"`
	BeneficiaryAddrs    []string `json:"beneficiary_addresses" binding:"required,min=1"`
	DelegationAmount    string   `json:"delegation_amount"`
	MaxSlippage         float64  `json:"max_slippage"`
	BuyOnly             bool     `json:"buy_only"`
	AllowedRouters      []string `json:"allowed_routers"`
}

func (h *ConfigHandler) Create(c *gin.Context) {
	var req createConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, &Response{Code: http.StatusBadRequest, Message: "invalid input parameters"})
		return
	}

	cfg := &model.CopyTradeConfig{
		AccountName:         req.AccountName,
		TargetWalletAddress: req.TargetWalletAddress,
		BeneficiaryAddrs:    req.BeneficiaryAddrs,
		DelegationAmount:    req.DelegationAmount,
		MaxSlippage:         req.MaxSlippage,
		BuyOnly:             req.BuyOnly,
		AllowedRouters:      req.AllowedRouters,
	}

	err := h.registry.Create(c.Request.Context(), cfg)
	if err != nil {
		if errors.Is(err, store.ErrConfigExists) {
			c.JSON(http.StatusConflict, &Response{Code: http.StatusConflict, Message: err.Error()})
			return
		}
		if errors.Is(err, store.ErrNoBeneficiaries) {
			c.JSON(http.StatusBadRequest, &Response{Code: http.StatusBadRequest, Message: err.Error()})
			return
		}

		logger.Logrus.WithFields(logrus.Fields{"Account": req.AccountName, "ErrMsg": err}).Error("create config failed")
		c.JSON(http.StatusInternalServerError, &Response{Code: http.StatusInternalServerError, Message: "create config failed"})
		return
	}

	c.JSON(http.StatusOK, &Response{Code: http.StatusOK, Message: "success", Data: cfg})
}

func (h *ConfigHandler) List(c *gin.Context) {
	account := c.Query("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, &Response{Code: http.StatusBadRequest, Message: "account is required"})
		return
	}

	cfgs, err := h.registry.ListByAccount(c.Request.Context(), account)
	if err != nil {
		logger.Logrus.WithFields(logrus.Fields{"Account": account, "ErrMsg": err}).Error("list configs failed")
		c.JSON(http.StatusInternalServerError, &Response{Code: http.StatusInternalServerError, Message: "list configs failed"})
		return
	}

	c.JSON(http.StatusOK, &Response{Code: http.StatusOK, Message: "success", Data: cfgs})
}

type deactivateConfigRequest struct {
	AccountName         string `json:"account_name" binding:"required"`
	TargetWalletAddress string `json:"target_wallet_address" binding:"required"`
}

func (h *ConfigHandler) Deactivate(c *gin.Context) {
	var req deactivateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, &Response{Code: http.StatusBadRequest, Message: "invalid input parameters"})
		return
	}

	err := h.registry.Deactivate(c.Request.Context(), req.AccountName, req.TargetWalletAddress)
	if err != nil {
		if errors.Is(err, store.ErrConfigNotFound) {
			c.JSON(http.StatusNotFound, &Response{Code: http.StatusNotFound, Message: err.Error()})
			return
		}

		logger.Logrus.WithFields(logrus.Fields{"Account": req.AccountName, "ErrMsg": err}).Error("deactivate config failed")
		c.JSON(http.StatusInternalServerError, &Response{Code: http.StatusInternalServerError, Message: "deactivate config failed"})
		return
	}

	c.JSON(http.StatusOK, &Response{Code: http.StatusOK, Message: "success"})
}

type recordExecutionRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// RecordExecution is called by the execution subsystem after it copies
// a trade for a config.
func (h *ConfigHandler) RecordExecution(c *gin.Context) {
	configID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, &Response{Code: http.StatusBadRequest, Message: "invalid config id"})
		return
	}

	var req recordExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, &Response{Code: http.StatusBadRequest, Message: "invalid input parameters"})
		return
	}

	err = h.registry.RecordExecution(c.Request.Context(), configID, req.Amount)
	if err != nil {
		if errors.Is(err, store.ErrConfigNotFound) {
			c.JSON(http.StatusNotFound, &Response{Code: http.StatusNotFound, Message: err.Error()})
			return
		}

		logger.Logrus.WithFields(logrus.Fields{"ConfigID": configID, "ErrMsg": err}).Error("record execution failed")
		c.JSON(http.StatusInternalServerError, &Response{Code: http.StatusInternalServerError, Message: "record execution failed"})
		return
	}

	c.JSON(http.StatusOK, &Response{Code: http.StatusOK, Message: "success"})
}
