// Package http 提供撮合引擎的 HTTP 控制与查询接口
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/exchange/internal/trading/application"
	"github.com/wyfcoding/exchange/internal/trading/domain"
)

// TraderHandler 撮合引擎接口层
type TraderHandler struct {
	engine   *application.Engine
	orders   *application.OrderService
	accounts domain.AccountRepository
	rates    domain.RateRepository
}

// NewTraderHandler 创建接口层实例
func NewTraderHandler(
	engine *application.Engine,
	orders *application.OrderService,
	accounts domain.AccountRepository,
	rates domain.RateRepository,
) *TraderHandler {
	return &TraderHandler{
		engine:   engine,
		orders:   orders,
		accounts: accounts,
		rates:    rates,
	}
}

// RegisterRoutes 注册路由
func (h *TraderHandler) RegisterRoutes(r *gin.RouterGroup) {
	v1 := r.Group("/v1")
	{
		v1.POST("/trader/start", h.StartEngine)
		v1.POST("/trader/stop", h.StopEngine)
		v1.GET("/trader/status", h.EngineStatus)

		v1.POST("/orders", h.PlaceOrder)
		v1.DELETE("/orders/:id", h.CancelOrder)
		v1.GET("/orders/:id", h.GetOrder)
		v1.GET("/orders", h.ListOrders)

		v1.GET("/rates", h.GetRates)
		v1.GET("/accounts", h.ListAccounts)
	}
}

// StartEngine 启动周期撮合
func (h *TraderHandler) StartEngine(c *gin.Context) {
	h.engine.Start(context.Background())
	c.JSON(http.StatusOK, gin.H{"running": true})
}

// StopEngine 停止后续轮次调度
func (h *TraderHandler) StopEngine(c *gin.Context) {
	h.engine.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false})
}

// EngineStatus 引擎运行状态
func (h *TraderHandler) EngineStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": h.engine.Running()})
}

type placeOrderRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Pair   string `json:"pair" binding:"required"`
	Side   string `json:"side" binding:"required"`
	Price  string `json:"price" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// PlaceOrder 提交限价订单
func (h *TraderHandler) PlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	order, err := h.orders.Place(c.Request.Context(), application.PlaceOrderCommand{
		UserID: req.UserID,
		Pair:   req.Pair,
		Side:   domain.OrderSide(req.Side),
		Price:  price,
		Amount: amount,
	})
	if err != nil {
		switch {
		case errors.Is(err, application.ErrInvalidOrder):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrInsufficientBalance):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient balance"})
		case errors.Is(err, domain.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, order)
}

// CancelOrder 撤销等待中的订单
func (h *TraderHandler) CancelOrder(c *gin.Context) {
	order, err := h.orders.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, application.ErrOrderNotCancellable) {
			c.JSON(http.StatusConflict, gin.H{"error": "order is not cancellable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetOrder 查询单笔订单
func (h *TraderHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListOrders 查询用户订单列表
func (h *TraderHandler) ListOrders(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}
	offset := 0
	if o, err := strconv.Atoi(c.Query("offset")); err == nil && o >= 0 {
		offset = o
	}

	orders, total, err := h.orders.ListByUser(c.Request.Context(), userID, domain.OrderStatus(c.Query("status")), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total})
}

// GetRates 查询最新行情快照
func (h *TraderHandler) GetRates(c *gin.Context) {
	rates, err := h.rates.Latest(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rates": rates})
}

// ListAccounts 查询用户资金账户
func (h *TraderHandler) ListAccounts(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	accounts, err := h.accounts.ListByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}
