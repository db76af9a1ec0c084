package public

import (
	"strconv"
	"strings"
	"time"

	"github.com/unipay-next/internal/http/handlers/shared"
	"github.com/unipay-next/internal/http/response"
	"github.com/unipay-next/internal/models"
	"github.com/unipay-next/internal/repository"
	"github.com/unipay-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CreatePaymentOrderRequest 创建支付订单请求
type CreatePaymentOrderRequest struct {
	UserID          uint        `json:"user_id" binding:"required"`
	MerchantOrderNo string      `json:"merchant_order_no" binding:"required"`
	PayMethod       string      `json:"pay_method" binding:"required"`
	Amount          string      `json:"amount" binding:"required"`
	Currency        string      `json:"currency"`
	Subject         string      `json:"subject"`
	Body            string      `json:"body"`
	NotifyURL       string      `json:"notify_url"`
	ReturnURL       string      `json:"return_url"`
	ExpireMinutes   int         `json:"expire_minutes"`
	ExtraData       models.JSON `json:"extra_data"`
}

// ListPaymentOrdersQuery 订单列表查询参数
type ListPaymentOrdersQuery struct {
	Page        int    `form:"page"`
	PageSize    int    `form:"page_size"`
	UserID      uint   `form:"user_id"`
	Status      string `form:"status"`
	ChannelCode string `form:"channel_code"`
	PayMethod   string `form:"pay_method"`
	Keyword     string `form:"keyword"`
	ExtraKey    string `form:"extra_key"`
	ExtraValue  string `form:"extra_value"`
}

// CreatePaymentOrder 创建支付订单
func (h *Handler) CreatePaymentOrder(c *gin.Context) {
	var req CreatePaymentOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	order, err := h.PaymentOrderService.CreatePaymentOrder(c.Request.Context(), service.CreatePaymentOrderInput{
		UserID:          req.UserID,
		MerchantOrderNo: req.MerchantOrderNo,
		PayMethod:       req.PayMethod,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Subject:         req.Subject,
		Body:            req.Body,
		NotifyURL:       req.NotifyURL,
		ReturnURL:       req.ReturnURL,
		ExpireMinutes:   req.ExpireMinutes,
		ExtraData:       req.ExtraData,
	})
	if err != nil {
		respondPaymentOrderError(c, err)
		return
	}
	response.Success(c, paymentOrderView(order))
}

// GetPaymentOrder 按系统订单号查询
func (h *Handler) GetPaymentOrder(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	order, err := h.PaymentOrderService.GetPaymentOrder(orderNo)
	if err != nil {
		respondPaymentOrderError(c, err)
		return
	}
	response.Success(c, paymentOrderView(order))
}

// GetPaymentOrderByMerchant 按商户订单号查询
func (h *Handler) GetPaymentOrderByMerchant(c *gin.Context) {
	merchantOrderNo := strings.TrimSpace(c.Param("merchant_order_no"))
	userID, ok := parseUserIDQuery(c)
	if !ok {
		return
	}
	order, err := h.PaymentOrderService.GetByMerchantOrderNo(userID, merchantOrderNo)
	if err != nil {
		respondPaymentOrderError(c, err)
		return
	}
	response.Success(c, paymentOrderView(order))
}

// ListPaymentOrders 分页查询订单
func (h *Handler) ListPaymentOrders(c *gin.Context) {
	var query ListPaymentOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	page, pageSize := shared.NormalizePagination(query.Page, query.PageSize)

	orders, total, err := h.PaymentOrderService.ListPaymentOrders(repository.PaymentOrderListFilter{
		Page:        page,
		PageSize:    pageSize,
		UserID:      query.UserID,
		Status:      strings.TrimSpace(query.Status),
		ChannelCode: strings.TrimSpace(query.ChannelCode),
		PayMethod:   strings.TrimSpace(query.PayMethod),
		Keyword:     strings.TrimSpace(query.Keyword),
		ExtraKey:    strings.TrimSpace(query.ExtraKey),
		ExtraValue:  query.ExtraValue,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "订单查询失败", err)
		return
	}

	views := make([]gin.H, 0, len(orders))
	for i := range orders {
		views = append(views, paymentOrderView(&orders[i]))
	}
	totalPage := total / int64(pageSize)
	if total%int64(pageSize) > 0 {
		totalPage++
	}
	response.SuccessWithPage(c, views, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPage,
	})
}

// ClosePaymentOrder 关闭订单
func (h *Handler) ClosePaymentOrder(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	order, err := h.PaymentOrderService.ClosePaymentOrder(c.Request.Context(), orderNo)
	if err != nil {
		respondPaymentOrderError(c, err)
		return
	}
	response.Success(c, paymentOrderView(order))
}

// SyncPaymentOrder 主动向渠道查单并推进状态
func (h *Handler) SyncPaymentOrder(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	order, changed, err := h.PaymentOrderService.SyncPaymentOrderStatus(c.Request.Context(), orderNo)
	if err != nil {
		requestLog(c).Warnw("payment_order_sync_failed", "order_no", orderNo, "error", err)
		respondPaymentOrderError(c, err)
		return
	}
	view := paymentOrderView(order)
	view["changed"] = changed
	response.Success(c, view)
}

func parseUserIDQuery(c *gin.Context) (uint, bool) {
	raw := strings.TrimSpace(c.Query("user_id"))
	if raw == "" {
		respondError(c, response.CodeBadRequest, "user_id 不能为空", nil)
		return 0, false
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		respondError(c, response.CodeBadRequest, "user_id 无效", err)
		return 0, false
	}
	return uint(parsed), true
}

func paymentOrderView(order *models.PaymentOrder) gin.H {
	view := gin.H{
		"order_no":          order.OrderNo,
		"merchant_order_no": order.MerchantOrderNo,
		"user_id":           order.UserID,
		"channel_code":      order.ChannelCode,
		"pay_method":        order.PayMethod,
		"amount":            order.Amount,
		"currency":          order.Currency,
		"subject":           order.Subject,
		"status":            order.Status,
		"channel_order_no":  order.ChannelOrderNo,
		"pay_url":           order.PayURL,
		"qr_code":           order.QRCode,
		"pay_params":        order.PayParams,
		"expire_time":       order.ExpireTime.Format(time.RFC3339),
		"created_at":        order.CreatedAt.Format(time.RFC3339),
	}
	if order.SuccessTime != nil {
		view["success_time"] = order.SuccessTime.Format(time.RFC3339)
	}
	if order.ErrorCode != "" || order.ErrorMsg != "" {
		view["error_code"] = order.ErrorCode
		view["error_msg"] = order.ErrorMsg
	}
	return view
}
