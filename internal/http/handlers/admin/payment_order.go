package admin

import (
	"errors"
	"strings"

	"github.com/unipay-next/internal/http/response"
	"github.com/unipay-next/internal/service"

	"github.com/gin-gonic/gin"
)

// MarkOrderRefunded 将已支付订单标记为已退款。
// 退款资金流在渠道侧完成，这里只承接 success -> refunded 的状态迁移。
func (h *Handler) MarkOrderRefunded(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	order, err := h.PaymentOrderService.MarkRefunded(orderNo)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			respondError(c, response.CodeNotFound, "订单不存在", err)
		case errors.Is(err, service.ErrOrderStatusConflict):
			respondError(c, response.CodeConflict, "订单状态不允许退款", err)
		default:
			respondError(c, response.CodeInternal, "订单退款标记失败", err)
		}
		return
	}
	requestLog(c).Infow("admin_order_marked_refunded", "order_no", order.OrderNo)
	response.Success(c, order)
}
