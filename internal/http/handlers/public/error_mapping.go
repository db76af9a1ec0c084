package public

import (
	"errors"

	"github.com/unipay-next/internal/http/response"
	"github.com/unipay-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var paymentOrderCommonErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "订单不存在"},
	{target: service.ErrOrderInvalid, code: response.CodeBadRequest, msg: "订单参数无效"},
	{target: service.ErrInvalidAmount, code: response.CodeBadRequest, msg: "订单金额无效"},
	{target: service.ErrMerchantOrderNoInvalid, code: response.CodeBadRequest, msg: "商户订单号无效"},
	{target: service.ErrPayMethodNotSupported, code: response.CodeBadRequest, msg: "不支持的支付方式"},
	{target: service.ErrChannelDisabled, code: response.CodeBadRequest, msg: "支付渠道未启用"},
	{target: service.ErrChannelConfigNotFound, code: response.CodeBadRequest, msg: "支付渠道配置不存在"},
	{target: service.ErrChannelConfigInvalid, code: response.CodeBadRequest, msg: "支付渠道配置无效"},
	{target: service.ErrOrderStatusConflict, code: response.CodeConflict, msg: "订单状态不允许该操作"},
}

func respondPaymentOrderError(c *gin.Context, err error) {
	respondWithMappedError(c, err, paymentOrderCommonErrorRules, response.CodeInternal, "系统繁忙，请稍后再试")
}
