package constants

// 支付订单状态常量
const (
	PayOrderStatusWaiting  = "waiting"
	PayOrderStatusPaying   = "paying"
	PayOrderStatusSuccess  = "success"
	PayOrderStatusFailed   = "failed"
	PayOrderStatusClosed   = "closed"
	PayOrderStatusRefunded = "refunded"
)

// PayOrderStatuses 全部支付订单状态（闭集）
var PayOrderStatuses = []string{
	PayOrderStatusWaiting,
	PayOrderStatusPaying,
	PayOrderStatusSuccess,
	PayOrderStatusFailed,
	PayOrderStatusClosed,
	PayOrderStatusRefunded,
}

// IsPayOrderStatus 判断是否为合法支付订单状态
func IsPayOrderStatus(status string) bool {
	for _, s := range PayOrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminalPayOrderStatus 判断是否为终态
func IsTerminalPayOrderStatus(status string) bool {
	switch status {
	case PayOrderStatusSuccess, PayOrderStatusFailed, PayOrderStatusClosed, PayOrderStatusRefunded:
		return true
	default:
		return false
	}
}

// 渠道编码常量
const (
	ChannelCodeMock   = "mock"
	ChannelCodeWechat = "wechat"
	ChannelCodeAlipay = "alipay"
)

// ChannelCodes 全部渠道编码（闭集）
var ChannelCodes = []string{
	ChannelCodeMock,
	ChannelCodeWechat,
	ChannelCodeAlipay,
}

// IsChannelCode 判断是否为合法渠道编码
func IsChannelCode(code string) bool {
	for _, c := range ChannelCodes {
		if c == code {
			return true
		}
	}
	return false
}

// 支付方式常量
const (
	PayMethodMock         = "mock"
	PayMethodWechatNative = "wechat_native"
	PayMethodWechatH5     = "wechat_h5"
	PayMethodAlipayQR     = "alipay_qr"
	PayMethodAlipayWap    = "alipay_wap"
	PayMethodAlipayPage   = "alipay_page"
)

// PayMethods 全部支付方式（闭集）
var PayMethods = []string{
	PayMethodMock,
	PayMethodWechatNative,
	PayMethodWechatH5,
	PayMethodAlipayQR,
	PayMethodAlipayWap,
	PayMethodAlipayPage,
}

// IsPayMethod 判断是否为合法支付方式
func IsPayMethod(method string) bool {
	for _, m := range PayMethods {
		if m == method {
			return true
		}
	}
	return false
}

// 支付宝交易状态常量
const (
	AlipayTradeStatusSuccess      = "TRADE_SUCCESS"
	AlipayTradeStatusFinished     = "TRADE_FINISHED"
	AlipayTradeStatusClosed       = "TRADE_CLOSED"
	AlipayTradeStatusWaitBuyerPay = "WAIT_BUYER_PAY"
)

// 队列名称常量
const (
	QueueDefault = "default"
)

// 异步任务类型常量
const (
	TaskOrderExpire     = "payment:order_expire"
	TaskExpireSweep     = "payment:expire_sweep"
	TaskStatusReconcile = "payment:status_reconcile"
)
