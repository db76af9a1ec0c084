package service

import "errors"

// 服务层哨兵错误，HTTP 层据此映射状态码
var (
	ErrOrderNotFound            = errors.New("订单不存在")
	ErrOrderInvalid             = errors.New("订单参数无效")
	ErrInvalidAmount            = errors.New("订单金额无效")
	ErrMerchantOrderNoInvalid   = errors.New("商户订单号无效")
	ErrPayMethodNotSupported    = errors.New("不支持的支付方式")
	ErrChannelDisabled          = errors.New("支付渠道未启用")
	ErrChannelConfigInvalid     = errors.New("支付渠道配置无效")
	ErrChannelConfigNotFound    = errors.New("支付渠道配置不存在")
	ErrChannelConfigExists      = errors.New("支付渠道配置已存在")
	ErrChannelConfigFetchFailed = errors.New("支付渠道配置查询失败")
	ErrOrderStatusConflict      = errors.New("订单状态不允许该操作")
	ErrOrderCreateFailed        = errors.New("订单创建失败")
	ErrOrderFetchFailed         = errors.New("订单查询失败")
	ErrOrderUpdateFailed        = errors.New("订单更新失败")
)
