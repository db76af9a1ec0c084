package repository

import "time"

// PaymentOrderListFilter 查询支付订单列表的过滤条件
type PaymentOrderListFilter struct {
	Page            int
	PageSize        int
	UserID          uint
	Status          string
	ChannelCode     string
	PayMethod       string
	MerchantOrderNo string
	Keyword         string
	ExtraKey        string
	ExtraValue      string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

// ChannelConfigListFilter 查询渠道配置列表的过滤条件
type ChannelConfigListFilter struct {
	Page        int
	PageSize    int
	ChannelCode string
	EnabledOnly bool
}
