package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentOrder 支付订单
type PaymentOrder struct {
	ID              uint           `gorm:"primarykey" json:"id"`                                                       // 主键
	OrderNo         string         `gorm:"uniqueIndex;not null" json:"order_no"`                                       // 系统支付单号（创建后不可变）
	MerchantOrderNo string         `gorm:"uniqueIndex:uk_user_merchant_order;not null" json:"merchant_order_no"`       // 业务方订单号
	UserID          uint           `gorm:"uniqueIndex:uk_user_merchant_order;index;not null" json:"user_id"`           // 用户ID
	ChannelCode     string         `gorm:"index;not null" json:"channel_code"`                                         // 渠道编码（mock/wechat/alipay）
	PayMethod       string         `gorm:"not null" json:"pay_method"`                                                 // 支付方式
	Amount          Money          `gorm:"type:decimal(20,2);not null" json:"amount"`                                  // 支付金额
	Currency        string         `gorm:"not null;default:CNY" json:"currency"`                                       // 币种
	Subject         string         `gorm:"not null" json:"subject"`                                                    // 订单标题
	Body            string         `gorm:"type:text" json:"body"`                                                     // 订单描述
	Status          string         `gorm:"index;not null" json:"status"`                                               // 订单状态
	ChannelOrderNo  string         `gorm:"index" json:"channel_order_no"`                                              // 渠道侧流水号
	PayURL          string         `gorm:"type:text" json:"pay_url"`                                                   // 跳转链接
	QRCode          string         `gorm:"type:text" json:"qr_code"`                                                   // 二维码内容
	PayParams       JSON           `gorm:"type:json" json:"pay_params"`                                                // 渠道下单参数
	NotifyURL       string         `gorm:"type:text" json:"notify_url"`                                                // 业务方异步通知地址
	ReturnURL       string         `gorm:"type:text" json:"return_url"`                                                // 业务方同步跳转地址
	ExtraData       JSON           `gorm:"type:json" json:"extra_data"`                                                // 业务方透传数据
	ErrorCode       string         `json:"error_code"`                                                                 // 渠道错误码
	ErrorMsg        string         `gorm:"type:text" json:"error_msg"`                                                 // 渠道错误描述
	SuccessTime     *time.Time     `gorm:"index" json:"success_time"`                                                  // 支付成功时间
	ExpireTime      time.Time      `gorm:"index;not null" json:"expire_time"`                                          // 过期时间
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                                                    // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                                                    // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                                                             // 软删除时间
}

// TableName 指定表名
func (PaymentOrder) TableName() string {
	return "payment_orders"
}

// IsTerminal 是否处于终态
func (o *PaymentOrder) IsTerminal() bool {
	if o == nil {
		return false
	}
	switch o.Status {
	case "success", "failed", "closed", "refunded":
		return true
	default:
		return false
	}
}
