package models

import (
	"time"

	"gorm.io/gorm"
)

// ChannelConfig 支付渠道配置
type ChannelConfig struct {
	ID          uint           `gorm:"primarykey" json:"id"`                   // 主键
	ChannelCode string         `gorm:"uniqueIndex;not null" json:"channel_code"` // 渠道编码（mock/wechat/alipay）
	Name        string         `gorm:"not null" json:"name"`                   // 渠道名称
	Enabled     bool           `gorm:"not null" json:"enabled"`                // 是否启用（不设列默认值，零值 false 才能落库）
	ConfigJSON  JSON           `gorm:"type:json" json:"config_json"`           // 渠道凭证配置（渠道自行解释）
	SortOrder   int            `gorm:"not null;default:0" json:"sort_order"`   // 排序
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                         // 软删除时间
}

// TableName 指定表名
func (ChannelConfig) TableName() string {
	return "channel_configs"
}
