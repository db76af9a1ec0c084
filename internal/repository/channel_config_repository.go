package repository

import (
	"errors"
	"strings"

	"github.com/unipay-next/internal/models"

	"gorm.io/gorm"
)

// ChannelConfigRepository 渠道配置数据访问接口
type ChannelConfigRepository interface {
	Create(config *models.ChannelConfig) error
	Update(config *models.ChannelConfig) error
	GetByID(id uint) (*models.ChannelConfig, error)
	GetByChannelCode(channelCode string) (*models.ChannelConfig, error)
	List(filter ChannelConfigListFilter) ([]models.ChannelConfig, int64, error)
	WithTx(tx *gorm.DB) *GormChannelConfigRepository
}

// GormChannelConfigRepository GORM 实现
type GormChannelConfigRepository struct {
	db *gorm.DB
}

// NewChannelConfigRepository 创建渠道配置仓库
func NewChannelConfigRepository(db *gorm.DB) *GormChannelConfigRepository {
	return &GormChannelConfigRepository{db: db}
}

// WithTx 绑定事务
func (r *GormChannelConfigRepository) WithTx(tx *gorm.DB) *GormChannelConfigRepository {
	if tx == nil {
		return r
	}
	return &GormChannelConfigRepository{db: tx}
}

// Create 创建渠道配置
func (r *GormChannelConfigRepository) Create(config *models.ChannelConfig) error {
	return r.db.Create(config).Error
}

// Update 更新渠道配置
func (r *GormChannelConfigRepository) Update(config *models.ChannelConfig) error {
	return r.db.Save(config).Error
}

// GetByID 根据 ID 获取渠道配置
func (r *GormChannelConfigRepository) GetByID(id uint) (*models.ChannelConfig, error) {
	var config models.ChannelConfig
	if err := r.db.First(&config, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &config, nil
}

// GetByChannelCode 根据渠道编码获取渠道配置
func (r *GormChannelConfigRepository) GetByChannelCode(channelCode string) (*models.ChannelConfig, error) {
	channelCode = strings.ToLower(strings.TrimSpace(channelCode))
	if channelCode == "" {
		return nil, nil
	}
	var config models.ChannelConfig
	result := r.db.Where("channel_code = ?", channelCode).Limit(1).Find(&config)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &config, nil
}

// List 渠道配置列表
func (r *GormChannelConfigRepository) List(filter ChannelConfigListFilter) ([]models.ChannelConfig, int64, error) {
	query := r.db.Model(&models.ChannelConfig{})

	if filter.ChannelCode != "" {
		query = query.Where("channel_code = ?", filter.ChannelCode)
	}
	if filter.EnabledOnly {
		query = query.Where("enabled = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var configs []models.ChannelConfig
	if err := query.Order("sort_order asc, id asc").Find(&configs).Error; err != nil {
		return nil, 0, err
	}
	return configs, total, nil
}
