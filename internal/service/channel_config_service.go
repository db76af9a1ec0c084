package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/unipay-next/internal/cache"
	"github.com/unipay-next/internal/constants"
	"github.com/unipay-next/internal/logger"
	"github.com/unipay-next/internal/models"
	"github.com/unipay-next/internal/repository"
)

// ChannelConfigService 渠道配置服务
type ChannelConfigService struct {
	configRepo repository.ChannelConfigRepository
	cacheTTL   time.Duration
}

// NewChannelConfigService 创建渠道配置服务
func NewChannelConfigService(configRepo repository.ChannelConfigRepository, cacheTTLSeconds int) *ChannelConfigService {
	ttl := time.Duration(cacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &ChannelConfigService{
		configRepo: configRepo,
		cacheTTL:   ttl,
	}
}

// ChannelConfigInput 渠道配置写入参数
type ChannelConfigInput struct {
	ChannelCode string
	Name        string
	Enabled     *bool
	ConfigJSON  models.JSON
	SortOrder   *int
}

func channelConfigCacheKey(channelCode string) string {
	return fmt.Sprintf("pay:channel_config:%s", channelCode)
}

// ResolveEnabled 获取启用状态的渠道配置，带短 TTL 缓存。
// 缓存读写失败只记日志，始终回退数据库。
func (s *ChannelConfigService) ResolveEnabled(ctx context.Context, channelCode string) (*models.ChannelConfig, error) {
	channelCode = strings.ToLower(strings.TrimSpace(channelCode))
	if channelCode == "" {
		return nil, ErrChannelConfigNotFound
	}

	var cached models.ChannelConfig
	hit, err := cache.GetJSON(ctx, channelConfigCacheKey(channelCode), &cached)
	if err != nil {
		logger.Warnw("channel_config_cache_read_failed", "channel_code", channelCode, "error", err)
	}
	if hit && err == nil {
		if !cached.Enabled {
			return nil, ErrChannelDisabled
		}
		return &cached, nil
	}

	cfg, err := s.configRepo.GetByChannelCode(channelCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelConfigFetchFailed, err)
	}
	if cfg == nil {
		return nil, ErrChannelConfigNotFound
	}
	if cacheErr := cache.SetJSON(ctx, channelConfigCacheKey(channelCode), cfg, s.cacheTTL); cacheErr != nil {
		logger.Warnw("channel_config_cache_write_failed", "channel_code", channelCode, "error", cacheErr)
	}
	if !cfg.Enabled {
		return nil, ErrChannelDisabled
	}
	return cfg, nil
}

// ListChannelConfigs 分页查询渠道配置
func (s *ChannelConfigService) ListChannelConfigs(filter repository.ChannelConfigListFilter) ([]models.ChannelConfig, int64, error) {
	return s.configRepo.List(filter)
}

// GetChannelConfig 按 ID 获取渠道配置
func (s *ChannelConfigService) GetChannelConfig(id uint) (*models.ChannelConfig, error) {
	cfg, err := s.configRepo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelConfigFetchFailed, err)
	}
	if cfg == nil {
		return nil, ErrChannelConfigNotFound
	}
	return cfg, nil
}

// UpsertChannelConfig 创建或更新渠道配置，写入后失效缓存
func (s *ChannelConfigService) UpsertChannelConfig(ctx context.Context, input ChannelConfigInput) (*models.ChannelConfig, error) {
	channelCode := strings.ToLower(strings.TrimSpace(input.ChannelCode))
	if !constants.IsChannelCode(channelCode) {
		return nil, fmt.Errorf("%w: channel_code %s", ErrChannelConfigInvalid, input.ChannelCode)
	}

	existing, err := s.configRepo.GetByChannelCode(channelCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelConfigFetchFailed, err)
	}

	if existing == nil {
		cfg := &models.ChannelConfig{
			ChannelCode: channelCode,
			Name:        strings.TrimSpace(input.Name),
			Enabled:     input.Enabled == nil || *input.Enabled,
			ConfigJSON:  input.ConfigJSON,
		}
		if input.SortOrder != nil {
			cfg.SortOrder = *input.SortOrder
		}
		if cfg.Name == "" {
			cfg.Name = channelCode
		}
		if err := s.configRepo.Create(cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
		}
		s.invalidate(ctx, channelCode)
		logger.Infow("channel_config_created", "channel_code", channelCode)
		return cfg, nil
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		existing.Name = name
	}
	if input.Enabled != nil {
		existing.Enabled = *input.Enabled
	}
	if input.ConfigJSON != nil {
		existing.ConfigJSON = input.ConfigJSON
	}
	if input.SortOrder != nil {
		existing.SortOrder = *input.SortOrder
	}
	if err := s.configRepo.Update(existing); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
	}
	s.invalidate(ctx, channelCode)
	logger.Infow("channel_config_updated", "channel_code", channelCode, "enabled", existing.Enabled)
	return existing, nil
}

// SetChannelEnabled 启用或停用渠道
func (s *ChannelConfigService) SetChannelEnabled(ctx context.Context, id uint, enabled bool) (*models.ChannelConfig, error) {
	cfg, err := s.GetChannelConfig(id)
	if err != nil {
		return nil, err
	}
	if cfg.Enabled == enabled {
		return cfg, nil
	}
	cfg.Enabled = enabled
	if err := s.configRepo.Update(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
	}
	s.invalidate(ctx, cfg.ChannelCode)
	logger.Infow("channel_config_enabled_changed", "channel_code", cfg.ChannelCode, "enabled", enabled)
	return cfg, nil
}

func (s *ChannelConfigService) invalidate(ctx context.Context, channelCode string) {
	if err := cache.Del(ctx, channelConfigCacheKey(channelCode)); err != nil {
		logger.Warnw("channel_config_cache_del_failed", "channel_code", channelCode, "error", err)
	}
}
