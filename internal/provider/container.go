package provider

import (
	"fmt"

	"github.com/unipay-next/internal/cache"
	"github.com/unipay-next/internal/channel"
	"github.com/unipay-next/internal/channel/alipay"
	"github.com/unipay-next/internal/channel/mock"
	"github.com/unipay-next/internal/channel/wechat"
	"github.com/unipay-next/internal/config"
	"github.com/unipay-next/internal/logger"
	"github.com/unipay-next/internal/models"
	"github.com/unipay-next/internal/queue"
	"github.com/unipay-next/internal/repository"
	"github.com/unipay-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Registry    *channel.Registry

	// Repositories
	PaymentOrderRepo  repository.PaymentOrderRepository
	ChannelConfigRepo repository.ChannelConfigRepository

	// Services
	ChannelConfigService *service.ChannelConfigService
	PaymentOrderService  *service.PaymentOrderService
}

// NewContainer 初始化容器。
// 渠道注册表在此构建，配置错误（支付方式无渠道承接/重复认领）直接失败。
func NewContainer(cfg *config.Config) (*Container, error) {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}
	if queueClient == nil {
		qc, err := queue.NewClient(nil)
		if err != nil {
			return nil, fmt.Errorf("初始化队列客户端失败: %w", err)
		}
		queueClient = qc
	}

	registry, err := channel.BuildRegistry([]channel.Service{
		mock.New(),
		wechat.New(),
		alipay.New(),
	})
	if err != nil {
		return nil, fmt.Errorf("构建渠道注册表失败: %w", err)
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Registry:    registry,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c, nil
}

func (c *Container) initRepositories() {
	db := models.DB
	c.PaymentOrderRepo = repository.NewPaymentOrderRepository(db)
	c.ChannelConfigRepo = repository.NewChannelConfigRepository(db)
}

func (c *Container) initServices() {
	c.ChannelConfigService = service.NewChannelConfigService(c.ChannelConfigRepo, c.Config.Pay.ChannelConfigTTLSeconds)
	c.PaymentOrderService = service.NewPaymentOrderService(
		c.PaymentOrderRepo,
		c.ChannelConfigService,
		c.Registry,
		c.QueueClient,
		c.Config.Pay,
	)
}

// Close 释放容器资源
func (c *Container) Close() error {
	if c == nil || c.QueueClient == nil {
		return nil
	}
	return c.QueueClient.Close()
}
