package router

import (
	"fmt"
	"strings"

	"github.com/unipay-next/internal/cache"
	"github.com/unipay-next/internal/config"
	adminhandlers "github.com/unipay-next/internal/http/handlers/admin"
	publichandlers "github.com/unipay-next/internal/http/handlers/public"
	"github.com/unipay-next/internal/logger"
	"github.com/unipay-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "up"
	}
	createOrderRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:create_order", redisPrefix),
		WindowSeconds: 60,
		MaxRequests:   cfg.Pay.CreateRateLimitPerMinute,
		Message:       "下单过于频繁，请稍后再试",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		pay := apiV1.Group("/pay")
		{
			pay.POST("/orders",
				RateLimitMiddleware(cache.Client(), createOrderRule, KeyByIPAndJSONField("merchant_order_no")),
				publicHandler.CreatePaymentOrder)
			pay.GET("/orders", publicHandler.ListPaymentOrders)
			pay.GET("/orders/:order_no", publicHandler.GetPaymentOrder)
			pay.GET("/orders/by-merchant/:merchant_order_no", publicHandler.GetPaymentOrderByMerchant)
			pay.POST("/orders/:order_no/close", publicHandler.ClosePaymentOrder)
			pay.POST("/orders/:order_no/sync", publicHandler.SyncPaymentOrder)
		}

		admin := apiV1.Group("/admin")
		{
			admin.GET("/channels", adminHandler.ListChannelConfigs)
			admin.GET("/channels/:id", adminHandler.GetChannelConfig)
			admin.POST("/channels", adminHandler.UpsertChannelConfig)
			admin.POST("/channels/:id/enable", adminHandler.EnableChannel)
			admin.POST("/channels/:id/disable", adminHandler.DisableChannel)
			admin.POST("/orders/:order_no/mark-refunded", adminHandler.MarkOrderRefunded)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
