package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/unipay-next/internal/config"
	"github.com/unipay-next/internal/logger"
	"github.com/unipay-next/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 异步队列服务。
// 除消费任务外还内置调度器，周期投递过期扫描与状态对账任务；
// 多实例部署下任务重复执行是无害的，订单写入全部经条件更新仲裁。
type Service struct {
	name      string
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	consumer  *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, payCfg *config.PayConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)

	scheduler := asynq.NewScheduler(opt, nil)
	if err := registerPeriodicTasks(scheduler, payCfg); err != nil {
		return nil, err
	}

	return &Service{
		name:      "worker",
		server:    server,
		mux:       mux,
		scheduler: scheduler,
		consumer:  consumer,
	}, nil
}

func registerPeriodicTasks(scheduler *asynq.Scheduler, payCfg *config.PayConfig) error {
	sweepInterval := 60
	reconcileInterval := 120
	if payCfg != nil {
		if payCfg.SweepIntervalSeconds > 0 {
			sweepInterval = payCfg.SweepIntervalSeconds
		}
		if payCfg.ReconcileIntervalSeconds > 0 {
			reconcileInterval = payCfg.ReconcileIntervalSeconds
		}
	}
	if _, err := scheduler.Register(
		fmt.Sprintf("@every %ds", sweepInterval),
		queue.NewExpireSweepTask(),
		asynq.Queue(queue.DefaultQueue),
	); err != nil {
		return fmt.Errorf("注册过期扫描任务失败: %w", err)
	}
	if _, err := scheduler.Register(
		fmt.Sprintf("@every %ds", reconcileInterval),
		queue.NewStatusReconcileTask(),
		asynq.Queue(queue.DefaultQueue),
	); err != nil {
		return fmt.Errorf("注册状态对账任务失败: %w", err)
	}
	return nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	_ = ctx
	if s.scheduler != nil {
		go func() {
			if err := s.scheduler.Run(); err != nil {
				logger.Errorw("worker_scheduler_stopped", "error", err)
			}
		}()
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	_ = ctx
	if s.scheduler != nil {
		s.scheduler.Shutdown()
	}
	if s.server != nil {
		s.server.Shutdown()
	}
	return nil
}
