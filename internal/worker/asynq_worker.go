package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/unipay-next/internal/logger"
	"github.com/unipay-next/internal/provider"
	"github.com/unipay-next/internal/queue"
	"github.com/unipay-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOrderExpire, c.handleOrderExpire)
	mux.HandleFunc(queue.TaskExpireSweep, c.handleExpireSweep)
	mux.HandleFunc(queue.TaskStatusReconcile, c.handleStatusReconcile)
}

func (c *Consumer) handleOrderExpire(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_expire_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_expire_unmarshal_failed", "error", err)
		return err
	}
	orderNo := strings.TrimSpace(payload.OrderNo)
	if orderNo == "" {
		logger.Debugw("worker_order_expire_skip_invalid_payload")
		return nil
	}
	if c.PaymentOrderService == nil {
		logger.Warnw("worker_order_expire_skip_service_nil", "order_no", orderNo)
		return nil
	}
	closed, err := c.PaymentOrderService.ExpireOrder(ctx, orderNo)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			logger.Debugw("worker_order_expire_skip_order_not_found", "order_no", orderNo)
			return nil
		default:
			logger.Warnw("worker_order_expire_failed", "order_no", orderNo, "error", err)
			return err
		}
	}
	if closed {
		logger.Infow("worker_order_expire_closed", "order_no", orderNo)
	}
	return nil
}

func (c *Consumer) handleExpireSweep(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_expire_sweep_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	if c.PaymentOrderService == nil {
		logger.Warnw("worker_expire_sweep_skip_service_nil")
		return nil
	}
	closed, err := c.PaymentOrderService.SweepExpiredOrders(ctx, time.Now(), c.Config.Pay.SweepBatchSize)
	if err != nil {
		logger.Warnw("worker_expire_sweep_failed", "error", err)
		return err
	}
	if closed > 0 {
		logger.Infow("worker_expire_sweep_done", "closed", closed)
	}
	return nil
}

func (c *Consumer) handleStatusReconcile(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_status_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	if c.PaymentOrderService == nil {
		logger.Warnw("worker_status_reconcile_skip_service_nil")
		return nil
	}
	advanced, err := c.PaymentOrderService.ReconcileStaleOrders(ctx, time.Now(), c.Config.Pay.ReconcileBatchSize)
	if err != nil {
		logger.Warnw("worker_status_reconcile_failed", "error", err)
		return err
	}
	if advanced > 0 {
		logger.Infow("worker_status_reconcile_done", "advanced", advanced)
	}
	return nil
}
