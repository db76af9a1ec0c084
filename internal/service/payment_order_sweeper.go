package service

import (
	"context"
	"errors"
	"time"

	"github.com/unipay-next/internal/cache"
	"github.com/unipay-next/internal/channel"
	"github.com/unipay-next/internal/constants"
	"github.com/unipay-next/internal/logger"
	"github.com/unipay-next/internal/models"
)

// SweepExpiredOrders 扫描过期订单并条件关单，返回本次实际关闭的数量。
// 单笔失败只记日志不中断批次，多实例并发扫描由条件更新去重。
func (s *PaymentOrderService) SweepExpiredOrders(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = s.payCfg.SweepBatchSize
	}
	orders, err := s.orderRepo.ListExpired(now, limit)
	if err != nil {
		return 0, err
	}
	closed := 0
	for i := range orders {
		order := &orders[i]
		changed, err := s.closeExpiredOrder(ctx, order)
		if err != nil {
			logger.Errorw("sweeper_close_failed", "order_no", order.OrderNo, "error", err)
			continue
		}
		if changed {
			closed++
		}
	}
	if len(orders) > 0 {
		logger.Infow("sweeper_batch_done", "scanned", len(orders), "closed", closed)
	}
	return closed, nil
}

// ExpireOrder 处理单笔到期关单任务
func (s *PaymentOrderService) ExpireOrder(ctx context.Context, orderNo string) (bool, error) {
	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		return false, err
	}
	if order == nil || order.IsTerminal() {
		return false, nil
	}
	if order.ExpireTime.After(time.Now()) {
		// 有效期被延长过，交给后续扫描
		return false, nil
	}
	return s.closeExpiredOrder(ctx, order)
}

// closeExpiredOrder 先条件关单，成功后再尽力通知渠道
func (s *PaymentOrderService) closeExpiredOrder(ctx context.Context, order *models.PaymentOrder) (bool, error) {
	changed, err := s.orderRepo.UpdateStatusIf(order.OrderNo,
		[]string{constants.PayOrderStatusWaiting, constants.PayOrderStatusPaying},
		constants.PayOrderStatusClosed,
		map[string]interface{}{"error_code": "ORDER_EXPIRED", "error_msg": "订单超时未支付"})
	if err != nil {
		return false, err
	}
	if !changed {
		// 已被支付回流或其他实例抢先迁移
		logger.Debugw("sweeper_close_conflict", "order_no", order.OrderNo)
		return false, nil
	}
	logger.Infow("payment_order_expired_closed", "order_no", order.OrderNo)
	s.notifyChannelClose(ctx, order)
	return true, nil
}

// ReconcileStaleOrders 对滞留订单做渠道状态对账，返回本次推进的订单数。
// 目标集合为超过阈值未更新的 paying 订单，以及已有渠道单号的 waiting 订单。
// 每单的查单失败在 Redis 做退避计数，缓存不可用时放行继续对账。
func (s *PaymentOrderService) ReconcileStaleOrders(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = s.payCfg.ReconcileBatchSize
	}
	staleSeconds := s.payCfg.ReconcileStaleSeconds
	if staleSeconds <= 0 {
		staleSeconds = 300
	}
	before := now.Add(-time.Duration(staleSeconds) * time.Second)

	orders, err := s.orderRepo.ListStalePaying(before, limit)
	if err != nil {
		return 0, err
	}
	advanced := 0
	for i := range orders {
		order := &orders[i]
		if cache.ShouldSkipSync(ctx, order.OrderNo) {
			logger.Debugw("reconcile_backoff_skip", "order_no", order.OrderNo)
			continue
		}
		changed, err := s.reconcileOrder(ctx, order)
		if err != nil {
			if _, recordErr := cache.RecordSyncFailure(ctx, order.OrderNo); recordErr != nil {
				logger.Warnw("reconcile_backoff_record_failed", "order_no", order.OrderNo, "error", recordErr)
			}
			if errors.Is(err, channel.ErrTransient) {
				logger.Warnw("reconcile_query_transient_failure", "order_no", order.OrderNo, "error", err)
			} else {
				logger.Errorw("reconcile_query_failed", "order_no", order.OrderNo, "error", err)
			}
			continue
		}
		if changed {
			advanced++
		}
	}
	if len(orders) > 0 {
		logger.Infow("reconcile_batch_done", "scanned", len(orders), "advanced", advanced)
	}
	return advanced, nil
}

func (s *PaymentOrderService) reconcileOrder(ctx context.Context, order *models.PaymentOrder) (bool, error) {
	result, err := s.queryChannel(ctx, order)
	if err != nil {
		return false, err
	}
	if err := cache.ClearSyncBackoff(ctx, order.OrderNo); err != nil {
		logger.Warnw("reconcile_backoff_clear_failed", "order_no", order.OrderNo, "error", err)
	}
	changed, err := s.applyQueryResult(order, result)
	if err != nil {
		return false, err
	}
	if !changed && result != nil && result.Status == constants.PayOrderStatusSuccess {
		// 本地已关单但渠道实际收款成功：只告警，不自动回退
		current, reloadErr := s.orderRepo.GetByOrderNo(order.OrderNo)
		if reloadErr == nil && current != nil && current.Status == constants.PayOrderStatusClosed {
			logger.Warnw("reconcile_closed_order_provider_success",
				"order_no", order.OrderNo,
				"channel_order_no", result.ChannelOrderNo,
				"provider_amount", result.Amount,
			)
		}
	}
	return changed, nil
}
