package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	syncBackoffBaseDelay = time.Minute
	syncBackoffMaxDelay  = 30 * time.Minute
	syncBackoffCountTTL  = 2 * time.Hour
)

func syncBackoffCountKey(orderNo string) string {
	return fmt.Sprintf("pay:sync_backoff:%s", orderNo)
}

func syncBackoffHoldKey(orderNo string) string {
	return fmt.Sprintf("pay:sync_backoff_hold:%s", orderNo)
}

// syncBackoffDelay 按失败次数计算下次查单前的等待时长：
// 首次失败 1 分钟，此后逐次翻倍，封顶 30 分钟。
func syncBackoffDelay(attempts int64) time.Duration {
	if attempts <= 1 {
		return syncBackoffBaseDelay
	}
	delay := syncBackoffBaseDelay
	for i := int64(1); i < attempts; i++ {
		delay *= 2
		if delay >= syncBackoffMaxDelay {
			return syncBackoffMaxDelay
		}
	}
	return delay
}

// RecordSyncFailure 记录一次渠道查单失败并写入退避窗口，返回累计失败次数。
// 窗口存续期间 ShouldSkipSync 返回 true，窗口随失败次数指数增长。
func RecordSyncFailure(ctx context.Context, orderNo string) (int64, error) {
	if !Enabled() || orderNo == "" {
		return 0, nil
	}
	attempts, err := IncrWithTTL(ctx, syncBackoffCountKey(orderNo), syncBackoffCountTTL)
	if err != nil {
		return 0, err
	}
	if err := Client().Set(ctx, buildKey(syncBackoffHoldKey(orderNo)), attempts, syncBackoffDelay(attempts)).Err(); err != nil {
		return attempts, err
	}
	return attempts, nil
}

// ShouldSkipSync 判断订单是否仍处于退避窗口内。
// 缓存未启用或读取失败时放行，避免 Redis 故障阻断对账。
func ShouldSkipSync(ctx context.Context, orderNo string) bool {
	if !Enabled() || orderNo == "" {
		return false
	}
	exists, err := Client().Exists(ctx, buildKey(syncBackoffHoldKey(orderNo))).Result()
	if err != nil {
		return false
	}
	return exists > 0
}

// ClearSyncBackoff 查单成功后清除退避计数与窗口
func ClearSyncBackoff(ctx context.Context, orderNo string) error {
	if orderNo == "" {
		return nil
	}
	if err := Del(ctx, syncBackoffCountKey(orderNo)); err != nil {
		return err
	}
	return Del(ctx, syncBackoffHoldKey(orderNo))
}
