package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/unipay-next/internal/channel"
	"github.com/unipay-next/internal/config"
	"github.com/unipay-next/internal/constants"
	"github.com/unipay-next/internal/logger"
	"github.com/unipay-next/internal/models"
	"github.com/unipay-next/internal/queue"
	"github.com/unipay-next/internal/repository"
)

// PaymentOrderService 支付订单编排服务。
// 状态机的全部写入都走仓储层的条件更新，服务自身不持有任何锁。
type PaymentOrderService struct {
	orderRepo     repository.PaymentOrderRepository
	channelCfgSvc *ChannelConfigService
	registry      *channel.Registry
	queueClient   *queue.Client
	payCfg        config.PayConfig
}

// NewPaymentOrderService 创建支付订单服务
func NewPaymentOrderService(orderRepo repository.PaymentOrderRepository, channelCfgSvc *ChannelConfigService, registry *channel.Registry, queueClient *queue.Client, payCfg config.PayConfig) *PaymentOrderService {
	return &PaymentOrderService{
		orderRepo:     orderRepo,
		channelCfgSvc: channelCfgSvc,
		registry:      registry,
		queueClient:   queueClient,
		payCfg:        payCfg,
	}
}

// CreatePaymentOrderInput 创建支付订单参数
type CreatePaymentOrderInput struct {
	UserID          uint
	MerchantOrderNo string
	PayMethod       string
	Amount          string
	Currency        string
	Subject         string
	Body            string
	NotifyURL       string
	ReturnURL       string
	ExpireMinutes   int
	ExtraData       models.JSON
}

// CreatePaymentOrder 创建支付订单。
// 同一 (user_id, merchant_order_no) 重复提交时幂等返回已有订单。
// 渠道下单的临时失败不改变本地状态，订单保持 waiting 等待对账推进。
func (s *PaymentOrderService) CreatePaymentOrder(ctx context.Context, input CreatePaymentOrderInput) (*models.PaymentOrder, error) {
	if input.UserID == 0 {
		return nil, fmt.Errorf("%w: user_id 不能为空", ErrOrderInvalid)
	}
	merchantOrderNo := strings.TrimSpace(input.MerchantOrderNo)
	if merchantOrderNo == "" {
		return nil, ErrMerchantOrderNoInvalid
	}
	amount, err := models.NewMoneyFromString(input.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	payMethod := strings.ToLower(strings.TrimSpace(input.PayMethod))
	if !constants.IsPayMethod(payMethod) {
		return nil, ErrPayMethodNotSupported
	}
	channelSvc := s.registry.Resolve(payMethod)
	if channelSvc == nil {
		return nil, ErrPayMethodNotSupported
	}

	// 幂等：同一商户订单号直接返回已有订单，不再触发渠道调用
	existing, err := s.orderRepo.GetByMerchant(input.UserID, merchantOrderNo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	if existing != nil {
		logger.Infow("payment_order_create_idempotent_hit",
			"user_id", input.UserID,
			"merchant_order_no", merchantOrderNo,
			"order_no", existing.OrderNo,
		)
		return existing, nil
	}

	channelCfg, err := s.channelCfgSvc.ResolveEnabled(ctx, channelSvc.ChannelCode())
	if err != nil {
		return nil, err
	}

	expireMinutes := input.ExpireMinutes
	if expireMinutes <= 0 {
		expireMinutes = s.payCfg.OrderExpireMinutes
	}
	if expireMinutes <= 0 {
		expireMinutes = 30
	}
	now := time.Now()
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "CNY"
	}

	order := &models.PaymentOrder{
		OrderNo:         generateOrderNo(),
		MerchantOrderNo: merchantOrderNo,
		UserID:          input.UserID,
		ChannelCode:     channelSvc.ChannelCode(),
		PayMethod:       payMethod,
		Amount:          amount,
		Currency:        currency,
		Subject:         strings.TrimSpace(input.Subject),
		Body:            strings.TrimSpace(input.Body),
		Status:          constants.PayOrderStatusWaiting,
		NotifyURL:       strings.TrimSpace(input.NotifyURL),
		ReturnURL:       strings.TrimSpace(input.ReturnURL),
		ExtraData:       input.ExtraData,
		ExpireTime:      now.Add(time.Duration(expireMinutes) * time.Minute),
	}
	if err := s.orderRepo.Create(order); err != nil {
		// 并发创建撞唯一索引时回退为幂等命中
		raced, fetchErr := s.orderRepo.GetByMerchant(input.UserID, merchantOrderNo)
		if fetchErr == nil && raced != nil {
			logger.Infow("payment_order_create_race_resolved",
				"user_id", input.UserID,
				"merchant_order_no", merchantOrderNo,
				"order_no", raced.OrderNo,
			)
			return raced, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrOrderCreateFailed, err)
	}
	logger.Infow("payment_order_created",
		"order_no", order.OrderNo,
		"user_id", order.UserID,
		"pay_method", order.PayMethod,
		"amount", order.Amount.String(),
		"expire_time", order.ExpireTime,
	)

	// 到期关单延迟任务，周期扫描仍兜底
	if err := s.queueClient.EnqueueOrderExpire(queue.OrderExpirePayload{OrderNo: order.OrderNo}, time.Until(order.ExpireTime)); err != nil {
		logger.Warnw("payment_order_expire_enqueue_failed", "order_no", order.OrderNo, "error", err)
	}

	if err := channelSvc.PreCheck(order); err != nil {
		s.markFailed(order.OrderNo, err)
		return s.mustReload(order)
	}

	callCtx, cancel := s.channelContext(ctx)
	defer cancel()
	payResult, err := channelSvc.Pay(callCtx, channelCfg.ConfigJSON, order)
	if err != nil {
		if errors.Is(err, channel.ErrTransient) {
			// 临时失败不落状态，订单保持 waiting
			logger.Warnw("payment_order_pay_transient_failure", "order_no", order.OrderNo, "error", err)
			return order, nil
		}
		s.markFailed(order.OrderNo, err)
		return s.mustReload(order)
	}

	// 下单成功只回填渠道要素，状态保持 waiting；
	// paying 由查单/对账在渠道报告用户开始支付（如 USERPAYING）后推进
	extra := map[string]interface{}{}
	if payResult.ChannelOrderNo != "" {
		extra["channel_order_no"] = payResult.ChannelOrderNo
	}
	if payResult.PayURL != "" {
		extra["pay_url"] = payResult.PayURL
	}
	if payResult.QRCode != "" {
		extra["qr_code"] = payResult.QRCode
	}
	if payResult.PayParams != nil {
		extra["pay_params"] = payResult.PayParams
	}
	if len(extra) > 0 {
		changed, err := s.orderRepo.UpdateStatusIf(order.OrderNo, []string{constants.PayOrderStatusWaiting}, constants.PayOrderStatusWaiting, extra)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
		}
		if !changed {
			// 到期关单等并发写入先行，渠道结果不再回填
			logger.Warnw("payment_order_pay_result_dropped", "order_no", order.OrderNo)
		}
	}
	return s.mustReload(order)
}

// GetPaymentOrder 按系统订单号查询
func (s *PaymentOrderService) GetPaymentOrder(orderNo string) (*models.PaymentOrder, error) {
	order, err := s.orderRepo.GetByOrderNo(strings.TrimSpace(orderNo))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetByMerchantOrderNo 按商户订单号查询
func (s *PaymentOrderService) GetByMerchantOrderNo(userID uint, merchantOrderNo string) (*models.PaymentOrder, error) {
	order, err := s.orderRepo.GetByMerchant(userID, strings.TrimSpace(merchantOrderNo))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListPaymentOrders 分页查询订单
func (s *PaymentOrderService) ListPaymentOrders(filter repository.PaymentOrderListFilter) ([]models.PaymentOrder, int64, error) {
	return s.orderRepo.List(filter)
}

// ClosePaymentOrder 关闭订单。
// 终态订单直接返回不报错，渠道侧关单尽力而为。
func (s *PaymentOrderService) ClosePaymentOrder(ctx context.Context, orderNo string) (*models.PaymentOrder, error) {
	order, err := s.GetPaymentOrder(orderNo)
	if err != nil {
		return nil, err
	}
	if order.IsTerminal() {
		return order, nil
	}

	changed, err := s.orderRepo.UpdateStatusIf(order.OrderNo,
		[]string{constants.PayOrderStatusWaiting, constants.PayOrderStatusPaying},
		constants.PayOrderStatusClosed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
	}
	if changed {
		logger.Infow("payment_order_closed", "order_no", order.OrderNo)
		s.notifyChannelClose(ctx, order)
	}
	return s.mustReload(order)
}

// SyncPaymentOrderStatus 主动向渠道查单并推进本地状态。
// 返回本次调用是否产生了状态迁移。
func (s *PaymentOrderService) SyncPaymentOrderStatus(ctx context.Context, orderNo string) (*models.PaymentOrder, bool, error) {
	order, err := s.GetPaymentOrder(orderNo)
	if err != nil {
		return nil, false, err
	}
	if order.IsTerminal() {
		return order, false, nil
	}

	result, err := s.queryChannel(ctx, order)
	if err != nil {
		return order, false, err
	}
	changed, err := s.applyQueryResult(order, result)
	if err != nil {
		return order, false, err
	}
	reloaded, reloadErr := s.mustReload(order)
	if reloadErr != nil {
		return order, changed, reloadErr
	}
	return reloaded, changed, nil
}

// MarkRefunded 标记订单已退款，仅允许 success 迁出
func (s *PaymentOrderService) MarkRefunded(orderNo string) (*models.PaymentOrder, error) {
	order, err := s.GetPaymentOrder(orderNo)
	if err != nil {
		return nil, err
	}
	changed, err := s.orderRepo.UpdateStatusIf(order.OrderNo,
		[]string{constants.PayOrderStatusSuccess},
		constants.PayOrderStatusRefunded, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
	}
	if !changed {
		return nil, ErrOrderStatusConflict
	}
	logger.Infow("payment_order_refunded", "order_no", order.OrderNo)
	return s.mustReload(order)
}

// queryChannel 解析订单渠道并发起查单
func (s *PaymentOrderService) queryChannel(ctx context.Context, order *models.PaymentOrder) (*channel.QueryResult, error) {
	channelSvc := s.registry.ResolveByCode(order.ChannelCode)
	if channelSvc == nil {
		return nil, ErrPayMethodNotSupported
	}
	channelCfg, err := s.channelCfgSvc.ResolveEnabled(ctx, order.ChannelCode)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := s.channelContext(ctx)
	defer cancel()
	return channelSvc.Query(callCtx, channelCfg.ConfigJSON, order)
}

// applyQueryResult 按渠道查单结果做单向推进。
// 所有迁移都经条件更新，落后的/重复的结果自然落空。
func (s *PaymentOrderService) applyQueryResult(order *models.PaymentOrder, result *channel.QueryResult) (bool, error) {
	if result == nil {
		return false, nil
	}
	extra := map[string]interface{}{}
	if result.ChannelOrderNo != "" && order.ChannelOrderNo == "" {
		extra["channel_order_no"] = result.ChannelOrderNo
	}

	var expected []string
	newStatus := result.Status
	switch result.Status {
	case constants.PayOrderStatusSuccess:
		successTime := time.Now()
		if result.SuccessTime != nil {
			successTime = *result.SuccessTime
		}
		extra["success_time"] = successTime
		expected = []string{constants.PayOrderStatusWaiting, constants.PayOrderStatusPaying}
	case constants.PayOrderStatusRefunded:
		expected = []string{constants.PayOrderStatusWaiting, constants.PayOrderStatusPaying, constants.PayOrderStatusSuccess}
	case constants.PayOrderStatusFailed, constants.PayOrderStatusClosed:
		expected = []string{constants.PayOrderStatusWaiting, constants.PayOrderStatusPaying}
	case constants.PayOrderStatusPaying:
		expected = []string{constants.PayOrderStatusWaiting}
	default:
		// waiting：渠道尚无进展
		return false, nil
	}

	changed, err := s.orderRepo.UpdateStatusIf(order.OrderNo, expected, newStatus, extra)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
	}
	if changed {
		logger.Infow("payment_order_status_synced",
			"order_no", order.OrderNo,
			"from", order.Status,
			"to", newStatus,
		)
	}
	return changed, nil
}

// markFailed 将 waiting 订单置为 failed 并记录渠道错误
func (s *PaymentOrderService) markFailed(orderNo string, cause error) {
	extra := map[string]interface{}{
		"error_msg": cause.Error(),
	}
	var permErr *channel.PermanentError
	if errors.As(cause, &permErr) {
		extra["error_code"] = permErr.Code
		extra["error_msg"] = permErr.Msg
	}
	changed, err := s.orderRepo.UpdateStatusIf(orderNo,
		[]string{constants.PayOrderStatusWaiting},
		constants.PayOrderStatusFailed, extra)
	if err != nil {
		logger.Errorw("payment_order_mark_failed_error", "order_no", orderNo, "error", err)
		return
	}
	if changed {
		logger.Infow("payment_order_marked_failed", "order_no", orderNo, "cause", cause.Error())
	}
}

// notifyChannelClose 渠道侧关单，失败只记日志
func (s *PaymentOrderService) notifyChannelClose(ctx context.Context, order *models.PaymentOrder) {
	channelSvc := s.registry.ResolveByCode(order.ChannelCode)
	if channelSvc == nil {
		return
	}
	channelCfg, err := s.channelCfgSvc.ResolveEnabled(ctx, order.ChannelCode)
	if err != nil {
		logger.Warnw("payment_order_channel_close_skipped", "order_no", order.OrderNo, "error", err)
		return
	}
	callCtx, cancel := s.channelContext(ctx)
	defer cancel()
	if _, err := channelSvc.Close(callCtx, channelCfg.ConfigJSON, order); err != nil {
		logger.Warnw("payment_order_channel_close_failed", "order_no", order.OrderNo, "error", err)
	}
}

func (s *PaymentOrderService) channelContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(s.payCfg.ChannelTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *PaymentOrderService) mustReload(order *models.PaymentOrder) (*models.PaymentOrder, error) {
	reloaded, err := s.orderRepo.GetByOrderNo(order.OrderNo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	if reloaded == nil {
		return nil, ErrOrderNotFound
	}
	return reloaded, nil
}

// generateOrderNo 生成系统订单号：P + 时间戳 + 6 位随机数字
func generateOrderNo() string {
	return "P" + time.Now().Format("20060102150405") + randNumeric(6)
}

func randNumeric(n int) string {
	const digits = "0123456789"
	result := make([]byte, n)
	for i := range result {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			result[i] = '0'
			continue
		}
		result[i] = digits[idx.Int64()]
	}
	return string(result)
}
