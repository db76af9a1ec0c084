package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/unipay-next/internal/channel"
	"github.com/unipay-next/internal/channel/mock"
	"github.com/unipay-next/internal/config"
	"github.com/unipay-next/internal/constants"
	"github.com/unipay-next/internal/models"
	"github.com/unipay-next/internal/queue"
	"github.com/unipay-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// scriptedChannel 按脚本返回结果的测试渠道
type scriptedChannel struct {
	code        string
	methods     []string
	preCheckErr error
	payResult   *channel.PayResult
	payErr      error
	queryResult *channel.QueryResult
	queryErr    error
	closeCalls  int
}

func (s *scriptedChannel) ChannelCode() string { return s.code }
func (s *scriptedChannel) ChannelName() string { return "scripted-" + s.code }

func (s *scriptedChannel) Supports(payMethod string) bool {
	payMethod = strings.ToLower(strings.TrimSpace(payMethod))
	for _, m := range s.methods {
		if m == payMethod {
			return true
		}
	}
	return false
}

func (s *scriptedChannel) PreCheck(order *models.PaymentOrder) error { return s.preCheckErr }

func (s *scriptedChannel) Pay(ctx context.Context, cfg models.JSON, order *models.PaymentOrder) (*channel.PayResult, error) {
	if s.payErr != nil {
		return nil, s.payErr
	}
	if s.payResult != nil {
		return s.payResult, nil
	}
	return &channel.PayResult{}, nil
}

func (s *scriptedChannel) Query(ctx context.Context, cfg models.JSON, order *models.PaymentOrder) (*channel.QueryResult, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if s.queryResult != nil {
		return s.queryResult, nil
	}
	return &channel.QueryResult{Status: constants.PayOrderStatusWaiting}, nil
}

func (s *scriptedChannel) Close(ctx context.Context, cfg models.JSON, order *models.PaymentOrder) (*channel.CloseResult, error) {
	s.closeCalls++
	return &channel.CloseResult{}, nil
}

type serviceTestEnv struct {
	db        *gorm.DB
	orderRepo *repository.GormPaymentOrderRepository
	cfgRepo   *repository.GormChannelConfigRepository
	svc       *PaymentOrderService
	mock      *scriptedChannel
}

// newServiceTestEnv 构建带内存数据库和脚本渠道的服务环境，
// mock 渠道配置默认已启用。
func newServiceTestEnv(t *testing.T) *serviceTestEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:svc_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.PaymentOrder{}, &models.ChannelConfig{}); err != nil {
		t.Fatalf("migrate models failed: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	mock := &scriptedChannel{
		code:    constants.ChannelCodeMock,
		methods: []string{constants.PayMethodMock},
		payResult: &channel.PayResult{
			ChannelOrderNo: "CH-TEST-1",
			QRCode:         "mock://qr",
			PayParams:      models.JSON{"k": "v"},
		},
	}
	registry, err := channel.BuildRegistry([]channel.Service{
		mock,
		&scriptedChannel{code: constants.ChannelCodeWechat, methods: []string{constants.PayMethodWechatNative, constants.PayMethodWechatH5}},
		&scriptedChannel{code: constants.ChannelCodeAlipay, methods: []string{constants.PayMethodAlipayQR, constants.PayMethodAlipayWap, constants.PayMethodAlipayPage}},
	})
	if err != nil {
		t.Fatalf("build registry failed: %v", err)
	}

	orderRepo := repository.NewPaymentOrderRepository(db)
	cfgRepo := repository.NewChannelConfigRepository(db)
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("build queue client failed: %v", err)
	}

	if err := cfgRepo.Create(&models.ChannelConfig{
		ChannelCode: constants.ChannelCodeMock,
		Name:        "模拟渠道",
		Enabled:     true,
	}); err != nil {
		t.Fatalf("seed channel config failed: %v", err)
	}

	channelCfgSvc := NewChannelConfigService(cfgRepo, 60)
	svc := NewPaymentOrderService(orderRepo, channelCfgSvc, registry, queueClient, config.PayConfig{
		OrderExpireMinutes:    30,
		SweepBatchSize:        100,
		ReconcileStaleSeconds: 300,
		ReconcileBatchSize:    50,
		ChannelTimeoutSeconds: 5,
	})

	return &serviceTestEnv{db: db, orderRepo: orderRepo, cfgRepo: cfgRepo, svc: svc, mock: mock}
}

func validCreateInput() CreatePaymentOrderInput {
	return CreatePaymentOrderInput{
		UserID:          1,
		MerchantOrderNo: "M-1001",
		PayMethod:       constants.PayMethodMock,
		Amount:          "9.99",
		Subject:         "会员充值",
	}
}

func TestCreatePaymentOrderSuccess(t *testing.T) {
	env := newServiceTestEnv(t)

	order, err := env.svc.CreatePaymentOrder(context.Background(), validCreateInput())
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if !strings.HasPrefix(order.OrderNo, "P") || len(order.OrderNo) != 21 {
		t.Fatalf("unexpected order no: %s", order.OrderNo)
	}
	if order.Status != constants.PayOrderStatusWaiting {
		t.Fatalf("status want waiting got %s", order.Status)
	}
	if order.ChannelOrderNo != "CH-TEST-1" {
		t.Fatalf("channel order no want CH-TEST-1 got %s", order.ChannelOrderNo)
	}
	if order.QRCode != "mock://qr" {
		t.Fatalf("qr code want mock://qr got %s", order.QRCode)
	}
	if order.Currency != "CNY" {
		t.Fatalf("default currency want CNY got %s", order.Currency)
	}
	if !order.ExpireTime.After(time.Now()) {
		t.Fatalf("expire time should be in the future")
	}
}

// TestCreatePaymentOrderMockChannel 用真实 mock 渠道走通下单链路：
// 成功下单后订单停在 waiting，渠道单号与二维码已回填。
func TestCreatePaymentOrderMockChannel(t *testing.T) {
	env := newServiceTestEnv(t)

	registry, err := channel.BuildRegistry([]channel.Service{
		mock.New(),
		&scriptedChannel{code: constants.ChannelCodeWechat, methods: []string{constants.PayMethodWechatNative, constants.PayMethodWechatH5}},
		&scriptedChannel{code: constants.ChannelCodeAlipay, methods: []string{constants.PayMethodAlipayQR, constants.PayMethodAlipayWap, constants.PayMethodAlipayPage}},
	})
	if err != nil {
		t.Fatalf("build registry failed: %v", err)
	}
	svc := NewPaymentOrderService(env.orderRepo, NewChannelConfigService(env.cfgRepo, 60), registry, env.svc.queueClient, env.svc.payCfg)

	order, err := svc.CreatePaymentOrder(context.Background(), validCreateInput())
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.Status != constants.PayOrderStatusWaiting {
		t.Fatalf("status want waiting got %s", order.Status)
	}
	if !strings.HasPrefix(order.ChannelOrderNo, "MOCK") {
		t.Fatalf("channel order no should be set, got %q", order.ChannelOrderNo)
	}
	if order.QRCode != "mock://pay/"+order.OrderNo {
		t.Fatalf("qr code want mock://pay/%s got %s", order.OrderNo, order.QRCode)
	}
}

func TestCreatePaymentOrderIdempotent(t *testing.T) {
	env := newServiceTestEnv(t)

	first, err := env.svc.CreatePaymentOrder(context.Background(), validCreateInput())
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	// 第二次提交改动金额也不生效，返回原订单
	input := validCreateInput()
	input.Amount = "100.00"
	second, err := env.svc.CreatePaymentOrder(context.Background(), input)
	if err != nil {
		t.Fatalf("idempotent create failed: %v", err)
	}
	if second.OrderNo != first.OrderNo {
		t.Fatalf("idempotent create should return same order, want %s got %s", first.OrderNo, second.OrderNo)
	}
	if second.Amount.String() != first.Amount.String() {
		t.Fatalf("idempotent hit must not change amount")
	}
}

func TestCreatePaymentOrderValidation(t *testing.T) {
	env := newServiceTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreatePaymentOrderInput)
		want   error
	}{
		{"missing user", func(in *CreatePaymentOrderInput) { in.UserID = 0 }, ErrOrderInvalid},
		{"blank merchant order no", func(in *CreatePaymentOrderInput) { in.MerchantOrderNo = "  " }, ErrMerchantOrderNoInvalid},
		{"zero amount", func(in *CreatePaymentOrderInput) { in.Amount = "0.00" }, ErrInvalidAmount},
		{"negative amount", func(in *CreatePaymentOrderInput) { in.Amount = "-1" }, ErrInvalidAmount},
		{"malformed amount", func(in *CreatePaymentOrderInput) { in.Amount = "abc" }, ErrInvalidAmount},
		{"unknown pay method", func(in *CreatePaymentOrderInput) { in.PayMethod = "balance" }, ErrPayMethodNotSupported},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validCreateInput()
			tc.mutate(&input)
			if _, err := env.svc.CreatePaymentOrder(ctx, input); !errors.Is(err, tc.want) {
				t.Fatalf("want %v got %v", tc.want, err)
			}
		})
	}

	// 最小可收金额
	input := validCreateInput()
	input.MerchantOrderNo = "M-MIN"
	input.Amount = "0.01"
	if _, err := env.svc.CreatePaymentOrder(ctx, input); err != nil {
		t.Fatalf("0.01 should be accepted: %v", err)
	}
}

func TestCreatePaymentOrderChannelDisabled(t *testing.T) {
	env := newServiceTestEnv(t)

	cfg, err := env.cfgRepo.GetByChannelCode(constants.ChannelCodeMock)
	if err != nil || cfg == nil {
		t.Fatalf("load channel config failed: %v", err)
	}
	cfg.Enabled = false
	if err := env.cfgRepo.Update(cfg); err != nil {
		t.Fatalf("disable channel failed: %v", err)
	}

	if _, err := env.svc.CreatePaymentOrder(context.Background(), validCreateInput()); !errors.Is(err, ErrChannelDisabled) {
		t.Fatalf("want ErrChannelDisabled got %v", err)
	}
}

func TestCreatePaymentOrderTransientPayFailure(t *testing.T) {
	env := newServiceTestEnv(t)
	env.mock.payErr = channel.Transient(errors.New("gateway timeout"))

	order, err := env.svc.CreatePaymentOrder(context.Background(), validCreateInput())
	if err != nil {
		t.Fatalf("transient failure should not surface as error: %v", err)
	}
	if order.Status != constants.PayOrderStatusWaiting {
		t.Fatalf("order should stay waiting after transient failure, got %s", order.Status)
	}
	if order.ChannelOrderNo != "" {
		t.Fatalf("transient failure should not record channel order no")
	}
}

func TestCreatePaymentOrderPermanentPayFailure(t *testing.T) {
	env := newServiceTestEnv(t)
	env.mock.payErr = channel.NewPermanentError("INVALID_MCH", "商户号无效")

	order, err := env.svc.CreatePaymentOrder(context.Background(), validCreateInput())
	if err != nil {
		t.Fatalf("permanent failure should return order: %v", err)
	}
	if order.Status != constants.PayOrderStatusFailed {
		t.Fatalf("order should be failed, got %s", order.Status)
	}
	if order.ErrorCode != "INVALID_MCH" || order.ErrorMsg != "商户号无效" {
		t.Fatalf("channel error should be recorded, got code=%s msg=%s", order.ErrorCode, order.ErrorMsg)
	}
}

func TestCreatePaymentOrderPreCheckFailure(t *testing.T) {
	env := newServiceTestEnv(t)
	env.mock.preCheckErr = channel.NewPermanentError("AMOUNT_LIMIT", "超出单笔限额")

	order, err := env.svc.CreatePaymentOrder(context.Background(), validCreateInput())
	if err != nil {
		t.Fatalf("pre-check failure should return order: %v", err)
	}
	if order.Status != constants.PayOrderStatusFailed {
		t.Fatalf("order should be failed after pre-check, got %s", order.Status)
	}
	if order.ErrorCode != "AMOUNT_LIMIT" {
		t.Fatalf("pre-check error code want AMOUNT_LIMIT got %s", order.ErrorCode)
	}
}

func TestClosePaymentOrder(t *testing.T) {
	env := newServiceTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.CreatePaymentOrder(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	closed, err := env.svc.ClosePaymentOrder(ctx, order.OrderNo)
	if err != nil {
		t.Fatalf("close order failed: %v", err)
	}
	if closed.Status != constants.PayOrderStatusClosed {
		t.Fatalf("status want closed got %s", closed.Status)
	}
	if env.mock.closeCalls != 1 {
		t.Fatalf("channel close should be called once, got %d", env.mock.closeCalls)
	}

	// 终态重复关单为幂等 no-op
	again, err := env.svc.ClosePaymentOrder(ctx, order.OrderNo)
	if err != nil {
		t.Fatalf("close terminal order should not error: %v", err)
	}
	if again.Status != constants.PayOrderStatusClosed {
		t.Fatalf("status should remain closed, got %s", again.Status)
	}
	if env.mock.closeCalls != 1 {
		t.Fatalf("terminal close should not call channel again")
	}

	if _, err := env.svc.ClosePaymentOrder(ctx, "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("missing order want ErrOrderNotFound got %v", err)
	}
}

func TestSyncPaymentOrderStatusAdvancesToSuccess(t *testing.T) {
	env := newServiceTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.CreatePaymentOrder(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	successTime := time.Now().Add(-time.Minute).Truncate(time.Second)
	env.mock.queryResult = &channel.QueryResult{
		Status:         constants.PayOrderStatusSuccess,
		ChannelOrderNo: "CH-TEST-1",
		Amount:         "9.99",
		SuccessTime:    &successTime,
	}

	synced, changed, err := env.svc.SyncPaymentOrderStatus(ctx, order.OrderNo)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if !changed {
		t.Fatalf("sync should advance the order")
	}
	if synced.Status != constants.PayOrderStatusSuccess {
		t.Fatalf("status want success got %s", synced.Status)
	}
	if synced.SuccessTime == nil || !synced.SuccessTime.Equal(successTime) {
		t.Fatalf("success time should come from provider, got %v", synced.SuccessTime)
	}

	// 终态后再次同步不产生迁移，也不再触发查单
	_, changed, err = env.svc.SyncPaymentOrderStatus(ctx, order.OrderNo)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if changed {
		t.Fatalf("terminal order sync should be no-op")
	}
}

func TestSyncPaymentOrderStatusNoBackwardTransition(t *testing.T) {
	env := newServiceTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.CreatePaymentOrder(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	// 先推进到 success
	env.mock.queryResult = &channel.QueryResult{Status: constants.PayOrderStatusSuccess}
	if _, changed, err := env.svc.SyncPaymentOrderStatus(ctx, order.OrderNo); err != nil || !changed {
		t.Fatalf("advance to success failed: changed=%v err=%v", changed, err)
	}

	// 渠道汇报 closed 也不得回退
	env.mock.queryResult = &channel.QueryResult{Status: constants.PayOrderStatusClosed}
	synced, changed, err := env.svc.SyncPaymentOrderStatus(ctx, order.OrderNo)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if changed || synced.Status != constants.PayOrderStatusSuccess {
		t.Fatalf("success must not regress, changed=%v status=%s", changed, synced.Status)
	}
}

func TestSyncPaymentOrderStatusWaitingNoop(t *testing.T) {
	env := newServiceTestEnv(t)
	ctx := context.Background()

	env.mock.payResult = &channel.PayResult{QRCode: "mock://qr"}
	order, err := env.svc.CreatePaymentOrder(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.Status != constants.PayOrderStatusWaiting {
		t.Fatalf("order without channel order no should stay waiting")
	}

	env.mock.queryResult = &channel.QueryResult{Status: constants.PayOrderStatusWaiting}
	synced, changed, err := env.svc.SyncPaymentOrderStatus(ctx, order.OrderNo)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if changed || synced.Status != constants.PayOrderStatusWaiting {
		t.Fatalf("waiting result should be no-op, changed=%v status=%s", changed, synced.Status)
	}
}

func TestSyncPaymentOrderStatusBackfillsChannelOrderNo(t *testing.T) {
	env := newServiceTestEnv(t)
	ctx := context.Background()

	env.mock.payResult = &channel.PayResult{QRCode: "mock://qr"}
	order, err := env.svc.CreatePaymentOrder(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	env.mock.queryResult = &channel.QueryResult{
		Status:         constants.PayOrderStatusPaying,
		ChannelOrderNo: "CH-LATE-1",
	}
	synced, changed, err := env.svc.SyncPaymentOrderStatus(ctx, order.OrderNo)
	if err != nil || !changed {
		t.Fatalf("sync failed: changed=%v err=%v", changed, err)
	}
	if synced.Status != constants.PayOrderStatusPaying {
		t.Fatalf("status want paying got %s", synced.Status)
	}
	if synced.ChannelOrderNo != "CH-LATE-1" {
		t.Fatalf("channel order no should be backfilled, got %s", synced.ChannelOrderNo)
	}
}

// 渠道直接汇报 refunded 时不经过中间 success 写入，一次推进到位
func TestSyncPaymentOrderStatusRefundedBeforeLocalSuccess(t *testing.T) {
	env := newServiceTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.CreatePaymentOrder(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	env.mock.queryResult = &channel.QueryResult{Status: constants.PayOrderStatusRefunded}
	synced, changed, err := env.svc.SyncPaymentOrderStatus(ctx, order.OrderNo)
	if err != nil || !changed {
		t.Fatalf("sync failed: changed=%v err=%v", changed, err)
	}
	if synced.Status != constants.PayOrderStatusRefunded {
		t.Fatalf("status want refunded got %s", synced.Status)
	}
}

func TestMarkRefunded(t *testing.T) {
	env := newServiceTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.CreatePaymentOrder(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	// 非 success 状态不允许退款
	if _, err := env.svc.MarkRefunded(order.OrderNo); !errors.Is(err, ErrOrderStatusConflict) {
		t.Fatalf("refund before success want ErrOrderStatusConflict got %v", err)
	}

	env.mock.queryResult = &channel.QueryResult{Status: constants.PayOrderStatusSuccess}
	if _, _, err := env.svc.SyncPaymentOrderStatus(ctx, order.OrderNo); err != nil {
		t.Fatalf("advance to success failed: %v", err)
	}

	refunded, err := env.svc.MarkRefunded(order.OrderNo)
	if err != nil {
		t.Fatalf("mark refunded failed: %v", err)
	}
	if refunded.Status != constants.PayOrderStatusRefunded {
		t.Fatalf("status want refunded got %s", refunded.Status)
	}
}

func TestGenerateOrderNoShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		orderNo := generateOrderNo()
		if len(orderNo) != 21 || !strings.HasPrefix(orderNo, "P") {
			t.Fatalf("unexpected order no shape: %s", orderNo)
		}
		for _, r := range orderNo[1:] {
			if r < '0' || r > '9' {
				t.Fatalf("order no should be numeric after prefix: %s", orderNo)
			}
		}
		if seen[orderNo] {
			t.Fatalf("order no collision within small sample: %s", orderNo)
		}
		seen[orderNo] = true
	}
}
