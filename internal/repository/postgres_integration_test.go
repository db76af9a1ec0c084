//go:build integration
// +build integration

package repository

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/unipay-next/internal/constants"
	"github.com/unipay-next/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := []interface{}{
		&models.PaymentOrder{},
		&models.ChannelConfig{},
	}
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := db.AutoMigrate(
		&models.PaymentOrder{},
		&models.ChannelConfig{},
	); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func newPostgresIntegrationOrder(orderNo string, amount int64) *models.PaymentOrder {
	return &models.PaymentOrder{
		OrderNo:         orderNo,
		MerchantOrderNo: "M-" + orderNo,
		UserID:          1,
		ChannelCode:     constants.ChannelCodeMock,
		PayMethod:       constants.PayMethodMock,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(amount)),
		Currency:        "CNY",
		Subject:         "集成测试订单",
		Status:          constants.PayOrderStatusWaiting,
		ExpireTime:      time.Now().Add(30 * time.Minute),
	}
}

func TestPostgresPaymentOrderKeywordAndExtraSearch(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewPaymentOrderRepository(db)

	order := newPostgresIntegrationOrder("PG-PAY-001", 120)
	order.Subject = "Rocket 会员充值"
	order.ExtraData = models.JSON{"attach": "scene-42", "shop_id": "7"}
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	other := newPostgresIntegrationOrder("PG-PAY-002", 50)
	other.Subject = "普通充值"
	if err := repo.Create(other); err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	// 关键字搜索在 postgres 上走 ILIKE，大小写不敏感
	rows, total, err := repo.List(PaymentOrderListFilter{Page: 1, PageSize: 10, Keyword: "rocket"})
	if err != nil {
		t.Fatalf("keyword search failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].OrderNo != "PG-PAY-001" {
		t.Fatalf("keyword search want PG-PAY-001 got total=%d len=%d", total, len(rows))
	}

	// 透传数据过滤走 jsonb ->> 提取
	rows, total, err = repo.List(PaymentOrderListFilter{
		Page:       1,
		PageSize:   10,
		ExtraKey:   "attach",
		ExtraValue: "scene-42",
	})
	if err != nil {
		t.Fatalf("extra data search failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].OrderNo != "PG-PAY-001" {
		t.Fatalf("extra data search want PG-PAY-001 got total=%d len=%d", total, len(rows))
	}
}

func TestPostgresPaymentOrderConditionalUpdate(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewPaymentOrderRepository(db)

	order := newPostgresIntegrationOrder("PG-PAY-100", 88)
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	now := time.Now()
	changed, err := repo.UpdateStatusIf(order.OrderNo,
		[]string{constants.PayOrderStatusWaiting, constants.PayOrderStatusPaying},
		constants.PayOrderStatusSuccess,
		map[string]interface{}{"success_time": &now})
	if err != nil {
		t.Fatalf("first conditional update failed: %v", err)
	}
	if !changed {
		t.Fatalf("first conditional update should win")
	}

	changed, err = repo.UpdateStatusIf(order.OrderNo,
		[]string{constants.PayOrderStatusWaiting, constants.PayOrderStatusPaying},
		constants.PayOrderStatusClosed, nil)
	if err != nil {
		t.Fatalf("second conditional update failed: %v", err)
	}
	if changed {
		t.Fatalf("second conditional update should lose")
	}

	reloaded, err := repo.GetByOrderNo(order.OrderNo)
	if err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if reloaded == nil || reloaded.Status != constants.PayOrderStatusSuccess {
		t.Fatalf("order status want success got %+v", reloaded)
	}
	if reloaded.SuccessTime == nil {
		t.Fatalf("success_time should be set")
	}
}

func TestPostgresChannelConfigRepository(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewChannelConfigRepository(db)

	for i, code := range []string{constants.ChannelCodeMock, constants.ChannelCodeWechat} {
		cfg := &models.ChannelConfig{
			ChannelCode: code,
			Name:        fmt.Sprintf("渠道 %s", code),
			Enabled:     i == 0,
			ConfigJSON:  models.JSON{"app_id": "test"},
			SortOrder:   i,
		}
		if err := repo.Create(cfg); err != nil {
			t.Fatalf("create channel config failed: %v", err)
		}
	}

	rows, total, err := repo.List(ChannelConfigListFilter{Page: 1, PageSize: 10, EnabledOnly: true})
	if err != nil {
		t.Fatalf("list enabled channel configs failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ChannelCode != constants.ChannelCodeMock {
		t.Fatalf("enabled-only list want mock got total=%d len=%d", total, len(rows))
	}

	got, err := repo.GetByChannelCode(constants.ChannelCodeWechat)
	if err != nil {
		t.Fatalf("get by channel code failed: %v", err)
	}
	if got == nil || got.Enabled {
		t.Fatalf("wechat config should exist and be disabled, got %+v", got)
	}
}
