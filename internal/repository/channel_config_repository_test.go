package repository

import (
	"testing"

	"github.com/unipay-next/internal/constants"
	"github.com/unipay-next/internal/models"
)

func TestChannelConfigCreateAndGet(t *testing.T) {
	repo := NewChannelConfigRepository(setupRepositoryTestDB(t))

	cfg := &models.ChannelConfig{
		ChannelCode: constants.ChannelCodeMock,
		Name:        "模拟渠道",
		Enabled:     true,
		ConfigJSON:  models.JSON{"success_rate": float64(100)},
	}
	if err := repo.Create(cfg); err != nil {
		t.Fatalf("create channel config failed: %v", err)
	}

	got, err := repo.GetByChannelCode(" MOCK ")
	if err != nil {
		t.Fatalf("get by channel code failed: %v", err)
	}
	if got == nil || got.ChannelCode != constants.ChannelCodeMock {
		t.Fatalf("channel code lookup should trim and lowercase, got %+v", got)
	}

	got, err = repo.GetByChannelCode("unknown")
	if err != nil || got != nil {
		t.Fatalf("missing config should be nil-nil, got cfg=%v err=%v", got, err)
	}

	byID, err := repo.GetByID(cfg.ID)
	if err != nil || byID == nil {
		t.Fatalf("get by id failed: cfg=%v err=%v", byID, err)
	}

	byID, err = repo.GetByID(9999)
	if err != nil || byID != nil {
		t.Fatalf("missing id should be nil-nil, got cfg=%v err=%v", byID, err)
	}
}

// TestChannelConfigCreateDisabledPersists 创建即停用的配置必须按停用落库，
// 不能被列默认值改写成启用。
func TestChannelConfigCreateDisabledPersists(t *testing.T) {
	repo := NewChannelConfigRepository(setupRepositoryTestDB(t))

	if err := repo.Create(&models.ChannelConfig{
		ChannelCode: constants.ChannelCodeWechat,
		Name:        "微信支付",
		Enabled:     false,
	}); err != nil {
		t.Fatalf("create disabled config failed: %v", err)
	}

	got, err := repo.GetByChannelCode(constants.ChannelCodeWechat)
	if err != nil || got == nil {
		t.Fatalf("reload config failed: cfg=%v err=%v", got, err)
	}
	if got.Enabled {
		t.Fatalf("disabled config must persist enabled=false")
	}
}

func TestChannelConfigUniqueCode(t *testing.T) {
	repo := NewChannelConfigRepository(setupRepositoryTestDB(t))

	if err := repo.Create(&models.ChannelConfig{ChannelCode: constants.ChannelCodeMock, Name: "a", Enabled: true}); err != nil {
		t.Fatalf("create channel config failed: %v", err)
	}
	if err := repo.Create(&models.ChannelConfig{ChannelCode: constants.ChannelCodeMock, Name: "b", Enabled: true}); err == nil {
		t.Fatalf("duplicate channel code should hit unique index")
	}
}

func TestChannelConfigList(t *testing.T) {
	repo := NewChannelConfigRepository(setupRepositoryTestDB(t))

	configs := []*models.ChannelConfig{
		{ChannelCode: constants.ChannelCodeAlipay, Name: "支付宝", Enabled: true, SortOrder: 2},
		{ChannelCode: constants.ChannelCodeWechat, Name: "微信支付", Enabled: false, SortOrder: 1},
		{ChannelCode: constants.ChannelCodeMock, Name: "模拟渠道", Enabled: true, SortOrder: 0},
	}
	for _, cfg := range configs {
		if err := repo.Create(cfg); err != nil {
			t.Fatalf("create channel config failed: %v", err)
		}
	}

	rows, total, err := repo.List(ChannelConfigListFilter{Page: 1, PageSize: 10})
	if err != nil || total != 3 {
		t.Fatalf("list all want 3 got total=%d err=%v", total, err)
	}
	// 按 sort_order 升序
	if rows[0].ChannelCode != constants.ChannelCodeMock || rows[2].ChannelCode != constants.ChannelCodeAlipay {
		t.Fatalf("unexpected sort sequence: %s %s %s", rows[0].ChannelCode, rows[1].ChannelCode, rows[2].ChannelCode)
	}

	rows, total, err = repo.List(ChannelConfigListFilter{Page: 1, PageSize: 10, EnabledOnly: true})
	if err != nil || total != 2 {
		t.Fatalf("enabled-only want 2 got total=%d err=%v", total, err)
	}
	for _, row := range rows {
		if !row.Enabled {
			t.Fatalf("enabled-only list returned disabled config %s", row.ChannelCode)
		}
	}

	rows, total, err = repo.List(ChannelConfigListFilter{Page: 1, PageSize: 10, ChannelCode: constants.ChannelCodeWechat})
	if err != nil || total != 1 || rows[0].ChannelCode != constants.ChannelCodeWechat {
		t.Fatalf("code filter want wechat got total=%d err=%v", total, err)
	}
}
