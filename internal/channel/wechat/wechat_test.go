package wechat

import (
	"testing"

	"github.com/unipay-next/internal/constants"
	"github.com/unipay-next/internal/models"
)

func TestSupports(t *testing.T) {
	c := New()
	if !c.Supports(constants.PayMethodWechatNative) || !c.Supports(constants.PayMethodWechatH5) {
		t.Fatalf("wechat channel should claim native and h5")
	}
	if c.Supports(constants.PayMethodAlipayQR) || c.Supports(constants.PayMethodMock) {
		t.Fatalf("wechat channel should not claim foreign pay methods")
	}
}

func TestToOrderStatus(t *testing.T) {
	cases := []struct {
		tradeState string
		want       string
		known      bool
	}{
		{"SUCCESS", constants.PayOrderStatusSuccess, true},
		{"REFUND", constants.PayOrderStatusRefunded, true},
		{"NOTPAY", constants.PayOrderStatusWaiting, true},
		{"USERPAYING", constants.PayOrderStatusPaying, true},
		{"ACCEPT", constants.PayOrderStatusPaying, true},
		{"CLOSED", constants.PayOrderStatusClosed, true},
		{"REVOKED", constants.PayOrderStatusClosed, true},
		{"PAYERROR", constants.PayOrderStatusFailed, true},
		{" success ", constants.PayOrderStatusSuccess, true},
		{"UNKNOWN_STATE", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, known := ToOrderStatus(tc.tradeState)
		if got != tc.want || known != tc.known {
			t.Fatalf("ToOrderStatus(%q) = (%q, %v), want (%q, %v)", tc.tradeState, got, known, tc.want, tc.known)
		}
	}
}

func TestAmountToFen(t *testing.T) {
	cases := []struct {
		amount string
		want   int64
		ok     bool
	}{
		{"0.01", 1, true},
		{"1", 100, true},
		{"9.99", 999, true},
		{"100.50", 10050, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"0.001", 0, false}, // 低于分精度
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, err := amountToFen(tc.amount)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("amountToFen(%q) = (%d, %v), want %d", tc.amount, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("amountToFen(%q) should fail", tc.amount)
		}
	}
}

func TestFenToAmount(t *testing.T) {
	raw := map[string]interface{}{
		"amount": map[string]interface{}{"total": float64(999)},
	}
	if got := fenToAmount(raw); got != "9.99" {
		t.Fatalf("fenToAmount want 9.99 got %s", got)
	}
	if got := fenToAmount(map[string]interface{}{}); got != "" {
		t.Fatalf("missing amount node should yield empty string, got %s", got)
	}
}

func TestParseConfigValidation(t *testing.T) {
	if _, err := parseConfig(nil); err == nil {
		t.Fatalf("nil config should fail")
	}

	cfg := models.JSON{
		"appid":                "wx123",
		"mchid":                "1900000001",
		"merchant_serial_no":   "ABCDEF",
		"api_v3_key":           "short",
		"notify_url":           "https://example.com/notify",
		"merchant_private_key": "not-a-key",
	}
	if _, err := parseConfig(cfg); err == nil {
		t.Fatalf("short api_v3_key should fail validation")
	}
}

func TestParseRFC3339(t *testing.T) {
	got := parseRFC3339("2026-01-02T15:04:05+08:00")
	if got == nil {
		t.Fatalf("valid timestamp should parse")
	}
	if parseRFC3339("") != nil || parseRFC3339("not-a-time") != nil {
		t.Fatalf("invalid timestamps should yield nil")
	}
}
