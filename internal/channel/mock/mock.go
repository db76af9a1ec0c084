package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/unipay-next/internal/channel"
	"github.com/unipay-next/internal/constants"
	"github.com/unipay-next/internal/models"

	"github.com/google/uuid"
)

// Channel 模拟渠道，用于联调与测试。
// 配置项：
//   success_rate  下单成功率（0-100，默认 100）
//   query_status  查单固定返回的状态（缺省时：有渠道流水号即返回 success）
type Channel struct{}

// New 创建模拟渠道
func New() *Channel {
	return &Channel{}
}

// ChannelCode 渠道编码
func (c *Channel) ChannelCode() string {
	return constants.ChannelCodeMock
}

// ChannelName 渠道名称
func (c *Channel) ChannelName() string {
	return "模拟渠道"
}

// Supports 是否支持支付方式
func (c *Channel) Supports(payMethod string) bool {
	return strings.ToLower(strings.TrimSpace(payMethod)) == constants.PayMethodMock
}

// PreCheck 下单前本地校验
func (c *Channel) PreCheck(order *models.PaymentOrder) error {
	if order == nil {
		return channel.NewPermanentError("MOCK_ORDER_NIL", "order is nil")
	}
	if !order.Amount.IsPositive() {
		return channel.NewPermanentError("MOCK_AMOUNT_INVALID", "amount must be positive")
	}
	return nil
}

// Pay 模拟下单
func (c *Channel) Pay(ctx context.Context, cfg models.JSON, order *models.PaymentOrder) (*channel.PayResult, error) {
	if err := c.PreCheck(order); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, channel.Transient(err)
	}
	rate := readInt(cfg, "success_rate", 100)
	if rate < 100 && rollDice() >= rate {
		return nil, channel.NewPermanentError("MOCK_REJECTED", "simulated provider rejection")
	}
	channelOrderNo := "MOCK" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return &channel.PayResult{
		ChannelOrderNo: channelOrderNo,
		QRCode:         fmt.Sprintf("mock://pay/%s", order.OrderNo),
		PayParams: models.JSON{
			"channel_order_no": channelOrderNo,
		},
		Raw: map[string]interface{}{
			"channel_order_no": channelOrderNo,
			"mock":             true,
		},
	}, nil
}

// Query 模拟查单
func (c *Channel) Query(ctx context.Context, cfg models.JSON, order *models.PaymentOrder) (*channel.QueryResult, error) {
	if order == nil {
		return nil, channel.NewPermanentError("MOCK_ORDER_NIL", "order is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, channel.Transient(err)
	}
	status := strings.TrimSpace(readString(cfg, "query_status"))
	if status == "" {
		if strings.TrimSpace(order.ChannelOrderNo) == "" {
			status = constants.PayOrderStatusWaiting
		} else {
			status = constants.PayOrderStatusSuccess
		}
	}
	if !constants.IsPayOrderStatus(status) {
		return nil, channel.NewPermanentError("MOCK_STATUS_INVALID", "query_status is invalid")
	}
	result := &channel.QueryResult{
		Status:         status,
		ChannelOrderNo: order.ChannelOrderNo,
		Amount:         order.Amount.String(),
		Raw:            map[string]interface{}{"mock": true, "status": status},
	}
	if status == constants.PayOrderStatusSuccess {
		now := time.Now()
		result.SuccessTime = &now
	}
	return result, nil
}

// Close 模拟关单
func (c *Channel) Close(ctx context.Context, cfg models.JSON, order *models.PaymentOrder) (*channel.CloseResult, error) {
	if order == nil {
		return nil, channel.NewPermanentError("MOCK_ORDER_NIL", "order is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, channel.Transient(err)
	}
	return &channel.CloseResult{
		AlreadyClosed: strings.TrimSpace(order.ChannelOrderNo) == "",
		Raw:           map[string]interface{}{"mock": true},
	}, nil
}

func rollDice() int {
	n, err := rand.Int(rand.Reader, big.NewInt(100))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}

func readInt(cfg models.JSON, key string, fallback int) int {
	if cfg == nil {
		return fallback
	}
	value, ok := cfg[key]
	if !ok || value == nil {
		return fallback
	}
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func readString(cfg models.JSON, key string) string {
	if cfg == nil {
		return ""
	}
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}
