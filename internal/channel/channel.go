package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/unipay-next/internal/models"
)

// 渠道调用失败二分法：
// ErrTransient 为临时失败（网络/超时/服务端 5xx），稍后重试可能成功；
// ErrPermanent 为渠道明确拒绝，重试无意义。
// 每个渠道实现的每次失败都必须归入其中之一。
var (
	ErrTransient = errors.New("channel transient failure")
	ErrPermanent = errors.New("channel permanent failure")
)

// PermanentError 携带渠道错误码的永久失败
type PermanentError struct {
	Code string
	Msg  string
}

func (e *PermanentError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("channel permanent failure: %s", e.Msg)
	}
	return fmt.Sprintf("channel permanent failure: [%s] %s", e.Code, e.Msg)
}

func (e *PermanentError) Unwrap() error {
	return ErrPermanent
}

// NewPermanentError 创建永久失败
func NewPermanentError(code, msg string) *PermanentError {
	return &PermanentError{Code: strings.TrimSpace(code), Msg: strings.TrimSpace(msg)}
}

// Transient 包装临时失败
func Transient(err error) error {
	if err == nil {
		return ErrTransient
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// PayResult 渠道下单结果
type PayResult struct {
	ChannelOrderNo string
	PayURL         string
	QRCode         string
	PayParams      models.JSON
	Raw            map[string]interface{}
}

// QueryResult 渠道查单结果
type QueryResult struct {
	Status         string
	ChannelOrderNo string
	Amount         string
	SuccessTime    *time.Time
	Raw            map[string]interface{}
}

// CloseResult 渠道关单结果
type CloseResult struct {
	AlreadyClosed bool
	Raw           map[string]interface{}
}

// Service 支付渠道统一契约。
// 所有实现必须无状态：凭证配置由调用方随调用传入，
// 且对 Query 的实现必须幂等。
type Service interface {
	ChannelCode() string
	ChannelName() string
	Supports(payMethod string) bool
	PreCheck(order *models.PaymentOrder) error
	Pay(ctx context.Context, cfg models.JSON, order *models.PaymentOrder) (*PayResult, error)
	Query(ctx context.Context, cfg models.JSON, order *models.PaymentOrder) (*QueryResult, error)
	Close(ctx context.Context, cfg models.JSON, order *models.PaymentOrder) (*CloseResult, error)
}
