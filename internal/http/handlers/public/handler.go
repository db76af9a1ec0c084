package public

import "github.com/unipay-next/internal/provider"

// Handler 支付开放接口处理器入口
type Handler struct {
	*provider.Container
}

// New 创建支付接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
