package channel

import (
	"fmt"
	"strings"

	"github.com/unipay-next/internal/constants"
)

// Registry 支付方式到渠道的路由表。
// 启动时通过探测 Supports 一次性构建，运行期只读。
type Registry struct {
	byMethod map[string]Service
	byCode   map[string]Service
}

// BuildRegistry 构建渠道路由表。
// 同一支付方式被多个渠道认领、或存在无人认领的支付方式，均视为配置错误。
func BuildRegistry(services []Service) (*Registry, error) {
	byMethod := make(map[string]Service, len(constants.PayMethods))
	byCode := make(map[string]Service, len(services))

	for _, svc := range services {
		if svc == nil {
			continue
		}
		code := strings.ToLower(strings.TrimSpace(svc.ChannelCode()))
		if code == "" {
			return nil, fmt.Errorf("channel code is empty for %q", svc.ChannelName())
		}
		if _, exists := byCode[code]; exists {
			return nil, fmt.Errorf("duplicate channel code %q", code)
		}
		byCode[code] = svc
		for _, method := range constants.PayMethods {
			if !svc.Supports(method) {
				continue
			}
			if claimed, exists := byMethod[method]; exists {
				return nil, fmt.Errorf("pay method %q claimed by both %q and %q", method, claimed.ChannelCode(), code)
			}
			byMethod[method] = svc
		}
	}

	for _, method := range constants.PayMethods {
		if _, ok := byMethod[method]; !ok {
			return nil, fmt.Errorf("pay method %q has no channel", method)
		}
	}

	return &Registry{byMethod: byMethod, byCode: byCode}, nil
}

// Resolve 根据支付方式解析渠道，未知方式返回 nil。
func (r *Registry) Resolve(payMethod string) Service {
	if r == nil {
		return nil
	}
	return r.byMethod[strings.ToLower(strings.TrimSpace(payMethod))]
}

// ResolveByCode 根据渠道编码解析渠道
func (r *Registry) ResolveByCode(channelCode string) Service {
	if r == nil {
		return nil
	}
	return r.byCode[strings.ToLower(strings.TrimSpace(channelCode))]
}

// Codes 返回所有已注册渠道编码
func (r *Registry) Codes() []string {
	if r == nil {
		return nil
	}
	codes := make([]string, 0, len(r.byCode))
	for code := range r.byCode {
		codes = append(codes, code)
	}
	return codes
}
