package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/unipay-next/internal/http/handlers/shared"
	"github.com/unipay-next/internal/http/response"
	"github.com/unipay-next/internal/models"
	"github.com/unipay-next/internal/repository"
	"github.com/unipay-next/internal/service"

	"github.com/gin-gonic/gin"
)

// UpsertChannelConfigRequest 渠道配置写入请求
type UpsertChannelConfigRequest struct {
	ChannelCode string      `json:"channel_code" binding:"required"`
	Name        string      `json:"name"`
	Enabled     *bool       `json:"enabled"`
	ConfigJSON  models.JSON `json:"config_json"`
	SortOrder   *int        `json:"sort_order"`
}

// ListChannelConfigsQuery 渠道配置列表查询参数
type ListChannelConfigsQuery struct {
	Page        int    `form:"page"`
	PageSize    int    `form:"page_size"`
	ChannelCode string `form:"channel_code"`
	EnabledOnly bool   `form:"enabled_only"`
}

// ListChannelConfigs 分页查询渠道配置
func (h *Handler) ListChannelConfigs(c *gin.Context) {
	var query ListChannelConfigsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	page, pageSize := shared.NormalizePagination(query.Page, query.PageSize)

	configs, total, err := h.ChannelConfigService.ListChannelConfigs(repository.ChannelConfigListFilter{
		Page:        page,
		PageSize:    pageSize,
		ChannelCode: strings.TrimSpace(query.ChannelCode),
		EnabledOnly: query.EnabledOnly,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "渠道配置查询失败", err)
		return
	}
	totalPage := total / int64(pageSize)
	if total%int64(pageSize) > 0 {
		totalPage++
	}
	response.SuccessWithPage(c, configs, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPage,
	})
}

// GetChannelConfig 按 ID 获取渠道配置
func (h *Handler) GetChannelConfig(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	cfg, err := h.ChannelConfigService.GetChannelConfig(id)
	if err != nil {
		respondChannelConfigError(c, err)
		return
	}
	response.Success(c, cfg)
}

// UpsertChannelConfig 创建或更新渠道配置
func (h *Handler) UpsertChannelConfig(c *gin.Context) {
	var req UpsertChannelConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	cfg, err := h.ChannelConfigService.UpsertChannelConfig(c.Request.Context(), service.ChannelConfigInput{
		ChannelCode: req.ChannelCode,
		Name:        req.Name,
		Enabled:     req.Enabled,
		ConfigJSON:  req.ConfigJSON,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		respondChannelConfigError(c, err)
		return
	}
	response.Success(c, cfg)
}

// EnableChannel 启用渠道
func (h *Handler) EnableChannel(c *gin.Context) {
	h.setChannelEnabled(c, true)
}

// DisableChannel 停用渠道
func (h *Handler) DisableChannel(c *gin.Context) {
	h.setChannelEnabled(c, false)
}

func (h *Handler) setChannelEnabled(c *gin.Context, enabled bool) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	cfg, err := h.ChannelConfigService.SetChannelEnabled(c.Request.Context(), id, enabled)
	if err != nil {
		respondChannelConfigError(c, err)
		return
	}
	requestLog(c).Infow("admin_channel_enabled_changed", "channel_code", cfg.ChannelCode, "enabled", enabled)
	response.Success(c, cfg)
}

func parseIDParam(c *gin.Context) (uint, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		respondError(c, response.CodeBadRequest, "id 无效", err)
		return 0, false
	}
	return uint(parsed), true
}

func respondChannelConfigError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrChannelConfigNotFound):
		respondError(c, response.CodeNotFound, "渠道配置不存在", nil)
	case errors.Is(err, service.ErrChannelConfigInvalid):
		respondError(c, response.CodeBadRequest, "渠道配置无效", nil)
	case errors.Is(err, service.ErrChannelConfigExists):
		respondError(c, response.CodeConflict, "渠道配置已存在", nil)
	default:
		respondError(c, response.CodeInternal, "系统繁忙，请稍后再试", err)
	}
}
