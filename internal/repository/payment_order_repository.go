package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/unipay-next/internal/constants"
	"github.com/unipay-next/internal/models"

	"gorm.io/gorm"
)

// PaymentOrderRepository 支付订单数据访问接口
type PaymentOrderRepository interface {
	Create(order *models.PaymentOrder) error
	GetByOrderNo(orderNo string) (*models.PaymentOrder, error)
	GetByMerchant(userID uint, merchantOrderNo string) (*models.PaymentOrder, error)
	List(filter PaymentOrderListFilter) ([]models.PaymentOrder, int64, error)
	UpdateStatusIf(orderNo string, expected []string, newStatus string, extra map[string]interface{}) (bool, error)
	ListExpired(now time.Time, limit int) ([]models.PaymentOrder, error)
	ListStalePaying(before time.Time, limit int) ([]models.PaymentOrder, error)
	WithTx(tx *gorm.DB) *GormPaymentOrderRepository
}

// GormPaymentOrderRepository GORM 实现
type GormPaymentOrderRepository struct {
	db *gorm.DB
}

// NewPaymentOrderRepository 创建支付订单仓库
func NewPaymentOrderRepository(db *gorm.DB) *GormPaymentOrderRepository {
	return &GormPaymentOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentOrderRepository) WithTx(tx *gorm.DB) *GormPaymentOrderRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentOrderRepository{db: tx}
}

// Create 创建支付订单
func (r *GormPaymentOrderRepository) Create(order *models.PaymentOrder) error {
	return r.db.Create(order).Error
}

// GetByOrderNo 根据系统单号获取支付订单
func (r *GormPaymentOrderRepository) GetByOrderNo(orderNo string) (*models.PaymentOrder, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, nil
	}
	var order models.PaymentOrder
	if err := r.db.Where("order_no = ?", orderNo).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByMerchant 根据业务方单号获取支付订单
func (r *GormPaymentOrderRepository) GetByMerchant(userID uint, merchantOrderNo string) (*models.PaymentOrder, error) {
	merchantOrderNo = strings.TrimSpace(merchantOrderNo)
	if userID == 0 || merchantOrderNo == "" {
		return nil, nil
	}
	var order models.PaymentOrder
	result := r.db.Where("user_id = ? AND merchant_order_no = ?", userID, merchantOrderNo).Limit(1).Find(&order)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &order, nil
}

// List 支付订单列表
func (r *GormPaymentOrderRepository) List(filter PaymentOrderListFilter) ([]models.PaymentOrder, int64, error) {
	query := r.db.Model(&models.PaymentOrder{})

	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ChannelCode != "" {
		query = query.Where("channel_code = ?", filter.ChannelCode)
	}
	if filter.PayMethod != "" {
		query = query.Where("pay_method = ?", filter.PayMethod)
	}
	if filter.MerchantOrderNo != "" {
		query = query.Where("merchant_order_no = ?", filter.MerchantOrderNo)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		condition, argCount := buildKeywordLikeCondition(r.db, []string{"subject", "body", "merchant_order_no"})
		if argCount > 0 {
			query = query.Where(condition, repeatLikeArgs("%"+keyword+"%", argCount)...)
		}
	}
	if isSafeJSONKey(filter.ExtraKey) {
		query = query.Where(jsonTextExpr(r.db, "extra_data", strings.TrimSpace(filter.ExtraKey))+" = ?", filter.ExtraValue)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var orders []models.PaymentOrder
	if err := query.Order("id desc").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatusIf 条件状态迁移。
// 多实例并发下状态机的正确性完全依赖这一条条件 UPDATE，
// 调用方通过返回值判断本次迁移是否由自己完成。
func (r *GormPaymentOrderRepository) UpdateStatusIf(orderNo string, expected []string, newStatus string, extra map[string]interface{}) (bool, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" || len(expected) == 0 {
		return false, nil
	}
	updates := map[string]interface{}{
		"status":     newStatus,
		"updated_at": time.Now(),
	}
	for key, value := range extra {
		key = strings.TrimSpace(key)
		if key == "" || key == "status" || key == "order_no" {
			continue
		}
		updates[key] = value
	}
	result := r.db.Model(&models.PaymentOrder{}).
		Where("order_no = ? AND status IN ?", orderNo, expected).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListExpired 获取已过期的未终态订单
func (r *GormPaymentOrderRepository) ListExpired(now time.Time, limit int) ([]models.PaymentOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []models.PaymentOrder
	err := r.db.
		Where("status IN ? AND expire_time < ?",
			[]string{constants.PayOrderStatusWaiting, constants.PayOrderStatusPaying},
			now,
		).
		Order("expire_time asc").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListStalePaying 获取需要对账的滞留订单：
// 长时间停留在 paying 的订单，以及已拿到渠道流水号但仍为 waiting 的订单。
func (r *GormPaymentOrderRepository) ListStalePaying(before time.Time, limit int) ([]models.PaymentOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	var orders []models.PaymentOrder
	err := r.db.
		Where("(status = ? AND updated_at < ?) OR (status = ? AND channel_order_no <> '' AND updated_at < ?)",
			constants.PayOrderStatusPaying, before,
			constants.PayOrderStatusWaiting, before,
		).
		Order("updated_at asc").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
