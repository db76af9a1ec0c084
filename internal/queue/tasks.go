package queue

import (
	"encoding/json"

	"github.com/unipay-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderExpire 单笔订单到期关单任务
	TaskOrderExpire = constants.TaskOrderExpire
	// TaskExpireSweep 过期订单兜底扫描任务
	TaskExpireSweep = constants.TaskExpireSweep
	// TaskStatusReconcile 状态对账任务
	TaskStatusReconcile = constants.TaskStatusReconcile
)

// OrderExpirePayload 单笔到期关单任务载荷
type OrderExpirePayload struct {
	OrderNo string `json:"order_no"`
}

// NewOrderExpireTask 创建单笔到期关单任务
func NewOrderExpireTask(payload OrderExpirePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderExpire, body), nil
}

// NewExpireSweepTask 创建过期订单扫描任务
func NewExpireSweepTask() *asynq.Task {
	return asynq.NewTask(TaskExpireSweep, nil)
}

// NewStatusReconcileTask 创建状态对账任务
func NewStatusReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskStatusReconcile, nil)
}
