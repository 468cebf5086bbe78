package job

import (
	"fmt"
	"time"
)

// Status 是任务状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusInFlight  Status = "in_flight"
	StatusSkipped   Status = "skipped"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal 报告是否为终态。
func (s Status) Terminal() bool {
	return s == StatusSkipped || s == StatusSucceeded || s == StatusFailed
}

// canTransition 约束状态机：pending → skipped | in_flight → succeeded | failed。
// pending 也可直接失败（运行被取消，任务未被派发）。
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusSkipped || to == StatusInFlight || to == StatusFailed
	case StatusInFlight:
		return to == StatusSucceeded || to == StatusFailed
	default:
		return false
	}
}

// Progress 跟踪单个任务的状态迁移。
type Progress struct {
	status Status
}

// NewProgress 返回处于 pending 状态的跟踪器。
func NewProgress() *Progress {
	return &Progress{status: StatusPending}
}

// Status 返回当前状态。
func (p *Progress) Status() Status { return p.status }

// Advance 迁移到 to，非法迁移返回错误且状态不变。
func (p *Progress) Advance(to Status) error {
	if !canTransition(p.status, to) {
		return fmt.Errorf("[job] 非法状态迁移: %s -> %s", p.status, to)
	}
	p.status = to
	return nil
}

// Outcome 是任务的最终结果。
type Outcome struct {
	Job      Descriptor
	Status   Status
	Attempts int           // 实际发起的合成请求次数（组合任务为各段之和）
	Bytes    int           // 写入的字节数（后处理前）
	Reason   string        // 失败原因
	Err      error         // 失败时的原始错误
	PostErr  error         // 后处理错误，不影响 Status
	Elapsed  time.Duration // 从派发到结束的耗时
}

// Skipped 构造跳过结果。
func Skipped(d Descriptor) Outcome {
	return Outcome{Job: d, Status: StatusSkipped}
}

// Failed 构造失败结果。
func Failed(d Descriptor, attempts int, err error) Outcome {
	reason := "unknown"
	if err != nil {
		reason = err.Error()
	}
	return Outcome{Job: d, Status: StatusFailed, Attempts: attempts, Reason: reason, Err: err}
}
