// Package retry 为单次合成调用提供有上限的重试、退避与响应校验。
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/iabetor/stemgen/internal/tts"
)

// Strategy 是退避策略。
type Strategy string

const (
	// StrategyFixed 每次重试之间固定间隔。
	StrategyFixed Strategy = "fixed"
	// StrategyExponential 指数退避加抖动，限制在 [MinDelay, MaxDelay]。
	StrategyExponential Strategy = "exponential"
)

// Notice 在每次失败后、等待重试前发出。
type Notice struct {
	Attempt int // 失败的尝试序号，从 1 开始
	Total   int
	Err     error
	Delay   time.Duration
}

// Policy 描述重试参数。零值字段由 Do 填充默认值。
type Policy struct {
	MaxAttempts int
	Strategy    Strategy
	Delay       time.Duration // fixed 策略的间隔
	MinDelay    time.Duration // exponential 策略及背压错误的最小间隔
	MaxDelay    time.Duration
	// MinBytes 是有效音频的最小字节数，响应长度 <= MinBytes 视为无效响应。
	MinBytes int
	// Validate 对响应做额外校验（如 MP3 解码），返回错误视为无效响应。
	Validate func([]byte) error

	Sleep    func(ctx context.Context, d time.Duration) error
	OnRetry  func(Notice)
	newCurve func() backoff.BackOff
}

// Result 是一次 Do 的结果。
type Result struct {
	Data     []byte
	Attempts int
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Strategy == "" {
		p.Strategy = StrategyFixed
	}
	if p.MinDelay <= 0 {
		p.MinDelay = time.Second
	}
	if p.MaxDelay < p.MinDelay {
		p.MaxDelay = p.MinDelay
	}
	if p.Sleep == nil {
		p.Sleep = sleepWithCtx
	}
	if p.newCurve == nil {
		p.newCurve = p.exponentialCurve
	}
	return p
}

func (p Policy) exponentialCurve() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.MinDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.Reset()
	return b
}

// Do 执行 fn，直到成功、遇到不可重试的错误、上下文取消或用尽 MaxAttempts 次尝试。
// 成功要求 fn 无错误且响应通过长度与 Validate 校验。
// 失败时返回最后一次的错误，Result.Attempts 为实际尝试次数。
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) ([]byte, error)) (Result, error) {
	p = p.withDefaults()
	curve := p.newCurve()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempt - 1}, lastErrOr(lastErr, err)
		}

		data, err := fn(ctx)
		if err == nil {
			err = p.check(data)
		}
		if err == nil {
			return Result{Data: data, Attempts: attempt}, nil
		}
		lastErr = err

		kind := tts.KindOf(err)
		if ctx.Err() != nil {
			kind = tts.KindCanceled
		}
		if !kind.Retryable() {
			return Result{Attempts: attempt}, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.delay(kind, curve)
		if p.OnRetry != nil {
			p.OnRetry(Notice{Attempt: attempt, Total: p.MaxAttempts, Err: err, Delay: delay})
		}
		if err := p.Sleep(ctx, delay); err != nil {
			return Result{Attempts: attempt}, lastErr
		}
	}

	return Result{Attempts: p.MaxAttempts}, fmt.Errorf("%d 次尝试后放弃: %w", p.MaxAttempts, lastErr)
}

// check 校验响应体。
func (p Policy) check(data []byte) error {
	if len(data) <= p.MinBytes {
		return tts.NewError(tts.KindInvalidResponse, "validate",
			fmt.Errorf("音频数据过小: %d 字节（最少 %d）", len(data), p.MinBytes+1))
	}
	if p.Validate != nil {
		if err := p.Validate(data); err != nil {
			return tts.NewError(tts.KindInvalidResponse, "validate", err)
		}
	}
	return nil
}

// delay 返回下一次重试前的等待时间。背压错误即使在 fixed 策略下也走指数曲线。
func (p Policy) delay(kind tts.Kind, curve backoff.BackOff) time.Duration {
	if p.Strategy != StrategyExponential && !kind.Backpressure() {
		return p.Delay
	}
	d := curve.NextBackOff()
	if d < p.MinDelay {
		d = p.MinDelay
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func lastErrOr(last, fallback error) error {
	if last != nil {
		return last
	}
	return fallback
}

func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
