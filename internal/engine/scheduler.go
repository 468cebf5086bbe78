// Package engine 在全局并发上限下执行生成任务：
// 跳过已缓存的目标，重试合成调用，原子写入，再做可选的后处理。
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/iabetor/stemgen/internal/audio"
	"github.com/iabetor/stemgen/internal/job"
	"github.com/iabetor/stemgen/internal/logger"
	"github.com/iabetor/stemgen/internal/postprocess"
	"github.com/iabetor/stemgen/internal/retry"
	"github.com/iabetor/stemgen/internal/tts"
)

// ErrDuplicateDestination 表示同一批任务中重复出现的目标路径。
var ErrDuplicateDestination = errors.New("重复的目标路径")

const defaultPostTimeout = 2 * time.Minute

// Config 调度参数。
type Config struct {
	// Concurrency 是同时进行中的合成调用上限，组合任务的每一段都单独计数。
	Concurrency int
	// RequestsPerSecond 大于 0 时对合成调用做令牌桶限流。
	RequestsPerSecond float64
	Retry             retry.Policy
	// RetryFailedOnce 为 true 时，首轮结束后暂停 RetryPause 再重跑一次失败任务。
	RetryFailedOnce bool
	RetryPause      time.Duration
	// PostTimeout 是单个文件后处理的时限，默认 2 分钟。后处理不随 ctx 取消而中断。
	PostTimeout time.Duration
}

// Scheduler 执行一批任务。同一个 Scheduler 可多次调用 Run，但不能并发调用。
type Scheduler struct {
	synth   tts.Engine
	post    postprocess.Processor
	cfg     Config
	calls   chan struct{}
	limiter *rate.Limiter

	write func(dest string, data []byte) error
	sleep func(ctx context.Context, d time.Duration) error
}

// New 创建调度器。post 为 nil 时不做后处理。
func New(synth tts.Engine, post postprocess.Processor, cfg Config) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if post == nil {
		post = postprocess.Noop{}
	}
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = defaultPostTimeout
	}

	s := &Scheduler{
		synth: synth,
		post:  post,
		cfg:   cfg,
		calls: make(chan struct{}, cfg.Concurrency),
		write: writeAtomic,
		sleep: sleepCtx,
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return s
}

// Report 是一次 Run 的结果，Outcomes 与输入顺序一致。
type Report struct {
	Outcomes  []job.Outcome
	Skipped   int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Total 返回任务总数。
func (r *Report) Total() int { return len(r.Outcomes) }

// FailedJobs 返回失败任务。
func (r *Report) FailedJobs() []job.Descriptor {
	var out []job.Descriptor
	for _, o := range r.Outcomes {
		if o.Status == job.StatusFailed {
			out = append(out, o.Job)
		}
	}
	return out
}

func (r *Report) tally() {
	r.Skipped, r.Succeeded, r.Failed = 0, 0, 0
	for _, o := range r.Outcomes {
		switch o.Status {
		case job.StatusSkipped:
			r.Skipped++
		case job.StatusSucceeded:
			r.Succeeded++
		case job.StatusFailed:
			r.Failed++
		}
	}
}

// Run 执行全部任务并返回报告。单个任务的失败只体现在报告里，不会中断其他任务。
// ctx 取消后不再派发新任务，未派发的任务记为失败。
func (s *Scheduler) Run(ctx context.Context, jobs []job.Descriptor) *Report {
	start := time.Now()
	report := &Report{Outcomes: s.runPass(ctx, jobs)}
	report.tally()

	var failed []job.Descriptor
	for _, o := range report.Outcomes {
		if o.Status == job.StatusFailed && !errors.Is(o.Err, ErrDuplicateDestination) {
			failed = append(failed, o.Job)
		}
	}

	if s.cfg.RetryFailedOnce && len(failed) > 0 && ctx.Err() == nil {
		logger.Infof("[engine] %d 个任务失败，%s 后重试一轮", len(failed), s.cfg.RetryPause)

		if err := s.sleep(ctx, s.cfg.RetryPause); err == nil {
			second := s.runPass(ctx, failed)
			byDest := make(map[string]job.Outcome, len(second))
			for _, o := range second {
				byDest[o.Job.Destination()] = o
			}
			for i, o := range report.Outcomes {
				if o.Status != job.StatusFailed || errors.Is(o.Err, ErrDuplicateDestination) {
					continue
				}
				if retried, ok := byDest[o.Job.Destination()]; ok {
					retried.Attempts += o.Attempts
					report.Outcomes[i] = retried
				}
			}
			report.tally()
		}
	}

	report.Duration = time.Since(start)
	return report
}

// runPass 预过滤已存在的目标，其余交给 worker 执行。
func (s *Scheduler) runPass(ctx context.Context, jobs []job.Descriptor) []job.Outcome {
	outcomes := make([]job.Outcome, len(jobs))
	progress := make([]*job.Progress, len(jobs))
	seen := make(map[string]bool, len(jobs))

	var pending []int
	for i, d := range jobs {
		progress[i] = job.NewProgress()
		dest := d.Destination()
		if seen[dest] {
			logger.Warnf("[engine] 重复的目标 %s，不再生成", dest)
			s.advance(progress[i], job.StatusFailed)
			outcomes[i] = job.Failed(d, 0, fmt.Errorf("%w: %s", ErrDuplicateDestination, dest))
			continue
		}
		seen[dest] = true

		if _, err := os.Stat(dest); err == nil {
			s.advance(progress[i], job.StatusSkipped)
			outcomes[i] = job.Skipped(d)
			continue
		}
		pending = append(pending, i)
	}

	total := len(pending)
	if total == 0 {
		return outcomes
	}
	logger.Infof("[engine] 共 %d 个任务，%d 个已存在，待生成 %d 个 (并发 %d)",
		len(jobs), len(jobs)-total, total, s.cfg.Concurrency)

	var (
		done    atomic.Int64
		wg      sync.WaitGroup
		indices = make(chan int)
	)
	workers := min(s.cfg.Concurrency, total)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				outcomes[i] = s.execute(ctx, jobs[i], progress[i])
				s.logOutcome(int(done.Add(1)), total, outcomes[i])
			}
		}()
	}

dispatch:
	for _, i := range pending {
		select {
		case <-ctx.Done():
			break dispatch
		case indices <- i:
		}
	}
	close(indices)
	wg.Wait()

	// 取消后未派发的任务
	for _, i := range pending {
		if !progress[i].Status().Terminal() {
			s.advance(progress[i], job.StatusFailed)
			outcomes[i] = job.Failed(jobs[i], 0, fmt.Errorf("未派发: %w", context.Cause(ctx)))
		}
	}
	return outcomes
}

// execute 执行单个任务：合成全部分段，拼接后原子写入，再后处理。
func (s *Scheduler) execute(ctx context.Context, d job.Descriptor, p *job.Progress) job.Outcome {
	start := time.Now()
	s.advance(p, job.StatusInFlight)

	data, attempts, err := s.synthesizeAll(ctx, d)
	if err == nil {
		err = s.write(d.Destination(), data)
	}
	if err != nil {
		s.advance(p, job.StatusFailed)
		out := job.Failed(d, attempts, err)
		out.Elapsed = time.Since(start)
		return out
	}

	out := job.Outcome{Job: d, Status: job.StatusSucceeded, Attempts: attempts, Bytes: len(data)}
	if perr := s.postProcess(ctx, d.Destination()); perr != nil {
		logger.Warnf("[engine] %v", perr)
		out.PostErr = perr
	}
	s.advance(p, job.StatusSucceeded)
	out.Elapsed = time.Since(start)
	return out
}

// postProcess 处理已落盘的文件。文件写入后即被视为缓存命中，
// 因此中断信号不能打断后处理，只受 PostTimeout 约束。
func (s *Scheduler) postProcess(ctx context.Context, dest string) error {
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PostTimeout)
	defer cancel()
	return s.post.Process(postCtx, dest)
}

// synthesizeAll 合成任务的所有分段。组合任务的分段并发请求，
// 任何一段失败会取消其余分段，且不产生输出。
func (s *Scheduler) synthesizeAll(ctx context.Context, d job.Descriptor) ([]byte, int, error) {
	segs := d.Segments()
	if len(segs) == 1 {
		res, err := s.synthesize(ctx, d, segs[0])
		return res.Data, res.Attempts, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]retry.Result, len(segs))
	errs := make([]error, len(segs))
	var wg sync.WaitGroup
	for i, seg := range segs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.synthesize(ctx, d, seg)
			if errs[i] != nil {
				cancel()
			}
		}()
	}
	wg.Wait()

	attempts := 0
	for _, r := range results {
		attempts += r.Attempts
	}
	if err := firstCause(errs); err != nil {
		return nil, attempts, err
	}

	parts := make([][]byte, len(results))
	for i, r := range results {
		parts[i] = r.Data
	}
	data, err := audio.Concat(parts)
	if err != nil {
		return nil, attempts, err
	}
	return data, attempts, nil
}

// synthesize 在重试策略下合成一段。每次尝试都要先拿到调用槽位。
func (s *Scheduler) synthesize(ctx context.Context, d job.Descriptor, seg job.Segment) (retry.Result, error) {
	req := tts.Request{Text: seg.Text, Language: seg.Language, Voice: seg.Voice, Speed: seg.Speed}

	policy := s.cfg.Retry
	policy.OnRetry = func(n retry.Notice) {
		logger.Debugf("[engine] %s %q 第 %d/%d 次失败: %v，%s 后重试",
			d.Destination(), seg.Text, n.Attempt, n.Total, n.Err, n.Delay)
	}

	return policy.Do(ctx, func(ctx context.Context) ([]byte, error) {
		if err := s.acquire(ctx); err != nil {
			return nil, tts.NewError(tts.KindCanceled, s.synth.Name(), err)
		}
		defer s.release()
		return s.synth.Synthesize(ctx, req)
	})
}

func (s *Scheduler) acquire(ctx context.Context) error {
	select {
	case s.calls <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			<-s.calls
			return err
		}
	}
	return nil
}

func (s *Scheduler) release() { <-s.calls }

func (s *Scheduler) advance(p *job.Progress, to job.Status) {
	if err := p.Advance(to); err != nil {
		logger.Errorf("[engine] %v", err)
	}
}

func (s *Scheduler) logOutcome(n, total int, o job.Outcome) {
	switch o.Status {
	case job.StatusSucceeded:
		kind := "stem"
		if o.Job.Composed() {
			kind = "组合"
		}
		logger.Infof("[engine] [%d/%d] ✓ %s %s (%d 字节, %d 次请求, %s)",
			n, total, kind, o.Job.Destination(), o.Bytes, o.Attempts, o.Elapsed.Round(time.Millisecond))
	default:
		logger.Warnf("[engine] [%d/%d] ✗ %s: %s", n, total, o.Job, o.Reason)
	}
}

// firstCause 返回第一个非取消错误；都是取消时返回第一个错误。
func firstCause(errs []error) error {
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		if tts.KindOf(err) != tts.KindCanceled && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return first
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
