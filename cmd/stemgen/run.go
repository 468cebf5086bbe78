package main

import (
	"context"
	"fmt"
	"time"

	"github.com/iabetor/stemgen/internal/catalog"
	"github.com/iabetor/stemgen/internal/config"
	"github.com/iabetor/stemgen/internal/engine"
	"github.com/iabetor/stemgen/internal/job"
	"github.com/iabetor/stemgen/internal/ledger"
	"github.com/iabetor/stemgen/internal/logger"
)

const (
	phaseStems = "stems"
	phaseCache = "cache"
)

// phase 是一个生成阶段：stem 或组合播报。
type phase struct {
	name   string
	skip   bool
	expand func() ([]job.Descriptor, error)
}

func planPhases(cfg *config.Config) []phase {
	spec := cfg.CatalogSpec()
	return []phase{
		{
			name: phaseStems,
			skip: cfg.Phases.SkipStems,
			expand: func() ([]job.Descriptor, error) {
				return catalog.StemJobs(spec, cfg.Output.StemsDir)
			},
		},
		{
			name: phaseCache,
			skip: cfg.Phases.SkipCache,
			expand: func() ([]job.Descriptor, error) {
				return catalog.ComposedJobs(spec, cfg.Output.CacheDir)
			},
		},
	}
}

// runGenerate 依次执行各阶段。任务失败只记录日志和运行记录，不影响退出码；
// 配置问题在派发任何任务前返回错误。
func runGenerate(ctx context.Context, cfg *config.Config, opts *options) error {
	synth, err := buildSynthesizer(cfg)
	if err != nil {
		return err
	}
	sched := engine.New(synth, buildPostProcessor(cfg), engineConfig(cfg))

	ldg := openLedger(cfg)
	if ldg != nil {
		defer ldg.Close()
	}
	if opts.onlyFailed && ldg == nil {
		return fmt.Errorf("%w: --only-failed 需要可用的运行记录库", config.ErrConfiguration)
	}

	logger.Infof("[main] stemgen 启动 (provider=%s, 并发=%d, 最多 %d 次尝试, 策略=%s)",
		synth.Name(), cfg.Engine.Concurrency, cfg.Retry.MaxAttempts, cfg.Retry.Strategy)

	for _, p := range planPhases(cfg) {
		if p.skip {
			logger.Infof("[main] 跳过阶段 %s", p.name)
			continue
		}
		if ctx.Err() != nil {
			break
		}

		jobs, err := p.expand()
		if err != nil {
			return fmt.Errorf("%w: 展开 %s 目录失败: %v", config.ErrConfiguration, p.name, err)
		}
		if opts.onlyFailed {
			jobs, err = keepLastFailed(ctx, ldg, p.name, jobs)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				logger.Infof("[main] 阶段 %s 上次没有失败任务", p.name)
				continue
			}
		}

		started := time.Now()
		logger.Infof("[main] 阶段 %s: %d 个任务", p.name, len(jobs))
		report := sched.Run(ctx, jobs)
		logSummary(p.name, report)

		if ldg != nil {
			run := ledger.Run{Phase: p.name, Provider: synth.Name(), StartedAt: started, Duration: report.Duration}
			// 被取消的运行也要留下记录
			if _, err := ldg.Record(context.WithoutCancel(ctx), run, report.Outcomes); err != nil {
				logger.Warnf("[main] 写入运行记录失败: %v", err)
			}
		}
	}

	if ctx.Err() != nil {
		logger.Warnf("[main] 运行被中断")
	}
	return nil
}

// openLedger 打开运行记录库。打开失败只告警，生成照常进行。
func openLedger(cfg *config.Config) *ledger.Ledger {
	if cfg.Ledger.Disabled {
		return nil
	}
	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		logger.Warnf("[main] 运行记录库不可用: %v", err)
		return nil
	}
	return l
}

// keepLastFailed 只保留上次运行失败的任务。
func keepLastFailed(ctx context.Context, ldg *ledger.Ledger, phase string, jobs []job.Descriptor) ([]job.Descriptor, error) {
	failures, err := ldg.LastFailures(ctx, phase)
	if err != nil {
		return nil, err
	}
	failed := make(map[string]bool, len(failures))
	for _, f := range failures {
		failed[f.Destination] = true
	}

	var out []job.Descriptor
	for _, d := range jobs {
		if failed[d.Destination()] {
			out = append(out, d)
		}
	}
	if len(out) < len(failures) {
		logger.Warnf("[main] 阶段 %s 有 %d 个失败任务已不在当前目录中", phase, len(failures)-len(out))
	}
	return out, nil
}

func logSummary(name string, r *engine.Report) {
	logger.Infof("[main] 阶段 %s 完成: 共 %d, 跳过 %d, 成功 %d, 失败 %d, 耗时 %s",
		name, r.Total(), r.Skipped, r.Succeeded, r.Failed, r.Duration.Round(time.Millisecond))

	postFailures := 0
	for _, o := range r.Outcomes {
		if o.PostErr != nil {
			postFailures++
		}
	}
	if postFailures > 0 {
		logger.Warnf("[main] %d 个文件后处理失败，保留了未处理的版本", postFailures)
	}

	if r.Failed == 0 {
		return
	}
	logger.Warnf("[main] 失败任务 (%d):", r.Failed)
	for _, o := range r.Outcomes {
		if o.Status == job.StatusFailed {
			logger.Warnf("[main]   - %s: %s", o.Job, o.Reason)
		}
	}
}
