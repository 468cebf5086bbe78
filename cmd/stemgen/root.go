package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iabetor/stemgen/internal/config"
	"github.com/iabetor/stemgen/internal/logger"
)

// options 是命令行参数，优先于配置文件。
type options struct {
	configPath string
	logLevel   string
	skipStems  bool
	skipCache  bool
	onlyFailed bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "stemgen",
		Short: "预生成播报音频 stem 与组合播报缓存",
		Long: `stemgen 调用 TTS 服务生成短语、数字、字母的音频 stem，
以及 "号码 + 窗口" 组合播报，写入本地目录供前端离线使用。
已存在的文件会被跳过，可以反复运行。`,
		Example: `  stemgen --config configs/stemgen.yaml
  stemgen --skip-cache --log-level debug
  stemgen --only-failed`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// 监听系统信号，停止派发新任务
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					logger.Warnf("[main] 收到信号 %v，正在停止...", sig)
					cancel()
				case <-ctx.Done():
				}
			}()

			return runGenerate(ctx, cfg, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "配置文件路径（为空时只使用默认值和环境变量）")
	pf.StringVar(&opts.logLevel, "log-level", "", "日志级别: debug, info, warn, error")

	f := cmd.Flags()
	f.BoolVar(&opts.skipStems, "skip-stems", false, "跳过 stem 生成")
	f.BoolVar(&opts.skipCache, "skip-cache", false, "跳过组合播报生成")
	f.BoolVar(&opts.onlyFailed, "only-failed", false, "只重跑上次运行失败的任务")

	cmd.AddCommand(
		newCatalogCommand(opts),
		newFailedCommand(opts),
	)
	return cmd
}

// loadConfig 读取配置、应用命令行覆盖并初始化日志。不做校验，只读的子命令不需要密钥。
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.skipStems {
		cfg.Phases.SkipStems = true
	}
	if opts.skipCache {
		cfg.Phases.SkipCache = true
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		return nil, fmt.Errorf("%w: 初始化日志失败: %v", config.ErrConfiguration, err)
	}
	return cfg, nil
}
