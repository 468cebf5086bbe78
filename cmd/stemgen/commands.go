package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iabetor/stemgen/internal/config"
	"github.com/iabetor/stemgen/internal/ledger"
)

func newCatalogCommand(opts *options) *cobra.Command {
	var which string

	cmd := &cobra.Command{
		Use:     "catalog",
		Short:   "列出计划生成的任务及其是否已存在",
		Example: `  stemgen catalog --phase cache`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch which {
			case "all", phaseStems, phaseCache:
			default:
				return fmt.Errorf("未知阶段 %q", which)
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			total, missing := 0, 0
			for _, p := range planPhases(cfg) {
				if which != "all" && which != p.name {
					continue
				}
				jobs, err := p.expand()
				if err != nil {
					return fmt.Errorf("%w: 展开 %s 目录失败: %v", config.ErrConfiguration, p.name, err)
				}
				for _, d := range jobs {
					state := "missing"
					if _, err := os.Stat(d.Destination()); err == nil {
						state = "exists"
					} else {
						missing++
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%q\n", p.name, state, d.Destination(), d.Language(), d.Text())
				}
				total += len(jobs)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "共 %d 个任务，缺失 %d 个\n", total, missing)
			return nil
		},
	}

	cmd.Flags().StringVar(&which, "phase", "all", "阶段: stems, cache 或 all")
	return cmd
}

func newFailedCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "显示各阶段最近一次运行的失败任务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			ldg, err := ledger.Open(cfg.Ledger.Path)
			if err != nil {
				return err
			}
			defer ldg.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "运行记录库: %s\n", ldg.Path())
			for _, name := range []string{phaseStems, phaseCache} {
				run, err := ldg.LastRun(cmd.Context(), name)
				if err != nil {
					return err
				}
				if run == nil {
					fmt.Fprintf(out, "[%s] 没有运行记录\n", name)
					continue
				}
				fmt.Fprintf(out, "[%s] %s (%s) 跳过 %d, 成功 %d, 失败 %d\n",
					name, run.StartedAt.Format("2006-01-02 15:04:05"), run.Provider, run.Skipped, run.Succeeded, run.Failed)

				failures, err := ldg.LastFailures(cmd.Context(), name)
				if err != nil {
					return err
				}
				for _, f := range failures {
					fmt.Fprintf(out, "  %s\t%d 次\t%s\n", f.Destination, f.Attempts, f.Reason)
				}
			}
			return nil
		},
	}
}
