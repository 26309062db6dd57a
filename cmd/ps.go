package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"resguard/libguard/config"
	"resguard/libguard/metrics"
	"resguard/libguard/process"
)

// resguard ps 命令
var ProcessListCommand = cli.Command{
	Name:      "ps",
	Usage:     `show system usage and the top CPU consuming processes`,
	UsageText: `resguard ps [--config FILE] [--top N] [--interval DURATION]`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "config, c", // 不指定时显示所有进程
			Usage: "only show processes monitored by the blacklist and whitelist of this config file",
		},
		cli.IntFlag{
			Name:  "top, n",
			Usage: "number of processes to show",
			Value: 10,
		},
		cli.DurationFlag{
			Name:  "interval",
			Usage: "sampling window used to compute CPU usage",
			Value: time.Second,
		},
	},

	Action: func(ctx *cli.Context) error {
		var matcher *process.Matcher
		if path := ctx.String("config"); path != "" {
			m, err := loadMatcher(path)
			if err != nil {
				return err
			}
			matcher = m
		}
		if err := listProcesses(ctx.Int("top"), ctx.Duration("interval"), matcher); err != nil {
			return fmt.Errorf("list processes error: %v", err)
		}
		return nil
	},
}

func loadMatcher(path string) (*process.Matcher, error) {
	conf, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return process.NewMatcher(conf.Limits.Whitelist, conf.Limits.Blacklist)
}

// matcher 为 nil 时不过滤
func topProcesses(procs []*process.Process, matcher *process.Matcher, top int) []*process.Process {
	if matcher != nil {
		procs = matcher.Filter(procs)
	}
	return process.Top(procs, top)
}

// 扫描两次进程，用两次之间的 CPU 时间计算使用率
func listProcesses(top int, interval time.Duration, matcher *process.Matcher) error {
	ctx := context.Background()
	scanner := process.NewScanner()
	if _, err := scanner.Scan(ctx); err != nil {
		return err
	}

	sys, err := metrics.NewCollector().Collect(ctx)
	if err != nil {
		return err
	}
	time.Sleep(interval)

	procs, err := scanner.Scan(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Total CPU: %.1f%%   Memory: %d MB / %d MB   Load: %.2f %.2f %.2f\n\n",
		sys.CpuTotal, sys.MemoryUsed/1024/1024, sys.MemoryTotal/1024/1024, sys.Load1, sys.Load5, sys.Load15)

	w := tabwriter.NewWriter(os.Stdout, 12, 1, 3, ' ', 0)
	_, err = fmt.Fprintf(w, "PID\tNAME\tCPU\tRSS\tSERVICE\tCOMMAND\n")
	if err != nil {
		return fmt.Errorf("failed to execute fmt.Fprintf: %v", err)
	}
	for _, p := range topProcesses(procs, matcher, top) {
		_, err = fmt.Fprintf(w, "%d\t%s\t%.1f%%\t%d MB\t%s\t%s\n",
			p.Pid,
			p.Name,
			p.CpuPercent,
			p.MemoryBytes/1024/1024,
			p.Service,
			strings.Join(p.Cmdline, " "),
		)
		if err != nil {
			return fmt.Errorf("failed to execute fmt.Fprintf: %v", err)
		}
	}
	return w.Flush()
}
