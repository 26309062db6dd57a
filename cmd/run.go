package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"resguard/libguard"
	"resguard/libguard/actionlog"
	"resguard/libguard/enforcer"
	"resguard/libguard/telemetry"
)

// resguard run 命令
var RunCommand = cli.Command{
	Name:      "run",
	Usage:     `start the monitoring loop`,
	UsageText: `resguard run [--config FILE] [--dry-run] [--metrics-addr ADDR]`,
	Flags: []cli.Flag{
		configFlag,
		cli.BoolFlag{
			Name:  "dry-run", // 只打印动作，不执行
			Usage: "evaluate rules and log actions without applying them",
		},
		cli.StringFlag{
			Name:  "metrics-addr", // Prometheus 指标的监听地址
			Usage: "serve Prometheus metrics on this address.	eg: --metrics-addr :9464",
		},
	},

	// resguard run 命令的入口点
	// 1. 读取并校验配置，规则不合法时直接退出
	// 2. 初始化 cgroup
	// 3. 进入轮询循环，直到收到 SIGINT/SIGTERM
	Action: func(context *cli.Context) error {
		conf, err := loadConfig(context)
		if err != nil {
			return err
		}
		dryRun := context.Bool("dry-run") || conf.General.DryRun

		opts := libguard.Options{
			Metrics: telemetry.New(),
			DryRun:  dryRun,
		}

		if conf.General.ActionLog != "" {
			actions, err := actionlog.Open(conf.General.ActionLog, conf.General.HistorySize)
			if err != nil {
				return err
			}
			defer actions.Close()
			opts.ActionLog = actions
		}

		if !dryRun {
			enf := enforcer.New(enforcer.NewCgroupBackend(conf.Limits.CgroupBasePath), conf.General.EnforceTimeout())
			if err := enf.Init(); err != nil {
				return err
			}
			opts.Enforcer = enf
		}

		guard, err := libguard.NewGuard(conf, opts)
		if err != nil {
			return fmt.Errorf("load rules failed: %w", err)
		}

		return run(guard, opts.Metrics, context.String("metrics-addr"))
	},
}

func run(guard *libguard.Guard, metrics *telemetry.Metrics, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, metricsAddr); err != nil {
				log.Errorf("metrics server error: %v", err)
			}
		}()
	}

	log.Infof("resguard started, check interval: %v, rules loaded: %d",
		guard.General.Interval(), len(guard.CompiledRules()))
	if err := guard.Run(ctx); err != nil {
		return err
	}
	log.Infof("resguard stopped, %d action(s) fired", guard.ActionLog().Total())
	return nil
}
