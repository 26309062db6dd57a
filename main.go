package main

import (
	"os"

	"github.com/urfave/cli"

	log "github.com/sirupsen/logrus"

	"resguard/cmd"
)

const (
	usage = `a node-level resource guard.

resguard samples per-process CPU and memory usage, and when a rule has been violated
for long enough it caps the process with cgroup v2 or asks it to terminate.`
)

func main() {
	app := cli.NewApp()
	app.Name = "resguard"
	app.Usage = usage

	app.Commands = []cli.Command{
		cmd.RunCommand,
		cmd.CheckCommand,
		cmd.ProcessListCommand,
		cmd.HistoryCommand,
	}
	// 全局 flag
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug", // 启用 debug 模式
			Usage: "enable debug mode",
		},
	}
	app.Before = func(context *cli.Context) error {
		// 设置日志格式
		log.SetFormatter(&log.TextFormatter{
			ForceColors:   true,
			FullTimestamp: true,
		})
		// 设置日志级别
		if context.Bool("debug") {
			log.SetLevel(log.DebugLevel)
		}

		log.SetOutput(os.Stdout)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
