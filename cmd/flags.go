package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"resguard/libguard/config"
	"resguard/libguard/constant"
)

var configFlag = cli.StringFlag{
	Name:   "config, c",
	Usage:  "path of the config file (.toml, .yaml or .yml)",
	Value:  constant.ConfigPath,
	EnvVar: "RESGUARD_CONFIG",
}

// 读取 --config 指定的配置文件
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.String("config")
	conf, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return conf, nil
}
