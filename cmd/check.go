package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli"

	"resguard/libguard/config"
	"resguard/libguard/process"
	"resguard/libguard/rules"
)

// resguard check 命令
var CheckCommand = cli.Command{
	Name:      "check",
	Usage:     `validate the config file and print the compiled rules`,
	UsageText: `resguard check [--config FILE]`,
	Flags:     []cli.Flag{configFlag},

	Action: func(context *cli.Context) error {
		conf, err := loadConfig(context)
		if err != nil {
			return reportConfigError(err)
		}
		compiled, err := rules.Compile(conf.Rules, conf.Limits)
		if err != nil {
			return reportConfigError(err)
		}
		if _, err := process.NewMatcher(conf.Limits.Whitelist, conf.Limits.Blacklist); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return printRules(compiled)
	},
}

// 逐条打印配置中的所有错误
func reportConfigError(err error) error {
	var rerr *rules.ConfigError
	var cerr *config.Error
	switch {
	case errors.As(err, &rerr):
		for _, r := range rerr.Rules {
			fmt.Fprintln(os.Stderr, r.Error())
		}
	case errors.As(err, &cerr):
		for _, p := range cerr.Problems {
			fmt.Fprintln(os.Stderr, p)
		}
	}
	return cli.NewExitError(err.Error(), 1)
}

func printRules(compiled []rules.Rule) error {
	w := tabwriter.NewWriter(os.Stdout, 12, 1, 3, ' ', 0)
	if _, err := fmt.Fprintf(w, "#\tNAME\tCONDITION\tDURATION\tACTION\n"); err != nil {
		return fmt.Errorf("failed to execute fmt.Fprintf: %v", err)
	}
	for i, r := range compiled {
		if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, r.Name, r.Condition, r.Dwell, r.Action); err != nil {
			return fmt.Errorf("failed to execute fmt.Fprintf: %v", err)
		}
	}
	return w.Flush()
}
