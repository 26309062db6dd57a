package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"resguard/libguard/actionlog"
)

// resguard history 命令
var HistoryCommand = cli.Command{
	Name:      "history",
	Usage:     `print the actions recorded in the action log`,
	UsageText: `resguard history [--config FILE] [--file FILE]`,
	Flags: []cli.Flag{
		configFlag,
		cli.StringFlag{
			Name:  "file, f",
			Usage: "action log to read, defaults to general.action_log of the config",
		},
	},

	Action: func(context *cli.Context) error {
		path := context.String("file")
		if path == "" {
			conf, err := loadConfig(context)
			if err != nil {
				return err
			}
			path = conf.General.ActionLog
		}
		if path == "" {
			return fmt.Errorf("no action log configured, set general.action_log or pass --file")
		}

		entries, err := actionlog.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read action log %s: %v", path, err)
		}
		return printHistory(entries)
	},
}

func printHistory(entries []actionlog.Entry) error {
	w := tabwriter.NewWriter(os.Stdout, 12, 1, 3, ' ', 0)
	_, err := fmt.Fprintf(w, "TIME\tRULE\tPID\tNAME\tACTION\tATTEMPT\tOUTCOME\tERROR\n")
	if err != nil {
		return fmt.Errorf("failed to execute fmt.Fprintf: %v", err)
	}
	for _, e := range entries {
		_, err = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime),
			e.Rule,
			e.Process.Pid,
			e.Process.Name,
			e.Action,
			e.Attempt,
			e.Outcome,
			e.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to execute fmt.Fprintf: %v", err)
		}
	}
	return w.Flush()
}
