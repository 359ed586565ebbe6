package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/urfave/cli"
)

var (
	version = "dev"
	commit  string
	date    string
)

func main() {
	app := cli.App{
		Name:      "framesched",
		HelpName:  "framesched",
		Usage:     "frame-phase scheduler host",
		Version:   version,
		UsageText: "framesched <command> [arguments...]",
		Commands: []cli.Command{
			{
				Name:   "run",
				Usage:  "run the frame loop until SIGINT/SIGTERM",
				Action: run,
				Flags: []cli.Flag{
					configFlag,
					cli.DurationFlag{
						Name:  "stop-timeout",
						Value: 10 * time.Second,
						Usage: "upper bound for graceful shutdown",
					},
				},
			},
			{
				Name:   "check",
				Usage:  "validate a config file and print the resolved settings",
				Action: check,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:    "version",
				Aliases: []string{"v"},
				Usage:   "prints the build version",
				Action: func(c *cli.Context) error {
					fmt.Printf("%s %s (%s_%s)\nBuild: %s=%s\n",
						c.App.Name, c.App.Version, runtime.GOOS, runtime.GOARCH, date, commit)
					return nil
				},
			},
		},
		HideVersion: true,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "framesched: %s\n", err)
		os.Exit(1)
	}
}

var configFlag = cli.StringFlag{
	Name:   "config, c",
	Value:  "./config.yaml",
	Usage:  "path to config (.json, .yaml or .yml)",
	EnvVar: "FRAMESCHED_CONFIG",
}
