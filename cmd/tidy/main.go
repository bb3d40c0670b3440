package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chmdznr/folder-tidy/internal/config"
	"github.com/chmdznr/folder-tidy/pkg/version"
	"github.com/urfave/cli/v2"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, errorText("Error: %v", err))
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	sourceFlag := &cli.StringFlag{
		Name:    "source",
		Aliases: []string{"s"},
		Usage:   "Folder to organize",
	}
	rulesFlag := &cli.StringFlag{
		Name:    "rules",
		Aliases: []string{"r"},
		Usage:   "Rules file (defaults to rules_path from config)",
	}

	return &cli.App{
		Name:                 "tidy",
		Usage:                "Sort a folder's files into subfolders by extension, with preview and undo",
		Version:              version.Version,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file",
				Value:   config.DefaultPath,
				EnvVars: []string{"TIDY_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "journal",
				Usage: "Journal database path (overrides config)",
			},
			&cli.StringFlag{
				Name:  "log-dir",
				Usage: "Run log directory (overrides config)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "trace, debug, info, warn or error (overrides config)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "text or json (overrides config)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "Version:    %s\n", version.Version)
					fmt.Fprintf(c.App.Writer, "Git commit: %s\n", version.GitCommit)
					fmt.Fprintf(c.App.Writer, "Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:  "preview",
				Usage: "Show the moves the rules would make, without touching anything",
				Flags: []cli.Flag{
					withRequired(sourceFlag),
					rulesFlag,
					&cli.BoolFlag{
						Name:  "show-unmatched",
						Usage: "Also list files no rule applies to",
					},
				},
				Action: previewMoves,
			},
			{
				Name:  "apply",
				Usage: "Plan and apply the moves",
				Flags: []cli.Flag{
					withRequired(sourceFlag),
					rulesFlag,
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Do not ask for confirmation",
					},
					&cli.BoolFlag{
						Name:  "open",
						Usage: "Open the organized folder and the run log when done",
					},
				},
				Action: applyMoves,
			},
			{
				Name:  "undo",
				Usage: "Move files back to where they came from",
				Flags: []cli.Flag{
					sourceFlag,
					&cli.StringFlag{
						Name:  "run",
						Usage: "Run id (or unique prefix) to undo",
					},
					&cli.StringFlag{
						Name:  "from-log",
						Usage: "Undo the MOVED entries of a run log instead of the journal",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Restore files even if they changed after being moved",
					},
				},
				Action: undoMoves,
			},
			{
				Name:  "history",
				Usage: "List recent runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of runs to show",
						Value: 20,
					},
				},
				Action: showHistory,
			},
			{
				Name:  "show",
				Usage: "Show the moves of one run",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "run",
						Usage:    "Run id (or unique prefix)",
						Required: true,
					},
				},
				Action: showRun,
			},
			{
				Name:  "rules",
				Usage: "Manage the rules file",
				Subcommands: []*cli.Command{
					{
						Name:  "init",
						Usage: "Write the default rules file",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "path",
								Usage: "Where to write (defaults to rules_path from config)",
							},
							&cli.BoolFlag{
								Name:  "force",
								Usage: "Overwrite an existing file",
							},
						},
						Action: initRules,
					},
					{
						Name:   "check",
						Usage:  "Validate the rules file",
						Flags:  []cli.Flag{rulesFlag},
						Action: checkRules,
					},
				},
			},
			{
				Name:  "logs",
				Usage: "Inspect and archive run logs",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List run logs, newest first",
						Action: listLogs,
					},
					{
						Name:   "push",
						Usage:  "Upload run logs to the configured archive bucket",
						Action: pushLogs,
					},
				},
			},
		},
	}
}

func withRequired(f *cli.StringFlag) *cli.StringFlag {
	cp := *f
	cp.Required = true
	return &cp
}
